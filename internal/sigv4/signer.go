// Package sigv4 implements AWS Signature Version 4 request signing in header
// mode, used to authenticate calls to IAM-protected API Gateway endpoints
// (service "execute-api").
//
// The signer is a pure transformation from (credentials, request, body) to a
// set of request headers. It holds no mutable state and is safe for
// concurrent use. Credentials are resolved from the provider on every Sign
// call, immediately before signing — providers rotate session credentials,
// and a signature computed from a stale set is a correctness bug.
package sigv4

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// Signer signs HTTP requests for one service/region pair.
type Signer struct {
	service string
	region  string
	creds   aws.CredentialsProvider

	nowFunc func() time.Time
}

// New creates a Signer. creds is typically aws.Config.Credentials from
// config.LoadDefaultConfig, which handles IAM roles, env vars, and profiles.
func New(service, region string, creds aws.CredentialsProvider) (*Signer, error) {
	if service == "" || region == "" {
		return nil, fmt.Errorf("service and region are required")
	}
	if creds == nil {
		return nil, fmt.Errorf("credentials provider is required")
	}
	return &Signer{
		service: service,
		region:  region,
		creds:   creds,
		nowFunc: time.Now,
	}, nil
}

// Sign resolves credentials and adds X-Amz-Date, X-Amz-Security-Token (for
// session credentials), and Authorization headers to req. body must be the
// exact bytes that will be sent; pass nil for bodyless requests.
//
// Unresolvable credentials are a hard failure surfaced to the caller — there
// is no unsigned fallback.
func (s *Signer) Sign(ctx context.Context, req *http.Request, body []byte) error {
	creds, err := s.creds.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("resolve credentials: %w", err)
	}
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return fmt.Errorf("resolved credentials are incomplete")
	}

	now := s.nowFunc().UTC()
	amzDate := now.Format(timeFormat)
	scopeDate := now.Format(shortTimeFormat)

	payloadHash := emptyStringSHA256
	if len(body) > 0 {
		sum := sha256.Sum256(body)
		payloadHash = hex.EncodeToString(sum[:])
	}

	// Headers must be set before canonicalization so they are signed.
	req.Header.Set(amzDateHeader, amzDate)
	if creds.SessionToken != "" {
		req.Header.Set(securityTokenHeader, creds.SessionToken)
	}

	host := req.Host
	if host == "" {
		host = req.URL.Host
	}

	canonHeaders, signedHeaders := canonicalHeaders(req.Header, host)

	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI(req.URL),
		canonicalQuery(req.URL),
		canonHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	scope := strings.Join([]string{scopeDate, s.region, s.service, requestSuffix}, "/")

	canonHash := sha256.Sum256([]byte(canonicalRequest))
	stringToSign := strings.Join([]string{
		signingAlgorithm,
		amzDate,
		scope,
		hex.EncodeToString(canonHash[:]),
	}, "\n")

	key := deriveKey(creds.SecretAccessKey, scopeDate, s.region, s.service)
	signature := hex.EncodeToString(hmacSHA256(key, stringToSign))

	req.Header.Set(authorizationHeader, fmt.Sprintf(
		"%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		signingAlgorithm, creds.AccessKeyID, scope, signedHeaders, signature,
	))

	return nil
}

// canonicalURI returns the URI-encoded request path, or "/" when empty.
func canonicalURI(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" {
		return "/"
	}
	return path
}

// canonicalQuery returns the sorted, strictly percent-encoded query string.
// Pairs sort by encoded key, then by encoded value for repeated keys.
func canonicalQuery(u *url.URL) string {
	query := u.Query()
	if len(query) == 0 {
		return ""
	}

	pairs := make([]string, 0, len(query))
	for key, values := range query {
		encKey := encodeRFC3986(key)
		for _, value := range values {
			pairs = append(pairs, encKey+"="+encodeRFC3986(value))
		}
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "&")
}

// canonicalHeaders builds the canonical header block and the signed-header
// list. The signed set is host, content-type when present, and every x-amz-*
// header — the SigV4 required minimum plus the content type the backend
// validates.
func canonicalHeaders(header http.Header, host string) (canonical, signedList string) {
	signed := map[string]string{"host": host}

	for name, values := range header {
		lower := strings.ToLower(name)
		if lower != "content-type" && !strings.HasPrefix(lower, "x-amz-") {
			continue
		}
		trimmed := make([]string, len(values))
		for i, v := range values {
			trimmed[i] = collapseSpaces(strings.TrimSpace(v))
		}
		signed[lower] = strings.Join(trimmed, ",")
	}

	names := make([]string, 0, len(signed))
	for name := range signed {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(signed[name])
		b.WriteByte('\n')
	}
	return b.String(), strings.Join(names, ";")
}

// deriveKey computes the SigV4 signing key: an HMAC chain seeded with the
// secret key and scoped by date, region, service, and the fixed suffix.
func deriveKey(secret, date, region, service string) []byte {
	key := hmacSHA256([]byte("AWS4"+secret), date)
	key = hmacSHA256(key, region)
	key = hmacSHA256(key, service)
	return hmacSHA256(key, requestSuffix)
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

// encodeRFC3986 percent-encodes everything except RFC 3986 unreserved
// characters, with uppercase hex digits. url.QueryEscape is unsuitable here:
// it emits '+' for spaces.
func encodeRFC3986(s string) string {
	const unreserved = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_.~"
	const hexDigits = "0123456789ABCDEF"

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if strings.IndexByte(unreserved, c) >= 0 {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}

// collapseSpaces replaces runs of spaces and tabs with a single space.
func collapseSpaces(s string) string {
	var b strings.Builder
	inRun := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ' ' || c == '\t' {
			if !inRun {
				b.WriteByte(' ')
				inRun = true
			}
			continue
		}
		inRun = false
		b.WriteByte(c)
	}
	return b.String()
}
