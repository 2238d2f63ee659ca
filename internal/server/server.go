// Package server is the HTTP boundary of the actions gateway. It owns the
// routes, the signature gate, and the mapping from handler errors to status
// codes: verification failures are 401, malformed payloads 400, everything
// else 500. Response bodies never carry internal detail; that goes to the
// logs.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/slack-actions-gateway/internal/actions"
	"github.com/fpang/slack-actions-gateway/internal/slack"
)

// maxBodySize caps request bodies. Slack interactive payloads are small;
// anything larger is not one.
const maxBodySize = 1 << 20

// Dispatcher routes a parsed payload to its action handler.
type Dispatcher interface {
	Dispatch(ctx context.Context, p *actions.Payload) error
}

// ContentSharer backs the direct share endpoint. Nil when S3 is not
// configured.
type ContentSharer interface {
	ShareLink(ctx context.Context, bucket, key, channelID, title string) error
	ShareImage(ctx context.Context, bucket, key, channelID, altText string) error
	RelayToSlack(ctx context.Context, bucket, key, channelID, title string) error
}

// Options configures a Server.
type Options struct {
	SigningSecret  string
	Dispatcher     Dispatcher
	Content        ContentSharer
	GatewayEnabled bool
}

// Server handles the gateway's HTTP routes.
type Server struct {
	signingSecret  string
	dispatcher     Dispatcher
	content        ContentSharer
	gatewayEnabled bool

	nowFunc func() time.Time
}

// New creates a Server. The signing secret and dispatcher are required.
func New(opts Options) (*Server, error) {
	if opts.SigningSecret == "" {
		return nil, fmt.Errorf("signing secret is required")
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	return &Server{
		signingSecret:  opts.SigningSecret,
		dispatcher:     opts.Dispatcher,
		content:        opts.Content,
		gatewayEnabled: opts.GatewayEnabled,
		nowFunc:        time.Now,
	}, nil
}

// Handler returns the full route set wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/slack/actions", s.handleActions)
	mux.HandleFunc("/slack/s3/share", s.handleShare)
	mux.HandleFunc("/", s.handleHealth)

	return withRecovery(withRequestLog(withMetrics(mux)))
}

// handleActions is the Slack interactive-component callback. The signature
// gate runs before anything looks at the body; a failed gate is always 401
// and the dispatcher never sees the request.
func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		httpError(w, http.StatusBadRequest, "could not read body")
		return
	}

	if err := slack.VerifyRequest(s.signingSecret, r.Header, body, s.nowFunc()); err != nil {
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("Rejected unverified request")
		httpError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	payload, err := actions.ParsePayload(body)
	if err != nil {
		log.Warn().Err(err).Msg("Rejected malformed payload")
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.dispatcher.Dispatch(r.Context(), payload); err != nil {
		if actions.IsValidationError(err) {
			log.Warn().Err(err).Msg("Rejected payload at dispatch")
			httpError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Err(err).Msg("Action handler failed")
		httpError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Slack expects an empty 200 within 3 seconds.
	w.WriteHeader(http.StatusOK)
}

// shareRequest is the direct share endpoint's body.
type shareRequest struct {
	Bucket  string `json:"bucket"`
	Key     string `json:"key"`
	Channel string `json:"channel"`
	Mode    string `json:"mode"`
	Title   string `json:"title"`
}

// handleShare shares an S3 object into a channel without going through an
// interactive callback. The bucket travels in the request so concurrent
// shares against different buckets cannot interfere.
func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.content == nil {
		httpError(w, http.StatusServiceUnavailable, "S3 sharing is not configured")
		return
	}

	var req shareRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if req.Bucket == "" || req.Key == "" || req.Channel == "" {
		httpError(w, http.StatusBadRequest, "bucket, key, and channel are required")
		return
	}

	var err error
	switch req.Mode {
	case "", "link":
		err = s.content.ShareLink(r.Context(), req.Bucket, req.Key, req.Channel, req.Title)
	case "image":
		err = s.content.ShareImage(r.Context(), req.Bucket, req.Key, req.Channel, req.Title)
	case "upload":
		err = s.content.RelayToSlack(r.Context(), req.Bucket, req.Key, req.Channel, req.Title)
	default:
		httpError(w, http.StatusBadRequest, fmt.Sprintf("unknown mode: %s", req.Mode))
		return
	}
	if err != nil {
		log.Error().Err(err).Str("bucket", req.Bucket).Str("key", req.Key).Msg("Share failed")
		httpError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "shared"})
}

// handleHealth reports process liveness and which optional integrations are
// wired in.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		httpError(w, http.StatusNotFound, "not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"gateway": s.gatewayEnabled,
		"s3":      s.content != nil,
	})
}
