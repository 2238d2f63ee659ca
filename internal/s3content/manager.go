// Package s3content shares S3 objects into Slack, either as presigned-URL
// messages or by relaying the object bytes through files.upload.
//
// Every method takes the bucket as an explicit parameter. The manager holds
// no bucket state, so concurrent calls against different buckets never
// interfere.
package s3content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"

	"github.com/fpang/slack-actions-gateway/internal/slack"
)

// imageExpiry is the presign lifetime for image blocks. Slack re-fetches
// image URLs when a message is unfurled, so images get the 7-day maximum.
const imageExpiry = 7 * 24 * time.Hour

// ObjectAPI is the subset of the S3 client the manager uses.
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Presigner generates presigned GET URLs. *s3.PresignClient satisfies this.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// SlackSink is the subset of the Slack client the manager posts through.
type SlackSink interface {
	PostBlocks(ctx context.Context, channelID string, blocks []slack.Block, fallback string) error
	UploadFile(ctx context.Context, channelID, title, comment, path, contentType string) (string, error)
}

// Manager shares S3 content into Slack channels.
type Manager struct {
	client    ObjectAPI
	presigner Presigner
	sink      SlackSink
	expiry    time.Duration
}

// NewManager creates a content manager. expiry is the presign lifetime for
// link shares; image shares always use imageExpiry.
func NewManager(client ObjectAPI, presigner Presigner, sink SlackSink, expiry time.Duration) (*Manager, error) {
	if client == nil || presigner == nil || sink == nil {
		return nil, fmt.Errorf("s3 client, presigner, and slack sink are required")
	}
	if expiry <= 0 {
		return nil, fmt.Errorf("presign expiry must be positive")
	}
	return &Manager{client: client, presigner: presigner, sink: sink, expiry: expiry}, nil
}

// PresignedURL returns a presigned GET URL for the object.
func (m *Manager) PresignedURL(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	if bucket == "" || key == "" {
		return "", fmt.Errorf("bucket and key are required")
	}
	result, err := m.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("presign GetObject: %w", err)
	}
	return result.URL, nil
}

// ShareLink posts a section block with a presigned link to the object. title
// defaults to the object's base name.
func (m *Manager) ShareLink(ctx context.Context, bucket, key, channelID, title string) error {
	url, err := m.PresignedURL(ctx, bucket, key, m.expiry)
	if err != nil {
		return err
	}
	if title == "" {
		title = filepath.Base(key)
	}

	log.Info().Str("bucket", bucket).Str("key", key).Str("channel", channelID).Msg("Sharing S3 link to Slack")

	blocks := []slack.Block{slack.SectionBlock(fmt.Sprintf("📎 <%s|%s>", url, title))}
	if err := m.sink.PostBlocks(ctx, channelID, blocks, title); err != nil {
		return fmt.Errorf("post link block: %w", err)
	}
	return nil
}

// ShareImage posts an image block rendered from a presigned URL. Image URLs
// presign for imageExpiry regardless of the configured link expiry.
func (m *Manager) ShareImage(ctx context.Context, bucket, key, channelID, altText string) error {
	url, err := m.PresignedURL(ctx, bucket, key, imageExpiry)
	if err != nil {
		return err
	}
	if altText == "" {
		altText = filepath.Base(key)
	}

	log.Info().Str("bucket", bucket).Str("key", key).Str("channel", channelID).Msg("Sharing S3 image to Slack")

	blocks := []slack.Block{slack.ImageBlock(url, altText)}
	if err := m.sink.PostBlocks(ctx, channelID, blocks, altText); err != nil {
		return fmt.Errorf("post image block: %w", err)
	}
	return nil
}

// RelayToSlack downloads the object to a temporary file and uploads it to the
// channel via files.upload. The temporary file is removed on every exit path.
func (m *Manager) RelayToSlack(ctx context.Context, bucket, key, channelID, title string) error {
	if bucket == "" || key == "" || channelID == "" {
		return fmt.Errorf("bucket, key, and channel are required")
	}

	path, cleanup, err := m.downloadToTempFile(ctx, bucket, key)
	if err != nil {
		return err
	}
	defer cleanup()

	if title == "" {
		title = filepath.Base(key)
	}

	log.Info().Str("bucket", bucket).Str("key", key).Str("channel", channelID).Msg("Relaying S3 object to Slack")

	if _, err := m.sink.UploadFile(ctx, channelID, title, "", path, ContentTypeFor(key)); err != nil {
		return fmt.Errorf("upload to slack: %w", err)
	}
	return nil
}

// ListObjects lists up to max object keys under prefix.
func (m *Manager) ListObjects(ctx context.Context, bucket, prefix string, max int32) ([]string, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	if max > 0 {
		input.MaxKeys = aws.Int32(max)
	}

	result, err := m.client.ListObjectsV2(ctx, input)
	if err != nil {
		log.Error().Str("bucket", bucket).Str("code", apiErrorCode(err)).Err(err).Msg("S3 ListObjectsV2 failed")
		return nil, fmt.Errorf("S3 ListObjectsV2: %w", err)
	}

	keys := make([]string, 0, len(result.Contents))
	for _, obj := range result.Contents {
		if obj.Key != nil {
			keys = append(keys, *obj.Key)
		}
	}
	return keys, nil
}

// downloadToTempFile fetches the object into a new temp file and returns its
// path plus a cleanup function. On error the temp file is already removed.
func (m *Manager) downloadToTempFile(ctx context.Context, bucket, key string) (string, func(), error) {
	tmpFile, err := os.CreateTemp("", "s3relay-*"+filepath.Ext(key))
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}

	fail := func(err error) (string, func(), error) {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return "", nil, err
	}

	log.Debug().Str("bucket", bucket).Str("key", key).Str("path", tmpFile.Name()).Msg("Downloading from S3")

	result, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		log.Error().Str("bucket", bucket).Str("key", key).Str("code", apiErrorCode(err)).Err(err).Msg("S3 GetObject failed")
		return fail(fmt.Errorf("S3 GetObject: %w", err))
	}
	defer result.Body.Close()

	if _, err := io.Copy(tmpFile, result.Body); err != nil {
		return fail(fmt.Errorf("download object: %w", err))
	}
	if err := tmpFile.Close(); err != nil {
		return fail(fmt.Errorf("close temp file: %w", err))
	}

	return tmpFile.Name(), func() { os.Remove(tmpFile.Name()) }, nil
}

// ContentTypeFor infers a MIME type from the object key's extension.
func ContentTypeFor(key string) string {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

// apiErrorCode extracts the service error code for log and wrap messages,
// e.g. NoSuchKey or AccessDenied. Empty for transport-level failures.
func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
