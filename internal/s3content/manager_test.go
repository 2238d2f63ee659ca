package s3content

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/fpang/slack-actions-gateway/internal/slack"
)

type fakeObjectAPI struct {
	getBuckets []string
	getKeys    []string
	getBody    []byte
	getErr     error

	listInput *s3.ListObjectsV2Input
	listKeys  []string
	listErr   error
}

func (f *fakeObjectAPI) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.getBuckets = append(f.getBuckets, aws.ToString(params.Bucket))
	f.getKeys = append(f.getKeys, aws.ToString(params.Key))
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.getBody))}, nil
}

func (f *fakeObjectAPI) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.listInput = params
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := &s3.ListObjectsV2Output{}
	for _, k := range f.listKeys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

type fakePresigner struct {
	buckets  []string
	keys     []string
	expiries []time.Duration
	err      error
}

func (f *fakePresigner) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	opts := &s3.PresignOptions{}
	for _, fn := range optFns {
		fn(opts)
	}
	f.buckets = append(f.buckets, aws.ToString(params.Bucket))
	f.keys = append(f.keys, aws.ToString(params.Key))
	f.expiries = append(f.expiries, opts.Expires)
	if f.err != nil {
		return nil, f.err
	}
	url := fmt.Sprintf("https://presigned.example.com/%s/%s", aws.ToString(params.Bucket), aws.ToString(params.Key))
	return &v4.PresignedHTTPRequest{URL: url}, nil
}

type fakeSink struct {
	blockChannels []string
	blocks        [][]slack.Block
	fallbacks     []string
	blockErr      error

	uploadChannels     []string
	uploadTitles       []string
	uploadPaths        []string
	uploadContentTypes []string
	uploadBodies       [][]byte
	uploadErr          error
}

func (f *fakeSink) PostBlocks(ctx context.Context, channelID string, blocks []slack.Block, fallback string) error {
	f.blockChannels = append(f.blockChannels, channelID)
	f.blocks = append(f.blocks, blocks)
	f.fallbacks = append(f.fallbacks, fallback)
	return f.blockErr
}

func (f *fakeSink) UploadFile(ctx context.Context, channelID, title, comment, path, contentType string) (string, error) {
	f.uploadChannels = append(f.uploadChannels, channelID)
	f.uploadTitles = append(f.uploadTitles, title)
	f.uploadPaths = append(f.uploadPaths, path)
	f.uploadContentTypes = append(f.uploadContentTypes, contentType)
	if body, err := os.ReadFile(path); err == nil {
		f.uploadBodies = append(f.uploadBodies, body)
	}
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	return "https://files.slack.com/permalink", nil
}

func newTestManager(t *testing.T, api *fakeObjectAPI, presigner *fakePresigner, sink *fakeSink) *Manager {
	t.Helper()
	m, err := NewManager(api, presigner, sink, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestPresignedURL(t *testing.T) {
	presigner := &fakePresigner{}
	m := newTestManager(t, &fakeObjectAPI{}, presigner, &fakeSink{})

	url, err := m.PresignedURL(context.Background(), "reports", "q3/summary.pdf", 2*time.Hour)
	if err != nil {
		t.Fatalf("PresignedURL: %v", err)
	}
	if url != "https://presigned.example.com/reports/q3/summary.pdf" {
		t.Errorf("url = %s", url)
	}
	if presigner.buckets[0] != "reports" || presigner.keys[0] != "q3/summary.pdf" {
		t.Errorf("presign input = %s/%s", presigner.buckets[0], presigner.keys[0])
	}
	if presigner.expiries[0] != 2*time.Hour {
		t.Errorf("expiry = %v", presigner.expiries[0])
	}
}

func TestPresignedURL_Validation(t *testing.T) {
	m := newTestManager(t, &fakeObjectAPI{}, &fakePresigner{}, &fakeSink{})

	if _, err := m.PresignedURL(context.Background(), "", "key", time.Hour); err == nil {
		t.Error("expected error for empty bucket")
	}
	if _, err := m.PresignedURL(context.Background(), "bucket", "", time.Hour); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestShareLink(t *testing.T) {
	presigner := &fakePresigner{}
	sink := &fakeSink{}
	m := newTestManager(t, &fakeObjectAPI{}, presigner, sink)

	if err := m.ShareLink(context.Background(), "reports", "q3/summary.pdf", "C123", ""); err != nil {
		t.Fatalf("ShareLink: %v", err)
	}

	if presigner.expiries[0] != time.Hour {
		t.Errorf("link expiry = %v, want configured default", presigner.expiries[0])
	}
	if sink.blockChannels[0] != "C123" {
		t.Errorf("channel = %s", sink.blockChannels[0])
	}

	block := sink.blocks[0][0]
	if block.Type != "section" || block.Text == nil {
		t.Fatalf("unexpected block %+v", block)
	}
	want := "📎 <https://presigned.example.com/reports/q3/summary.pdf|summary.pdf>"
	if block.Text.Text != want {
		t.Errorf("block text = %q, want %q", block.Text.Text, want)
	}
}

func TestShareImage_SevenDayExpiry(t *testing.T) {
	presigner := &fakePresigner{}
	sink := &fakeSink{}
	m := newTestManager(t, &fakeObjectAPI{}, presigner, sink)

	if err := m.ShareImage(context.Background(), "media", "charts/latency.png", "C123", "latency chart"); err != nil {
		t.Fatalf("ShareImage: %v", err)
	}

	if want := 7 * 24 * time.Hour; presigner.expiries[0] != want {
		t.Errorf("image expiry = %v, want %v", presigner.expiries[0], want)
	}

	block := sink.blocks[0][0]
	if block.Type != "image" || block.AltText != "latency chart" {
		t.Errorf("unexpected block %+v", block)
	}
	if !strings.HasPrefix(block.ImageURL, "https://presigned.example.com/media/") {
		t.Errorf("image url = %s", block.ImageURL)
	}
}

func TestRelayToSlack(t *testing.T) {
	api := &fakeObjectAPI{getBody: []byte("%PDF-1.7 fake")}
	sink := &fakeSink{}
	m := newTestManager(t, api, &fakePresigner{}, sink)

	if err := m.RelayToSlack(context.Background(), "reports", "q3/summary.pdf", "C123", "Q3 Summary"); err != nil {
		t.Fatalf("RelayToSlack: %v", err)
	}

	if api.getBuckets[0] != "reports" || api.getKeys[0] != "q3/summary.pdf" {
		t.Errorf("GetObject input = %s/%s", api.getBuckets[0], api.getKeys[0])
	}
	if sink.uploadTitles[0] != "Q3 Summary" {
		t.Errorf("title = %s", sink.uploadTitles[0])
	}
	if sink.uploadContentTypes[0] != "application/pdf" {
		t.Errorf("content type = %s", sink.uploadContentTypes[0])
	}
	if string(sink.uploadBodies[0]) != "%PDF-1.7 fake" {
		t.Errorf("uploaded body = %q", sink.uploadBodies[0])
	}
	if _, err := os.Stat(sink.uploadPaths[0]); !os.IsNotExist(err) {
		t.Errorf("temp file %s still exists after relay", sink.uploadPaths[0])
	}
}

func TestRelayToSlack_CleansUpOnUploadFailure(t *testing.T) {
	api := &fakeObjectAPI{getBody: []byte("data")}
	sink := &fakeSink{uploadErr: fmt.Errorf("slack api error: channel_not_found")}
	m := newTestManager(t, api, &fakePresigner{}, sink)

	err := m.RelayToSlack(context.Background(), "reports", "notes.txt", "C999", "")
	if err == nil {
		t.Fatal("expected upload error")
	}
	if len(sink.uploadPaths) != 1 {
		t.Fatal("upload was never attempted")
	}
	if _, statErr := os.Stat(sink.uploadPaths[0]); !os.IsNotExist(statErr) {
		t.Errorf("temp file %s still exists after failed upload", sink.uploadPaths[0])
	}
}

func TestRelayToSlack_GetObjectFailure(t *testing.T) {
	api := &fakeObjectAPI{getErr: fmt.Errorf("NoSuchKey")}
	sink := &fakeSink{}
	m := newTestManager(t, api, &fakePresigner{}, sink)

	if err := m.RelayToSlack(context.Background(), "reports", "missing.pdf", "C123", ""); err == nil {
		t.Fatal("expected error")
	}
	if len(sink.uploadChannels) != 0 {
		t.Error("upload must not run when the download failed")
	}
}

func TestRelayToSlack_BucketIsolation(t *testing.T) {
	api := &fakeObjectAPI{getBody: []byte("x")}
	sink := &fakeSink{}
	m := newTestManager(t, api, &fakePresigner{}, sink)

	if err := m.RelayToSlack(context.Background(), "bucket-a", "a.txt", "C1", ""); err != nil {
		t.Fatal(err)
	}
	if err := m.RelayToSlack(context.Background(), "bucket-b", "b.txt", "C1", ""); err != nil {
		t.Fatal(err)
	}

	if api.getBuckets[0] != "bucket-a" || api.getBuckets[1] != "bucket-b" {
		t.Errorf("buckets = %v, calls must not share bucket state", api.getBuckets)
	}
}

func TestListObjects(t *testing.T) {
	api := &fakeObjectAPI{listKeys: []string{"a.pdf", "b.png"}}
	m := newTestManager(t, api, &fakePresigner{}, &fakeSink{})

	keys, err := m.ListObjects(context.Background(), "reports", "q3/", 50)
	if err != nil {
		t.Fatalf("ListObjects: %v", err)
	}
	if len(keys) != 2 || keys[0] != "a.pdf" || keys[1] != "b.png" {
		t.Errorf("keys = %v", keys)
	}
	if aws.ToString(api.listInput.Bucket) != "reports" {
		t.Errorf("bucket = %s", aws.ToString(api.listInput.Bucket))
	}
	if aws.ToString(api.listInput.Prefix) != "q3/" {
		t.Errorf("prefix = %s", aws.ToString(api.listInput.Prefix))
	}
	if aws.ToInt32(api.listInput.MaxKeys) != 50 {
		t.Errorf("max keys = %d", aws.ToInt32(api.listInput.MaxKeys))
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := []struct{ key, want string }{
		{"report.pdf", "application/pdf"},
		{"chart.PNG", "image/png"},
		{"photo.jpg", "image/jpeg"},
		{"photo.jpeg", "image/jpeg"},
		{"anim.gif", "image/gif"},
		{"data.json", "application/json"},
		{"notes.txt", "text/plain"},
		{"archive.bin", "application/octet-stream"},
		{"noextension", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := ContentTypeFor(tt.key); got != tt.want {
			t.Errorf("ContentTypeFor(%s) = %s, want %s", tt.key, got, tt.want)
		}
	}
}

func TestNewManager_Validation(t *testing.T) {
	if _, err := NewManager(nil, &fakePresigner{}, &fakeSink{}, time.Hour); err == nil {
		t.Error("expected error for nil client")
	}
	if _, err := NewManager(&fakeObjectAPI{}, &fakePresigner{}, &fakeSink{}, 0); err == nil {
		t.Error("expected error for non-positive expiry")
	}
}
