package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// defaultBaseURL is the Slack Web API base URL.
	defaultBaseURL = "https://slack.com/api"

	// defaultTimeout is the HTTP client timeout for message API calls.
	defaultTimeout = 30 * time.Second

	// uploadTimeout is the longer timeout used for file uploads.
	uploadTimeout = 60 * time.Second
)

// Client provides methods for calling the Slack Web API with a bot token.
type Client struct {
	httpClient   *http.Client
	uploadClient *http.Client
	token        string
	baseURL      string
}

// NewClient creates a Slack Web API client. token is the bot user OAuth
// token, typically loaded from the environment or SSM at startup.
func NewClient(token string) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: defaultTimeout},
		uploadClient: &http.Client{Timeout: uploadTimeout},
		token:        token,
		baseURL:      defaultBaseURL,
	}
}

// --- API response types ---

// apiResponse is the generic Slack Web API response envelope.
type apiResponse struct {
	OK    bool      `json:"ok"`
	Error string    `json:"error,omitempty"`
	TS    string    `json:"ts,omitempty"`
	File  *FileInfo `json:"file,omitempty"`
}

// FileInfo is the file metadata returned by files.upload.
type FileInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Permalink string `json:"permalink,omitempty"`
}

// postMessageRequest is the chat.postMessage request body.
type postMessageRequest struct {
	Channel string  `json:"channel"`
	Text    string  `json:"text,omitempty"`
	Blocks  []Block `json:"blocks,omitempty"`
}

// --- Messages ---

// PostMessage sends a plain text message to a channel or user ID.
func (c *Client) PostMessage(ctx context.Context, channelID, text string) error {
	if channelID == "" || text == "" {
		return fmt.Errorf("channel and text are required")
	}
	return c.postMessage(ctx, postMessageRequest{Channel: channelID, Text: text})
}

// PostBlocks sends a Block Kit message. fallback is the notification text
// shown by clients that cannot render blocks; it may be empty.
func (c *Client) PostBlocks(ctx context.Context, channelID string, blocks []Block, fallback string) error {
	if channelID == "" || len(blocks) == 0 {
		return fmt.Errorf("channel and blocks are required")
	}
	return c.postMessage(ctx, postMessageRequest{Channel: channelID, Text: fallback, Blocks: blocks})
}

func (c *Client) postMessage(ctx context.Context, msg postMessageRequest) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	log.Debug().Str("channel", msg.Channel).Int("textLen", len(msg.Text)).Int("blocks", len(msg.Blocks)).Msg("Slack chat.postMessage")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat.postMessage", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(c.httpClient, req)
	if err != nil {
		return fmt.Errorf("chat.postMessage: %w", err)
	}

	log.Debug().Str("channel", msg.Channel).Str("ts", resp.TS).Msg("Slack message posted")
	return nil
}

// --- Files ---

// UploadFile uploads a local file to a channel via files.upload and returns
// the file permalink. contentType may be empty, in which case Slack infers it.
func (c *Client) UploadFile(ctx context.Context, channelID, title, comment, path, contentType string) (string, error) {
	if channelID == "" || path == "" {
		return "", fmt.Errorf("channel and path are required")
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open upload file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	filename := filepath.Base(path)
	var part io.Writer
	if contentType != "" {
		header := make(map[string][]string)
		header["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename=%q`, filename)}
		header["Content-Type"] = []string{contentType}
		part, err = mw.CreatePart(header)
	} else {
		part, err = mw.CreateFormFile("file", filename)
	}
	if err != nil {
		return "", fmt.Errorf("create multipart: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("copy file into multipart: %w", err)
	}

	fields := map[string]string{
		"channels": channelID,
		"title":    title,
	}
	if comment != "" {
		fields["initial_comment"] = comment
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("write multipart field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	log.Debug().Str("channel", channelID).Str("file", filename).Msg("Slack files.upload")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files.upload", &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(c.uploadClient, req)
	if err != nil {
		return "", fmt.Errorf("files.upload: %w", err)
	}

	permalink := ""
	if resp.File != nil {
		permalink = resp.File.Permalink
	}
	log.Info().Str("channel", channelID).Str("file", filename).Str("permalink", permalink).Msg("File uploaded to Slack")
	return permalink, nil
}

// do executes a request and decodes the Slack API envelope, converting
// non-2xx statuses and ok:false responses into errors.
func (c *Client) do(client *http.Client, req *http.Request) (*apiResponse, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var api apiResponse
	if err := json.Unmarshal(body, &api); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !api.OK {
		return nil, fmt.Errorf("slack api error: %s", api.Error)
	}
	return &api, nil
}
