package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Messenger posts chat messages. *slack.Client satisfies this.
type Messenger interface {
	PostMessage(ctx context.Context, channelID, text string) error
}

// Backend calls the Kubernetes control API. *gateway.Client satisfies this.
type Backend interface {
	Call(ctx context.Context, actionID string, body any) (map[string]any, error)
}

// ContentSharer shares S3 objects into Slack. *s3content.Manager satisfies
// this.
type ContentSharer interface {
	ShareLink(ctx context.Context, bucket, key, channelID, title string) error
	ShareImage(ctx context.Context, bucket, key, channelID, altText string) error
	RelayToSlack(ctx context.Context, bucket, key, channelID, title string) error
}

// Dispatcher routes verified payloads to their action handlers. gateway and
// content may be nil when those integrations are not configured; actions that
// need them then fail as validation errors.
type Dispatcher struct {
	messenger      Messenger
	gateway        Backend
	content        ContentSharer
	contentBucket  string
	defaultMessage string
}

// NewDispatcher creates a dispatcher. messenger is required; gateway,
// content, and contentBucket are optional integration points.
func NewDispatcher(messenger Messenger, gateway Backend, content ContentSharer, contentBucket, defaultMessage string) (*Dispatcher, error) {
	if messenger == nil {
		return nil, fmt.Errorf("messenger is required")
	}
	if defaultMessage == "" {
		defaultMessage = "Hello, world!"
	}
	return &Dispatcher{
		messenger:      messenger,
		gateway:        gateway,
		content:        content,
		contentBucket:  contentBucket,
		defaultMessage: defaultMessage,
	}, nil
}

// Dispatch executes the first action of the payload. Unknown action ids are
// ValidationErrors and cause no outbound calls.
func (d *Dispatcher) Dispatch(ctx context.Context, p *Payload) error {
	action := p.Actions[0]

	log.Info().Str("actionId", action.ActionID).Str("user", p.User.ID).Str("channel", p.Channel.ID).Msg("Dispatching action")

	switch {
	case action.ActionID == "send_channel_message" || action.ActionID == "test_action":
		return d.postDefault(ctx, p.Channel.ID)

	case action.ActionID == "send_user_message":
		return d.postDefault(ctx, p.User.ID)

	case strings.HasPrefix(action.ActionID, "k8s_"):
		return d.dispatchK8s(ctx, action, p)

	case strings.HasPrefix(action.ActionID, "s3_"):
		return d.dispatchS3(ctx, action, p)

	default:
		return validationErrorf("unknown action: %s", action.ActionID)
	}
}

func (d *Dispatcher) postDefault(ctx context.Context, target string) error {
	if target == "" {
		return validationErrorf("payload has no message target")
	}
	if err := d.messenger.PostMessage(ctx, target, d.defaultMessage); err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	return nil
}

// dispatchK8s forwards the action to the backend API and reports the outcome
// back to the channel. Backend failures still produce a channel message so
// the user who clicked the button is not left waiting.
func (d *Dispatcher) dispatchK8s(ctx context.Context, action Action, p *Payload) error {
	if d.gateway == nil {
		return validationErrorf("backend gateway is not configured")
	}

	actionData := map[string]any{}
	if action.Value != "" {
		if err := json.Unmarshal([]byte(action.Value), &actionData); err != nil {
			return validationErrorf("action value is not valid JSON")
		}
	}

	result, err := d.gateway.Call(ctx, action.ActionID, map[string]any{
		"user_id":     p.User.ID,
		"channel_id":  p.Channel.ID,
		"action_data": actionData,
	})
	if err != nil {
		if p.Channel.ID != "" {
			if postErr := d.messenger.PostMessage(ctx, p.Channel.ID, fmt.Sprintf("❌ %s failed", action.ActionID)); postErr != nil {
				log.Warn().Err(postErr).Str("channel", p.Channel.ID).Msg("Failed to post backend failure notice")
			}
		}
		return fmt.Errorf("backend %s: %w", action.ActionID, err)
	}

	message := fmt.Sprintf("✅ %s completed", action.ActionID)
	if m, ok := result["message"].(string); ok && m != "" {
		message = fmt.Sprintf("✅ %s: %s", action.ActionID, m)
	}
	return d.notify(ctx, p.Channel.ID, message)
}

// notify posts a status message, silently skipping payloads without a channel.
func (d *Dispatcher) notify(ctx context.Context, channelID, message string) error {
	if channelID == "" {
		return nil
	}
	if err := d.messenger.PostMessage(ctx, channelID, message); err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	return nil
}

// shareRequest is the action value for s3_* actions.
type shareRequest struct {
	Bucket  string `json:"bucket"`
	Key     string `json:"key"`
	Title   string `json:"title"`
	AltText string `json:"alt_text"`
}

func (d *Dispatcher) dispatchS3(ctx context.Context, action Action, p *Payload) error {
	if d.content == nil {
		return validationErrorf("S3 sharing is not configured")
	}
	if p.Channel.ID == "" {
		return validationErrorf("payload has no channel")
	}

	var req shareRequest
	if action.Value == "" {
		return validationErrorf("action value is required for %s", action.ActionID)
	}
	if err := json.Unmarshal([]byte(action.Value), &req); err != nil {
		return validationErrorf("action value is not valid JSON")
	}
	if req.Key == "" {
		return validationErrorf("action value is missing a key")
	}

	bucket := req.Bucket
	if bucket == "" {
		bucket = d.contentBucket
	}
	if bucket == "" {
		return validationErrorf("no bucket specified and no default configured")
	}

	switch action.ActionID {
	case "s3_share_link":
		return d.content.ShareLink(ctx, bucket, req.Key, p.Channel.ID, req.Title)
	case "s3_share_image":
		return d.content.ShareImage(ctx, bucket, req.Key, p.Channel.ID, req.AltText)
	case "s3_upload":
		return d.content.RelayToSlack(ctx, bucket, req.Key, p.Channel.ID, req.Title)
	default:
		return validationErrorf("unknown action: %s", action.ActionID)
	}
}
