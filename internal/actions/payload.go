// Package actions parses Slack interactive-component payloads and dispatches
// them to their handlers. It only ever sees request bodies that already
// passed signature verification.
package actions

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
)

// ValidationError marks a payload the caller sent malformed. The HTTP
// boundary maps it to 400; every other error class maps to 500.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// Payload is a Slack interactive-component callback.
type Payload struct {
	Type      string   `json:"type"`
	Actions   []Action `json:"actions"`
	User      User     `json:"user"`
	Channel   Channel  `json:"channel"`
	TriggerID string   `json:"trigger_id"`
}

// Action is a single invoked interactive element.
type Action struct {
	ActionID string `json:"action_id"`
	Value    string `json:"value"`
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ParsePayload decodes an interactive callback body. Slack sends
// form-encoded bodies with the JSON document in a "payload" field; raw JSON
// is accepted too for direct API callers. Malformed bodies, empty action
// lists, and actions without an action_id are all ValidationErrors.
func ParsePayload(body []byte) (*Payload, error) {
	if len(body) == 0 {
		return nil, validationErrorf("empty request body")
	}

	doc := body
	if !bytes.HasPrefix(bytes.TrimLeft(body, " \t\r\n"), []byte("{")) {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, validationErrorf("malformed form body")
		}
		raw := form.Get("payload")
		if raw == "" {
			return nil, validationErrorf("missing payload field")
		}
		doc = []byte(raw)
	}

	var p Payload
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, validationErrorf("malformed payload JSON")
	}

	if len(p.Actions) == 0 {
		return nil, validationErrorf("payload contains no actions")
	}
	if p.Actions[0].ActionID == "" {
		return nil, validationErrorf("action is missing an action_id")
	}
	return &p, nil
}
