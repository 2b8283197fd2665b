package protocol

import (
	"encoding/json"
	"fmt"
)

// Decode parses a message body. It returns a *DecodeError when the body is not
// a JSON object with correctly typed fields, and a *ValidationError when the
// command is absent or empty. Unknown top-level fields are ignored.
func Decode(body []byte) (*Payload, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, &DecodeError{Reason: "body is not a JSON object", Err: err}
	}
	if fields == nil {
		return nil, &DecodeError{Reason: "body is null"}
	}

	raw, ok := fields["command"]
	if !ok || isNull(raw) {
		return nil, &ValidationError{Field: "command", Reason: "is missing"}
	}

	var p Payload
	if err := json.Unmarshal(raw, &p.Command); err != nil {
		return nil, &DecodeError{Reason: "bad command field", Err: err}
	}
	if p.Command.Empty() {
		return nil, &ValidationError{Field: "command", Reason: "is empty"}
	}

	p.Tags = map[string]string{}
	if raw, ok := fields["tags"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &p.Tags); err != nil {
			return nil, &DecodeError{Reason: "tags must map strings to strings", Err: err}
		}
	}

	return &p, nil
}

// Encode serializes a payload for publishing. The command is always written as
// an array.
func Encode(p *Payload) ([]byte, error) {
	if p == nil || p.Command.Empty() {
		return nil, &ValidationError{Field: "command", Reason: "is empty"}
	}
	data, err := json.Marshal(struct {
		Command []string          `json:"command"`
		Tags    map[string]string `json:"tags,omitempty"`
	}{Command: p.Command, Tags: p.Tags})
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}
