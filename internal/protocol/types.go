package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Payload is a decoded message body: the command to run plus metric tags.
type Payload struct {
	Command Command           `json:"command"`
	Tags    map[string]string `json:"tags,omitempty"`
}

// Command is an argv-style command. On the wire it is either a single string
// or an array of strings; both decode to a slice.
type Command []string

// UnmarshalJSON accepts a JSON string or an array of strings.
func (c *Command) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*c = Command{single}
		return nil
	}

	var argv []string
	if err := json.Unmarshal(data, &argv); err != nil {
		return fmt.Errorf("command must be a string or an array of strings")
	}
	*c = Command(argv)
	return nil
}

// Script joins the arguments with single spaces. The result is handed to a
// shell unescaped, so redirections and pipelines in the arguments keep working.
func (c Command) Script() string {
	return strings.Join(c, " ")
}

// Empty reports whether the command has nothing to execute.
func (c Command) Empty() bool {
	return strings.TrimSpace(c.Script()) == ""
}

// DecodeError means the body is not a JSON object of the expected shape.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode payload: %s: %v", e.Reason, e.Err)
	}
	return "decode payload: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ValidationError means the body decoded but a required field is missing or empty.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload: %s %s", e.Field, e.Reason)
}
