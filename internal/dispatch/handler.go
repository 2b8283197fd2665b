package dispatch

import (
	"context"

	"github.com/mattjoyce/sqs-dispatch/internal/command"
	"github.com/mattjoyce/sqs-dispatch/internal/log"
	"github.com/mattjoyce/sqs-dispatch/internal/protocol"
)

// DefaultMessageIDEnv is the variable that carries the message id into the
// subprocess.
const DefaultMessageIDEnv = "SQS_MESSAGE_ID"

// CommandHandler returns a Handler that runs the payload command with runner.
// Each output line is logged with its stream and the message id. env is added
// to every subprocess environment; the message id variable (messageIDEnv, or
// DefaultMessageIDEnv when empty) is always set and cannot be overridden.
func CommandHandler(runner *command.Runner, messageIDEnv string, env map[string]string) Handler {
	if messageIDEnv == "" {
		messageIDEnv = DefaultMessageIDEnv
	}
	return func(_ context.Context, messageID string, payload *protocol.Payload) error {
		overlay := make(map[string]string, len(env)+1)
		for k, v := range env {
			overlay[k] = v
		}
		overlay[messageIDEnv] = messageID

		logger := log.WithMessage(messageID)
		_, err := runner.Run(payload.Command, overlay, func(stream command.Stream, text string) {
			logger.Info(text, "stream", string(stream))
		})
		return err
	}
}
