package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/sqs-dispatch/internal/log"
	"github.com/mattjoyce/sqs-dispatch/internal/protocol"
)

func newEnqueueCmd(opts *rootOptions) *cobra.Command {
	var rawTags []string

	cmd := &cobra.Command{
		Use:   "enqueue [flags] <command> [args...]",
		Short: "Publish a command to the queue",
		Long: `Publishes {"command": [args...]} to the queue. Everything after the first
argument is passed through untouched, so the command's own flags need no
quoting:

  sqs-dispatch -q jobs enqueue --tag team=data ls -la /tmp`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tags, err := parseTags(rawTags)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
			logger := log.WithComponent("enqueue")

			body, err := protocol.Encode(&protocol.Payload{Command: protocol.Command(args), Tags: tags})
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			client, closeQueue, err := openQueue(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeQueue()

			queueURL, err := client.Resolve(ctx, cfg.Queue.Name)
			if err != nil {
				return queueError(logger, cfg.Queue.Name, err)
			}
			id, err := client.Send(ctx, queueURL, string(body))
			if err != nil {
				logger.Error("failed to enqueue message", "queue", cfg.Queue.Name, "error", err)
				return err
			}

			logger.Info("message enqueued", "queue", cfg.Queue.Name, "message_id", id)
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&rawTags, "tag", nil, "metric tag key=value (repeatable)")
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func parseTags(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	tags := make(map[string]string, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --tag %q: want key=value", kv)
		}
		tags[k] = v
	}
	return tags, nil
}
