package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/sqs-dispatch/internal/doctor"
	"github.com/mattjoyce/sqs-dispatch/internal/queue"
)

var errCheckFailed = errors.New("configuration check failed")

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and queue access without consuming",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}

			// The queue is only contacted once the config itself is sound.
			var client queue.Client
			if cfg.Validate() == nil {
				c, closeQueue, err := openQueue(cmd.Context(), cfg)
				if err != nil {
					return fmt.Errorf("open queue transport: %w", err)
				}
				defer closeQueue()
				client = c
			}

			result := doctor.New(cfg, client).Validate(cmd.Context())
			out := cmd.OutOrStdout()
			if asJSON {
				data, err := doctor.FormatJSON(result)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, data)
			} else {
				fmt.Fprint(out, doctor.FormatHuman(result))
			}

			if !result.Valid {
				return errCheckFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
