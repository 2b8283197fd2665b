package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/sqs-dispatch/internal/config"
)

const version = "0.1.0"

// rootOptions are the global flags shared by every subcommand.
type rootOptions struct {
	queue      string
	configPath string
	backend    string
	debug      bool
}

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the CLI and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "sqs-dispatch",
		Short: "Run shell commands delivered through a message queue",
		Long: `sqs-dispatch consumes messages of the form {"command": ..., "tags": {...}}
from a queue, runs each command through a shell and deletes the message only
when the command exits 0.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.queue, "queue", "q", "", "queue name (env QUEUE_NAME)")
	pf.BoolVar(&opts.debug, "debug", false, "enable debug logging (env DEBUG)")
	pf.StringVarP(&opts.configPath, "config", "c", os.Getenv("SQS_DISPATCH_CONFIG"), "YAML config file (env SQS_DISPATCH_CONFIG)")
	pf.StringVar(&opts.backend, "backend", "", "queue transport: sqs, sqlite or lmstfy (env SQS_DISPATCH_BACKEND)")

	root.AddCommand(
		newProcessCmd(opts),
		newEnqueueCmd(opts),
		newCheckCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sqs-dispatch version %s\n", version)
		},
	}
}

// loadConfig is resolveConfig followed by validation.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	cfg, err := resolveConfig(cmd, opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// resolveConfig layers defaults, the config file, the environment and finally
// explicitly set flags.
func resolveConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	configuredLevel := cfg.Service.LogLevel
	config.ApplyEnv(cfg, os.LookupEnv)

	flags := cmd.Flags()
	if flags.Changed("queue") {
		cfg.Queue.Name = opts.queue
	}
	if flags.Changed("backend") {
		cfg.Queue.Backend = opts.backend
	}
	if flags.Changed("debug") {
		if opts.debug {
			cfg.Service.LogLevel = "debug"
		} else {
			cfg.Service.LogLevel = configuredLevel
		}
	}
	return cfg, nil
}
