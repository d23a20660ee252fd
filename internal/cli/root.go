// Package cli implements the fabricsim command tree.
package cli

import (
	"context"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"fabricsim/internal/logging"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbose   bool
	LogFormat string

	logger      *slog.Logger
	logShutdown func(context.Context) error
}

// Logger returns the process logger configured by the root command.
func (o *RootOptions) Logger() *slog.Logger { return o.logger }

// NewRootCommand creates the root command for the fabricsim CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "fabricsim",
		Short:         "Software simulator for task-parallel accelerator designs",
		Long:          "fabricsim simulates compiled task graphs with deterministic cooperative scheduling,\nreporting final memory contents, task states and the interleaving hash of each run.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A .env is optional; flags win over anything it sets.
			_ = godotenv.Load()

			level := slog.LevelInfo
			if opts.Verbose {
				level = slog.LevelDebug
			}
			logger, shutdown, err := logging.Setup(logging.Options{
				Level:  level,
				Format: opts.LogFormat,
				Writer: cmd.ErrOrStderr(),
			})
			if err != nil {
				return NewExitError(ExitCommandError, err.Error())
			}
			opts.logger = logger
			opts.logShutdown = shutdown
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.logShutdown != nil {
				return opts.logShutdown(cmd.Context())
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", logging.FormatText, "log format (text|otel)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewKernelsCommand(opts))

	return cmd
}
