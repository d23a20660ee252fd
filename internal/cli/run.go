package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fabricsim/internal/graph"
	"fabricsim/internal/harness"
	"fabricsim/internal/kernels"
	"fabricsim/internal/tracestore"
)

// RunOptions holds flags of the run command.
type RunOptions struct {
	ReportPath string
	TraceDB    string
	RunID      string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run <graph.yaml>",
		Short: "Simulate a task graph to completion or deadlock",
		Long: `Simulate a compiled task graph with the built-in kernel library.

The run report (final task states, mmap contents, interleaving hash) is
written as JSON. With --trace-db, the report is persisted and the
interleaving hash is checked against the previous run of the same graph.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(cmd, rootOpts, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.ReportPath, "report", "-", "report destination ('-' for stdout)")
	cmd.Flags().StringVar(&opts.TraceDB, "trace-db", "", "SQLite trace database for drift checking (optional)")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "override the generated run identifier")

	return cmd
}

func runGraph(cmd *cobra.Command, rootOpts *RootOptions, opts *RunOptions, path string) error {
	d, err := graph.Load(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "loading graph", err)
	}

	registry := graph.NewRegistry()
	if err := kernels.RegisterAll(registry); err != nil {
		return WrapExitError(ExitCommandError, "registering kernels", err)
	}

	rep, err := harness.Run(cmd.Context(), d, harness.Options{
		Registry: registry,
		Logger:   rootOpts.Logger(),
		RunID:    opts.RunID,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "simulating graph", err)
	}

	if err := writeReport(cmd, opts.ReportPath, rep); err != nil {
		return err
	}

	var driftErr error
	if opts.TraceDB != "" {
		driftErr = persistRun(cmd, rootOpts, opts.TraceDB, rep)
		if driftErr != nil && GetExitCode(driftErr) == ExitCommandError {
			return driftErr
		}
	}

	if rep.Status != harness.StatusCompleted {
		return NewExitError(ExitSimFailure, fmt.Sprintf("simulation %s: %s", rep.Status, rep.Error))
	}
	return driftErr
}

func writeReport(cmd *cobra.Command, path string, rep *harness.Report) error {
	if path == "-" {
		if err := rep.WriteJSON(cmd.OutOrStdout()); err != nil {
			return WrapExitError(ExitCommandError, "writing report", err)
		}
		return nil
	}
	b, err := rep.JSON()
	if err != nil {
		return WrapExitError(ExitCommandError, "writing report", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return WrapExitError(ExitCommandError, "writing report", err)
	}
	return nil
}

// persistRun checks the interleaving hash against the previous run of the
// graph, then saves this run as the new baseline. A drift is reported as a
// simulation failure; a missing baseline is not an error.
func persistRun(cmd *cobra.Command, rootOpts *RootOptions, dbPath string, rep *harness.Report) error {
	store, err := tracestore.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "opening trace db", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	logger := rootOpts.Logger()

	driftErr := store.CheckDrift(ctx, rep.Graph, rep.InterleaveHash)
	switch {
	case driftErr == nil:
		logger.Debug("interleaving matches baseline", "graph", rep.Graph)
	case errors.Is(driftErr, tracestore.ErrNoRuns):
		logger.Info("recording first run of graph", "graph", rep.Graph)
		driftErr = nil
	}

	report, err := rep.JSON()
	if err != nil {
		return WrapExitError(ExitCommandError, "saving run", err)
	}
	if err := store.Save(ctx, tracestore.Run{
		ID:             rep.RunID,
		Graph:          rep.Graph,
		Status:         rep.Status,
		InterleaveHash: rep.InterleaveHash,
		Report:         report,
	}); err != nil {
		return WrapExitError(ExitCommandError, "saving run", err)
	}

	if driftErr != nil {
		return WrapExitError(ExitSimFailure, "interleaving drift", driftErr)
	}
	return nil
}
