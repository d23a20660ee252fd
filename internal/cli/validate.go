package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fabricsim/internal/graph"
	"fabricsim/internal/kernels"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <graph.yaml>",
		Short: "Check a graph description without simulating it",
		Long: `Parse and validate a graph description: structure, resource references,
directions and kernel availability. Nothing is simulated.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args[0])
		},
	}
}

func runValidate(cmd *cobra.Command, path string) error {
	d, err := graph.Load(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "loading graph", err)
	}
	if err := d.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid graph", err)
	}

	registry := graph.NewRegistry()
	if err := kernels.RegisterAll(registry); err != nil {
		return WrapExitError(ExitCommandError, "registering kernels", err)
	}
	for _, t := range d.Tasks {
		if _, ok := registry.Lookup(t.Kernel); !ok {
			return NewExitError(ExitCommandError,
				fmt.Sprintf("task %q references unknown kernel %q", t.Name, t.Kernel))
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "graph %q valid: %d tasks, %d streams, %d mmaps\n",
		d.Top, len(d.Tasks), len(d.Streams), len(d.Mmaps))
	return nil
}
