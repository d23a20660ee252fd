package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fabricsim/internal/graph"
	"fabricsim/internal/kernels"
)

// NewKernelsCommand creates the kernels command.
func NewKernelsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "kernels",
		Short:         "List the built-in kernels graphs can reference",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := graph.NewRegistry()
			if err := kernels.RegisterAll(registry); err != nil {
				return WrapExitError(ExitCommandError, "registering kernels", err)
			}
			for _, name := range registry.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
