package main

import (
	"context"
	"fmt"
	"os"

	"fabricsim/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "fabricsim:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
