// Command schedulerctl runs and inspects a standalone scheduler process,
// an operational surface for exercising the dispatcher outside of a
// host server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "schedulerctl",
		Short: "Run and inspect the request scheduler",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a scheduler config file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newStatsCmd(&configPath))
	root.AddCommand(newLoadCmd(&configPath))
	return root
}
