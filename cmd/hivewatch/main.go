// ABOUTME: Entry point for the hivewatch event synchronization server
// ABOUTME: Cobra command tree: serve, watch, health, version

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time.
var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "hivewatch",
		Short: "Event synchronization and agent-state engine for agent runtimes",
		Long: `hivewatch ingests lifecycle events from an agent runtime, persists them
durably, and serves live events plus historical backfill to consumers over a
websocket channel.`,
		SilenceUsage: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newHealthCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the hivewatch version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
