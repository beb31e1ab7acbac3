// Package main provides the beacon development CLI: replay recorded page
// signals through the tracker, and run a local collector for its events.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/formbeacon/internal/beacon"
)

const appName = "beacon"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Form and lead tracking beacon tools",
		Long: `beacon drives the form tracker outside a browser.

Commands:
  replay   - Run a recorded signal script against an HTML page
  collect  - Run a local collector that stores posted events in SQLite
  version  - Print the tracker version`,
		SilenceUsage: true,
	}

	cmd.AddCommand(replayCmd())
	cmd.AddCommand(collectCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, beacon.Version)
		},
	})
	return cmd
}
