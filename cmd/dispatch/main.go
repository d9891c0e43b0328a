package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Dispatch - distributed work orchestrator for AI coding workers",
	Long: `Dispatch coordinates autonomous code-generation workers against GitHub
issues: it discovers labeled issues, hands them out exactly once, tracks
worker liveness, and gates new work on the human review pipeline.`,
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	apiAddr string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:8700", "API server address")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(workersCmd)
	rootCmd.AddCommand(prsCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(tuiCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
