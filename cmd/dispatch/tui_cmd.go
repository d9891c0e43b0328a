package main

import (
	"github.com/spf13/cobra"

	"github.com/fentz26/dispatch/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the live dashboard",
	Long:  `Opens a terminal dashboard showing the queue, workers, pending pull requests and recent events, refreshed live from the daemon.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return tui.New(apiAddr).Run()
	},
}
