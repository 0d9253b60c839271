// Package commands provides the CLI commands for the Strudel agent server.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "strudel",
	Short: "Strudel - live-coding music agent server",
	Long: `Strudel is the backend for a live-coding music assistant. It hosts
AI agent sessions over WebSocket, correlates remote tool execution with
browser clients, and manages a project/clip/song/playlist library.

Run 'strudel serve' to start the server.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.SetVersionTemplate(fmt.Sprintf("strudel %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
