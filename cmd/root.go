// Package cmd contains the chatrelay command-line interface.
package cmd

import (
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chatrelay",
	Short: "chatrelay - session-aware chat backend",
	Long: `chatrelay is an HTTP backend for multi-turn chat on top of an
OpenAI-compatible completion provider. It persists conversation
transcripts in PostgreSQL and serves both synchronous and streaming
(Server-Sent Events) chat endpoints.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		// Missing .env is the normal case outside local development.
		if err := godotenv.Load(); err == nil {
			slog.Debug("loaded .env file")
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
