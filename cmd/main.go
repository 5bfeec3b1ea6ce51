package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"recorder-transcriber-service/internal/config"
	"recorder-transcriber-service/internal/observability/logging"
)

var cfg *config.Configuration

var rootCmd = &cobra.Command{
	Use:   "recorder-transcriber",
	Short: "Voice recorder and transcription service",
	Long: `Records audio manually or on a wake word, transcribes it and
turns transcripts into structured notes.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		format, _ := cmd.Flags().GetString("log-format")
		if level != "" {
			cfg.Observability.LogLevel = level
		}
		if format != "" {
			cfg.Observability.LogFormat = format
		}
		logging.Init(logging.Config{
			Level:  cfg.Observability.LogLevel,
			Format: cfg.Observability.LogFormat,
		})
	},
	// Running without a subcommand serves.
	RunE: runServe,
}

func init() {
	cfg = config.Load()

	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (json, console)")
	addServeFlags(rootCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(transcribeCmd)
	rootCmd.AddCommand(enhanceCmd)
	rootCmd.AddCommand(recordingsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
