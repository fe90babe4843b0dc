package cmd

import (
	"log"

	"audioembed/config"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "audioembed",
	Short: "Audio embedding service",
	Long: `audioembed converts uploaded or remote audio into embeddings.

Compressed input (mp3, flac, ogg, m4a) is decoded to WAV with ffmpeg and
every item is sent to the embedding model configured by MODEL_ENDPOINT.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := config.LoadEnv(); err != nil {
			log.Printf("Warning: could not load .env: %v", err)
		}
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
