package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"audioembed/services"
	"audioembed/types"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	embedURLs  []string
	embedQuiet bool
)

var embedCmd = &cobra.Command{
	Use:   "embed [files...]",
	Short: "Embed local audio files or urls and print the result as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newDefaultApp()
		if err != nil {
			return err
		}
		defer app.Close()

		input, err := localInput(args, embedURLs)
		if err != nil {
			return err
		}
		return runEmbed(cmd.Context(), app.Pipeline, input, embedQuiet)
	},
}

func init() {
	rootCmd.AddCommand(embedCmd)
	embedCmd.Flags().StringSliceVar(&embedURLs, "url", nil, "URL of an audio file (repeatable or comma-separated)")
	embedCmd.Flags().BoolVarP(&embedQuiet, "quiet", "q", false, "Do not show a progress bar")
}

// localInput reads files from disk into uploads
func localInput(files, urls []string) (types.Input, error) {
	input := types.Input{URLs: services.SplitURLs(urls...)}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return input, fmt.Errorf("read %s: %w", path, err)
		}
		input.Uploads = append(input.Uploads, types.Upload{
			Filename: filepath.Base(path),
			Data:     data,
		})
	}
	return input, nil
}

func runEmbed(ctx context.Context, pipeline *services.Pipeline, input types.Input, quiet bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var progress types.ProgressFunc
	var bar *progressbar.ProgressBar
	if !quiet {
		n := len(input.Uploads) + len(input.URLs)
		// one step per item for each of the two phases
		bar = progressbar.Default(int64(2*n), "embedding")
		progress = func(ev types.ProgressEvent) {
			_ = bar.Add(1)
		}
	}

	res, err := pipeline.Run(ctx, "", input, progress)
	if bar != nil {
		_ = bar.Finish()
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err != nil {
		resp := types.PredictResponse{Status: "error", Message: err.Error()}
		var be *types.BatchError
		if errors.As(err, &be) {
			resp.Failures = be.Failures
		}
		_ = enc.Encode(resp)
		return err
	}

	status := "ok"
	if res.Partial() {
		status = "partial"
	}
	return enc.Encode(types.PredictResponse{
		Status:    status,
		RequestID: res.RequestID,
		Embedding: res.Embeddings,
		Failures:  res.Failures,
	})
}
