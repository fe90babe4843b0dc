package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"audioembed/types"
)

// Transcoder decodes the file at job.InputPath into job.Target at job.OutputPath
type Transcoder interface {
	Transcode(ctx context.Context, job types.TranscodeJob) error
}

// ffmpegTranscoder shells out to ffmpeg
type ffmpegTranscoder struct {
	binary string
}

// NewFFmpegTranscoder creates a transcoder that runs the given ffmpeg binary
func NewFFmpegTranscoder(binary string) Transcoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &ffmpegTranscoder{binary: binary}
}

// Transcode runs ffmpeg and fails on a non-zero exit status
func (t *ffmpegTranscoder) Transcode(ctx context.Context, job types.TranscodeJob) error {
	args := []string{
		"-nostdin", "-y", "-loglevel", "error",
		"-i", job.InputPath,
		"-f", string(job.Target),
		job.OutputPath,
	}
	cmd := exec.CommandContext(ctx, t.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%s exited with status %d: %s", t.binary, exitErr.ExitCode(), stderrTail(stderr.String()))
		}
		return fmt.Errorf("run %s: %w", t.binary, err)
	}
	return nil
}

// stderrTail keeps the last few lines of tool output for error messages
func stderrTail(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	tail := strings.Join(lines, " | ")
	if tail == "" {
		return "no output"
	}
	return tail
}
