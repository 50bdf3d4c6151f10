package media

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Static errors for media operations.
var (
	// ErrFFprobeExecution is returned when the ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
	// ErrInvalidDuration is returned when ffprobe reports a missing or non-positive duration.
	ErrInvalidDuration = errors.New("invalid duration: must be positive")
)

// Prober reports the playback length of an audio file.
type Prober interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// FFprobe implements Prober using the ffprobe CLI.
type FFprobe struct {
	// path is the ffprobe binary. Defaults to "ffprobe".
	path   string
	runner Runner
}

// NewFFprobe creates a new FFprobe.
// If path is empty, it defaults to "ffprobe" (found via PATH).
// A nil runner uses ExecRunner.
func NewFFprobe(path string, runner Runner) *FFprobe {
	if path == "" {
		path = "ffprobe"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &FFprobe{path: path, runner: runner}
}

// Duration returns the duration of a media file, read from its container metadata.
func (p *FFprobe) Duration(ctx context.Context, path string) (time.Duration, error) {
	res, err := p.runner.Run(ctx, p.path,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return 0, fmt.Errorf("%w: %w", ErrFFprobeExecution, err)
	}

	return parseSeconds(res.Stdout)
}

// parseSeconds converts ffprobe's decimal seconds output to a duration.
func parseSeconds(out string) (time.Duration, error) {
	raw := strings.TrimSpace(out)
	if raw == "" || raw == "N/A" {
		return 0, fmt.Errorf("%w: ffprobe reported %q", ErrInvalidDuration, raw)
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	if secs <= 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, fmt.Errorf("%w: got %.2f", ErrInvalidDuration, secs)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
