package player

import (
	"context"
	"log/slog"
	"time"

	"github.com/maauso/radio-curator/internal/backend"
	"github.com/maauso/radio-curator/internal/playlist"
)

// NowPlayingSource exposes the track on air.
type NowPlayingSource interface {
	NowPlaying() (Track, bool)
}

// Sink receives now-playing reports.
type Sink interface {
	ReportPlaying(ctx context.Context, np backend.NowPlaying) bool
}

// Reporter polls the player and reports every title change to the backend.
type Reporter struct {
	source   NowPlayingSource
	sink     Sink
	interval time.Duration
	logger   *slog.Logger
	last     string
}

// NewReporter creates a Reporter. A non-positive interval defaults to 3 seconds.
func NewReporter(source NowPlayingSource, sink Sink, interval time.Duration, logger *slog.Logger) *Reporter {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{source: source, sink: sink, interval: interval, logger: logger}
}

// Run polls until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.poll(ctx)
		}
	}
}

// poll reports the current track once per title change. A failed report is
// not retried on the next tick; the next title change reports again.
func (r *Reporter) poll(ctx context.Context) {
	t, ok := r.source.NowPlaying()
	if !ok || t.Title == r.last {
		return
	}
	r.last = t.Title

	np := backend.NowPlaying{SongID: t.Title, Duration: playlist.FormatClock(t.Duration)}
	if !r.sink.ReportPlaying(ctx, np) {
		r.logger.Warn("now-playing report failed", slog.String("title", t.Title))
		return
	}
	r.logger.Info("now playing", slog.String("title", t.Title), slog.String("duration", np.Duration))
}
