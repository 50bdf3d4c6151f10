package player

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/maauso/radio-curator/internal/media"
)

// Compile-time check that Queue implements Control.
var _ Control = (*Queue)(nil)

// Queue is an ordered, in-memory playlist with a cursor and a play state.
// It is safe for concurrent use by the build worker and the command surface.
type Queue struct {
	mu      sync.RWMutex
	tracks  []Track
	current int
	state   State

	playlistFile string
	prober       media.Prober
	logger       *slog.Logger
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithPlaylistFile mirrors the queue to an M3U file after every change.
func WithPlaylistFile(path string) QueueOption {
	return func(q *Queue) {
		q.playlistFile = path
	}
}

// WithProber measures track durations as they are added.
func WithProber(p media.Prober) QueueOption {
	return func(q *Queue) {
		q.prober = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) QueueOption {
	return func(q *Queue) {
		q.logger = l
	}
}

// NewQueue creates an empty, stopped queue.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{current: -1, state: StateStopped, logger: slog.Default()}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// AddTrack appends a file to the queue, measuring it with the prober if set.
func (q *Queue) AddTrack(ctx context.Context, path string) error {
	if err := checkTrack(path); err != nil {
		return err
	}
	var d time.Duration
	if q.prober != nil {
		var err error
		if d, err = q.prober.Duration(ctx, path); err != nil {
			q.logger.Warn("failed to measure queued track", slog.String("path", path), slog.String("error", err.Error()))
		}
	}
	q.appendTrack(path, d)
	return nil
}

// AddMeasuredTrack appends a file whose duration the caller already knows.
func (q *Queue) AddMeasuredTrack(_ context.Context, path string, d time.Duration) error {
	if err := checkTrack(path); err != nil {
		return err
	}
	q.appendTrack(path, d)
	return nil
}

func checkTrack(path string) error {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrTrackNotFound, path)
	}
	return nil
}

func (q *Queue) appendTrack(path string, d time.Duration) {
	t := Track{Path: path, Title: media.ReadTags(path).Display(), Duration: d}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = append(q.tracks, t)
	q.logger.Info("track queued", slog.String("title", t.Title), slog.Int("position", len(q.tracks)))
	q.mirrorLocked()
}

// Play starts or resumes playback.
func (q *Queue) Play(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tracks) == 0 {
		return ErrEmptyQueue
	}
	if q.current < 0 || q.current >= len(q.tracks) {
		q.current = 0
	}
	q.state = StatePlaying
	return nil
}

// Pause pauses playback. Pausing a stopped queue does nothing.
func (q *Queue) Pause(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == StatePlaying {
		q.state = StatePaused
	}
	return nil
}

// Skip advances to the next track. Skipping past the last track stops playback.
func (q *Queue) Skip(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tracks) == 0 {
		return ErrEmptyQueue
	}
	q.current++
	if q.current >= len(q.tracks) {
		q.current = -1
		q.state = StateStopped
	}
	return nil
}

// Clear empties the queue and stops playback.
func (q *Queue) Clear(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = nil
	q.current = -1
	q.state = StateStopped
	q.mirrorLocked()
	return nil
}

// NowPlaying returns the current track while playback is active.
func (q *Queue) NowPlaying() (Track, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.state != StatePlaying || q.current < 0 || q.current >= len(q.tracks) {
		return Track{}, false
	}
	return q.tracks[q.current], true
}

// Snapshot returns a copy of the queue state.
func (q *Queue) Snapshot() Status {
	q.mu.RLock()
	defer q.mu.RUnlock()
	tracks := make([]Track, len(q.tracks))
	copy(tracks, q.tracks)
	return Status{State: q.state, Current: q.current, Tracks: tracks}
}

// mirrorLocked refreshes the M3U file. A failed write is logged; the
// in-memory queue stays authoritative.
func (q *Queue) mirrorLocked() {
	if err := q.persistLocked(); err != nil {
		q.logger.Error("failed to write playlist file", slog.String("path", q.playlistFile), slog.String("error", err.Error()))
	}
}

// persistLocked rewrites the M3U mirror. The file is replaced atomically so
// a reading player never sees a partial playlist.
func (q *Queue) persistLocked() error {
	if q.playlistFile == "" {
		return nil
	}

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	for _, t := range q.tracks {
		fmt.Fprintf(&b, "#EXTINF:%d,%s\n%s\n", int(t.Duration.Seconds()), t.Title, t.Path)
	}

	dir := filepath.Dir(q.playlistFile)
	tmp, err := os.CreateTemp(dir, ".playlist-*.m3u")
	if err != nil {
		return fmt.Errorf("create playlist staging file: %w", err)
	}
	if _, err := tmp.WriteString(b.String()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write playlist: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close playlist: %w", err)
	}
	if err := os.Rename(tmp.Name(), q.playlistFile); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace playlist: %w", err)
	}
	return nil
}
