// Package fetch resolves candidate source URLs to local audio files. The
// permanent audio store doubles as a content-addressed cache keyed by track
// identifier; only cache misses touch the network.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/radio-curator/internal/media"
	"github.com/maauso/radio-curator/internal/retry"
	"github.com/maauso/radio-curator/internal/source"
)

// Static errors for fetch operations. A candidate failing with any of them is
// skipped; none of them is a content verdict.
var (
	// ErrDownloadFailed is returned when every download attempt failed.
	ErrDownloadFailed = errors.New("fetch: download failed")
	// ErrNoSuitableStream is returned when the source offers no preferred audio stream.
	ErrNoSuitableStream = errors.New("fetch: no suitable audio stream")
	// ErrInvalidSource is returned when no track identifier can be derived from the URL.
	ErrInvalidSource = errors.New("fetch: invalid source url")
)

// Store is the part of the audio store the fetcher needs.
type Store interface {
	FindCached(ctx context.Context, id string) (string, bool)
	TempPath(name string) string
}

// Resolution describes where a candidate's audio lives.
type Resolution struct {
	ID   source.TrackID
	Path string
	// Cached is true when Path is the shared permanent copy. Such files must
	// never be deleted by the caller.
	Cached bool
	Title  string
}

// Fetcher resolves source URLs through the cache or a fresh download.
type Fetcher struct {
	store      Store
	downloader Downloader
	policy     retry.Policy
	settle     time.Duration
	logger     *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithPolicy sets the retry policy for downloads.
func WithPolicy(p retry.Policy) Option {
	return func(f *Fetcher) {
		f.policy = p
	}
}

// WithSettle sets the pause after a successful download.
func WithSettle(d time.Duration) Option {
	return func(f *Fetcher) {
		f.settle = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = l
	}
}

// NewFetcher creates a Fetcher with a three-attempt policy and a 3 second settle pause.
func NewFetcher(store Store, downloader Downloader, opts ...Option) *Fetcher {
	f := &Fetcher{
		store:      store,
		downloader: downloader,
		policy:     retry.DefaultPolicy(),
		settle:     3 * time.Second,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.policy = f.policy.WithLogger(f.logger)
	return f
}

// Resolve returns the local file for sourceURL. A permanent file whose name
// contains the track identifier is returned as-is with Cached set; otherwise
// the audio is downloaded into the temporary area from the identifier's
// canonical URL.
func (f *Fetcher) Resolve(ctx context.Context, sourceURL string) (Resolution, error) {
	id, err := source.ExtractID(sourceURL)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: %w", ErrInvalidSource, err)
	}

	if path, ok := f.store.FindCached(ctx, id.String()); ok {
		f.logger.Debug("cache hit", slog.String("id", id.String()), slog.String("path", path))
		return Resolution{ID: id, Path: path, Cached: true, Title: media.ReadTags(path).Title}, nil
	}

	var lastErr error
	dl, ok := retry.Do(ctx, f.policy, "download", func(ctx context.Context) (Download, error) {
		d, err := f.downloader.Download(ctx, id.WatchURL(), f.store.TempPath(id.String()))
		if err != nil {
			lastErr = err
			if errors.Is(err, ErrNoSuitableStream) {
				return Download{}, retry.Permanent(err)
			}
			return Download{}, err
		}
		return d, nil
	})
	if !ok {
		if errors.Is(lastErr, ErrNoSuitableStream) {
			return Resolution{}, lastErr
		}
		if lastErr == nil {
			lastErr = ctx.Err()
		}
		return Resolution{}, fmt.Errorf("%w: %s: %w", ErrDownloadFailed, id, lastErr)
	}

	if dl.Title != "" {
		if err := media.WriteTags(dl.Path, media.Tags{Title: dl.Title}); err != nil {
			f.logger.Warn("failed to tag download", slog.String("path", dl.Path), slog.String("error", err.Error()))
		}
	}

	// Download completion is not a durable signal; give the filesystem a moment.
	if f.settle > 0 {
		select {
		case <-ctx.Done():
			return Resolution{}, fmt.Errorf("%w: %w", ErrDownloadFailed, ctx.Err())
		case <-time.After(f.settle):
		}
	}

	f.logger.Info("downloaded",
		slog.String("id", id.String()),
		slog.String("path", dl.Path),
		slog.String("mime", dl.Mime),
	)
	return Resolution{ID: id, Path: dl.Path, Title: dl.Title}, nil
}
