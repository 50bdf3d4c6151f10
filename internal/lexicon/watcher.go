package lexicon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a Filter whenever one of its dictionary files changes.
type Watcher struct {
	filter    *Filter
	primary   string
	secondary string
	debounce  time.Duration
	logger    *slog.Logger
}

// NewWatcher creates a Watcher for the two dictionary paths.
func NewWatcher(filter *Filter, primaryPath, secondaryPath string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		filter:    filter,
		primary:   filepath.Clean(primaryPath),
		secondary: filepath.Clean(secondaryPath),
		debounce:  250 * time.Millisecond,
		logger:    logger,
	}
}

// Run watches the dictionary directories until ctx is cancelled. Editors
// often replace files instead of writing them, so directories are watched
// rather than the files themselves.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create dictionary watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	dirs := map[string]struct{}{
		filepath.Dir(w.primary):   {},
		filepath.Dir(w.secondary): {},
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	var pending bool
	var lastEvent time.Time
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			pending = true
			lastEvent = time.Now()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("dictionary watcher error", slog.String("error", err.Error()))

		case <-ticker.C:
			if !pending || time.Since(lastEvent) < w.debounce {
				continue
			}
			pending = false
			w.reload()
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(event.Name)
	return name == w.primary || name == w.secondary
}

func (w *Watcher) reload() {
	if err := w.filter.Reload(w.primary, w.secondary); err != nil {
		w.logger.Error("dictionary reload failed, keeping previous dictionaries",
			slog.String("error", err.Error()))
		return
	}
	p, s := w.filter.Sizes()
	w.logger.Info("dictionaries reloaded", slog.Int("primary_words", p), slog.Int("secondary_words", s))
}
