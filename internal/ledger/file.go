package ledger

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Compile-time check that FileLedger implements Ledger.
var _ Ledger = (*FileLedger)(nil)

// FileLedger keeps each set in a flat text file, one entry per line.
// Files are re-read on every lookup so that external edits (or another
// process truncating the played file) are always visible.
type FileLedger struct {
	mu            sync.Mutex
	playedPath    string
	blacklistPath string
	logger        *slog.Logger
}

// NewFileLedger creates a ledger backed by the two given files.
// Missing files are created lazily on first access.
func NewFileLedger(playedPath, blacklistPath string, logger *slog.Logger) *FileLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileLedger{
		playedPath:    playedPath,
		blacklistPath: blacklistPath,
		logger:        logger,
	}
}

// IsPlayed implements Ledger.
func (l *FileLedger) IsPlayed(_ context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return contains(l.readLocked(l.playedPath), key)
}

// MarkPlayed implements Ledger.
func (l *FileLedger) MarkPlayed(_ context.Context, name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appendLocked(l.playedPath, name)
}

// IsBlacklisted implements Ledger.
func (l *FileLedger) IsBlacklisted(_ context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return contains(l.readLocked(l.blacklistPath), key)
}

// MarkBlacklisted implements Ledger.
func (l *FileLedger) MarkBlacklisted(_ context.Context, name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appendLocked(l.blacklistPath, name)
}

// ResetPlayed implements Ledger.
func (l *FileLedger) ResetPlayed(_ context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ensureDir(l.playedPath); err != nil {
		l.logger.Error("failed to reset played songs",
			slog.String("path", l.playedPath),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := os.WriteFile(l.playedPath, nil, 0o644); err != nil {
		l.logger.Error("failed to reset played songs",
			slog.String("path", l.playedPath),
			slog.String("error", err.Error()),
		)
		return
	}
	l.logger.Info("played songs reset", slog.String("path", l.playedPath))
}

// Entries returns the current played entries in file order, without duplicates.
func (l *FileLedger) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readLocked(l.playedPath)
}

// readLocked loads a set file, creating it when absent.
func (l *FileLedger) readLocked(path string) []string {
	f, err := os.Open(path) // #nosec G304 - path comes from configuration
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := l.createLocked(path); err != nil {
				l.logger.Error("failed to create ledger file",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
			}
			return nil
		}
		l.logger.Error("failed to read ledger file",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil
	}
	defer func() { _ = f.Close() }()

	seen := make(map[string]struct{})
	var entries []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		entries = append(entries, line)
	}
	if err := scanner.Err(); err != nil {
		l.logger.Error("failed to scan ledger file",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
	return entries
}

// appendLocked adds name unless it is already present.
func (l *FileLedger) appendLocked(path, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	for _, entry := range l.readLocked(path) {
		if entry == name {
			l.logger.Debug("ledger entry already present",
				slog.String("path", path),
				slog.String("name", name),
			)
			return
		}
	}

	if err := l.writeLineLocked(path, name); err != nil {
		l.logger.Error("failed to append ledger entry",
			slog.String("path", path),
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return
	}
	l.logger.Debug("ledger entry added",
		slog.String("path", path),
		slog.String("name", name),
	)
}

func (l *FileLedger) writeLineLocked(path, line string) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) // #nosec G304
	if err != nil {
		return fmt.Errorf("open ledger file: %w", err)
	}
	if _, err := fmt.Fprintln(f, line); err != nil {
		_ = f.Close()
		return fmt.Errorf("write ledger file: %w", err)
	}
	return f.Close()
}

func (l *FileLedger) createLocked(path string) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644) // #nosec G304
	if err != nil {
		return err
	}
	return f.Close()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o750)
}

func contains(entries []string, key string) bool {
	for _, entry := range entries {
		if matches(entry, key) {
			return true
		}
	}
	return false
}
