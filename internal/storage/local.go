package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
)

// Compile-time check that LocalStorage implements Storage.
var _ Storage = (*LocalStorage)(nil)

// partialSuffixes marks files that are still being written by a downloader.
var partialSuffixes = []string{".part", ".ytdl", ".tmp"}

// LocalStorage implements Storage on the local disk.
type LocalStorage struct {
	tempDir  string
	audioDir string
}

// NewLocalStorage creates a LocalStorage instance.
// Both directories are created if they don't exist. An empty tempDir
// defaults to a directory under os.TempDir().
func NewLocalStorage(audioDir, tempDir string) (*LocalStorage, error) {
	if audioDir == "" {
		return nil, errors.New("storage: audio directory is required")
	}
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "radio-curator")
	}

	for _, dir := range []string{audioDir, tempDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	absAudio, err := filepath.Abs(audioDir)
	if err != nil {
		return nil, fmt.Errorf("resolve audio directory: %w", err)
	}
	absTemp, err := filepath.Abs(tempDir)
	if err != nil {
		return nil, fmt.Errorf("resolve temp directory: %w", err)
	}

	return &LocalStorage{tempDir: absTemp, audioDir: absAudio}, nil
}

// TempDir returns the temporary directory path.
func (s *LocalStorage) TempDir() string {
	return s.tempDir
}

// AudioDir returns the permanent directory path.
func (s *LocalStorage) AudioDir() string {
	return s.audioDir
}

// FindCached scans the permanent area for a file whose name contains id.
func (s *LocalStorage) FindCached(ctx context.Context, id string) (string, bool) {
	if id == "" || ctx.Err() != nil {
		return "", false
	}
	names, err := s.ListPermanent(ctx)
	if err != nil {
		return "", false
	}
	for _, name := range names {
		if strings.Contains(name, id) {
			return filepath.Join(s.audioDir, name), true
		}
	}
	return "", false
}

// TempPath implements Storage.
func (s *LocalStorage) TempPath(name string) string {
	return filepath.Join(s.tempDir, filepath.Base(name))
}

// PermanentPath implements Storage.
func (s *LocalStorage) PermanentPath(name string) string {
	return filepath.Join(s.audioDir, filepath.Base(name))
}

// ExistsPermanent implements Storage.
func (s *LocalStorage) ExistsPermanent(name string) bool {
	info, err := os.Stat(s.PermanentPath(name))
	return err == nil && info.Mode().IsRegular()
}

// Promote moves a file from the temporary area into the permanent area.
// A plain rename is atomic on one filesystem; across filesystems the file is
// first copied next to its destination and then renamed into place.
func (s *LocalStorage) Promote(ctx context.Context, tempPath string) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if !s.inDir(s.tempDir, tempPath) {
		return "", fmt.Errorf("%w: %s", ErrNotInTempArea, tempPath)
	}

	dst := s.PermanentPath(tempPath)
	err := os.Rename(tempPath, dst)
	if err == nil {
		return dst, nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return "", fmt.Errorf("promote %s: %w", tempPath, err)
	}

	if err := s.copyIntoPlace(tempPath, dst); err != nil {
		return "", err
	}
	if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
		return dst, fmt.Errorf("remove promoted temp file: %w", err)
	}
	return dst, nil
}

// copyIntoPlace copies src to a hidden sibling of dst and renames it over dst.
func (s *LocalStorage) copyIntoPlace(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 - src is inside the temp area
	if err != nil {
		return fmt.Errorf("open temp file: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.CreateTemp(s.audioDir, ".promote-*.tmp")
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}
	staging := out.Name()

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(staging)
		return fmt.Errorf("copy temp file: %w", err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		_ = os.Remove(staging)
		return fmt.Errorf("sync staging file: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(staging)
		return fmt.Errorf("close staging file: %w", err)
	}
	if err := os.Rename(staging, dst); err != nil {
		_ = os.Remove(staging)
		return fmt.Errorf("rename staging file: %w", err)
	}
	return nil
}

// Discard removes a temporary file. Missing files are not an error.
func (s *LocalStorage) Discard(ctx context.Context, path string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}
	if path == "" {
		return nil
	}
	if s.inDir(s.audioDir, path) {
		return fmt.Errorf("%w: %s", ErrProtectedPath, path)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove temp file %s: %w", path, err)
	}
	return nil
}

// ClearTemp removes every regular file in the temporary area.
// It continues even if some files fail to delete, returning the first error.
func (s *LocalStorage) ClearTemp(ctx context.Context) error {
	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read temp directory: %w", err)
	}

	var firstErr error
	for _, e := range entries {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}
		if !e.Type().IsRegular() {
			continue
		}
		p := filepath.Join(s.tempDir, e.Name())
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = fmt.Errorf("remove temp file %s: %w", p, err)
		}
	}
	return firstErr
}

// ListPermanent returns the sorted names of complete files in the permanent area.
func (s *LocalStorage) ListPermanent(ctx context.Context) ([]string, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	entries, err := os.ReadDir(s.audioDir)
	if err != nil {
		return nil, fmt.Errorf("read audio directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || isPartial(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Archive is not supported by LocalStorage and returns ErrArchiveNotConfigured.
func (s *LocalStorage) Archive(_ context.Context, _ string) (string, error) {
	return "", ErrArchiveNotConfigured
}

// inDir reports whether path lives directly or transitively under dir.
func (s *LocalStorage) inDir(dir, path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(dir, abs)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..")
}

func isPartial(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, suffix := range partialSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
