// Package storage owns the two on-disk audio areas of the intake pipeline:
// a temporary area for fresh downloads awaiting moderation and a permanent
// area holding accepted tracks, which also serves as the download cache.
// S3Storage optionally mirrors accepted tracks to a bucket.
package storage

import (
	"context"
	"errors"
)

// Static errors for storage operations.
var (
	// ErrArchiveNotConfigured is returned by Archive when no bucket is configured.
	ErrArchiveNotConfigured = errors.New("storage: archive is not configured")
	// ErrProtectedPath is returned when deleting a file from the permanent area is attempted.
	ErrProtectedPath = errors.New("storage: refusing to delete a permanent track")
	// ErrNotInTempArea is returned when promoting a file that is not in the temporary area.
	ErrNotInTempArea = errors.New("storage: file is not in the temporary area")
)

// Storage defines the audio storage port used by the fetcher and the moderation gate.
type Storage interface {
	// FindCached returns the permanent file whose name contains id, if any.
	FindCached(ctx context.Context, id string) (path string, ok bool)

	// TempPath returns the temporary-area path for a file name.
	TempPath(name string) string

	// PermanentPath returns the permanent-area path for a file name.
	PermanentPath(name string) string

	// ExistsPermanent reports whether name already exists in the permanent area.
	ExistsPermanent(name string) bool

	// Promote atomically moves a temporary file into the permanent area and
	// returns its new path. Readers never observe a partial file.
	Promote(ctx context.Context, tempPath string) (string, error)

	// Discard removes a temporary file. Permanent files are never removed.
	Discard(ctx context.Context, path string) error

	// ClearTemp empties the temporary area.
	ClearTemp(ctx context.Context) error

	// ListPermanent returns the names of all tracks in the permanent area.
	ListPermanent(ctx context.Context) ([]string, error)

	// Archive mirrors an accepted track to remote object storage and returns its URL.
	// Returns ErrArchiveNotConfigured if no remote store is configured.
	Archive(ctx context.Context, path string) (url string, err error)
}
