// Package ledger persists the "played" and "blacklisted" track sets that keep
// playlist builds free of duplicates across runs.
//
// Reads fail open: an unreadable store is logged and treated as empty so a
// build is never blocked. Writes are best effort: a lost append is logged and
// the next read may offer the same candidate again.
package ledger

import (
	"context"
	"path/filepath"
	"strings"
)

// Ledger is the durable record of played and blacklisted tracks.
// Entries are file basenames (for example "dQw4w9WgXcQ.webm"); lookups match
// the full basename, its extension-less stem, or, for a bare identifier of at
// least 11 characters, any entry embedding it ("Title [id].webm"). Every
// implementation answers with this same rule, so a blacklist check can run
// on a bare track identifier before anything is downloaded.
type Ledger interface {
	// IsPlayed reports whether key was added to a playlist in the current epoch.
	IsPlayed(ctx context.Context, key string) bool
	// MarkPlayed records name as played. Existing entries are not duplicated.
	MarkPlayed(ctx context.Context, name string)
	// IsBlacklisted reports whether key was permanently rejected.
	IsBlacklisted(ctx context.Context, key string) bool
	// MarkBlacklisted records name as rejected. Existing entries are not duplicated.
	MarkBlacklisted(ctx context.Context, name string)
	// ResetPlayed starts a new epoch by truncating the played set.
	ResetPlayed(ctx context.Context)
}

// stem strips the file extension from a basename.
func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// minEmbeddedKey is the shortest bare key that may match inside a longer name.
const minEmbeddedKey = 11

// matches reports whether a stored entry identifies key.
// Bare identifiers also match names that embed them, e.g. "Title [id].webm".
func matches(entry, key string) bool {
	if entry == key || stem(entry) == key {
		return true
	}
	return filepath.Ext(key) == "" && len(key) >= minEmbeddedKey && strings.Contains(entry, key)
}
