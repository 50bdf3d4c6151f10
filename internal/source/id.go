// Package source derives stable track identifiers from candidate source URLs.
package source

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidURL is returned when no track identifier can be derived from a URL.
var ErrInvalidURL = errors.New("source: cannot derive track identifier")

// TrackID is the stable identifier of a track. It doubles as the cache key
// and the deduplication key.
type TrackID string

// String returns the identifier as a plain string.
func (id TrackID) String() string {
	return string(id)
}

// WatchURL returns the canonical watch page for the identifier. Downloads use
// it instead of the feed-supplied URL, so a bare id never reaches a tool's
// argument parser as-is.
func (id TrackID) WatchURL() string {
	return "https://www.youtube.com/watch?v=" + string(id)
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// pathPrefixes lists the path segments that are followed directly by an id.
var pathPrefixes = []string{"shorts", "embed", "live", "v", "e"}

// ExtractID parses a video URL (or a bare id) without touching the network.
func ExtractID(raw string) (TrackID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty url", ErrInvalidURL)
	}
	if idPattern.MatchString(raw) {
		return TrackID(raw), nil
	}

	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")

	var candidate string
	switch host {
	case "youtu.be":
		candidate = segments[0]
	case "youtube.com", "music.youtube.com", "youtube-nocookie.com":
		if v := u.Query().Get("v"); v != "" {
			candidate = v
			break
		}
		if len(segments) >= 2 {
			for _, prefix := range pathPrefixes {
				if segments[0] == prefix {
					candidate = segments[1]
					break
				}
			}
		}
	}

	if !idPattern.MatchString(candidate) {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}
	return TrackID(candidate), nil
}
