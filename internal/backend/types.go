// Package backend provides an HTTP client for the voting backend: it fetches
// the feed of songs to play and reports the track currently on air.
package backend

// FeedEntry is one element of the songs-to-play feed.
type FeedEntry struct {
	URL string `json:"url" validate:"required"`
	// Duration is the declared length as "HH:MM:SS".
	Duration string `json:"duration"`
}

// NowPlaying is the body of the playing-song report.
type NowPlaying struct {
	SongID   string `json:"SongId" validate:"required"`
	Duration string `json:"Duration"`
}
