package media

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2"
)

// Tags holds the display metadata of a track.
type Tags struct {
	Title  string
	Artist string
}

// Display returns "Artist - Title", or just the title when no artist is known.
func (t Tags) Display() string {
	if t.Artist == "" {
		return t.Title
	}
	return t.Artist + " - " + t.Title
}

// ReadTags reads ID3 metadata from an MP3 file. Files without usable tags,
// and non-MP3 containers, fall back to the file name stem as the title.
func ReadTags(path string) Tags {
	fallback := Tags{Title: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))}
	if !isMP3(path) {
		return fallback
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fallback
	}
	defer func() { _ = tag.Close() }()

	t := Tags{Title: strings.TrimSpace(tag.Title()), Artist: strings.TrimSpace(tag.Artist())}
	if t.Title == "" {
		t.Title = fallback.Title
	}
	return t
}

// WriteTags stamps title and artist onto an MP3 file. Other containers are left untouched.
func WriteTags(path string, t Tags) error {
	if !isMP3(path) {
		return nil
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("id3 open: %w", err)
	}
	defer func() { _ = tag.Close() }()

	tag.SetVersion(4)
	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	if t.Title != "" {
		tag.SetTitle(t.Title)
	}
	if t.Artist != "" {
		tag.SetArtist(t.Artist)
	}
	if err := tag.Save(); err != nil {
		return fmt.Errorf("id3 save: %w", err)
	}
	return nil
}

func isMP3(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".mp3")
}
