package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/maauso/radio-curator/internal/media"
)

// StreamPreference selects audio-only formats of one container family.
type StreamPreference struct {
	// Mime is the family name used in logs, e.g. "audio/webm".
	Mime string
	// Ext is the container extension reported by yt-dlp.
	Ext string
}

// DefaultPreferences tries WebM audio first and falls back to MP3.
var DefaultPreferences = []StreamPreference{
	{Mime: "audio/webm", Ext: "webm"},
	{Mime: "audio/mp3", Ext: "mp3"},
}

// Download is the result of a finished download.
type Download struct {
	Path  string
	Title string
	Mime  string
}

// Downloader fetches the audio stream of a source URL to destBase plus the
// container extension.
type Downloader interface {
	Download(ctx context.Context, sourceURL, destBase string) (Download, error)
}

// YTDLP implements Downloader with the yt-dlp CLI.
type YTDLP struct {
	path        string
	runner      media.Runner
	preferences []StreamPreference
}

// YTDLPOption configures a YTDLP downloader.
type YTDLPOption func(*YTDLP)

// WithRunner sets the process runner.
func WithRunner(r media.Runner) YTDLPOption {
	return func(y *YTDLP) {
		y.runner = r
	}
}

// WithPreferences overrides the stream preference order.
func WithPreferences(p ...StreamPreference) YTDLPOption {
	return func(y *YTDLP) {
		y.preferences = p
	}
}

// NewYTDLP creates a downloader. An empty path defaults to "yt-dlp".
func NewYTDLP(path string, opts ...YTDLPOption) *YTDLP {
	if path == "" {
		path = "yt-dlp"
	}
	y := &YTDLP{
		path:        path,
		runner:      media.ExecRunner{},
		preferences: DefaultPreferences,
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

// ytFormat is the subset of a yt-dlp format entry used for stream selection.
type ytFormat struct {
	FormatID string  `json:"format_id"`
	Ext      string  `json:"ext"`
	AudioExt string  `json:"audio_ext"`
	ACodec   string  `json:"acodec"`
	VCodec   string  `json:"vcodec"`
	ABR      float64 `json:"abr"`
}

type ytInfo struct {
	Title   string     `json:"title"`
	Formats []ytFormat `json:"formats"`
}

// Download lists the available formats, picks the first preferred audio-only
// stream and downloads it.
func (y *YTDLP) Download(ctx context.Context, sourceURL, destBase string) (Download, error) {
	res, err := y.runner.Run(ctx, y.path, "-J", "--no-playlist", "--no-warnings", "--", sourceURL)
	if err != nil {
		return Download{}, fmt.Errorf("%w: list formats: %w", ErrDownloadFailed, err)
	}

	var info ytInfo
	if err := json.Unmarshal([]byte(res.Stdout), &info); err != nil {
		return Download{}, fmt.Errorf("%w: decode format list: %w", ErrDownloadFailed, err)
	}

	format, pref, ok := selectStream(info.Formats, y.preferences)
	if !ok {
		return Download{}, fmt.Errorf("%w: %s", ErrNoSuitableStream, sourceURL)
	}

	dest := destBase + "." + pref.Ext
	_, err = y.runner.Run(ctx, y.path,
		"-f", format.FormatID,
		"--no-playlist",
		"--no-part",
		"--force-overwrites",
		"-o", dest,
		"--",
		sourceURL,
	)
	if err != nil {
		_ = os.Remove(dest)
		return Download{}, fmt.Errorf("%w: download %s: %w", ErrDownloadFailed, format.FormatID, err)
	}

	stat, err := os.Stat(dest)
	if err != nil || stat.Size() == 0 {
		_ = os.Remove(dest)
		return Download{}, fmt.Errorf("%w: no output at %s", ErrDownloadFailed, dest)
	}

	return Download{Path: dest, Title: strings.TrimSpace(info.Title), Mime: pref.Mime}, nil
}

// selectStream returns the highest-bitrate audio-only format of the first
// preference family that has any.
func selectStream(formats []ytFormat, prefs []StreamPreference) (ytFormat, StreamPreference, bool) {
	for _, pref := range prefs {
		var candidates []ytFormat
		for _, f := range formats {
			if f.FormatID == "" || !isAudioOnly(f) {
				continue
			}
			if strings.EqualFold(f.Ext, pref.Ext) || strings.EqualFold(f.AudioExt, pref.Ext) {
				candidates = append(candidates, f)
			}
		}
		if len(candidates) == 0 {
			continue
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].ABR > candidates[j].ABR
		})
		return candidates[0], pref, true
	}
	return ytFormat{}, StreamPreference{}, false
}

func isAudioOnly(f ytFormat) bool {
	return f.VCodec == "none" && f.ACodec != "none" && f.ACodec != ""
}
