package playlist

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDuration is returned by ParseClock for strings not in HH:MM:SS form.
var ErrInvalidDuration = errors.New("playlist: invalid HH:MM:SS duration")

// ParseClock parses an "HH:MM:SS" clock string. Each field takes one or two
// digits; hours are limited to 0-23 and minutes and seconds to 0-59.
func ParseClock(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	limits := [3]int{23, 59, 59}
	var fields [3]int
	for i, p := range parts {
		if len(p) == 0 || len(p) > 2 || strings.Trim(p, "0123456789") != "" {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}
		fields[i] = n
	}
	return time.Duration(fields[0])*time.Hour +
		time.Duration(fields[1])*time.Minute +
		time.Duration(fields[2])*time.Second, nil
}

// FormatClock renders d as "HH:MM:SS", truncating sub-second precision.
// Negative durations render as "00:00:00".
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}

// DeclaredDuration parses a feed-declared "HH:MM:SS" duration. Invalid input
// is logged and counts as zero.
func DeclaredDuration(raw string, logger *slog.Logger) time.Duration {
	d, err := ParseClock(raw)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("invalid duration format", slog.String("value", raw), slog.String("error", err.Error()))
		return 0
	}
	return d
}
