// Package schedule turns wall-clock times into pipeline triggers.
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Static errors for schedule parsing.
var (
	// ErrInvalidKind is returned for an unknown trigger kind.
	ErrInvalidKind = errors.New("schedule: invalid trigger kind")
	// ErrInvalidTime is returned for a malformed HH:MM entry.
	ErrInvalidTime = errors.New("schedule: invalid time of day")
)

// Kind names the work a trigger asks for.
type Kind string

const (
	// KindBackendUpdate rebuilds the playlist from the backend feed.
	KindBackendUpdate Kind = "backend-update"
	// KindLocalUpdate rebuilds the playlist from the local pool.
	KindLocalUpdate Kind = "local-update"
	// KindResetPlayed clears the played ledger.
	KindResetPlayed Kind = "reset-played"
	// KindPlay starts playback.
	KindPlay Kind = "play"
	// KindPause pauses playback.
	KindPause Kind = "pause"
)

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindBackendUpdate, KindLocalUpdate, KindResetPlayed, KindPlay, KindPause:
		return true
	}
	return false
}

// ParseKind parses a trigger kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.TrimSpace(strings.ToLower(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
	return k, nil
}

// Origin records who asked for a trigger.
type Origin string

const (
	OriginSchedule Origin = "schedule"
	OriginManual   Origin = "manual"
	OriginStartup  Origin = "startup"
)

// Trigger is a request for work delivered to the worker.
type Trigger struct {
	Kind   Kind
	Origin Origin
	At     time.Time
}

// TimeOfDay is a daily wall-clock time.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseTimeOfDay parses "HH:MM" (24h).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	h, errH := strconv.Atoi(hh)
	m, errM := strconv.Atoi(mm)
	if errH != nil || errM != nil || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 ||
		h < 0 || h > 23 || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// ParseTimes parses a comma-separated list of HH:MM entries. Blank items are
// ignored, so an empty string yields no times.
func ParseTimes(list string) ([]TimeOfDay, error) {
	var out []TimeOfDay
	for _, item := range strings.Split(list, ",") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		t, err := ParseTimeOfDay(item)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Entry fires Kind every day at At.
type Entry struct {
	At   TimeOfDay
	Kind Kind
}

// Entries builds one entry per time for the given kind.
func Entries(kind Kind, times []TimeOfDay) []Entry {
	out := make([]Entry, 0, len(times))
	for _, t := range times {
		out = append(out, Entry{At: t, Kind: kind})
	}
	return out
}

// next returns the first instant strictly after now at which e fires.
func (e Entry) next(now time.Time) time.Time {
	at := time.Date(now.Year(), now.Month(), now.Day(), e.At.Hour, e.At.Minute, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}
