// Package player holds the broadcast queue. Control is the capability the
// pipeline and the command surface drive; Queue is the in-process
// implementation, which mirrors itself to an M3U file for an external
// audio player to consume.
package player

import (
	"context"
	"errors"
	"time"
)

// Static errors for player operations.
var (
	// ErrEmptyQueue is returned when a playback command needs a track and the queue is empty.
	ErrEmptyQueue = errors.New("player: queue is empty")
	// ErrTrackNotFound is returned when adding a path that is not a readable file.
	ErrTrackNotFound = errors.New("player: track file not found")
)

// Control is the player capability.
type Control interface {
	AddTrack(ctx context.Context, path string) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Skip(ctx context.Context) error
	// Clear empties the queue before a new build.
	Clear(ctx context.Context) error
}

// State is the playback state.
type State string

const (
	StateStopped State = "stopped"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
)

// Track is a queued audio file.
type Track struct {
	Path     string        `json:"path"`
	Title    string        `json:"title"`
	Duration time.Duration `json:"duration"`
}

// Status is a point-in-time view of the queue.
type Status struct {
	State   State   `json:"state"`
	Current int     `json:"current"`
	Tracks  []Track `json:"tracks"`
}
