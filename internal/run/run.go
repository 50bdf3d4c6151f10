// Package run provides the Run aggregate: one execution of a trigger by the
// pipeline worker, with a validated state machine and a repository for
// inspection over HTTP.
package run

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maauso/radio-curator/internal/playlist"
	"github.com/maauso/radio-curator/internal/schedule"
)

// Status represents the current state of a Run.
type Status string

const (
	// StatusQueued indicates the run is waiting for the worker.
	StatusQueued Status = "QUEUED"
	// StatusRunning indicates the worker is executing the run.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the run finished.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the run could not be carried out.
	StatusFailed Status = "FAILED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("run: invalid state transition")

var validTransitions = map[Status][]Status{
	StatusQueued:    {StatusRunning, StatusFailed},
	StatusRunning:   {StatusCompleted, StatusFailed},
	StatusCompleted: {},
	StatusFailed:    {},
}

func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Run is a single execution of a trigger.
type Run struct {
	mu sync.RWMutex

	ID     string
	Kind   schedule.Kind
	Origin schedule.Origin
	Status Status
	// Report is set for completed playlist builds.
	Report *playlist.Report
	Error  string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// New creates a queued Run with a random ID.
func New(kind schedule.Kind, origin schedule.Origin) *Run {
	return NewWithID(uuid.NewString(), kind, origin)
}

// NewWithID creates a queued Run with the given ID.
func NewWithID(runID string, kind schedule.Kind, origin schedule.Origin) *Run {
	now := time.Now()
	return &Run{
		ID:        runID,
		Kind:      kind,
		Origin:    origin,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo changes the status, or returns ErrInvalidTransition.
func (r *Run) TransitionTo(status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitionLocked(status)
}

func (r *Run) transitionLocked(status Status) error {
	if !canTransition(r.Status, status) {
		return ErrInvalidTransition
	}
	r.Status = status
	r.UpdatedAt = time.Now()
	switch status {
	case StatusRunning:
		r.StartedAt = r.UpdatedAt
	case StatusCompleted, StatusFailed:
		r.CompletedAt = r.UpdatedAt
	}
	return nil
}

// Start moves a queued run to RUNNING.
func (r *Run) Start() error {
	return r.TransitionTo(StatusRunning)
}

// Complete finishes the run. report may be nil for runs that do not build.
func (r *Run) Complete(report *playlist.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	r.Report = report
	return nil
}

// Fail finishes the run with an error message.
func (r *Run) Fail(errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.transitionLocked(StatusFailed); err != nil {
		return err
	}
	r.Error = errMsg
	return nil
}

// GetStatus returns the current status (thread-safe).
func (r *Run) GetStatus() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Status
}

// IsTerminal returns true once the run has completed or failed.
func (r *Run) IsTerminal() bool {
	s := r.GetStatus()
	return s == StatusCompleted || s == StatusFailed
}

// Clone creates a deep copy for safe reads.
func (r *Run) Clone() *Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var report *playlist.Report
	if r.Report != nil {
		cp := *r.Report
		report = &cp
	}
	return &Run{
		ID:          r.ID,
		Kind:        r.Kind,
		Origin:      r.Origin,
		Status:      r.Status,
		Report:      report,
		Error:       r.Error,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
}
