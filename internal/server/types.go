// Package server provides the command/control HTTP surface: player
// commands, manual pipeline runs and run inspection.
package server

import "time"

// CommandRequest is the body of POST /command.
type CommandRequest struct {
	// ToDO is the player command: play, pause or next.
	ToDO string `json:"ToDO" validate:"required"`
}

// CommandResponse acknowledges a command.
type CommandResponse struct {
	Status  string `json:"status"`
	Command string `json:"command"`
}

// CreateRunRequest is the body of POST /runs.
type CreateRunRequest struct {
	Kind string `json:"kind" validate:"required,oneof=backend-update local-update reset-played play pause"`
}

// CreateRunResponse is returned after a run is queued.
type CreateRunResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ReportResponse summarises a playlist build.
type ReportResponse struct {
	// Total is the accumulated playlist duration as HH:MM:SS.
	Total         string `json:"total"`
	Accepted      int    `json:"accepted"`
	Rejected      int    `json:"rejected"`
	Skipped       int    `json:"skipped"`
	LocalTracks   int    `json:"local_tracks"`
	FeedAvailable bool   `json:"feed_available"`
}

// RunResponse describes a run.
type RunResponse struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Origin      string          `json:"origin"`
	Status      string          `json:"status"`
	Error       string          `json:"error,omitempty"`
	Report      *ReportResponse `json:"report,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// RunListResponse wraps GET /runs.
type RunListResponse struct {
	Runs []RunResponse `json:"runs"`
}

// TrackResponse is a queued track.
type TrackResponse struct {
	Title    string `json:"title"`
	Path     string `json:"path"`
	Duration string `json:"duration"`
}

// PlayerResponse is the player snapshot.
type PlayerResponse struct {
	State   string          `json:"state"`
	Current int             `json:"current"`
	Tracks  []TrackResponse `json:"tracks"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}
