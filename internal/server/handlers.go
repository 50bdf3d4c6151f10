package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/radio-curator/internal/player"
	"github.com/maauso/radio-curator/internal/playlist"
	"github.com/maauso/radio-curator/internal/run"
	"github.com/maauso/radio-curator/internal/schedule"
)

// Player is the slice of the player the command surface drives.
type Player interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Skip(ctx context.Context) error
	Snapshot() player.Status
}

// Enqueuer hands manual runs to the pipeline worker.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind schedule.Kind, origin schedule.Origin) (*run.Run, error)
}

// Handlers contains the HTTP handlers.
type Handlers struct {
	player    Player
	runs      run.Repository
	enqueuer  Enqueuer
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(p Player, enqueuer Enqueuer, runs run.Repository, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		player:    p,
		runs:      runs,
		enqueuer:  enqueuer,
		validator: validator.New(),
		logger:    logger,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Command handles POST /command. Unknown commands are acknowledged and
// ignored; the player never sees them.
func (h *Handlers) Command(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode command body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid command", "INVALID_JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid command", "VALIDATION_ERROR")
		return
	}

	command := strings.ToLower(strings.TrimSpace(req.ToDO))
	h.logger.Info("received command", slog.String("command", command))

	var action func(context.Context) error
	switch command {
	case "play":
		action = h.player.Play
	case "pause":
		action = h.player.Pause
	case "next", "skip":
		action = h.player.Skip
	default:
		h.logger.Warn("unknown command", slog.String("command", req.ToDO))
		writeJSON(w, http.StatusOK, CommandResponse{Status: "ignored", Command: req.ToDO})
		return
	}

	if err := action(r.Context()); err != nil {
		h.logger.Error("error executing command",
			slog.String("command", command),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, err.Error(), "COMMAND_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{Status: "ok", Command: command})
}

// CreateRun handles POST /runs.
func (h *Handlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	queued, err := h.enqueuer.Enqueue(r.Context(), schedule.Kind(req.Kind), schedule.OriginManual)
	switch {
	case errors.Is(err, run.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, "worker backlog is full", "QUEUE_FULL")
		return
	case err != nil:
		h.logger.Error("failed to queue run", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to queue run", "RUN_CREATION_FAILED")
		return
	}

	writeJSON(w, http.StatusAccepted, CreateRunResponse{ID: queued.ID, Status: string(queued.Status)})
}

// GetRun handles GET /runs/{id}.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run ID is required", "MISSING_RUN_ID")
		return
	}

	found, err := h.runs.FindByID(r.Context(), runID)
	if err != nil {
		if errors.Is(err, run.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found", "RUN_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get run", slog.String("run_id", runID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to get run", "RUN_FETCH_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, toRunResponse(found))
}

// ListRuns handles GET /runs.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runs.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs", "RUN_FETCH_FAILED")
		return
	}
	resp := RunListResponse{Runs: make([]RunResponse, 0, len(runs))}
	for _, rn := range runs {
		resp.Runs = append(resp.Runs, toRunResponse(rn))
	}
	writeJSON(w, http.StatusOK, resp)
}

// PlayerStatus handles GET /player.
func (h *Handlers) PlayerStatus(w http.ResponseWriter, _ *http.Request) {
	s := h.player.Snapshot()
	resp := PlayerResponse{State: string(s.State), Current: s.Current, Tracks: make([]TrackResponse, 0, len(s.Tracks))}
	for _, t := range s.Tracks {
		resp.Tracks = append(resp.Tracks, TrackResponse{
			Title:    t.Title,
			Path:     t.Path,
			Duration: playlist.FormatClock(t.Duration),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func toRunResponse(rn *run.Run) RunResponse {
	resp := RunResponse{
		ID:          rn.ID,
		Kind:        string(rn.Kind),
		Origin:      string(rn.Origin),
		Status:      string(rn.Status),
		Error:       rn.Error,
		CreatedAt:   rn.CreatedAt,
		StartedAt:   optionalTime(rn.StartedAt),
		CompletedAt: optionalTime(rn.CompletedAt),
	}
	if rep := rn.Report; rep != nil {
		resp.Report = &ReportResponse{
			Total:         playlist.FormatClock(rep.Total),
			Accepted:      rep.Accepted,
			Rejected:      rep.Rejected,
			Skipped:       rep.Skipped,
			LocalTracks:   rep.LocalTracks,
			FeedAvailable: rep.FeedAvailable,
		}
	}
	return resp
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
