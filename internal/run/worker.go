package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maauso/radio-curator/internal/playlist"
	"github.com/maauso/radio-curator/internal/schedule"
)

// ErrQueueFull is returned by Enqueue when the worker backlog is full.
var ErrQueueFull = errors.New("run: queue is full")

// Builder runs playlist builds.
type Builder interface {
	RunBackendUpdate(ctx context.Context) playlist.Report
	RunLocalUpdate(ctx context.Context) playlist.Report
}

// Resetter clears the played ledger.
type Resetter interface {
	ResetPlayed(ctx context.Context)
}

// Transport starts and pauses playback.
type Transport interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
}

// Worker is the single consumer of triggers. Scheduled and manual triggers
// share one loop, so playlist builds never overlap.
type Worker struct {
	repo      Repository
	builder   Builder
	resetter  Resetter
	transport Transport
	logger    *slog.Logger

	triggers chan schedule.Trigger
	queue    chan *Run
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = l
	}
}

// WithBacklog sets how many manual runs may wait for the worker.
func WithBacklog(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.queue = make(chan *Run, n)
		}
	}
}

// NewWorker creates a Worker.
func NewWorker(repo Repository, builder Builder, resetter Resetter, transport Transport, opts ...WorkerOption) *Worker {
	w := &Worker{
		repo:      repo,
		builder:   builder,
		resetter:  resetter,
		transport: transport,
		logger:    slog.Default(),
		triggers:  make(chan schedule.Trigger),
		queue:     make(chan *Run, 8),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Triggers is the channel a Scheduler delivers to.
func (w *Worker) Triggers() chan<- schedule.Trigger {
	return w.triggers
}

// Enqueue records a queued run and hands it to the worker without blocking.
func (w *Worker) Enqueue(ctx context.Context, kind schedule.Kind, origin schedule.Origin) (*Run, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", schedule.ErrInvalidKind, kind)
	}
	r := New(kind, origin)
	if err := w.repo.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}

	select {
	case w.queue <- r:
		w.logger.Info("run queued", slog.String("run_id", r.ID), slog.String("kind", string(kind)), slog.String("origin", string(origin)))
		return r.Clone(), nil
	default:
		_ = r.Fail(ErrQueueFull.Error())
		_ = w.repo.Save(ctx, r)
		return nil, ErrQueueFull
	}
}

// Run consumes triggers until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-w.triggers:
			r := New(t.Kind, t.Origin)
			if err := w.repo.Save(ctx, r); err != nil {
				w.logger.Error("failed to save run", slog.String("run_id", r.ID), slog.String("error", err.Error()))
			}
			w.execute(ctx, r)
		case r := <-w.queue:
			w.execute(ctx, r)
		}
	}
}

// Execute runs kind synchronously, outside the worker loop. It is meant for
// one-shot CLI invocations where no worker is running.
func (w *Worker) Execute(ctx context.Context, kind schedule.Kind, origin schedule.Origin) *Run {
	r := New(kind, origin)
	_ = w.repo.Save(ctx, r)
	w.execute(ctx, r)
	return r.Clone()
}

func (w *Worker) execute(ctx context.Context, r *Run) {
	logger := w.logger.With(slog.String("run_id", r.ID), slog.String("kind", string(r.Kind)))

	if err := r.Start(); err != nil {
		logger.Error("run cannot start", slog.String("status", string(r.GetStatus())))
		return
	}
	w.save(ctx, r, logger)
	logger.Info("run started", slog.String("origin", string(r.Origin)))

	report, err := w.dispatch(ctx, r.Kind)
	if err != nil {
		_ = r.Fail(err.Error())
		logger.Error("run failed", slog.String("error", err.Error()))
	} else {
		_ = r.Complete(report)
		attrs := []any{}
		if report != nil {
			attrs = append(attrs,
				slog.Duration("total", report.Total),
				slog.Int("accepted", report.Accepted),
				slog.Int("rejected", report.Rejected),
				slog.Int("skipped", report.Skipped),
				slog.Int("local_tracks", report.LocalTracks),
			)
		}
		logger.Info("run completed", attrs...)
	}
	w.save(context.WithoutCancel(ctx), r, logger)
}

func (w *Worker) dispatch(ctx context.Context, kind schedule.Kind) (report *playlist.Report, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	switch kind {
	case schedule.KindBackendUpdate:
		rep := w.builder.RunBackendUpdate(ctx)
		return &rep, nil
	case schedule.KindLocalUpdate:
		rep := w.builder.RunLocalUpdate(ctx)
		return &rep, nil
	case schedule.KindResetPlayed:
		w.resetter.ResetPlayed(ctx)
		return nil, nil
	case schedule.KindPlay:
		return nil, w.transport.Play(ctx)
	case schedule.KindPause:
		return nil, w.transport.Pause(ctx)
	default:
		return nil, fmt.Errorf("%w: %q", schedule.ErrInvalidKind, kind)
	}
}

func (w *Worker) save(ctx context.Context, r *Run, logger *slog.Logger) {
	if err := w.repo.Save(ctx, r); err != nil {
		logger.Error("failed to save run", slog.String("error", err.Error()))
	}
}
