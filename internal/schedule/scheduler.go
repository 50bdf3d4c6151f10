package schedule

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

// Scheduler emits a Trigger on its output channel whenever a daily entry
// comes due. Entries sharing a time fire in the order they were given.
type Scheduler struct {
	entries []Entry
	out     chan<- Trigger
	logger  *slog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithClock replaces the wall clock and timer, mostly for tests.
func WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
		s.after = after
	}
}

// New creates a Scheduler delivering to out.
func New(out chan<- Trigger, entries []Entry, opts ...Option) *Scheduler {
	s := &Scheduler{
		entries: entries,
		out:     out,
		logger:  slog.Default(),
		now:     time.Now,
		after:   time.After,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Due returns the next firing instant after now and every entry due then.
func (s *Scheduler) Due(now time.Time) (time.Time, []Entry) {
	if len(s.entries) == 0 {
		return time.Time{}, nil
	}
	type pending struct {
		at    time.Time
		entry Entry
	}
	all := make([]pending, 0, len(s.entries))
	for _, e := range s.entries {
		all = append(all, pending{at: e.next(now), entry: e})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })

	first := all[0].at
	var due []Entry
	for _, p := range all {
		if !p.at.Equal(first) {
			break
		}
		due = append(due, p.entry)
	}
	return first, due
}

// Run blocks until ctx is cancelled. With no entries it just waits.
func (s *Scheduler) Run(ctx context.Context) error {
	for _, e := range s.entries {
		s.logger.Info("scheduled", slog.String("kind", string(e.Kind)), slog.String("at", e.At.String()))
	}

	var last time.Time
	for {
		from := s.now()
		if from.Before(last) {
			from = last
		}
		at, due := s.Due(from)
		if len(due) == 0 {
			<-ctx.Done()
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.after(at.Sub(from)):
		}
		last = at

		for _, e := range due {
			t := Trigger{Kind: e.Kind, Origin: OriginSchedule, At: at}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case s.out <- t:
				s.logger.Debug("trigger fired", slog.String("kind", string(e.Kind)))
			}
		}
	}
}
