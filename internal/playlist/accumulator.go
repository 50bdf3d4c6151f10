// Package playlist builds the broadcast playlist: it pulls candidates from
// the backend feed or the local pool, runs them through moderation and stops
// once enough accepted material has been queued.
package playlist

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/maauso/radio-curator/internal/fetch"
	"github.com/maauso/radio-curator/internal/ledger"
	"github.com/maauso/radio-curator/internal/media"
	"github.com/maauso/radio-curator/internal/moderation"
	"github.com/maauso/radio-curator/internal/source"
)

// Candidate is one feed entry.
type Candidate struct {
	URL string
	// Duration is the feed-declared length; zero when unknown or unparseable.
	Duration time.Duration
}

// Resolver maps a source URL to a local file.
type Resolver interface {
	Resolve(ctx context.Context, sourceURL string) (fetch.Resolution, error)
}

// Evaluator runs the moderation gate on a resolved candidate.
type Evaluator interface {
	Evaluate(ctx context.Context, res fetch.Resolution) moderation.Verdict
}

// Pool is the local library of accepted tracks.
type Pool interface {
	ListPermanent(ctx context.Context) ([]string, error)
	PermanentPath(name string) string
	ClearTemp(ctx context.Context) error
}

// Player is the queue local tracks are handed to. Durations are measured
// here, so the player does not probe them again.
type Player interface {
	AddMeasuredTrack(ctx context.Context, path string, d time.Duration) error
	Clear(ctx context.Context) error
}

// Feed supplies backend candidates. ok is false when no feed data could be fetched.
type Feed interface {
	Candidates(ctx context.Context) (candidates []Candidate, ok bool)
}

// Report summarises one build.
type Report struct {
	Total    time.Duration
	Accepted int
	Rejected int
	Skipped  int
	// LocalTracks counts tracks drawn from the local pool.
	LocalTracks int
	// FeedAvailable is false when the backend feed could not be fetched.
	FeedAvailable bool
}

// Config holds the duration thresholds and per-candidate deadline.
type Config struct {
	// BackendMinimum is the target for backend builds, topped up locally.
	BackendMinimum time.Duration
	// LocalMinimum is the target for pure local builds.
	LocalMinimum time.Duration
	// CandidateTimeout bounds fetch plus moderation of one candidate. Zero disables it.
	CandidateTimeout time.Duration
}

// DefaultConfig returns 55 minute backend and 5 minute local targets.
func DefaultConfig() Config {
	return Config{
		BackendMinimum: 55 * time.Minute,
		LocalMinimum:   5 * time.Minute,
	}
}

// Accumulator orchestrates playlist builds. It mutates storage and the
// ledger only through its collaborators, and must be driven by a single
// worker so builds never overlap.
type Accumulator struct {
	cfg      Config
	feed     Feed
	resolver Resolver
	gate     Evaluator
	ledger   ledger.Ledger
	pool     Pool
	prober   media.Prober
	player   Player
	logger   *slog.Logger
	pick     func(n int) int
}

// Deps groups the collaborators of an Accumulator.
type Deps struct {
	Feed     Feed
	Resolver Resolver
	Gate     Evaluator
	Ledger   ledger.Ledger
	Pool     Pool
	Prober   media.Prober
	Player   Player
	Logger   *slog.Logger
}

// NewAccumulator creates an Accumulator.
func NewAccumulator(cfg Config, d Deps) *Accumulator {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Accumulator{
		cfg:      cfg,
		feed:     d.Feed,
		resolver: d.Resolver,
		gate:     d.Gate,
		ledger:   d.Ledger,
		pool:     d.Pool,
		prober:   d.Prober,
		player:   d.Player,
		logger:   d.Logger,
		pick:     rand.IntN,
	}
}

// RunBackendUpdate prepares the player and temp area, fetches the feed and
// builds from it. Missing feed data falls back to the local pool up to the
// backend minimum.
func (a *Accumulator) RunBackendUpdate(ctx context.Context) Report {
	a.prepare(ctx, true)

	candidates, ok := a.feed.Candidates(ctx)
	if !ok {
		a.logger.Warn("no feed data, falling back to local pool")
	}
	report := a.BuildFromBackend(ctx, candidates)
	report.FeedAvailable = ok
	return report
}

// RunLocalUpdate prepares the player and builds from the local pool only.
func (a *Accumulator) RunLocalUpdate(ctx context.Context) Report {
	a.prepare(ctx, false)
	return a.BuildFromLocalPool(ctx)
}

func (a *Accumulator) prepare(ctx context.Context, clearTemp bool) {
	if err := a.player.Clear(ctx); err != nil {
		a.logger.Warn("failed to clear player queue", slog.String("error", err.Error()))
	}
	if !clearTemp {
		return
	}
	if err := a.pool.ClearTemp(ctx); err != nil {
		a.logger.Warn("failed to clear temp area", slog.String("error", err.Error()))
	}
}

// BuildFromBackend processes every candidate once, summing the declared
// durations of accepted ones, then tops up from the local pool until the
// backend minimum is reached or the pool runs dry.
func (a *Accumulator) BuildFromBackend(ctx context.Context, candidates []Candidate) Report {
	var report Report
	for _, c := range candidates {
		if ctx.Err() != nil {
			a.logger.Warn("build cancelled", slog.String("error", ctx.Err().Error()))
			return report
		}
		if a.processCandidate(ctx, c, &report) {
			report.Total += c.Duration
		}
	}

	a.logger.Info("feed processed",
		slog.Int("accepted", report.Accepted),
		slog.Int("rejected", report.Rejected),
		slog.Int("skipped", report.Skipped),
		slog.String("total", FormatClock(report.Total)),
	)

	a.topUp(ctx, &report, a.cfg.BackendMinimum)
	a.logger.Info("backend build finished", slog.String("total", FormatClock(report.Total)))
	return report
}

// BuildFromLocalPool draws unplayed local tracks until the local minimum is
// reached or every local track has been played.
func (a *Accumulator) BuildFromLocalPool(ctx context.Context) Report {
	var report Report
	a.topUp(ctx, &report, a.cfg.LocalMinimum)
	a.logger.Info("local build finished",
		slog.Int("tracks", report.LocalTracks),
		slog.String("total", FormatClock(report.Total)),
	)
	return report
}

// processCandidate runs one feed entry to a verdict and reports whether it
// was accepted. Errors never escape: a bad candidate is skipped.
func (a *Accumulator) processCandidate(ctx context.Context, c Candidate, report *Report) bool {
	if a.cfg.CandidateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.CandidateTimeout)
		defer cancel()
	}
	log := a.logger.With(slog.String("url", c.URL))

	id, err := source.ExtractID(c.URL)
	if err != nil {
		log.Warn("skipping candidate with unusable url", slog.String("error", err.Error()))
		report.Skipped++
		return false
	}
	if a.ledger.IsBlacklisted(ctx, id.String()) {
		log.Info("blacklisted, skipping download", slog.String("id", id.String()))
		report.Skipped++
		return false
	}

	res, err := a.resolver.Resolve(ctx, c.URL)
	if err != nil {
		switch {
		case errors.Is(err, fetch.ErrNoSuitableStream):
			log.Warn("no suitable audio stream", slog.String("id", id.String()))
		default:
			log.Error("fetch failed", slog.String("id", id.String()), slog.String("error", err.Error()))
		}
		report.Skipped++
		return false
	}

	v := a.gate.Evaluate(ctx, res)
	switch {
	case v.Kind == moderation.Accepted:
		report.Accepted++
		return true
	case v.Kind.IsRejection():
		report.Rejected++
	default:
		report.Skipped++
	}
	return false
}

// topUp draws random unplayed local tracks until report.Total reaches minimum.
// Each drawn track is queued and marked played at draw time; a track whose
// duration cannot be measured stays queued but contributes nothing.
func (a *Accumulator) topUp(ctx context.Context, report *Report, minimum time.Duration) {
	refused := make(map[string]struct{})
	for report.Total < minimum {
		if ctx.Err() != nil {
			return
		}
		path, d, ok := a.drawLocal(ctx, refused)
		if !ok {
			a.logger.Warn("no unplayed local tracks left",
				slog.String("total", FormatClock(report.Total)),
				slog.String("minimum", FormatClock(minimum)),
			)
			return
		}
		report.LocalTracks++
		report.Total += d
		a.logger.Info("added local track",
			slog.String("path", path),
			slog.String("duration", FormatClock(d)),
			slog.String("total", FormatClock(report.Total)),
		)
	}
}

// drawLocal picks a random unplayed track, measures it once, queues it and
// marks it played. An unmeasurable track is queued with zero duration.
// Tracks the player refuses are remembered in refused and not offered again
// during this build. It returns false once no candidate is left.
func (a *Accumulator) drawLocal(ctx context.Context, refused map[string]struct{}) (string, time.Duration, bool) {
	names, err := a.pool.ListPermanent(ctx)
	if err != nil {
		a.logger.Error("failed to list local pool", slog.String("error", err.Error()))
		return "", 0, false
	}

	unplayed := make([]string, 0, len(names))
	for _, n := range names {
		if _, skip := refused[n]; skip {
			continue
		}
		if !a.ledger.IsPlayed(ctx, n) {
			unplayed = append(unplayed, n)
		}
	}

	for len(unplayed) > 0 {
		i := a.pick(len(unplayed))
		name := unplayed[i]
		unplayed[i] = unplayed[len(unplayed)-1]
		unplayed = unplayed[:len(unplayed)-1]

		path := a.pool.PermanentPath(name)
		d, err := a.prober.Duration(ctx, path)
		if err != nil {
			a.logger.Error("failed to measure duration", slog.String("path", path), slog.String("error", err.Error()))
			d = 0
		}
		if err := a.player.AddMeasuredTrack(ctx, path, d); err != nil {
			a.logger.Error("player refused local track", slog.String("path", path), slog.String("error", err.Error()))
			refused[name] = struct{}{}
			continue
		}
		a.ledger.MarkPlayed(ctx, name)
		return path, d, true
	}
	return "", 0, false
}
