package moderation

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/maauso/radio-curator/internal/fetch"
	"github.com/maauso/radio-curator/internal/gemini"
	"github.com/maauso/radio-curator/internal/ledger"
	"github.com/maauso/radio-curator/internal/lexicon"
	"github.com/maauso/radio-curator/internal/storage"
)

// Transcriber turns an audio file into lyrics. ok is false when no
// transcript could be obtained after retries.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (text string, ok bool)
}

// Classifier judges whether lyrics are safe to broadcast. ok is false when
// no valid classification could be obtained after retries.
type Classifier interface {
	Classify(ctx context.Context, text string) (c gemini.Classification, ok bool)
}

// Lexicon screens text against the profanity dictionaries.
type Lexicon interface {
	Analyze(text string) lexicon.Analysis
}

// Store is the part of the audio store the gate writes to.
type Store interface {
	ExistsPermanent(name string) bool
	PermanentPath(name string) string
	Promote(ctx context.Context, tempPath string) (string, error)
	Discard(ctx context.Context, path string) error
	Archive(ctx context.Context, path string) (string, error)
}

// TrackAdder enqueues an accepted track on the player.
type TrackAdder interface {
	AddTrack(ctx context.Context, path string) error
}

// Gate evaluates resolved candidates. It is meant to be driven by a single
// coordinator; it holds no per-candidate state between calls.
type Gate struct {
	ledger      ledger.Ledger
	store       Store
	transcriber Transcriber
	lexicon     Lexicon
	classifier  Classifier
	player      TrackAdder
	logger      *slog.Logger
}

// NewGate wires a gate. A nil logger uses slog.Default().
func NewGate(l ledger.Ledger, store Store, t Transcriber, lex Lexicon, c Classifier, player TrackAdder, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		ledger:      l,
		store:       store,
		transcriber: t,
		lexicon:     lex,
		classifier:  c,
		player:      player,
		logger:      logger,
	}
}

// Evaluate runs the candidate to exactly one verdict and applies its side
// effects: acceptance promotes, queues and marks played; rejection deletes
// the temporary file and blacklists the track once.
func (g *Gate) Evaluate(ctx context.Context, res fetch.Resolution) Verdict {
	name := filepath.Base(res.Path)
	log := g.logger.With(slog.String("track", name), slog.String("id", res.ID.String()))
	t := &tracker{state: StateFetched}

	if g.ledger.IsPlayed(ctx, name) || (res.ID != "" && g.ledger.IsPlayed(ctx, res.ID.String())) {
		log.Info("already played, skipping")
		g.discard(ctx, res, log)
		return Verdict{Kind: Skipped, Reason: "already played", Stage: t.state}
	}

	// A permanent copy carries an earlier acceptance; moderation is not repeated.
	if res.Cached || g.store.ExistsPermanent(name) {
		path := res.Path
		if !res.Cached {
			path = g.store.PermanentPath(name)
			g.discard(ctx, res, log)
		}
		_ = t.advance(StateAccepted)
		return g.enqueue(ctx, path, name, true, t, log)
	}

	_ = t.advance(StateTranscribed)
	transcript, ok := g.transcriber.Transcribe(ctx, res.Path)
	if !ok && ctx.Err() != nil {
		return g.interrupted(ctx, res, t, log)
	}
	if !ok || strings.TrimSpace(transcript) == "" {
		return g.reject(ctx, res, t, RejectedNoTranscript, "no transcript", log)
	}

	_ = t.advance(StateLexicalChecked)
	analysis := g.lexicon.Analyze(transcript)
	if !analysis.Passed() {
		return g.reject(ctx, res, t, RejectedLexical, analysis.Reason(), log)
	}
	log.Debug("lexical check passed",
		slog.String("decision", analysis.Decision.String()),
		slog.Int("hits", analysis.Total),
	)

	_ = t.advance(StateSemanticChecked)
	cls, ok := g.classifier.Classify(ctx, analysis.Clean)
	if !ok && ctx.Err() != nil {
		return g.interrupted(ctx, res, t, log)
	}
	if !ok {
		return g.reject(ctx, res, t, RejectedClassifierUnavailable, "classifier unavailable", log)
	}
	if !cls.Safe {
		reason := cls.Explanation
		if reason == "" {
			reason = "flagged unsafe"
		}
		return g.reject(ctx, res, t, RejectedSemantic, reason, log)
	}

	path, err := g.store.Promote(ctx, res.Path)
	if err != nil {
		log.Error("promote failed", slog.String("error", err.Error()))
		g.discard(ctx, res, log)
		return Verdict{Kind: Skipped, Reason: "promote failed: " + err.Error(), Stage: t.state}
	}
	_ = t.advance(StateAccepted)

	if url, err := g.store.Archive(ctx, path); err == nil {
		log.Info("track archived", slog.String("url", url))
	} else if !errors.Is(err, storage.ErrArchiveNotConfigured) {
		log.Warn("archive failed", slog.String("error", err.Error()))
	}

	return g.enqueue(ctx, path, name, false, t, log)
}

// enqueue hands an accepted track to the player and records it as played.
// A track the player refused stays unplayed so a later build can offer it again.
func (g *Gate) enqueue(ctx context.Context, path, name string, cached bool, t *tracker, log *slog.Logger) Verdict {
	if err := g.player.AddTrack(ctx, path); err != nil {
		log.Error("player refused track", slog.String("error", err.Error()))
		return Verdict{Kind: Skipped, Reason: "player: " + err.Error(), Path: path, Stage: t.state, Cached: cached}
	}
	g.ledger.MarkPlayed(ctx, name)
	log.Info("track accepted", slog.Bool("cached", cached), slog.String("path", path))
	return Verdict{Kind: Accepted, Path: path, Stage: t.state, Cached: cached}
}

func (g *Gate) reject(ctx context.Context, res fetch.Resolution, t *tracker, kind Kind, reason string, log *slog.Logger) Verdict {
	stage := t.state
	_ = t.advance(StateRejected)
	g.discard(ctx, res, log)

	name := filepath.Base(res.Path)
	if !g.ledger.IsBlacklisted(ctx, name) {
		g.ledger.MarkBlacklisted(ctx, name)
	}
	log.Info("track rejected",
		slog.String("verdict", kind.String()),
		slog.String("stage", string(stage)),
		slog.String("reason", reason),
	)
	return Verdict{Kind: kind, Reason: reason, Stage: stage}
}

// interrupted ends a candidate whose remote stage was cut short by ctx. Its
// attempts were not exhausted, so it is skipped and never blacklisted.
func (g *Gate) interrupted(ctx context.Context, res fetch.Resolution, t *tracker, log *slog.Logger) Verdict {
	stage := t.state
	g.discard(ctx, res, log)
	log.Warn("evaluation interrupted",
		slog.String("stage", string(stage)),
		slog.String("error", ctx.Err().Error()),
	)
	return Verdict{Kind: Skipped, Reason: "cancelled", Stage: stage}
}

// discard removes a fresh download, also after ctx is done. The shared cached
// copy is never touched.
func (g *Gate) discard(ctx context.Context, res fetch.Resolution, log *slog.Logger) {
	if res.Cached || res.Path == "" {
		return
	}
	if err := g.store.Discard(context.WithoutCancel(ctx), res.Path); err != nil {
		log.Warn("failed to remove temporary file", slog.String("error", err.Error()))
	}
}
