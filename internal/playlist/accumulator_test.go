package playlist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/radio-curator/internal/fetch"
	"github.com/maauso/radio-curator/internal/ledger"
	"github.com/maauso/radio-curator/internal/moderation"
	"github.com/maauso/radio-curator/internal/source"
	"github.com/maauso/radio-curator/internal/storage"
)

type fakeFeed struct {
	candidates []Candidate
	ok         bool
}

func (f *fakeFeed) Candidates(context.Context) ([]Candidate, bool) {
	return f.candidates, f.ok
}

type fakeResolver struct {
	results map[string]fetch.Resolution
	errs    map[string]error
	calls   []string
}

func (r *fakeResolver) Resolve(_ context.Context, u string) (fetch.Resolution, error) {
	r.calls = append(r.calls, u)
	if err, ok := r.errs[u]; ok {
		return fetch.Resolution{}, err
	}
	return r.results[u], nil
}

type fakeGate struct {
	verdicts map[string]moderation.Kind
}

func (g *fakeGate) Evaluate(_ context.Context, res fetch.Resolution) moderation.Verdict {
	return moderation.Verdict{Kind: g.verdicts[res.ID.String()], Path: res.Path}
}

type fakeProber struct {
	durations map[string]time.Duration
	calls     map[string]int
}

func (p *fakeProber) Duration(_ context.Context, path string) (time.Duration, error) {
	p.calls[filepath.Base(path)]++
	d, ok := p.durations[filepath.Base(path)]
	if !ok {
		return 0, errors.New("unreadable")
	}
	return d, nil
}

type fakePlayer struct {
	added     []string
	durations map[string]time.Duration
	cleared   int
	refuse    map[string]bool
}

func (p *fakePlayer) AddMeasuredTrack(_ context.Context, path string, d time.Duration) error {
	if p.refuse[filepath.Base(path)] {
		return errors.New("refused")
	}
	p.added = append(p.added, path)
	p.durations[filepath.Base(path)] = d
	return nil
}

func (p *fakePlayer) Clear(context.Context) error {
	p.cleared++
	p.added = nil
	return nil
}

type harness struct {
	acc      *Accumulator
	ledger   *ledger.FileLedger
	store    *storage.LocalStorage
	feed     *fakeFeed
	resolver *fakeResolver
	gate     *fakeGate
	prober   *fakeProber
	player   *fakePlayer
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	root := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := storage.NewLocalStorage(filepath.Join(root, "audio"), filepath.Join(root, "temp"))
	require.NoError(t, err)

	h := &harness{
		ledger:   ledger.NewFileLedger(filepath.Join(root, "played.txt"), filepath.Join(root, "blacklist.txt"), logger),
		store:    store,
		feed:     &fakeFeed{ok: true},
		resolver: &fakeResolver{results: map[string]fetch.Resolution{}, errs: map[string]error{}},
		gate:     &fakeGate{verdicts: map[string]moderation.Kind{}},
		prober:   &fakeProber{durations: map[string]time.Duration{}, calls: map[string]int{}},
		player:   &fakePlayer{durations: map[string]time.Duration{}, refuse: map[string]bool{}},
	}
	h.acc = NewAccumulator(cfg, Deps{
		Feed:     h.feed,
		Resolver: h.resolver,
		Gate:     h.gate,
		Ledger:   h.ledger,
		Pool:     store,
		Prober:   h.prober,
		Player:   h.player,
		Logger:   logger,
	})
	h.acc.pick = func(int) int { return 0 }
	return h
}

func (h *harness) addLocal(t *testing.T, name string, d time.Duration) {
	t.Helper()
	require.NoError(t, os.WriteFile(h.store.PermanentPath(name), []byte("x"), 0o600))
	h.prober.durations[name] = d
}

func (h *harness) addFeed(id string, d time.Duration, kind moderation.Kind) string {
	u := "https://youtu.be/" + id
	h.feed.candidates = append(h.feed.candidates, Candidate{URL: u, Duration: d})
	h.resolver.results[u] = fetch.Resolution{ID: source.TrackID(id), Path: "/tmp/" + id + ".webm"}
	h.gate.verdicts[id] = kind
	return u
}

func TestBuildFromLocalPool_StopsWhenThresholdFirstReached(t *testing.T) {
	h := newHarness(t, Config{LocalMinimum: 5 * time.Minute})
	h.addLocal(t, "a.mp3", 4*time.Minute+50*time.Second)
	h.addLocal(t, "b.mp3", 20*time.Second)
	h.addLocal(t, "c.mp3", time.Minute)

	r := h.acc.BuildFromLocalPool(context.Background())

	assert.Equal(t, 5*time.Minute+10*time.Second, r.Total)
	assert.Equal(t, 2, r.LocalTracks)
	assert.Equal(t, []string{h.store.PermanentPath("a.mp3"), h.store.PermanentPath("b.mp3")}, h.player.added)
	assert.False(t, h.ledger.IsPlayed(context.Background(), "c.mp3"))
}

func TestBuildFromLocalPool_SkipsPlayedAndTerminatesWhenExhausted(t *testing.T) {
	h := newHarness(t, Config{LocalMinimum: time.Hour})
	ctx := context.Background()
	h.addLocal(t, "a.mp3", time.Minute)
	h.addLocal(t, "b.mp3", time.Minute)
	h.ledger.MarkPlayed(ctx, "a.mp3")

	r := h.acc.BuildFromLocalPool(ctx)

	assert.Equal(t, time.Minute, r.Total)
	assert.Equal(t, []string{h.store.PermanentPath("b.mp3")}, h.player.added)

	again := h.acc.BuildFromLocalPool(ctx)
	assert.Equal(t, time.Duration(0), again.Total)
	assert.Len(t, h.player.added, 1, "played tracks are never re-queued")
}

func TestBuildFromLocalPool_UnmeasurableTrackStaysQueued(t *testing.T) {
	h := newHarness(t, Config{LocalMinimum: time.Minute})
	require.NoError(t, os.WriteFile(h.store.PermanentPath("a.mp3"), []byte("x"), 0o600))
	h.addLocal(t, "b.mp3", 2*time.Minute)

	r := h.acc.BuildFromLocalPool(context.Background())

	assert.Equal(t, 2*time.Minute, r.Total)
	assert.Equal(t, 2, r.LocalTracks)
	assert.Len(t, h.player.added, 2)
}

func TestBuildFromLocalPool_RefusedTrackIsNotRetried(t *testing.T) {
	h := newHarness(t, Config{LocalMinimum: time.Hour})
	h.addLocal(t, "a.mp3", time.Minute)
	h.player.refuse["a.mp3"] = true

	r := h.acc.BuildFromLocalPool(context.Background())

	assert.Equal(t, 0, r.LocalTracks)
	assert.False(t, h.ledger.IsPlayed(context.Background(), "a.mp3"))
}

func TestBuildFromBackend_SumsDeclaredDurationsOfAccepted(t *testing.T) {
	h := newHarness(t, Config{BackendMinimum: 5 * time.Minute})
	h.addFeed("aaaaaaaaaaa", 3*time.Minute, moderation.Accepted)
	h.addFeed("bbbbbbbbbbb", 4*time.Minute, moderation.RejectedLexical)
	h.addFeed("ccccccccccc", 3*time.Minute, moderation.Accepted)
	h.addFeed("ddddddddddd", time.Minute, moderation.Skipped)

	r := h.acc.BuildFromBackend(context.Background(), h.feed.candidates)

	assert.Equal(t, 6*time.Minute, r.Total)
	assert.Equal(t, 2, r.Accepted)
	assert.Equal(t, 1, r.Rejected)
	assert.Equal(t, 1, r.Skipped)
	assert.Equal(t, 0, r.LocalTracks)
}

func TestBuildFromBackend_TopsUpFromLocalPool(t *testing.T) {
	h := newHarness(t, Config{BackendMinimum: 10 * time.Minute, LocalMinimum: time.Minute})
	h.addFeed("aaaaaaaaaaa", 3*time.Minute, moderation.Accepted)
	h.addLocal(t, "x.mp3", 4*time.Minute)
	h.addLocal(t, "y.mp3", 4*time.Minute)
	h.addLocal(t, "z.mp3", 4*time.Minute)

	r := h.acc.BuildFromBackend(context.Background(), h.feed.candidates)

	assert.Equal(t, 11*time.Minute, r.Total)
	assert.Equal(t, 2, r.LocalTracks)
}

func TestBuildFromBackend_BlacklistedIsNeverFetched(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	u := h.addFeed("aaaaaaaaaaa", time.Minute, moderation.Accepted)
	h.ledger.MarkBlacklisted(ctx, "aaaaaaaaaaa.webm")

	r := h.acc.BuildFromBackend(ctx, h.feed.candidates)

	assert.Equal(t, 1, r.Skipped)
	assert.NotContains(t, h.resolver.calls, u)
}

func TestBuildFromBackend_FetchErrorsSkipCandidate(t *testing.T) {
	h := newHarness(t, Config{})
	bad := h.addFeed("aaaaaaaaaaa", time.Minute, moderation.Accepted)
	h.resolver.errs[bad] = fetch.ErrNoSuitableStream
	h.addFeed("bbbbbbbbbbb", 2*time.Minute, moderation.Accepted)
	h.feed.candidates = append(h.feed.candidates, Candidate{URL: "not a url"})

	r := h.acc.BuildFromBackend(context.Background(), h.feed.candidates)

	assert.Equal(t, 2*time.Minute, r.Total)
	assert.Equal(t, 1, r.Accepted)
	assert.Equal(t, 2, r.Skipped)
	assert.False(t, h.ledger.IsBlacklisted(context.Background(), "aaaaaaaaaaa"))
}

func TestRunBackendUpdate_NoFeedFallsBackToLocal(t *testing.T) {
	h := newHarness(t, Config{BackendMinimum: 3 * time.Minute, LocalMinimum: time.Minute})
	h.feed.ok = false
	h.addLocal(t, "a.mp3", 2*time.Minute)
	h.addLocal(t, "b.mp3", 2*time.Minute)
	tmp := h.store.TempPath("leftover.webm")
	require.NoError(t, os.WriteFile(tmp, []byte("x"), 0o600))

	r := h.acc.RunBackendUpdate(context.Background())

	assert.False(t, r.FeedAvailable)
	assert.Equal(t, 4*time.Minute, r.Total)
	assert.Equal(t, 1, h.player.cleared)
	_, err := os.Stat(tmp)
	assert.True(t, os.IsNotExist(err), "temp area cleared before build")
}

func TestRunLocalUpdate_ClearsPlayerFirst(t *testing.T) {
	h := newHarness(t, Config{LocalMinimum: time.Minute})
	h.addLocal(t, "a.mp3", 2*time.Minute)

	r := h.acc.RunLocalUpdate(context.Background())

	assert.Equal(t, 1, h.player.cleared)
	assert.Equal(t, 2*time.Minute, r.Total)
}

func TestBuildFromBackend_CandidateTimeout(t *testing.T) {
	h := newHarness(t, Config{CandidateTimeout: time.Millisecond})
	h.addFeed("aaaaaaaaaaa", time.Minute, moderation.Accepted)
	blocking := &blockingResolver{}
	h.acc.resolver = blocking

	r := h.acc.BuildFromBackend(context.Background(), h.feed.candidates)

	assert.Equal(t, 1, r.Skipped)
	assert.ErrorIs(t, blocking.err, context.DeadlineExceeded)
}

type blockingResolver struct {
	err error
}

func (b *blockingResolver) Resolve(ctx context.Context, _ string) (fetch.Resolution, error) {
	<-ctx.Done()
	b.err = ctx.Err()
	return fetch.Resolution{}, fmt.Errorf("%w: %w", fetch.ErrDownloadFailed, ctx.Err())
}

func TestBuildFromLocalPool_MeasuresEachDrawOnce(t *testing.T) {
	h := newHarness(t, Config{LocalMinimum: 5 * time.Minute})
	h.addLocal(t, "a.mp3", 3*time.Minute)
	h.addLocal(t, "b.mp3", 3*time.Minute)
	require.NoError(t, os.WriteFile(h.store.PermanentPath("broken.mp3"), []byte("x"), 0o600))

	report := h.acc.BuildFromLocalPool(context.Background())

	assert.Equal(t, 6*time.Minute, report.Total)
	for name, n := range h.prober.calls {
		assert.Equal(t, 1, n, "probes of %s", name)
	}
	for name, d := range h.player.durations {
		assert.Equal(t, h.prober.durations[name], d, "duration handed to player for %s", name)
	}
}
