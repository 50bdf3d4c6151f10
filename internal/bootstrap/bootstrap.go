// Package bootstrap provides dependency initialization for the radio curator.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maauso/radio-curator/internal/backend"
	"github.com/maauso/radio-curator/internal/config"
	"github.com/maauso/radio-curator/internal/fetch"
	"github.com/maauso/radio-curator/internal/gemini"
	"github.com/maauso/radio-curator/internal/ledger"
	"github.com/maauso/radio-curator/internal/lexicon"
	"github.com/maauso/radio-curator/internal/media"
	"github.com/maauso/radio-curator/internal/moderation"
	"github.com/maauso/radio-curator/internal/player"
	"github.com/maauso/radio-curator/internal/playlist"
	"github.com/maauso/radio-curator/internal/run"
	"github.com/maauso/radio-curator/internal/schedule"
	"github.com/maauso/radio-curator/internal/storage"
)

// Dependencies holds every initialized component of the service.
type Dependencies struct {
	Ledger      ledger.Ledger
	Store       storage.Storage
	Filter      *lexicon.Filter
	Player      *player.Queue
	Backend     *backend.HTTPClient
	Accumulator *playlist.Accumulator
	Runs        *run.MemoryRepository
	Worker      *run.Worker

	// Watcher is nil when dictionary hot reload is disabled.
	Watcher   *lexicon.Watcher
	Reporter  *player.Reporter
	Scheduler *schedule.Scheduler

	closers []func() error
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	sentimentPrompt, transcriptionPrompt, err := cfg.LoadPrompts()
	if err != nil {
		return nil, err
	}

	d := &Dependencies{}
	policy := cfg.RetryPolicy().WithLogger(logger)

	d.Ledger, err = d.initLedger(cfg, logger)
	if err != nil {
		return nil, err
	}

	d.Store, err = initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	d.Filter, err = lexicon.NewFilterFromFiles(cfg.DictionaryPrimaryFile, cfg.DictionarySecondaryFile)
	if err != nil {
		return nil, fmt.Errorf("load dictionaries: %w", err)
	}
	primary, secondary := d.Filter.Sizes()
	logger.Info("dictionaries loaded", slog.Int("primary", primary), slog.Int("secondary", secondary))
	if cfg.WatchDictionaries {
		d.Watcher = lexicon.NewWatcher(d.Filter, cfg.DictionaryPrimaryFile, cfg.DictionarySecondaryFile, logger)
	}

	runner := media.ExecRunner{}
	prober := media.NewFFprobe(cfg.FFprobePath, runner)

	d.Player = player.NewQueue(
		player.WithPlaylistFile(cfg.PlaylistFile),
		player.WithProber(prober),
		player.WithLogger(logger),
	)

	geminiOpts := []gemini.ClientOption{
		gemini.WithModel(cfg.GeminiModel),
		gemini.WithPrompts(transcriptionPrompt, sentimentPrompt),
		gemini.WithPolicy(policy),
		gemini.WithLogger(logger),
	}
	if cfg.GeminiBaseURL != "" {
		geminiOpts = append(geminiOpts, gemini.WithBaseURL(cfg.GeminiBaseURL))
	}
	ai, err := gemini.NewClient(cfg.GeminiAPIKey, geminiOpts...)
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}

	d.Backend, err = backend.NewClient(cfg.BackendURL, backend.WithPolicy(policy), backend.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("create backend client: %w", err)
	}

	fetcher := fetch.NewFetcher(
		d.Store,
		fetch.NewYTDLP(cfg.YTDLPPath, fetch.WithRunner(runner)),
		fetch.WithPolicy(policy),
		fetch.WithSettle(cfg.DownloadSettle),
		fetch.WithLogger(logger),
	)
	gate := moderation.NewGate(d.Ledger, d.Store, ai, d.Filter, ai, d.Player, logger)

	d.Accumulator = playlist.NewAccumulator(playlist.Config{
		BackendMinimum:   cfg.BackendMinDuration,
		LocalMinimum:     cfg.LocalMinDuration,
		CandidateTimeout: cfg.CandidateTimeout,
	}, playlist.Deps{
		Feed:     d.Backend,
		Resolver: fetcher,
		Gate:     gate,
		Ledger:   d.Ledger,
		Pool:     d.Store,
		Prober:   prober,
		Player:   d.Player,
		Logger:   logger,
	})

	d.Runs = run.NewMemoryRepository(run.DefaultRetention)
	d.Worker = run.NewWorker(d.Runs, d.Accumulator, d.Ledger, d.Player, run.WithLogger(logger))

	entries, err := cfg.Schedule()
	if err != nil {
		return nil, fmt.Errorf("parse schedule: %w", err)
	}
	d.Scheduler = schedule.New(d.Worker.Triggers(), entries, schedule.WithLogger(logger))
	d.Reporter = player.NewReporter(d.Player, d.Backend, cfg.NowPlayingInterval, logger)

	return d, nil
}

// Close releases network clients.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	return errors.Join(errs...)
}

func (d *Dependencies) initLedger(cfg *config.Config, logger *slog.Logger) (ledger.Ledger, error) {
	if cfg.LedgerBackend != config.LedgerRedis {
		logger.Info("file ledger configured",
			slog.String("played_file", cfg.PlayedFile),
			slog.String("blacklist_file", cfg.BlacklistFile),
		)
		return ledger.NewFileLedger(cfg.PlayedFile, cfg.BlacklistFile, logger), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	d.closers = append(d.closers, client.Close)

	logger.Info("redis ledger configured",
		slog.String("addr", cfg.RedisAddr),
		slog.Int("db", cfg.RedisDB),
		slog.String("prefix", cfg.RedisPrefix),
	)
	return ledger.NewRedisLedger(client, cfg.RedisPrefix, logger), nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Prefix:          cfg.S3Prefix,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.AudioDir, cfg.AudioTempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 archive configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.AudioDir, cfg.AudioTempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("audio_dir", cfg.AudioDir),
		slog.String("temp_dir", cfg.AudioTempDir),
	)
	return localStore, nil
}
