// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/maauso/radio-curator/internal/retry"
	"github.com/maauso/radio-curator/internal/schedule"
)

// Static errors for configuration validation.
var (
	// ErrBackendURLRequired is returned when BACKEND_URL is not set.
	ErrBackendURLRequired = errors.New("config: BACKEND_URL is required")
	// ErrGeminiAPIKeyRequired is returned when GEMINI_API_KEY is not set.
	ErrGeminiAPIKeyRequired = errors.New("config: GEMINI_API_KEY is required")
	// ErrInvalidLedgerBackend is returned for a LEDGER_BACKEND other than file or redis.
	ErrInvalidLedgerBackend = errors.New("config: LEDGER_BACKEND must be file or redis")
	// ErrInvalidThreshold is returned for a non-positive playlist duration target.
	ErrInvalidThreshold = errors.New("config: playlist duration targets must be positive")
	// ErrPromptMissing is returned when a prompt template cannot be read.
	ErrPromptMissing = errors.New("config: prompt template is missing")
)

// Ledger backends.
const (
	LedgerFile  = "file"
	LedgerRedis = "redis"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port             int      `env:"PORT, default=5050" json:"port"`
	AllowedOrigins   []string `env:"ALLOWED_ORIGINS, default=*" json:"allowed_origins"`
	CommandJWTSecret string   `env:"COMMAND_JWT_SECRET" json:"-"` // Masked in JSON

	// Remote services
	BackendURL    string `env:"BACKEND_URL, required" json:"backend_url"`
	GeminiAPIKey  string `env:"GEMINI_API_KEY, required" json:"-"` // Masked in JSON
	GeminiModel   string `env:"GEMINI_MODEL, default=gemini-1.5-flash" json:"gemini_model"`
	GeminiBaseURL string `env:"GEMINI_BASE_URL" json:"gemini_base_url,omitempty"`

	// Files and directories
	AudioDir                string `env:"AUDIO_DIR, default=audio" json:"audio_dir"`
	AudioTempDir            string `env:"AUDIO_TEMP_DIR, default=audio_temp" json:"audio_temp_dir"`
	PlaylistFile            string `env:"PLAYLIST_FILE" json:"playlist_file,omitempty"`
	PlayedFile              string `env:"PLAYED_FILE, default=data/played_songs.txt" json:"played_file"`
	BlacklistFile           string `env:"BLACKLIST_FILE, default=data/blacklist.txt" json:"blacklist_file"`
	PromptSentimentFile     string `env:"PROMPT_SENTIMENT_FILE, default=prompts/sentiment.txt" json:"prompt_sentiment_file"`
	PromptTranscriptionFile string `env:"PROMPT_TRANSCRIPTION_FILE, default=prompts/transcription.txt" json:"prompt_transcription_file"`
	DictionaryPrimaryFile   string `env:"DICTIONARY_PRIMARY_FILE, default=dictionaries/pl.txt" json:"dictionary_primary_file"`
	DictionarySecondaryFile string `env:"DICTIONARY_SECONDARY_FILE, default=dictionaries/en.txt" json:"dictionary_secondary_file"`
	WatchDictionaries       bool   `env:"WATCH_DICTIONARIES, default=true" json:"watch_dictionaries"`

	// Playlist builds
	BackendMinDuration time.Duration `env:"BACKEND_MIN_DURATION, default=55m" json:"backend_min_duration"`
	LocalMinDuration   time.Duration `env:"LOCAL_MIN_DURATION, default=5m" json:"local_min_duration"`
	CandidateTimeout   time.Duration `env:"CANDIDATE_TIMEOUT, default=0s" json:"candidate_timeout"`
	DownloadSettle     time.Duration `env:"DOWNLOAD_SETTLE, default=3s" json:"download_settle"`
	RetryAttempts      int           `env:"RETRY_ATTEMPTS, default=3" json:"retry_attempts"`
	RetryBackoff       time.Duration `env:"RETRY_BACKOFF, default=500ms" json:"retry_backoff"`
	NowPlayingInterval time.Duration `env:"NOW_PLAYING_INTERVAL, default=3s" json:"now_playing_interval"`

	// Schedule (comma-separated HH:MM lists)
	UpdateTimes        string `env:"UPDATE_TIMES" json:"update_times"`
	PlayedResetTime    string `env:"PLAYED_RESET_TIME, default=07:44" json:"played_reset_time"`
	PlayTimes          string `env:"PLAY_TIMES" json:"play_times"`
	PauseTimes         string `env:"PAUSE_TIMES" json:"pause_times"`
	ResetPlayedOnStart bool   `env:"RESET_PLAYED_ON_START, default=true" json:"reset_played_on_start"`

	// External tools
	YTDLPPath   string `env:"YTDLP_PATH, default=yt-dlp" json:"ytdlp_path"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`

	// Ledger backend
	LedgerBackend string `env:"LEDGER_BACKEND, default=file" json:"ledger_backend"`
	RedisAddr     string `env:"REDIS_ADDR, default=localhost:6379" json:"redis_addr"`
	RedisPassword string `env:"REDIS_PASSWORD" json:"-"` // Masked in JSON
	RedisDB       int    `env:"REDIS_DB, default=0" json:"redis_db"`
	RedisPrefix   string `env:"REDIS_PREFIX, default=radio" json:"redis_prefix"`

	// Optional S3 archive
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Prefix           string `env:"S3_PREFIX" json:"s3_prefix,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat     string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel      string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
	LogFile       string `env:"LOG_FILE" json:"log_file,omitempty"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB, default=10" json:"log_max_size_mb"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS, default=7" json:"log_max_backups"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS, default=30" json:"log_max_age_days"`
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads a .env file from the working directory, if any, then the
// environment. Variables already set in the environment win over .env.
func Load() (*Config, error) {
	// A missing .env is normal in production.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "BACKEND_URL") {
			return nil, ErrBackendURLRequired
		}
		if strings.Contains(err.Error(), "GEMINI_API_KEY") {
			return nil, ErrGeminiAPIKeyRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks required values, the ledger backend, the duration targets
// and every schedule list.
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return ErrBackendURLRequired
	}
	if c.GeminiAPIKey == "" {
		return ErrGeminiAPIKeyRequired
	}
	switch c.LedgerBackend {
	case LedgerFile, LedgerRedis:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLedgerBackend, c.LedgerBackend)
	}
	if c.BackendMinDuration <= 0 || c.LocalMinDuration <= 0 {
		return ErrInvalidThreshold
	}
	if _, err := c.Schedule(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Schedule builds the daily trigger entries from the schedule lists.
func (c *Config) Schedule() ([]schedule.Entry, error) {
	lists := []struct {
		raw  string
		kind schedule.Kind
	}{
		{c.UpdateTimes, schedule.KindBackendUpdate},
		{c.PlayedResetTime, schedule.KindResetPlayed},
		{c.PlayTimes, schedule.KindPlay},
		{c.PauseTimes, schedule.KindPause},
	}

	var entries []schedule.Entry
	for _, l := range lists {
		times, err := schedule.ParseTimes(l.raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", l.kind, err)
		}
		entries = append(entries, schedule.Entries(l.kind, times)...)
	}
	return entries, nil
}

// RetryPolicy returns the retry policy for remote calls.
func (c *Config) RetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	if c.RetryAttempts > 0 {
		p.Attempts = c.RetryAttempts
	}
	if c.RetryBackoff > 0 {
		p.Backoff = c.RetryBackoff
	}
	return p
}

// EnsureDirectories creates every directory the service writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.AudioDir,
		c.AudioTempDir,
		filepath.Dir(c.PlayedFile),
		filepath.Dir(c.BlacklistFile),
	}
	if c.PlaylistFile != "" {
		dirs = append(dirs, filepath.Dir(c.PlaylistFile))
	}
	if c.LogFile != "" {
		dirs = append(dirs, filepath.Dir(c.LogFile))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return nil
}

// LoadPrompts reads the sentiment and transcription prompt templates.
func (c *Config) LoadPrompts() (sentiment, transcription string, err error) {
	sentiment, err = readPrompt(c.PromptSentimentFile)
	if err != nil {
		return "", "", err
	}
	transcription, err = readPrompt(c.PromptTranscriptionFile)
	if err != nil {
		return "", "", err
	}
	return sentiment, transcription, nil
}

func readPrompt(path string) (string, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-configured path
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrPromptMissing, path, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrPromptMissing, path)
	}
	return text, nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs. With LogFile set, the
// same records also go to a size-rotated file.
func (c *Config) NewLogger() *slog.Logger {
	var out io.Writer = os.Stdout
	if c.LogFile != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   c.LogFile,
			MaxSize:    c.LogMaxSizeMB,
			MaxBackups: c.LogMaxBackups,
			MaxAge:     c.LogMaxAgeDays,
		})
	}
	return newLogger(out, c.LogFormat, c.LogLevel)
}

func newLogger(out io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, BackendURL: %s, GeminiModel: %s, AudioDir: %s, AudioTempDir: %s, LedgerBackend: %s, BackendMinDuration: %s, LocalMinDuration: %s, UpdateTimes: %s, S3Bucket: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.BackendURL,
		c.GeminiModel,
		c.AudioDir,
		c.AudioTempDir,
		c.LedgerBackend,
		c.BackendMinDuration,
		c.LocalMinDuration,
		c.UpdateTimes,
		c.S3Bucket,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
