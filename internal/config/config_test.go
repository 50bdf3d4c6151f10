package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/radio-curator/internal/schedule"
)

var managedVars = []string{
	"PORT", "BACKEND_URL", "GEMINI_API_KEY", "GEMINI_MODEL", "AUDIO_DIR", "AUDIO_TEMP_DIR",
	"BACKEND_MIN_DURATION", "LOCAL_MIN_DURATION", "UPDATE_TIMES", "PLAYED_RESET_TIME",
	"PLAY_TIMES", "PAUSE_TIMES", "LEDGER_BACKEND", "REDIS_ADDR", "S3_BUCKET", "S3_REGION",
	"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "LOG_FORMAT", "LOG_LEVEL", "LOG_FILE",
	"RESET_PLAYED_ON_START", "ALLOWED_ORIGINS", "RETRY_ATTEMPTS",
}

// clearEnv unsets every variable the tests touch and restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range managedVars {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func validConfig() *Config {
	return &Config{
		BackendURL:         "http://backend",
		GeminiAPIKey:       "key",
		LedgerBackend:      LedgerFile,
		BackendMinDuration: 55 * time.Minute,
		LocalMinDuration:   5 * time.Minute,
		PlayedResetTime:    "07:44",
	}
}

func TestLoad_RequiredVariables(t *testing.T) {
	t.Run("missing BACKEND_URL returns error", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GEMINI_API_KEY", "test-api-key")

		_, err := Load()
		assert.ErrorIs(t, err, ErrBackendURLRequired)
	})

	t.Run("missing GEMINI_API_KEY returns error", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("BACKEND_URL", "http://backend")

		_, err := Load()
		assert.ErrorIs(t, err, ErrGeminiAPIKeyRequired)
	})

	t.Run("all required variables present succeeds", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("BACKEND_URL", "http://backend")
		t.Setenv("GEMINI_API_KEY", "test-api-key")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "http://backend", cfg.BackendURL)
		assert.Equal(t, "test-api-key", cfg.GeminiAPIKey)
	})
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("BACKEND_URL", "http://backend")
	t.Setenv("GEMINI_API_KEY", "test-api-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5050, cfg.Port)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, "gemini-1.5-flash", cfg.GeminiModel)
	assert.Equal(t, 55*time.Minute, cfg.BackendMinDuration)
	assert.Equal(t, 5*time.Minute, cfg.LocalMinDuration)
	assert.Equal(t, time.Duration(0), cfg.CandidateTimeout)
	assert.Equal(t, 3*time.Second, cfg.DownloadSettle)
	assert.Equal(t, 3*time.Second, cfg.NowPlayingInterval)
	assert.Equal(t, "07:44", cfg.PlayedResetTime)
	assert.True(t, cfg.ResetPlayedOnStart)
	assert.Equal(t, LedgerFile, cfg.LedgerBackend)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("BACKEND_URL", "http://backend")
	t.Setenv("GEMINI_API_KEY", "custom-api-key")
	t.Setenv("PORT", "8000")
	t.Setenv("BACKEND_MIN_DURATION", "30m")
	t.Setenv("UPDATE_TIMES", "06:00,18:00")
	t.Setenv("RESET_PLAYED_ON_START", "false")
	t.Setenv("LEDGER_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("S3_BUCKET", "my-bucket")
	t.Setenv("S3_REGION", "eu-central-1")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, 30*time.Minute, cfg.BackendMinDuration)
	assert.Equal(t, "06:00,18:00", cfg.UpdateTimes)
	assert.False(t, cfg.ResetPlayedOnStart)
	assert.Equal(t, LedgerRedis, cfg.LedgerBackend)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.True(t, cfg.S3Enabled())
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("BACKEND_URL", "http://backend")
	t.Setenv("GEMINI_API_KEY", "test-api-key")
	t.Setenv("BACKEND_MIN_DURATION", "an hour")

	_, err := Load()
	require.Error(t, err)
}

func TestConfig_S3Enabled(t *testing.T) {
	tests := []struct {
		name     string
		bucket   string
		region   string
		expected bool
	}{
		{"both set", "bucket", "region", true},
		{"only bucket", "bucket", "", false},
		{"only region", "", "region", false},
		{"neither set", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				S3Bucket: tt.bucket,
				S3Region: tt.region,
			}
			assert.Equal(t, tt.expected, cfg.S3Enabled())
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("missing backend URL", func(t *testing.T) {
		cfg := validConfig()
		cfg.BackendURL = ""
		assert.ErrorIs(t, cfg.Validate(), ErrBackendURLRequired)
	})

	t.Run("missing API key", func(t *testing.T) {
		cfg := validConfig()
		cfg.GeminiAPIKey = ""
		assert.ErrorIs(t, cfg.Validate(), ErrGeminiAPIKeyRequired)
	})

	t.Run("unknown ledger backend", func(t *testing.T) {
		cfg := validConfig()
		cfg.LedgerBackend = "mysql"
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidLedgerBackend)
	})

	t.Run("zero threshold", func(t *testing.T) {
		cfg := validConfig()
		cfg.LocalMinDuration = 0
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidThreshold)
	})

	t.Run("bad schedule", func(t *testing.T) {
		cfg := validConfig()
		cfg.UpdateTimes = "06:00,25:00"
		assert.ErrorIs(t, cfg.Validate(), schedule.ErrInvalidTime)
	})
}

func TestConfig_Schedule(t *testing.T) {
	cfg := validConfig()
	cfg.UpdateTimes = "06:00, 18:30"
	cfg.PlayTimes = "07:00"
	cfg.PauseTimes = "22:00"

	entries, err := cfg.Schedule()
	require.NoError(t, err)
	assert.Equal(t, []schedule.Entry{
		{At: schedule.TimeOfDay{Hour: 6}, Kind: schedule.KindBackendUpdate},
		{At: schedule.TimeOfDay{Hour: 18, Minute: 30}, Kind: schedule.KindBackendUpdate},
		{At: schedule.TimeOfDay{Hour: 7, Minute: 44}, Kind: schedule.KindResetPlayed},
		{At: schedule.TimeOfDay{Hour: 7}, Kind: schedule.KindPlay},
		{At: schedule.TimeOfDay{Hour: 22}, Kind: schedule.KindPause},
	}, entries)
}

func TestConfig_RetryPolicy(t *testing.T) {
	cfg := &Config{RetryAttempts: 5, RetryBackoff: time.Second}
	p := cfg.RetryPolicy()
	assert.Equal(t, 5, p.Attempts)
	assert.Equal(t, time.Second, p.Backoff)

	p = (&Config{}).RetryPolicy()
	assert.Equal(t, 3, p.Attempts)
}

func TestConfig_EnsureDirectories(t *testing.T) {
	root := t.TempDir()
	cfg := &Config{
		AudioDir:      filepath.Join(root, "audio"),
		AudioTempDir:  filepath.Join(root, "tmp", "audio"),
		PlayedFile:    filepath.Join(root, "data", "played.txt"),
		BlacklistFile: filepath.Join(root, "data", "blacklist.txt"),
		PlaylistFile:  filepath.Join(root, "out", "radio.m3u"),
		LogFile:       filepath.Join(root, "logs", "radio.log"),
	}

	require.NoError(t, cfg.EnsureDirectories())
	for _, dir := range []string{"audio", "tmp/audio", "data", "out", "logs"} {
		info, err := os.Stat(filepath.Join(root, dir))
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}
}

func TestConfig_LoadPrompts(t *testing.T) {
	dir := t.TempDir()
	sentimentPath := filepath.Join(dir, "sentiment.txt")
	transcriptionPath := filepath.Join(dir, "transcription.txt")
	require.NoError(t, os.WriteFile(sentimentPath, []byte("Rate the lyrics.\n"), 0o600))
	require.NoError(t, os.WriteFile(transcriptionPath, []byte("Transcribe the song."), 0o600))

	cfg := &Config{PromptSentimentFile: sentimentPath, PromptTranscriptionFile: transcriptionPath}
	sentiment, transcription, err := cfg.LoadPrompts()
	require.NoError(t, err)
	assert.Equal(t, "Rate the lyrics.", sentiment)
	assert.Equal(t, "Transcribe the song.", transcription)

	cfg.PromptTranscriptionFile = filepath.Join(dir, "missing.txt")
	_, _, err = cfg.LoadPrompts()
	assert.ErrorIs(t, err, ErrPromptMissing)

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0o600))
	cfg.PromptTranscriptionFile = empty
	_, _, err = cfg.LoadPrompts()
	assert.ErrorIs(t, err, ErrPromptMissing)
}

func TestConfig_String(t *testing.T) {
	cfg := validConfig()
	cfg.Port = 5050
	cfg.GeminiAPIKey = "secret-key"
	cfg.RedisPassword = "redis-secret"
	cfg.AudioDir = "/srv/audio"

	str := cfg.String()

	// Should contain non-sensitive values
	assert.Contains(t, str, "5050")
	assert.Contains(t, str, "http://backend")
	assert.Contains(t, str, "/srv/audio")

	// Should NOT contain sensitive values
	assert.NotContains(t, str, "secret-key")
	assert.NotContains(t, str, "redis-secret")
}

func TestNewLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "json", "info").Info("test message")
	assert.Contains(t, buf.String(), `"msg":"test message"`)

	buf.Reset()
	newLogger(&buf, "text", "warn").Info("hidden")
	assert.Empty(t, buf.String())
}

func TestConfig_NewLogger_File(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "radio.log")
	cfg := &Config{LogFormat: "json", LogLevel: "info", LogFile: logFile, LogMaxSizeMB: 1}

	logger := cfg.NewLogger()
	require.NotNil(t, logger)
	logger.Info("written to file")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}
