package ledger

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Compile-time check that RedisLedger implements Ledger.
var _ Ledger = (*RedisLedger)(nil)

// RedisLedger stores both sets in Redis so several radio hosts can share one
// blacklist. Each entry is stored under its basename and its stem.
type RedisLedger struct {
	client       redis.UniversalClient
	playedKey    string
	blacklistKey string
	logger       *slog.Logger
}

// NewRedisLedger creates a Redis-backed ledger. Keys are namespaced by prefix.
func NewRedisLedger(client redis.UniversalClient, prefix string, logger *slog.Logger) *RedisLedger {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "radio"
	}
	return &RedisLedger{
		client:       client,
		playedKey:    prefix + ":played",
		blacklistKey: prefix + ":blacklist",
		logger:       logger,
	}
}

// IsPlayed implements Ledger.
func (l *RedisLedger) IsPlayed(ctx context.Context, key string) bool {
	return l.isMember(ctx, l.playedKey, key)
}

// MarkPlayed implements Ledger.
func (l *RedisLedger) MarkPlayed(ctx context.Context, name string) {
	l.add(ctx, l.playedKey, name)
}

// IsBlacklisted implements Ledger.
func (l *RedisLedger) IsBlacklisted(ctx context.Context, key string) bool {
	return l.isMember(ctx, l.blacklistKey, key)
}

// MarkBlacklisted implements Ledger.
func (l *RedisLedger) MarkBlacklisted(ctx context.Context, name string) {
	l.add(ctx, l.blacklistKey, name)
}

// ResetPlayed implements Ledger.
func (l *RedisLedger) ResetPlayed(ctx context.Context) {
	if err := l.client.Del(ctx, l.playedKey).Err(); err != nil {
		l.logger.Error("failed to reset played songs",
			slog.String("key", l.playedKey),
			slog.String("error", err.Error()),
		)
		return
	}
	l.logger.Info("played songs reset", slog.String("key", l.playedKey))
}

// isMember answers with the same rule as FileLedger: exact name or stem via
// SISMEMBER, then, for a bare identifier, a scan for names that embed it.
func (l *RedisLedger) isMember(ctx context.Context, setKey, key string) bool {
	ok, err := l.client.SIsMember(ctx, setKey, key).Result()
	if err != nil {
		l.readFailed(setKey, err)
		return false
	}
	if ok || filepath.Ext(key) != "" || len(key) < minEmbeddedKey {
		return ok
	}

	iter := l.client.SScan(ctx, setKey, 0, "*"+globEscaper.Replace(key)+"*", 100).Iterator()
	for iter.Next(ctx) {
		if matches(iter.Val(), key) {
			return true
		}
	}
	if err := iter.Err(); err != nil {
		l.readFailed(setKey, err)
	}
	return false
}

func (l *RedisLedger) readFailed(setKey string, err error) {
	l.logger.Error("failed to read ledger set",
		slog.String("key", setKey),
		slog.String("error", err.Error()),
	)
}

// globEscaper quotes the characters SSCAN MATCH treats as wildcards.
var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func (l *RedisLedger) add(ctx context.Context, setKey, name string) {
	if name == "" {
		return
	}
	members := []interface{}{name}
	if s := stem(name); s != name {
		members = append(members, s)
	}
	if err := l.client.SAdd(ctx, setKey, members...).Err(); err != nil {
		l.logger.Error("failed to append ledger entry",
			slog.String("key", setKey),
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
	}
}
