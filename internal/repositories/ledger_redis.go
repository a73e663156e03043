package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/tokens"
)

const (
	rotateMissing  = 0
	rotateMismatch = 1
	rotateSwapped  = 2
)

// KEYS[1] ledger key; ARGV[1] presented fingerprint; ARGV[2] next
// fingerprint; ARGV[3] ttl in milliseconds.
var rotateLedgerLua = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if not current then
  return 0
end
if current ~= ARGV[1] then
  return 1
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 2
`)

// RedisLedger keeps one key per principal holding the live refresh token
// fingerprint. Keys expire with the refresh token.
type RedisLedger struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisLedger constructs a ledger over client. ttl should match the
// refresh token lifetime.
func NewRedisLedger(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisLedger {
	if prefix == "" {
		prefix = "vidtube:ledger"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisLedger{client: client, prefix: prefix, ttl: ttl}
}

func (l *RedisLedger) key(principalID string) string {
	return l.prefix + ":" + principalID
}

// Record overwrites the principal's key.
func (l *RedisLedger) Record(ctx context.Context, principalID, token string) error {
	if err := l.client.Set(ctx, l.key(principalID), tokens.Fingerprint(token), l.ttl).Err(); err != nil {
		return fmt.Errorf("record refresh token: %w", err)
	}
	return nil
}

// Current returns the stored fingerprint.
func (l *RedisLedger) Current(ctx context.Context, principalID string) (string, error) {
	fp, err := l.client.Get(ctx, l.key(principalID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", auth.ErrNoSession
		}
		return "", fmt.Errorf("load refresh token: %w", err)
	}
	return fp, nil
}

// Rotate performs the compare-and-swap inside a Lua script.
func (l *RedisLedger) Rotate(ctx context.Context, principalID, presented, next string) error {
	code, err := rotateLedgerLua.Run(
		ctx,
		l.client,
		[]string{l.key(principalID)},
		tokens.Fingerprint(presented),
		tokens.Fingerprint(next),
		l.ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}

	switch code {
	case rotateSwapped:
		return nil
	case rotateMismatch:
		return auth.ErrTokenMismatch
	case rotateMissing:
		return auth.ErrNoSession
	default:
		return fmt.Errorf("rotate refresh token: unexpected script status %d", code)
	}
}

// Clear deletes the principal's key.
func (l *RedisLedger) Clear(ctx context.Context, principalID string) error {
	if err := l.client.Del(ctx, l.key(principalID)).Err(); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}

var _ auth.Ledger = (*RedisLedger)(nil)
