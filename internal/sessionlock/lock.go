// Package sessionlock serializes KYC steps of the same session across
// server replicas.
package sessionlock

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTTL bounds how long a crashed holder can block a session.
const DefaultTTL = 2 * time.Minute

const keyPrefix = "kyc:step-lock:"

// ErrLocked is returned when another step of the session is running.
var ErrLocked = errors.New("session step already in progress")

// releaseScript deletes the key only if it still holds our token.
var releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// Locker grants exclusive access to a session for the duration of a step.
type Locker interface {
	Acquire(ctx context.Context, sessionID string) (release func(), err error)
}

// Noop grants every request. Used when Redis is not configured.
type Noop struct{}

func (Noop) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

// Client abstracts the Redis commands the locker issues so tests can stub them.
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisLocker is a single-instance SET NX lock with token-checked release.
type RedisLocker struct {
	client Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisLocker constructs a locker on top of a go-redis client.
func NewRedisLocker(client Client, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLocker{client: client, ttl: ttl, logger: logger.Named("sessionlock")}
}

// Acquire takes the lock for sessionID. A Redis failure does not block the
// step: it is logged and the step proceeds unlocked.
func (l *RedisLocker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	key := keyPrefix + sessionID
	token := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		l.logger.Warn("session lock unavailable, continuing without it",
			zap.String("session_id", sessionID), zap.Error(err))
		return func() {}, nil
	}
	if !acquired {
		return nil, ErrLocked
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.client.Eval(releaseCtx, releaseScript, []string{key}, token).Err(); err != nil {
			l.logger.Warn("session lock release failed",
				zap.String("session_id", sessionID), zap.Error(err))
		}
	}, nil
}
