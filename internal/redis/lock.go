package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockNotAcquired means another instance holds the lock
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld means the lock expired or was taken over before release
	ErrLockNotHeld = errors.New("lock not held")
)

// releaseScript deletes the key only while the caller's token is still on it,
// so an expired lock re-acquired by another instance is never released out
// from under its new holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Locker hands out single-holder locks keyed under a shared prefix
type Locker struct {
	client    *Client
	keyPrefix string
}

// NewLocker creates a new Locker
func NewLocker(client *Client, keyPrefix string) *Locker {
	if keyPrefix == "" {
		keyPrefix = "lock:"
	}
	return &Locker{client: client, keyPrefix: keyPrefix}
}

// Acquire takes the lock or fails immediately with ErrLockNotAcquired. The
// TTL bounds how long a crashed holder can block other instances.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	fullKey := l.keyPrefix + key
	token := uuid.NewString()

	ok, err := l.client.rdb.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	l.client.logger.WithContext(ctx).Debugf("Acquired lock: %s", fullKey)

	return &Lock{client: l.client, key: fullKey, token: token}, nil
}

// Lock is a held lock. Release it when the guarded work is done.
type Lock struct {
	client *Client
	key    string
	token  string
}

// Release frees the lock for the next holder
func (l *Lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client.rdb, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}

	l.client.logger.WithContext(ctx).Debugf("Released lock: %s", l.key)
	return nil
}
