package detection

import (
	"context"
	"sync"
	"time"

	"github.com/harborcrm/aster/internal/redis"
)

// localLocker is an in-process fallback for single-instance deployments
// running without Redis.
type localLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker creates a process-local Locker
func NewLocalLocker() Locker {
	return &localLocker{held: make(map[string]struct{})}
}

func (l *localLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, redis.ErrLockNotAcquired
	}
	l.held[key] = struct{}{}
	return &localLock{locker: l, key: key}, nil
}

type localLock struct {
	locker *localLocker
	key    string
}

func (l *localLock) Release(ctx context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	delete(l.locker.held, l.key)
	return nil
}
