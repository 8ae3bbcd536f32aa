// Package distlock serializes pipeline runs over identical inputs across
// API instances.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/churn-radar/internal/pkg/logger"
)

// ErrLocked is returned by Guard when another holder owns the lock.
var ErrLocked = errors.New("lock is held by another run")

// DistLock is the interface for distributed locking. A lock instance
// belongs to one acquisition; create a new one per run.
type DistLock interface {
	// Acquire tries to acquire the lock without blocking. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// Extender is implemented by locks that expire unless renewed.
type Extender interface {
	Extend(ctx context.Context, ttl time.Duration) error
	TTL() time.Duration
}

// RunKey is the lock key for a dataset/config fingerprint.
func RunKey(fingerprint string) string {
	return "run:" + fingerprint
}

// NewLock picks the best available backend: Redis, then PostgreSQL
// advisory locks, then an in-process lock when neither is configured.
func NewLock(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	switch {
	case redisClient != nil:
		return NewRedisLock(redisClient, key, ttl)
	case db != nil:
		return NewPGAdvisoryLock(db, key)
	default:
		return NewLocalLock(key)
	}
}

// Guard acquires l, runs fn and releases l. ErrLocked is returned without
// running fn when the lock is taken. An expiring lock is renewed every third
// of its TTL until fn returns.
func Guard(ctx context.Context, l DistLock, fn func(context.Context) error) error {
	ok, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLocked
	}
	// release with a fresh context so a cancelled request still unlocks
	defer l.Release(context.WithoutCancel(ctx))

	if ext, ok := l.(Extender); ok && ext.TTL() > 0 {
		stop := make(chan struct{})
		done := make(chan struct{})
		go func() {
			defer close(done)
			renew(context.WithoutCancel(ctx), ext, stop)
		}()
		defer func() {
			close(stop)
			<-done
		}()
	}
	return fn(ctx)
}

func renew(ctx context.Context, ext Extender, stop <-chan struct{}) {
	ttl := ext.TTL()
	ticker := time.NewTicker(max(ttl/3, time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := ext.Extend(ctx, ttl); err != nil {
				logger.Warn("run lock renewal failed", "error", err)
				if errors.Is(err, ErrLockLost) {
					return
				}
			}
		}
	}
}

// =============================================================================
// PostgreSQL Advisory Lock (fallback when Redis is unavailable)
// =============================================================================
// pg_try_advisory_lock / pg_advisory_unlock are session-scoped, so the lock
// goes away with the connection. A dedicated *sql.Conn keeps both calls on
// the same session.

// PGAdvisoryLock implements DistLock using PostgreSQL advisory locks.
type PGAdvisoryLock struct {
	db     *sql.DB
	conn   *sql.Conn
	lockID int64
}

// NewPGAdvisoryLock derives a deterministic lock ID from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

// Acquire tries to acquire the advisory lock. Returns true if successful.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, err
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release releases the advisory lock.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Close()
		l.conn = nil
	}()
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}

// =============================================================================
// In-process lock (single instance, no shared backend)
// =============================================================================

var (
	localMu   sync.Mutex
	localHeld = map[string]bool{}
)

// LocalLock guards a key within this process only.
type LocalLock struct {
	key   string
	owned bool
}

// NewLocalLock creates an in-process lock for key.
func NewLocalLock(key string) *LocalLock {
	return &LocalLock{key: key}
}

func (l *LocalLock) Acquire(_ context.Context) (bool, error) {
	localMu.Lock()
	defer localMu.Unlock()
	if localHeld[l.key] {
		return false, nil
	}
	localHeld[l.key] = true
	l.owned = true
	return true, nil
}

func (l *LocalLock) Release(_ context.Context) error {
	localMu.Lock()
	defer localMu.Unlock()
	if l.owned {
		delete(localHeld, l.key)
		l.owned = false
	}
	return nil
}
