// Package lock provides per-slug mutual exclusion for pipeline runs.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"seoforge/internal/domain"
)

// Release frees a held lock. Releasing twice is a no-op.
type Release func(ctx context.Context) error

// Locker grants exclusive ownership of a slug. Acquire returns an error
// wrapping domain.ErrRunInProgress when another run holds the slug.
type Locker interface {
	Acquire(ctx context.Context, slug string) (Release, error)
}

const keyPrefix = "seoforge:run:"

// releaseScript deletes the key only while it still carries our token, so an
// expired lock taken over by another run is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the TTL only while the key still carries our token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker holds locks as Redis keys set with NX and a TTL. The TTL is
// extended every third of its length until the lock is released, so a slow
// run keeps its slug while the process is alive.
type RedisLocker struct {
	rdb     redis.Cmdable
	ttl     time.Duration
	refresh time.Duration
}

func NewRedisLocker(rdb redis.Cmdable, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisLocker{rdb: rdb, ttl: ttl, refresh: ttl / 3}
}

func (l *RedisLocker) Acquire(ctx context.Context, slug string) (Release, error) {
	key, err := lockKey(slug)
	if err != nil {
		return nil, err
	}
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", slug, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunInProgress, slug)
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(key, token, stop, done)

	var once sync.Once
	return func(ctx context.Context) error {
		var relErr error
		once.Do(func() {
			close(stop)
			<-done
			relErr = releaseScript.Run(ctx, l.rdb, []string{key}, token).Err()
			if errors.Is(relErr, redis.Nil) {
				relErr = nil
			}
		})
		return relErr
	}, nil
}

// keepAlive extends the key until stop is closed or the token is gone.
func (l *RedisLocker) keepAlive(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.refresh)
			n, err := refreshScript.Run(ctx, l.rdb, []string{key}, token, l.ttl.Milliseconds()).Int64()
			cancel()
			if err == nil && n == 0 {
				return
			}
		}
	}
}

// LocalLocker holds locks in process memory.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) Acquire(_ context.Context, slug string) (Release, error) {
	key, err := lockKey(slug)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunInProgress, slug)
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
		return nil
	}, nil
}

func lockKey(slug string) (string, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return "", errors.New("lock: slug is required")
	}
	return keyPrefix + slug, nil
}

var (
	_ Locker = (*RedisLocker)(nil)
	_ Locker = (*LocalLocker)(nil)
)
