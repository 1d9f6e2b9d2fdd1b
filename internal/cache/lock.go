package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Additional-Code/topup/internal/config"
)

// ErrLockTimeout is returned when a lock could not be taken before the context ended.
var ErrLockTimeout = errors.New("lock wait timed out")

// Locker provides mutual exclusion keyed by an arbitrary string.
type Locker interface {
	// Acquire blocks until the lock for key is held or ctx is done.
	Acquire(ctx context.Context, key string) (Lease, error)
}

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

// NewLocker returns a redis-backed locker when the store is redis, shared across
// replicas, and an in-process locker otherwise.
func NewLocker(store Store, cfg config.Config, logger *zap.Logger) Locker {
	if rs, ok := store.(*redisStore); ok {
		return &redisLocker{
			client: rs.client,
			ttl:    cfg.Orders.LockTTL,
			poll:   50 * time.Millisecond,
			logger: logger,
		}
	}
	return NewLocalLocker()
}

// releaseScript deletes the key only when it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type redisLocker struct {
	client *goredis.Client
	ttl    time.Duration
	poll   time.Duration
	logger *zap.Logger
}

type redisLease struct {
	client *goredis.Client
	key    string
	token  string
}

func (l *redisLocker) Acquire(ctx context.Context, key string) (Lease, error) {
	lockKey := "lock:" + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil && ctx.Err() == nil {
			return nil, err
		}
		if ok {
			return &redisLease{client: l.client, key: lockKey, token: token}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ErrLockTimeout
		case <-ticker.C:
		}
	}
}

func (l *redisLease) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}

// LocalLocker serialises holders of the same key within one process.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	sem  chan struct{}
	refs int
}

// NewLocalLocker returns an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot)}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (Lease, error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.sem <- struct{}{}:
		return &localLease{locker: l, key: key, slot: s}, nil
	case <-ctx.Done():
		l.drop(key, s)
		return nil, ErrLockTimeout
	}
}

func (l *LocalLocker) drop(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

type localLease struct {
	once   sync.Once
	locker *LocalLocker
	key    string
	slot   *slot
}

func (l *localLease) Release(context.Context) error {
	l.once.Do(func() {
		<-l.slot.sem
		l.locker.drop(l.key, l.slot)
	})
	return nil
}
