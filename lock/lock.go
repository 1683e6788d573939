/*
Package lock provides the maintenance job lock.

PURPOSE:
  A maintenance action must not run twice at the same time, neither within
  one process nor across replicas sharing a database. The Runner asks a
  Locker before touching any employee.

IMPLEMENTATIONS:
  Redis: SET NX with a TTL, released with a compare-and-delete script so a
         holder never frees a lock that expired and was taken by another.
  Local: in-process map, for single-replica deployments and tests.

Both return generic.ErrJobLocked when the key is held.
*/
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/warp/leave-ledger/config"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/vacation"
	"go.uber.org/zap"
)

var (
	_ vacation.Locker = (*Redis)(nil)
	_ vacation.Locker = (*Local)(nil)
)

// =============================================================================
// REDIS
// =============================================================================

// unlockScript deletes KEYS[1] only if it still holds ARGV[1].
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Redis struct {
	rdb    *redis.Client
	ttl    time.Duration
	owner  string
	logger *zap.Logger
}

// NewRedis returns a lock stored in rdb. owner identifies this process in
// the lock value; ttl bounds how long a crashed holder blocks others.
func NewRedis(rdb *redis.Client, ttl time.Duration, owner string, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.L().Named("lock.redis")
	}
	return &Redis{rdb: rdb, ttl: ttl, owner: owner, logger: logger}
}

func (l *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	ok, err := l.rdb.SetNX(ctx, key, l.owner, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", generic.ErrJobLocked, key)
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		n, err := unlockScript.Run(ctx, l.rdb, []string{key}, l.owner).Int64()
		if err != nil {
			l.logger.Warn("release lock failed", zap.String("key", key), zap.Error(err))
			return
		}
		if n == 0 {
			l.logger.Warn("lock expired before release", zap.String("key", key), zap.Duration("ttl", l.ttl))
		}
	}
	return release, nil
}

// Connect opens a client and pings it.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// =============================================================================
// LOCAL
// =============================================================================

type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) Acquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, fmt.Errorf("%w: %s", generic.ErrJobLocked, key)
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}
