package lock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/nxshell/nxshell/pkg/util"
)

// KeyPrefix namespaces lock keys in Redis.
const KeyPrefix = "NXSHELL_LOCK|"

// acquireLockScript is a Lua script for atomic lock acquisition.
// Returns 1 on success, 0 if already locked by another holder.
var acquireLockScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 1 then
	return 0
end
redis.call("HSET", key, "holder", ARGV[1], "acquired", ARGV[2], "ttl", ARGV[3])
redis.call("EXPIRE", key, tonumber(ARGV[3]))
return 1
`)

// releaseLockScript is a Lua script for atomic lock release with holder verification.
// Returns 1 on success, 0 if holder mismatch, -1 if key doesn't exist.
var releaseLockScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
	return -1
end
local current = redis.call("HGET", key, "holder")
if current ~= ARGV[1] then
	return 0
end
redis.call("DEL", key)
return 1
`)

// refreshLockScript extends the expiry while ARGV[1] still holds the lock.
// Returns 1 when extended, 0 when the lock is gone or held by another.
var refreshLockScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("HGET", key, "holder") ~= ARGV[1] then
	return 0
end
redis.call("EXPIRE", key, tonumber(ARGV[2]))
return 1
`)

// Redis is a cross-process locker backed by a Redis hash per resource.
type Redis struct {
	client   redis.UniversalClient
	holder   string
	ttl      time.Duration
	interval time.Duration
	refresh  time.Duration
}

// RedisOption configures a Redis locker.
type RedisOption func(*Redis)

// WithHolder overrides the holder identity (default Holder()).
func WithHolder(holder string) RedisOption {
	return func(r *Redis) { r.holder = holder }
}

// WithTTL sets the lock expiry. A crashed holder's lock lapses after ttl.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = ttl }
}

// WithRefresh sets how often a held lock's expiry is extended
// (default a third of the TTL).
func WithRefresh(d time.Duration) RedisOption {
	return func(r *Redis) { r.refresh = d }
}

// WithPollInterval sets how often a blocked Lock retries.
func WithPollInterval(d time.Duration) RedisOption {
	return func(r *Redis) { r.interval = d }
}

// NewRedis creates a locker using client.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client:   client,
		holder:   Holder(),
		ttl:      time.Hour,
		interval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DialRedis connects to addr and verifies the server answers PING.
func DialRedis(ctx context.Context, addr, password string, db int, opts ...RedisOption) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to lock store %s: %w", addr, err)
	}
	return NewRedis(client, opts...), nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) ttlSeconds() int {
	ttl := int(r.ttl / time.Second)
	if ttl < 1 {
		ttl = 1
	}
	return ttl
}

func (r *Redis) refreshEvery() time.Duration {
	if r.refresh > 0 {
		return r.refresh
	}
	return time.Duration(r.ttlSeconds()) * time.Second / 3
}

// TryLock makes one acquisition attempt. It returns util.ErrResourceLocked
// when another holder owns the lock.
func (r *Redis) TryLock(ctx context.Context, resource string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := acquireLockScript.Run(ctx, r.client, []string{KeyPrefix + resource},
		r.holder, now, strconv.Itoa(r.ttlSeconds())).Int()
	if err != nil {
		return fmt.Errorf("acquiring lock for %s: %w", resource, err)
	}
	if result == 0 {
		return util.ErrResourceLocked
	}
	return nil
}

// Lock polls until the lock is acquired or ctx is done. The expiry is
// extended while the lock is held, so TTL only bounds a crashed holder.
func (r *Redis) Lock(ctx context.Context, resource string) (Unlock, error) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		err := r.TryLock(ctx, resource)
		if err == nil {
			break
		}
		if !errors.Is(err, util.ErrResourceLocked) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			holder, _, _ := r.LockHolder(context.Background(), resource)
			return nil, fmt.Errorf("%w: %s held by %s: %v", util.ErrResourceLocked, resource, holder, ctx.Err())
		case <-ticker.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(resource, stop, done)

	var once sync.Once
	var relErr error
	return func() error {
		once.Do(func() {
			close(stop)
			<-done
			relErr = r.release(resource)
		})
		return relErr
	}, nil
}

// keepAlive extends the lock's expiry until stop is closed or the lock is
// found to be lost.
func (r *Redis) keepAlive(resource string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.refreshEvery())
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		held, err := refreshLockScript.Run(ctx, r.client, []string{KeyPrefix + resource},
			r.holder, strconv.Itoa(r.ttlSeconds())).Int()
		cancel()
		switch {
		case err != nil:
			util.Logger.Warnf("extending lock on %s: %v", resource, err)
		case held == 0:
			util.Logger.Errorf("lock on %s was lost before release", resource)
			return
		}
	}
}

// release uses a fresh context so a cancelled command still frees its lock.
func (r *Redis) release(resource string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := releaseLockScript.Run(ctx, r.client, []string{KeyPrefix + resource}, r.holder).Int()
	if err != nil {
		return fmt.Errorf("releasing lock for %s: %w", resource, err)
	}
	switch result {
	case 0:
		return fmt.Errorf("lock holder mismatch for %s", resource)
	case -1:
		return nil // expired, treat as success
	}
	return nil
}

// LockHolder returns the current lock holder and acquisition time.
// Returns ("", zero, nil) if no lock is held.
func (r *Redis) LockHolder(ctx context.Context, resource string) (string, time.Time, error) {
	vals, err := r.client.HGetAll(ctx, KeyPrefix+resource).Result()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("getting lock holder for %s: %w", resource, err)
	}
	if len(vals) == 0 {
		return "", time.Time{}, nil
	}

	acquired := time.Time{}
	if ts, ok := vals["acquired"]; ok {
		acquired, _ = time.Parse(time.RFC3339, ts)
	}
	return vals["holder"], acquired, nil
}
