//go:build integration

package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nxshell/nxshell/internal/testutil"
	"github.com/nxshell/nxshell/pkg/util"
)

// redisLockers returns two lockers with distinct holders against the server
// named by NXSHELL_TEST_REDIS.
func redisLockers(t *testing.T) (*Redis, *Redis) {
	t.Helper()
	addr := testutil.SkipIfNoRedis(t)
	ctx := context.Background()
	a, err := DialRedis(ctx, addr, "", 15, WithHolder("a"), WithTTL(5*time.Second), WithPollInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("DialRedis: %v", err)
	}
	b, err := DialRedis(ctx, addr, "", 15, WithHolder("b"), WithTTL(5*time.Second), WithPollInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("DialRedis: %v", err)
	}
	t.Cleanup(func() {
		a.client.Del(ctx, KeyPrefix+t.Name())
		a.Close()
		b.Close()
	})
	return a, b
}

func TestRedis_AcquireRelease(t *testing.T) {
	a, b := redisLockers(t)
	ctx := context.Background()
	resource := t.Name()

	unlock, err := a.Lock(ctx, resource)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	holder, acquired, err := b.LockHolder(ctx, resource)
	if err != nil {
		t.Fatalf("LockHolder: %v", err)
	}
	if holder != "a" || acquired.IsZero() {
		t.Errorf("LockHolder = %q, %v", holder, acquired)
	}

	if err := b.TryLock(ctx, resource); !errors.Is(err, util.ErrResourceLocked) {
		t.Errorf("TryLock by b = %v, want ErrResourceLocked", err)
	}

	if err := unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := b.TryLock(ctx, resource); err != nil {
		t.Errorf("TryLock after release = %v", err)
	}
	b.release(resource)
}

func TestRedis_LockTimesOut(t *testing.T) {
	a, b := redisLockers(t)
	resource := t.Name()

	unlock, err := a.Lock(context.Background(), resource)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := b.Lock(ctx, resource); !errors.Is(err, util.ErrResourceLocked) {
		t.Errorf("blocked Lock = %v, want ErrResourceLocked", err)
	}
}

func TestRedis_ReleaseWrongHolder(t *testing.T) {
	a, b := redisLockers(t)
	resource := t.Name()

	unlock, err := a.Lock(context.Background(), resource)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer unlock()

	if err := b.release(resource); err == nil {
		t.Error("release by non-holder should fail")
	}
}

func TestRedis_HeldPastTTL(t *testing.T) {
	addr := testutil.SkipIfNoRedis(t)
	ctx := context.Background()
	a, err := DialRedis(ctx, addr, "", 15, WithHolder("a"), WithTTL(time.Second), WithRefresh(200*time.Millisecond))
	if err != nil {
		t.Fatalf("DialRedis: %v", err)
	}
	defer a.Close()
	_, b := redisLockers(t)
	resource := t.Name()

	unlock, err := a.Lock(ctx, resource)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	time.Sleep(2500 * time.Millisecond)
	if err := b.TryLock(ctx, resource); !errors.Is(err, util.ErrResourceLocked) {
		t.Fatalf("TryLock after TTL elapsed = %v, want ErrResourceLocked", err)
	}

	if err := unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := b.TryLock(ctx, resource); err != nil {
		t.Errorf("TryLock after release = %v", err)
	}
	b.release(resource)
}
