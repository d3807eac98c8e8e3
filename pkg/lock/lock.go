// Package lock serialises state-changing driver commands per resource.
//
// Autoload, restore and firmware load must never overlap on the same switch.
// The in-process Local locker covers concurrent commands inside one driver
// process; the Redis locker extends the guarantee across processes and
// hosts. Chain combines them.
package lock

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"sync"
)

// Unlock releases a held lock. It is safe to call more than once.
type Unlock func() error

// Locker acquires an exclusive lock on a resource, blocking until the lock
// is free or ctx is done.
type Locker interface {
	Lock(ctx context.Context, resource string) (Unlock, error)
}

// Holder returns the identity recorded with a distributed lock:
// "user@hostname:pid".
func Holder() string {
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	hostname := "unknown"
	if h, err := os.Hostname(); err == nil {
		hostname = h
	}
	return fmt.Sprintf("%s@%s:%d", username, hostname, os.Getpid())
}

// Local is an in-process locker. The zero value is ready to use.
type Local struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocal creates an in-process locker.
func NewLocal() *Local {
	return &Local{}
}

func (l *Local) slot(resource string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.slots == nil {
		l.slots = make(map[string]chan struct{})
	}
	ch, ok := l.slots[resource]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[resource] = ch
	}
	return ch
}

// Lock blocks until resource is free or ctx is done.
func (l *Local) Lock(ctx context.Context, resource string) (Unlock, error) {
	ch := l.slot(resource)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for lock on %s: %w", resource, ctx.Err())
	}

	var once sync.Once
	return func() error {
		once.Do(func() { <-ch })
		return nil
	}, nil
}

// Chain acquires each locker in order and releases them in reverse.
type Chain []Locker

// Lock acquires every locker in the chain. If one fails, the locks already
// taken are released.
func (c Chain) Lock(ctx context.Context, resource string) (Unlock, error) {
	held := make([]Unlock, 0, len(c))
	release := func() error {
		var first error
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i](); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	for _, l := range c {
		if l == nil {
			continue
		}
		unlock, err := l.Lock(ctx, resource)
		if err != nil {
			release()
			return nil, err
		}
		held = append(held, unlock)
	}

	var once sync.Once
	var err error
	return func() error {
		once.Do(func() { err = release() })
		return err
	}, nil
}
