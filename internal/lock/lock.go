// Package lock serializes ledger mutations per owner address.
package lock

import (
	"context"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rotisserie/eris"
)

// Locker acquires an exclusive lock on key. The returned func releases it
// and is safe to call once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LocalLocker is an in-process Locker. Waiting honours ctx cancellation.
type LocalLocker struct {
	slots *xsync.Map[string, chan struct{}]
}

// NewLocal creates an in-process locker.
func NewLocal() *LocalLocker {
	return &LocalLocker{slots: xsync.NewMap[string, chan struct{}]()}
}

// Lock implements Locker.
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	slot, _ := l.slots.LoadOrStore(key, make(chan struct{}, 1))

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, eris.Wrapf(ctx.Err(), "lock: wait for %s", key)
	}
}
