package locks

import (
	"context"
	"errors"
)

// Locker serializes a critical section across processes.
type Locker interface {
	// Acquire blocks until the lock is held or ctx is done. The returned
	// release func must be called exactly once.
	Acquire(ctx context.Context, name string) (release func(context.Context) error, err error)
}

var ErrLockTimeout = errors.New("timed out waiting for lock")

// Local is used when no shared lock backend is configured. It only
// serializes callers inside this process.
type Local struct {
	sem chan struct{}
}

func NewLocal() *Local {
	return &Local{sem: make(chan struct{}, 1)}
}

func (l *Local) Acquire(ctx context.Context, _ string) (func(context.Context) error, error) {
	select {
	case l.sem <- struct{}{}:
		return func(context.Context) error {
			<-l.sem
			return nil
		}, nil
	case <-ctx.Done():
		return nil, ErrLockTimeout
	}
}
