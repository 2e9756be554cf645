// Package host models the host application's single cooperative scheduler
// and the bridge that lets network goroutines run operations on it.
//
// Host state is not safe to touch off the main loop. The Bridge is the only
// path from a network goroutine to that state; there is no other locking.
package host

import (
	"context"
	"errors"
)

//go:generate mockgen -destination=mocks/mock_scheduler.go -package=mocks github.com/mattjoyce/livebridge/internal/host Scheduler

// Task is a unit of work run on the main loop. The context it receives is
// marked as main-thread (see OnMainThread).
type Task func(ctx context.Context)

// Scheduler is the host's "run as soon as possible" capability.
type Scheduler interface {
	// RunSoon queues task for the next tick. It returns ErrOnMainThread when
	// ctx shows the caller is already running on the main loop.
	RunSoon(ctx context.Context, task Task) error
}

var (
	// ErrOnMainThread is the host's refusal to schedule from its own loop.
	ErrOnMainThread = errors.New("host: already on main thread")
	// ErrStopped means the main loop is no longer accepting tasks.
	ErrStopped = errors.New("host: main loop stopped")
)

type mainThreadKey struct{}

// WithMainThread marks ctx as executing on the main loop.
func WithMainThread(ctx context.Context) context.Context {
	return context.WithValue(ctx, mainThreadKey{}, true)
}

// OnMainThread reports whether ctx was handed out by the main loop.
func OnMainThread(ctx context.Context) bool {
	on, _ := ctx.Value(mainThreadKey{}).(bool)
	return on
}
