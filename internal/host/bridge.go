package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/mattjoyce/livebridge/internal/command"
	"github.com/mattjoyce/livebridge/internal/protocol"
)

const (
	DefaultBridgeTimeout      = 10 * time.Second
	DefaultLongRunningTimeout = 120 * time.Second
)

// BridgeOptions configures a Bridge.
type BridgeOptions struct {
	// Timeout is the wait ceiling for mutating operations.
	Timeout time.Duration
	// LongRunningTimeout is the wait ceiling for long-running operations.
	LongRunningTimeout time.Duration
	Logger             *slog.Logger
}

// outcome is the discriminated result written to a pending call's slot.
type outcome struct {
	value any
	err   error
}

// Bridge gives a network goroutine synchronous semantics for an operation
// that must run on the main loop.
type Bridge struct {
	sched  Scheduler
	opts   BridgeOptions
	logger *slog.Logger
}

// NewBridge creates a Bridge over sched.
func NewBridge(sched Scheduler, opts BridgeOptions) *Bridge {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultBridgeTimeout
	}
	if opts.LongRunningTimeout <= 0 {
		opts.LongRunningTimeout = DefaultLongRunningTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{sched: sched, opts: opts, logger: logger.With("component", "bridge")}
}

// TimeoutFor returns the wait ceiling applied to class.
func (b *Bridge) TimeoutFor(class command.Class) time.Duration {
	if class == command.LongRunning {
		return b.opts.LongRunningTimeout
	}
	return b.opts.Timeout
}

// Call runs op on the main loop and blocks until it finishes or the class
// ceiling expires. The ceiling covers queueing as well as execution, so a
// stalled loop with a full queue still yields a timeout.
//
// If the scheduler refuses because the caller is already on the main loop,
// op runs inline instead. On timeout, or when ctx is cancelled first, a
// task that was queued is not cancelled: it may still run later and its
// result is discarded.
func (b *Bridge) Call(ctx context.Context, name string, class command.Class, op command.Operation) (any, error) {
	ceiling := b.TimeoutFor(class)
	wctx, cancel := context.WithTimeout(ctx, ceiling)
	defer cancel()

	slot := make(chan outcome, 1)
	task := func(taskCtx context.Context) {
		slot <- b.invoke(taskCtx, name, op)
	}

	err := b.sched.RunSoon(wctx, task)
	if errors.Is(err, ErrOnMainThread) {
		b.logger.Debug("already on main loop, running inline", "command", name)
		res := b.invoke(ctx, name, op)
		return res.value, res.err
	}
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			b.logger.Warn("main loop queue full; bridged operation not scheduled",
				"command", name, "class", class.String(), "timeout", ceiling)
			return nil, timeoutError(name)
		}
		return nil, fmt.Errorf("schedule %s: %w", name, err)
	}

	select {
	case res := <-slot:
		return res.value, res.err
	case <-wctx.Done():
		if ctxErr := ctx.Err(); ctxErr != nil {
			b.logger.Warn("caller gave up waiting for bridged operation", "command", name, "error", ctxErr)
			return nil, fmt.Errorf("wait for %s: %w", name, ctxErr)
		}
		b.logger.Warn("bridged operation timed out; task left to finish unobserved",
			"command", name, "class", class.String(), "timeout", ceiling)
		return nil, timeoutError(name)
	}
}

func timeoutError(name string) error {
	return &protocol.Error{
		Kind:    protocol.KindBridgeTimeout,
		Command: name,
		Message: protocol.BridgeTimeoutMessage,
	}
}

// Inline runs op on the calling goroutine with the same panic and error
// handling as a bridged task. Read-only commands use this path.
func (b *Bridge) Inline(ctx context.Context, name string, op command.Operation) (any, error) {
	res := b.invoke(ctx, name, op)
	return res.value, res.err
}

// invoke runs op, converting a panic into an error so that nothing
// propagates on the main loop.
func (b *Bridge) invoke(ctx context.Context, name string, op command.Operation) (res outcome) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bridged operation panicked",
				"command", name, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			res = outcome{err: panicError(r)}
		}
	}()

	value, err := op(ctx)
	if err != nil {
		b.logger.Error("bridged operation failed", "command", name, "error", err)
		return outcome{err: err}
	}
	return outcome{value: value}
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errors.New(fmt.Sprint(r))
}
