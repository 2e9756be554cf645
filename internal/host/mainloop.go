package host

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

const defaultQueueSize = 64

// LoopOptions configures a MainLoop.
type LoopOptions struct {
	// TickInterval is how often Tick runs. Zero disables periodic work.
	TickInterval time.Duration
	// Tick is the host's own periodic work, run on the loop between tasks.
	Tick Task
	// QueueSize bounds tasks waiting for the loop; RunSoon blocks when full.
	QueueSize int
	Logger    *slog.Logger
}

// MainLoop is the host's single scheduler goroutine. Queued tasks and
// periodic ticks run one at a time, in arrival order, never concurrently.
type MainLoop struct {
	opts   LoopOptions
	tasks  chan Task
	logger *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	started   chan struct{}
	stopCh    chan struct{}
	done      chan struct{}
}

// NewMainLoop creates a stopped MainLoop.
func NewMainLoop(opts LoopOptions) *MainLoop {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MainLoop{
		opts:    opts,
		tasks:   make(chan Task, opts.QueueSize),
		logger:  logger.With("component", "mainloop"),
		started: make(chan struct{}),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the loop goroutine. It returns immediately; the loop runs
// until Stop is called or ctx is cancelled.
func (m *MainLoop) Start(ctx context.Context) error {
	err := fmt.Errorf("main loop already started")
	m.startOnce.Do(func() {
		err = nil
		close(m.started)
		go m.loop(ctx)
	})
	return err
}

// Stop halts the loop and waits for the running task, if any, to return.
// Tasks still queued are dropped.
func (m *MainLoop) Stop() {
	m.stopOnce.Do(func() {
		m.logger.Info("stopping main loop")
		close(m.stopCh)
	})
	select {
	case <-m.started:
		<-m.done
	default:
	}
}

// Done is closed once the loop goroutine has exited.
func (m *MainLoop) Done() <-chan struct{} {
	return m.done
}

// RunSoon implements Scheduler.
func (m *MainLoop) RunSoon(ctx context.Context, task Task) error {
	if OnMainThread(ctx) {
		return ErrOnMainThread
	}
	select {
	case <-m.stopCh:
		return ErrStopped
	case <-m.done:
		return ErrStopped
	default:
	}

	select {
	case m.tasks <- task:
		return nil
	case <-m.stopCh:
		return ErrStopped
	case <-m.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MainLoop) loop(ctx context.Context) {
	defer close(m.done)

	mainCtx := WithMainThread(ctx)
	m.logger.Info("main loop started", "tick_interval", m.opts.TickInterval)
	defer m.logger.Info("main loop stopped")

	var tickC <-chan time.Time
	if m.opts.Tick != nil && m.opts.TickInterval > 0 {
		ticker := time.NewTicker(m.opts.TickInterval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case task := <-m.tasks:
			m.run(mainCtx, "task", task)
		case <-tickC:
			m.run(mainCtx, "tick", m.opts.Tick)
		}
	}
}

// run executes one callback. A panic is logged and swallowed so that a
// faulty task cannot take the host's loop down with it.
func (m *MainLoop) run(ctx context.Context, kind string, task Task) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("main loop callback panicked",
				"kind", kind, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	task(ctx)
}
