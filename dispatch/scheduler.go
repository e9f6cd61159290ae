package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
)

// ErrLoopStopped is returned by Loop.Post once Run has returned.
var ErrLoopStopped = errors.New("loop stopped")

// Scheduler runs callbacks on the host's designated thread. Schedule must not
// run fn synchronously on the calling goroutine unless that goroutine is the
// designated thread.
type Scheduler interface {
	Schedule(fn func()) error
}

// SchedulerFunc adapts a function to the Scheduler interface.
type SchedulerFunc func(fn func()) error

func (f SchedulerFunc) Schedule(fn func()) error { return f(fn) }

// Loop is a minimal host main loop for programs that have no event loop of
// their own. Callbacks posted to it run one at a time on the goroutine that
// called Run, which is locked to its OS thread.
type Loop struct {
	log *slog.Logger

	mu      sync.Mutex
	queue   []func()
	stopped bool
	wake    chan struct{}
}

// NewLoop constructs an idle Loop. A nil logger uses slog.Default.
func NewLoop(log *slog.Logger) *Loop {
	if log == nil {
		log = slog.Default()
	}
	return &Loop{log: log, wake: make(chan struct{}, 1)}
}

// Schedule implements Scheduler.
func (l *Loop) Schedule(fn func()) error { return l.Post(fn) }

// Post queues fn to run on the loop thread. It never blocks.
func (l *Loop) Post(fn func()) error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return ErrLoopStopped
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Run executes posted callbacks until ctx is done. Callbacks still queued at
// that point are dropped.
func (l *Loop) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		l.runQueued(ctx)
		select {
		case <-ctx.Done():
			l.mu.Lock()
			l.stopped = true
			dropped := len(l.queue)
			l.queue = nil
			l.mu.Unlock()
			l.log.Debug("dispatch.loop.stop", slog.Int("dropped", dropped))
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *Loop) runQueued(ctx context.Context) {
	for ctx.Err() == nil {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.call(fn)
	}
}

func (l *Loop) call(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			l.log.Error("dispatch.loop.callback_panic", slog.Any("panic", rec))
		}
	}()
	fn()
}
