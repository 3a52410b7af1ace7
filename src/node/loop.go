package node

import (
	"context"
	"sync"
)

// Loop is the control loop. Every callback that touches the matchmaking
// client, its connections or the transport adapter runs on it, one at a
// time, in the order it was dispatched. It implements common.Executor.
type Loop struct {
	state

	mu    sync.Mutex
	queue []func()

	notifyCh   chan struct{}
	shutdownCh chan struct{}
	once       sync.Once

	// held while Run executes
	running sync.Mutex
}

// NewLoop ...
func NewLoop() *Loop {
	return &Loop{
		notifyCh:   make(chan struct{}, 1),
		shutdownCh: make(chan struct{}),
	}
}

// Dispatch queues f on the loop. It never blocks.
func (l *Loop) Dispatch(f func()) {
	l.mu.Lock()
	l.queue = append(l.queue, f)
	l.mu.Unlock()

	select {
	case l.notifyCh <- struct{}{}:
	default:
	}
}

// Background runs f in its own goroutine. Wait waits for it.
func (l *Loop) Background(f func()) {
	l.goFunc(f)
}

// Run executes dispatched functions until ctx is done or Shutdown is
// called. Functions still queued at that point are discarded.
func (l *Loop) Run(ctx context.Context) error {
	l.running.Lock()
	defer l.running.Unlock()

	for {
		select {
		case <-l.shutdownCh:
			return nil
		default:
		}

		for _, f := range l.take() {
			f()

			select {
			case <-l.shutdownCh:
				return nil
			default:
			}
		}

		select {
		case <-l.notifyCh:
		case <-ctx.Done():
			return ctx.Err()
		case <-l.shutdownCh:
			return nil
		}
	}
}

func (l *Loop) take() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.queue
	l.queue = nil
	return batch
}

// Do runs f on the loop and waits for it to return. It returns false if the
// loop was shut down first.
func (l *Loop) Do(f func()) bool {
	select {
	case <-l.shutdownCh:
		return false
	default:
	}

	done := make(chan struct{})
	l.Dispatch(func() {
		f()
		close(done)
	})

	select {
	case <-done:
		return true
	case <-l.shutdownCh:
		return false
	}
}

// Shutdown stops Run and waits for it to return. It must not be called from
// the loop itself.
func (l *Loop) Shutdown() {
	l.once.Do(func() {
		close(l.shutdownCh)
	})
	l.running.Lock()
	l.running.Unlock()
}

// Wait blocks until every Background function has returned.
func (l *Loop) Wait() {
	l.waitRoutines()
}

// Done is closed by Shutdown.
func (l *Loop) Done() <-chan struct{} {
	return l.shutdownCh
}
