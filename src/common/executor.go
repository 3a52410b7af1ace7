package common

import "sync"

// Executor marshals work onto the single control loop that owns all mutable
// session state. Dispatch queues f to run on that loop and never blocks the
// caller. Background runs f outside the loop; f must hand any result back
// through Dispatch before touching shared state.
type Executor interface {
	Dispatch(f func())
	Background(f func())
}

// InlineExecutor runs everything immediately on the calling goroutine. Tests
// use it to make the control loop deterministic.
type InlineExecutor struct{}

// Dispatch ...
func (InlineExecutor) Dispatch(f func()) { f() }

// Background ...
func (InlineExecutor) Background(f func()) { f() }

// QueueExecutor holds dispatched work until Drain is called. Background work
// runs immediately. Tests use it when some events come from other
// goroutines.
type QueueExecutor struct {
	sync.Mutex
	queue []func()
}

// Dispatch ...
func (e *QueueExecutor) Dispatch(f func()) {
	e.Lock()
	e.queue = append(e.queue, f)
	e.Unlock()
}

// Background ...
func (e *QueueExecutor) Background(f func()) { f() }

// Drain runs queued work, including work queued while draining, until the
// queue is empty. It returns the number of functions run.
func (e *QueueExecutor) Drain() int {
	n := 0
	for {
		e.Lock()
		q := e.queue
		e.queue = nil
		e.Unlock()

		if len(q) == 0 {
			return n
		}
		for _, f := range q {
			f()
			n++
		}
	}
}
