package node

import (
	"sync"
	"sync/atomic"
)

// State captures the lifecycle of a Node: Idle, Waiting, Negotiating,
// Connected, or Shutdown.
type State uint32

const (
	// Idle is the initial state, before the relay is dialed.
	Idle State = iota
	// Waiting means the slot was requested and no roster has arrived yet.
	Waiting
	// Negotiating means the roster arrived and the supervisor is armed.
	Negotiating
	// Connected means the transport reported Connected at least once.
	Connected
	// Shutdown is terminal.
	Shutdown
)

// String ...
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Waiting:
		return "Waiting"
	case Negotiating:
		return "Negotiating"
	case Connected:
		return "Connected"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

type state struct {
	state State
	wg    sync.WaitGroup
}

func (b *state) getState() State {
	stateAddr := (*uint32)(&b.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (b *state) setState(s State) {
	stateAddr := (*uint32)(&b.state)
	atomic.StoreUint32(stateAddr, uint32(s))
}

// Start a goroutine and add it to waitgroup
func (b *state) goFunc(f func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		f()
	}()
}

func (b *state) waitRoutines() {
	b.wg.Wait()
}
