package peer

import "sync/atomic"

// State captures the negotiation progress of a Connection.
type State uint32

const (
	// Idle ...
	Idle State = iota
	// NegotiatingLocal means a local description is being produced.
	NegotiatingLocal
	// NegotiatingRemote means the remote description is awaited or being
	// applied.
	NegotiatingRemote
	// Gathering means both descriptions are in place and ICE is running.
	Gathering
	// Established means the link reported connected.
	Established
	// ChannelsOpening means some, but not all, channels are open.
	ChannelsOpening
	// ChannelsOpen ...
	ChannelsOpen
	// Failed ...
	Failed
	// Closed ...
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case NegotiatingLocal:
		return "NegotiatingLocal"
	case NegotiatingRemote:
		return "NegotiatingRemote"
	case Gathering:
		return "Gathering"
	case Established:
		return "Established"
	case ChannelsOpening:
		return "ChannelsOpening"
	case ChannelsOpen:
		return "ChannelsOpen"
	case Failed:
		return "Failed"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Terminal ...
func (s State) Terminal() bool {
	return s == Failed || s == Closed
}

type state struct {
	state State
}

func (s *state) getState() State {
	stateAddr := (*uint32)(&s.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (s *state) setState(st State) {
	stateAddr := (*uint32)(&s.state)
	atomic.StoreUint32(stateAddr, uint32(st))
}

// Role is the part the local participant plays on a Connection.
type Role uint8

const (
	// Host connections send the offer.
	Host Role = iota
	// Client connections wait for an offer and answer it.
	Client
)

func (r Role) String() string {
	if r == Host {
		return "Host"
	}
	return "Client"
}
