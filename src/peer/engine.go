package peer

import "github.com/mosaicnetworks/matchmaker/src/net/signal"

// Engine creates Links. It is the boundary with the offer/answer, ICE, DTLS
// and SCTP implementation.
type Engine interface {
	NewLink(peerUUID string, events LinkEvents) (Link, error)
}

// Link is one negotiated connection to a remote participant. Methods that do
// cryptographic or network work may block; Connection only calls them through
// Executor.Background.
type Link interface {
	CreateOffer() (string, error)
	CreateAnswer() (string, error)
	SetLocalDescription(kind signal.SDPKind, sdp string) error
	SetRemoteDescription(kind signal.SDPKind, sdp string) error
	AddICECandidate(candidate signal.ICECandidate) error

	// CreateChannel declares a pre-negotiated data channel. Both ends must
	// declare the same id and label.
	CreateChannel(id uint16, label string) error

	// Send writes one message on an open channel.
	Send(id uint16, data []byte) error

	// MaxMessageSize is the largest message the remote end accepts, or 0
	// when it is not known yet.
	MaxMessageSize() int

	Close() error
}

// LinkEvents receives notifications from a Link. They may be called from any
// goroutine.
type LinkEvents interface {
	OnLocalCandidate(candidate signal.ICECandidate)
	OnLinkStateChange(state LinkState)
	OnChannelStateChange(id uint16, open bool)
	OnChannelMessage(id uint16, data []byte)
}

// LinkState mirrors the transport-level connection state reported by the
// engine.
type LinkState uint8

const (
	// LinkNew ...
	LinkNew LinkState = iota
	// LinkConnecting ...
	LinkConnecting
	// LinkConnected ...
	LinkConnected
	// LinkDisconnected ...
	LinkDisconnected
	// LinkFailed ...
	LinkFailed
	// LinkClosed ...
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkNew:
		return "New"
	case LinkConnecting:
		return "Connecting"
	case LinkConnected:
		return "Connected"
	case LinkDisconnected:
		return "Disconnected"
	case LinkFailed:
		return "Failed"
	case LinkClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}
