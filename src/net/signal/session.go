package signal

import "context"

// Session is a persistent, message-oriented connection to the matchmaking
// relay.
type Session interface {
	// Send queues one frame for delivery. It does not wait for the frame to
	// be written.
	Send(data []byte) error

	// Consumer delivers inbound frames in arrival order. It is closed when
	// the session ends, whichever side ended it.
	Consumer() <-chan []byte

	// Close ends the session.
	Close() error
}

// Dialer opens Sessions.
type Dialer interface {
	Dial(ctx context.Context, address string) (Session, error)
}
