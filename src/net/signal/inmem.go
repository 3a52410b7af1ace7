package signal

import (
	"context"
	"sync"

	"github.com/mosaicnetworks/matchmaker/src/common"
)

// InmemSession is a Session that records what is sent and lets the caller
// inject inbound frames. It is used in tests.
type InmemSession struct {
	sync.Mutex
	sent      [][]byte
	consumeCh chan []byte
	closed    bool
}

// NewInmemSession ...
func NewInmemSession() *InmemSession {
	return &InmemSession{
		consumeCh: make(chan []byte, 64),
	}
}

// Send implements Session.
func (s *InmemSession) Send(data []byte) error {
	s.Lock()
	defer s.Unlock()
	if s.closed {
		return common.NewErr(common.Closed, "inmem session")
	}
	s.sent = append(s.sent, data)
	return nil
}

// Consumer implements Session.
func (s *InmemSession) Consumer() <-chan []byte {
	return s.consumeCh
}

// Close implements Session.
func (s *InmemSession) Close() error {
	s.Lock()
	defer s.Unlock()
	if !s.closed {
		s.closed = true
		close(s.consumeCh)
	}
	return nil
}

// Closed ...
func (s *InmemSession) Closed() bool {
	s.Lock()
	defer s.Unlock()
	return s.closed
}

// Deliver pushes an inbound frame to the consumer.
func (s *InmemSession) Deliver(data []byte) {
	s.Lock()
	defer s.Unlock()
	if !s.closed {
		s.consumeCh <- data
	}
}

// Sent returns every frame sent so far, decoded. Frames that fail to decode
// are skipped.
func (s *InmemSession) Sent() []Envelope {
	s.Lock()
	defer s.Unlock()
	res := make([]Envelope, 0, len(s.sent))
	for _, f := range s.sent {
		e, err := Decode(f)
		if err == nil {
			res = append(res, e)
		}
	}
	return res
}

// Reset forgets the recorded frames.
func (s *InmemSession) Reset() {
	s.Lock()
	defer s.Unlock()
	s.sent = nil
}

// InmemDialer always returns the same InmemSession.
type InmemDialer struct {
	Session *InmemSession
	Err     error
	Address string
}

// Dial implements Dialer.
func (d *InmemDialer) Dial(ctx context.Context, address string) (Session, error) {
	d.Address = address
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Session, nil
}
