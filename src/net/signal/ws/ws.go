// Package ws implements signal.Session over a websocket connection to the
// matchmaking relay.
package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mosaicnetworks/matchmaker/src/common"
	"github.com/mosaicnetworks/matchmaker/src/net/signal"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the relay.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the relay.
	pongWait = 60 * time.Second

	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Largest frame accepted from the relay. SDP bodies with many candidates
	// can grow well past a few kilobytes.
	maxFrameSize = 1 << 20

	sendBufferSize = 256
)

// ErrSendBufferFull is returned by Send when the write pump is not keeping up.
var ErrSendBufferFull = errors.New("send buffer full")

// Dialer implements signal.Dialer with gorilla/websocket.
type Dialer struct {
	dialer *websocket.Dialer
	logger *logrus.Entry
}

// NewDialer ...
func NewDialer(handshakeTimeout time.Duration, logger *logrus.Entry) *Dialer {
	d := *websocket.DefaultDialer
	if handshakeTimeout > 0 {
		d.HandshakeTimeout = handshakeTimeout
	}

	return &Dialer{
		dialer: &d,
		logger: logger,
	}
}

// Dial implements signal.Dialer.
func (d *Dialer) Dial(ctx context.Context, address string) (signal.Session, error) {
	conn, _, err := d.dialer.DialContext(ctx, address, nil)
	if err != nil {
		return nil, common.WrapErr(common.NotConnected, address, err)
	}

	s := newSession(conn, d.logger.WithField("relay", address))

	go s.readPump()
	go s.writePump()

	return s, nil
}

// Session is one websocket connection to the relay. Frames are JSON text
// messages.
type Session struct {
	conn   *websocket.Conn
	logger *logrus.Entry

	sendCh    chan []byte
	consumeCh chan []byte
	closeCh   chan struct{}
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, logger *logrus.Entry) *Session {
	return &Session{
		conn:      conn,
		logger:    logger,
		sendCh:    make(chan []byte, sendBufferSize),
		consumeCh: make(chan []byte, sendBufferSize),
		closeCh:   make(chan struct{}),
	}
}

// Send implements signal.Session.
func (s *Session) Send(data []byte) error {
	select {
	case <-s.closeCh:
		return common.NewErr(common.Closed, "relay session")
	default:
	}

	select {
	case s.sendCh <- data:
		return nil
	case <-s.closeCh:
		return common.NewErr(common.Closed, "relay session")
	default:
		return ErrSendBufferFull
	}
}

// Consumer implements signal.Session.
func (s *Session) Consumer() <-chan []byte {
	return s.consumeCh
}

// Close implements signal.Session.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closeCh)
	})
	return nil
}

// readPump forwards text frames from the relay to the consumer channel. It
// owns consumeCh and closes it on exit.
func (s *Session) readPump() {
	defer func() {
		close(s.consumeCh)
		s.Close()
	}()

	s.conn.SetReadLimit(maxFrameSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.WithError(err).Error("Reading from relay")
			} else {
				s.logger.WithError(err).Debug("Relay session ended")
			}
			return
		}

		if mt != websocket.TextMessage {
			s.logger.WithField("message_type", mt).Debug("Ignoring non-text frame")
			continue
		}

		select {
		case s.consumeCh <- data:
		case <-s.closeCh:
			return
		}
	}
}

// writePump writes queued frames and keepalive pings. It owns the
// connection's writer and closes the connection on exit.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data := <-s.sendCh:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.WithError(err).Error("Writing to relay")
				s.Close()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.WithError(err).Debug("Ping failed")
				s.Close()
				return
			}
		case <-s.closeCh:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
