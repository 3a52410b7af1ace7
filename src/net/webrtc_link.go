package net

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/mosaicnetworks/matchmaker/src/net/signal"
	"github.com/mosaicnetworks/matchmaker/src/peer"
	"github.com/pion/datachannel"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
)

const (
	// Size assumed when the remote description does not advertise
	// a=max-message-size.
	defaultMaxMessageSize = 65536

	// Largest message the local SCTP association will write.
	localMaxMessageSize = 65536

	readBufferSize = 1 << 18
)

// WebRTCLink implements peer.Link around a pion PeerConnection.
type WebRTCLink struct {
	pc     *webrtc.PeerConnection
	events peer.LinkEvents
	logger *logrus.Entry

	sync.Mutex
	dataChannels map[uint16]*webrtc.DataChannel
	detached     map[uint16]datachannel.ReadWriteCloser

	maxMessageSize int64
}

func newWebRTCLink(pc *webrtc.PeerConnection, events peer.LinkEvents, logger *logrus.Entry) *WebRTCLink {
	l := &WebRTCLink{
		pc:           pc,
		events:       events,
		logger:       logger,
		dataChannels: make(map[uint16]*webrtc.DataChannel),
		detached:     make(map[uint16]datachannel.ReadWriteCloser),
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering
		if c == nil {
			return
		}
		events.OnLocalCandidate(fromCandidateInit(c.ToJSON()))
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		l.logger.WithField("state", s.String()).Debug("PeerConnection state has changed")
		if ls, ok := linkState(s); ok {
			events.OnLinkStateChange(ls)
		}
	})

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		l.logger.WithField("state", s.String()).Debug("ICE Connection State has changed")
	})

	return l
}

// CreateOffer implements peer.Link.
func (l *WebRTCLink) CreateOffer() (string, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	return offer.SDP, nil
}

// CreateAnswer implements peer.Link.
func (l *WebRTCLink) CreateAnswer() (string, error) {
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	return answer.SDP, nil
}

// SetLocalDescription implements peer.Link. It also starts ICE gathering.
func (l *WebRTCLink) SetLocalDescription(kind signal.SDPKind, raw string) error {
	t, err := sdpType(kind)
	if err != nil {
		return err
	}
	return l.pc.SetLocalDescription(webrtc.SessionDescription{Type: t, SDP: raw})
}

// SetRemoteDescription implements peer.Link.
func (l *WebRTCLink) SetRemoteDescription(kind signal.SDPKind, raw string) error {
	t, err := sdpType(kind)
	if err != nil {
		return err
	}

	if err := l.pc.SetRemoteDescription(webrtc.SessionDescription{Type: t, SDP: raw}); err != nil {
		return err
	}

	atomic.StoreInt64(&l.maxMessageSize, int64(remoteMaxMessageSize(raw)))

	return nil
}

// AddICECandidate implements peer.Link.
func (l *WebRTCLink) AddICECandidate(c signal.ICECandidate) error {
	return l.pc.AddICECandidate(toCandidateInit(c))
}

// CreateChannel implements peer.Link. Channels are negotiated out of band:
// both ends create them with the same id and no DCEP handshake takes place.
func (l *WebRTCLink) CreateChannel(id uint16, label string) error {
	negotiated := true
	ordered := true

	dc, err := l.pc.CreateDataChannel(label, &webrtc.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &id,
	})
	if err != nil {
		return err
	}

	l.Lock()
	l.dataChannels[id] = dc
	l.Unlock()

	l.pipeDataChannel(id, dc)

	return nil
}

func (l *WebRTCLink) pipeDataChannel(id uint16, dc *webrtc.DataChannel) {
	logger := l.logger.WithFields(logrus.Fields{
		"channel": dc.Label(),
		"id":      id,
	})

	dc.OnOpen(func() {
		// Detach the data channel
		raw, err := dc.Detach()
		if err != nil {
			logger.WithError(err).Error("Error detaching DataChannel")
			l.events.OnChannelStateChange(id, false)
			return
		}

		l.Lock()
		l.detached[id] = raw
		l.Unlock()

		logger.Debug("DataChannel open")
		l.events.OnChannelStateChange(id, true)

		go l.readLoop(id, raw, logger)
	})

	dc.OnError(func(err error) {
		logger.WithError(err).Debug("DataChannel error")
	})
}

// readLoop delivers messages from a detached channel until it closes. One
// goroutine per channel keeps per-channel ordering.
func (l *WebRTCLink) readLoop(id uint16, raw datachannel.ReadWriteCloser, logger *logrus.Entry) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := raw.Read(buf)
		if err != nil {
			logger.WithError(err).Debug("DataChannel closed")
			l.events.OnChannelStateChange(id, false)
			return
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		l.events.OnChannelMessage(id, data)
	}
}

// Send implements peer.Link.
func (l *WebRTCLink) Send(id uint16, data []byte) error {
	l.Lock()
	raw, ok := l.detached[id]
	l.Unlock()

	if !ok {
		return fmt.Errorf("channel %d not open", id)
	}

	_, err := raw.Write(data)
	return err
}

// MaxMessageSize implements peer.Link.
func (l *WebRTCLink) MaxMessageSize() int {
	return int(atomic.LoadInt64(&l.maxMessageSize))
}

// Close implements peer.Link. It closes the data channels and the
// PeerConnection.
func (l *WebRTCLink) Close() error {
	l.Lock()
	for _, raw := range l.detached {
		raw.Close()
	}
	l.detached = make(map[uint16]datachannel.ReadWriteCloser)
	l.Unlock()

	return l.pc.Close()
}

func sdpType(kind signal.SDPKind) (webrtc.SDPType, error) {
	switch kind {
	case signal.Offer:
		return webrtc.SDPTypeOffer, nil
	case signal.Answer:
		return webrtc.SDPTypeAnswer, nil
	default:
		return webrtc.SDPType(0), fmt.Errorf("unsupported sdp kind %q", kind)
	}
}

func linkState(s webrtc.PeerConnectionState) (peer.LinkState, bool) {
	switch s {
	case webrtc.PeerConnectionStateNew:
		return peer.LinkNew, true
	case webrtc.PeerConnectionStateConnecting:
		return peer.LinkConnecting, true
	case webrtc.PeerConnectionStateConnected:
		return peer.LinkConnected, true
	case webrtc.PeerConnectionStateDisconnected:
		return peer.LinkDisconnected, true
	case webrtc.PeerConnectionStateFailed:
		return peer.LinkFailed, true
	case webrtc.PeerConnectionStateClosed:
		return peer.LinkClosed, true
	default:
		return peer.LinkNew, false
	}
}

func fromCandidateInit(c webrtc.ICECandidateInit) signal.ICECandidate {
	res := signal.ICECandidate{Candidate: c.Candidate}
	if c.SDPMid != nil {
		res.MediaID = *c.SDPMid
	}
	if c.SDPMLineIndex != nil {
		res.Index = *c.SDPMLineIndex
	}
	return res
}

func toCandidateInit(c signal.ICECandidate) webrtc.ICECandidateInit {
	mid := c.MediaID
	index := c.Index
	return webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &index,
	}
}

// remoteMaxMessageSize reads a=max-message-size from the application media
// section, capped by what the local association can write. Zero means no
// limit on the remote side.
func remoteMaxMessageSize(raw string) int {
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(raw)); err != nil {
		return defaultMaxMessageSize
	}

	for _, m := range parsed.MediaDescriptions {
		if m.MediaName.Media != "application" {
			continue
		}

		v, ok := m.Attribute("max-message-size")
		if !ok {
			continue
		}

		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			continue
		}
		if n == 0 || n > localMaxMessageSize {
			return localMaxMessageSize
		}
		return n
	}

	return defaultMaxMessageSize
}
