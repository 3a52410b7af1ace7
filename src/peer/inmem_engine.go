package peer

import (
	"fmt"
	"sync"

	"github.com/mosaicnetworks/matchmaker/src/net/signal"
)

// InmemEngine creates InmemLinks. It lets tests drive link, channel and
// candidate events by hand.
type InmemEngine struct {
	sync.Mutex
	links map[string]*InmemLink

	// MaxMessageSize is given to every new link.
	MaxMessageSize int
}

// NewInmemEngine ...
func NewInmemEngine() *InmemEngine {
	return &InmemEngine{
		links:          make(map[string]*InmemLink),
		MaxMessageSize: 65536,
	}
}

// NewLink implements Engine.
func (e *InmemEngine) NewLink(peerUUID string, events LinkEvents) (Link, error) {
	e.Lock()
	defer e.Unlock()

	l := &InmemLink{
		peerUUID: peerUUID,
		events:   events,
		channels: make(map[uint16]string),
		maxSize:  e.MaxMessageSize,
	}
	e.links[peerUUID] = l
	return l, nil
}

// Link returns the last link created for peerUUID.
func (e *InmemEngine) Link(peerUUID string) *InmemLink {
	e.Lock()
	defer e.Unlock()
	return e.links[peerUUID]
}

// LinkCount ...
func (e *InmemEngine) LinkCount() int {
	e.Lock()
	defer e.Unlock()
	return len(e.links)
}

// InmemPacket is a message written through an InmemLink.
type InmemPacket struct {
	Channel uint16
	Data    []byte
}

// InmemLink records what the Connection asks of it.
type InmemLink struct {
	sync.Mutex

	peerUUID string
	events   LinkEvents
	channels map[uint16]string
	maxSize  int
	sdpCount int

	local      *signal.SessionDescription
	remote     *signal.SessionDescription
	candidates []signal.ICECandidate
	sent       []InmemPacket
	closed     bool

	// Inject failures.
	FailOffer     error
	FailAnswer    error
	FailRemote    error
	FailCandidate error
	FailSend      error
}

// CreateOffer implements Link.
func (l *InmemLink) CreateOffer() (string, error) {
	l.Lock()
	defer l.Unlock()
	if l.FailOffer != nil {
		return "", l.FailOffer
	}
	l.sdpCount++
	return fmt.Sprintf("offer-%s-%d", l.peerUUID, l.sdpCount), nil
}

// CreateAnswer implements Link.
func (l *InmemLink) CreateAnswer() (string, error) {
	l.Lock()
	defer l.Unlock()
	if l.FailAnswer != nil {
		return "", l.FailAnswer
	}
	if l.remote == nil {
		return "", fmt.Errorf("no remote description")
	}
	l.sdpCount++
	return fmt.Sprintf("answer-%s-%d", l.peerUUID, l.sdpCount), nil
}

// SetLocalDescription implements Link.
func (l *InmemLink) SetLocalDescription(kind signal.SDPKind, sdp string) error {
	l.Lock()
	defer l.Unlock()
	l.local = &signal.SessionDescription{Kind: kind, SDP: sdp}
	return nil
}

// SetRemoteDescription implements Link.
func (l *InmemLink) SetRemoteDescription(kind signal.SDPKind, sdp string) error {
	l.Lock()
	defer l.Unlock()
	if l.FailRemote != nil {
		return l.FailRemote
	}
	l.remote = &signal.SessionDescription{Kind: kind, SDP: sdp}
	return nil
}

// AddICECandidate implements Link.
func (l *InmemLink) AddICECandidate(c signal.ICECandidate) error {
	l.Lock()
	defer l.Unlock()
	if l.FailCandidate != nil {
		return l.FailCandidate
	}
	if l.remote == nil {
		return fmt.Errorf("candidate before remote description")
	}
	l.candidates = append(l.candidates, c)
	return nil
}

// CreateChannel implements Link.
func (l *InmemLink) CreateChannel(id uint16, label string) error {
	l.Lock()
	defer l.Unlock()
	l.channels[id] = label
	return nil
}

// Send implements Link.
func (l *InmemLink) Send(id uint16, data []byte) error {
	l.Lock()
	defer l.Unlock()
	if l.FailSend != nil {
		return l.FailSend
	}
	if l.closed {
		return fmt.Errorf("link closed")
	}
	l.sent = append(l.sent, InmemPacket{Channel: id, Data: data})
	return nil
}

// MaxMessageSize implements Link.
func (l *InmemLink) MaxMessageSize() int {
	l.Lock()
	defer l.Unlock()
	return l.maxSize
}

// Close implements Link.
func (l *InmemLink) Close() error {
	l.Lock()
	defer l.Unlock()
	l.closed = true
	return nil
}

// SetMaxMessageSize ...
func (l *InmemLink) SetMaxMessageSize(n int) {
	l.Lock()
	defer l.Unlock()
	l.maxSize = n
}

// Local ...
func (l *InmemLink) Local() *signal.SessionDescription {
	l.Lock()
	defer l.Unlock()
	return l.local
}

// Remote ...
func (l *InmemLink) Remote() *signal.SessionDescription {
	l.Lock()
	defer l.Unlock()
	return l.remote
}

// Candidates returns the remote candidates applied so far.
func (l *InmemLink) Candidates() []signal.ICECandidate {
	l.Lock()
	defer l.Unlock()
	return append([]signal.ICECandidate(nil), l.candidates...)
}

// Sent returns the messages written so far.
func (l *InmemLink) Sent() []InmemPacket {
	l.Lock()
	defer l.Unlock()
	return append([]InmemPacket(nil), l.sent...)
}

// ChannelLabels returns the declared channels.
func (l *InmemLink) ChannelLabels() map[uint16]string {
	l.Lock()
	defer l.Unlock()
	res := make(map[uint16]string, len(l.channels))
	for k, v := range l.channels {
		res[k] = v
	}
	return res
}

// Closed ...
func (l *InmemLink) Closed() bool {
	l.Lock()
	defer l.Unlock()
	return l.closed
}

// EmitCandidate simulates a locally gathered candidate.
func (l *InmemLink) EmitCandidate(c signal.ICECandidate) {
	l.events.OnLocalCandidate(c)
}

// SetLinkState simulates a transport state change.
func (l *InmemLink) SetLinkState(s LinkState) {
	l.events.OnLinkStateChange(s)
}

// OpenChannel simulates a channel opening.
func (l *InmemLink) OpenChannel(id uint16) {
	l.events.OnChannelStateChange(id, true)
}

// CloseChannel simulates a channel closing.
func (l *InmemLink) CloseChannel(id uint16) {
	l.events.OnChannelStateChange(id, false)
}

// Receive simulates an inbound message.
func (l *InmemLink) Receive(id uint16, data []byte) {
	l.events.OnChannelMessage(id, data)
}

// Establish connects the link and opens every declared channel.
func (l *InmemLink) Establish() {
	l.SetLinkState(LinkConnected)
	l.Lock()
	n := len(l.channels)
	l.Unlock()
	for i := 0; i < n; i++ {
		l.OpenChannel(uint16(i))
	}
}
