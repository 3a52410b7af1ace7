package peer

import (
	"fmt"
	"strconv"

	"github.com/mosaicnetworks/matchmaker/src/common"
	"github.com/mosaicnetworks/matchmaker/src/ice"
	"github.com/mosaicnetworks/matchmaker/src/net/signal"
	"github.com/sirupsen/logrus"
)

// Signaler carries a Connection's negotiation messages to the remote
// participant through the relay.
type Signaler interface {
	SendDescription(to string, desc signal.SessionDescription)
	SendCandidate(to string, candidate signal.ICECandidate)
}

// Observer is notified of Connection events on the control loop.
type Observer interface {
	OnStateChange(peerUUID string, state State)
	OnChannelStateChange(peerUUID string, id uint16, open bool)
	OnMessage(peerUUID string, id uint16, data []byte)
}

// Options configures a Connection.
type Options struct {
	Labels   []string
	Filter   ice.Policy
	Executor common.Executor
	Signaler Signaler
	Observer Observer
	Logger   *logrus.Entry
}

// Connection is the negotiation state machine for one remote participant.
type Connection struct {
	state

	peerUUID string
	role     Role
	link     Link
	mux      *Multiplexer

	filter   ice.Policy
	exec     common.Executor
	signaler Signaler
	observer Observer
	logger   *logrus.Entry

	// remote candidates wait for the remote description; local candidates
	// wait until the local description has been sent
	remoteSet     bool
	localSent     bool
	pendingRemote []signal.ICECandidate
	pendingLocal  []signal.ICECandidate

	linkConnected bool
}

// NewConnection creates the Link and declares its channels. Nothing is sent
// until Start is called.
func NewConnection(peerUUID string, role Role, engine Engine, opts Options) (*Connection, error) {
	mux, err := NewMultiplexer(opts.Labels)
	if err != nil {
		return nil, err
	}

	c := &Connection{
		peerUUID: peerUUID,
		role:     role,
		mux:      mux,
		filter:   opts.Filter,
		exec:     opts.Executor,
		signaler: opts.Signaler,
		observer: opts.Observer,
		logger: opts.Logger.WithFields(logrus.Fields{
			"peer": peerUUID,
			"role": role.String(),
		}),
	}

	link, err := engine.NewLink(peerUUID, &linkEvents{c})
	if err != nil {
		return nil, common.WrapErr(common.NegotiationError, peerUUID, err)
	}
	c.link = link

	for _, ch := range mux.Channels() {
		if err := link.CreateChannel(ch.ID, ch.Label); err != nil {
			link.Close()
			return nil, common.WrapErr(common.NegotiationError,
				fmt.Sprintf("%s channel %s", peerUUID, ch.Label), err)
		}
	}

	return c, nil
}

// PeerUUID ...
func (c *Connection) PeerUUID() string {
	return c.peerUUID
}

// Role ...
func (c *Connection) Role() Role {
	return c.role
}

// State ...
func (c *Connection) State() State {
	return c.getState()
}

// Channels returns a snapshot of the channel table.
func (c *Connection) Channels() []Channel {
	return c.mux.Channels()
}

// Multiplexer ...
func (c *Connection) Multiplexer() *Multiplexer {
	return c.mux
}

// Usable reports whether the main channel is open. A connected link is not
// enough.
func (c *Connection) Usable() bool {
	return !c.getState().Terminal() && c.mux.MainOpen()
}

// Active reports whether the link is up and the connection not torn down.
func (c *Connection) Active() bool {
	return c.linkConnected && !c.getState().Terminal()
}

// MaxMessageSize ...
func (c *Connection) MaxMessageSize() int {
	return c.link.MaxMessageSize()
}

func (c *Connection) setState(s State) {
	prev := c.getState()
	if prev == s {
		return
	}
	c.state.setState(s)

	c.logger.WithFields(logrus.Fields{
		"from": prev.String(),
		"to":   s.String(),
	}).Debug("Connection state")

	if c.observer != nil {
		c.observer.OnStateChange(c.peerUUID, s)
	}
}

// Start begins negotiation. On a host connection it produces the offer; a
// client connection waits for one.
func (c *Connection) Start() {
	if c.role != Host || c.getState() != Idle {
		return
	}

	c.setState(NegotiatingLocal)

	c.exec.Background(func() {
		sdp, err := c.link.CreateOffer()
		if err == nil {
			err = c.link.SetLocalDescription(signal.Offer, sdp)
		}
		c.exec.Dispatch(func() {
			c.localDescriptionReady(signal.Offer, sdp, err)
		})
	})
}

// localDescriptionReady transmits a local description once it has been set.
func (c *Connection) localDescriptionReady(kind signal.SDPKind, sdp string, err error) {
	if c.getState().Terminal() {
		return
	}

	if err != nil {
		c.logger.WithError(err).WithField("kind", kind).Error("Producing local description")
		c.fail()
		return
	}

	c.signaler.SendDescription(c.peerUUID, signal.SessionDescription{Kind: kind, SDP: sdp})
	c.localSent = true

	for _, cand := range c.pendingLocal {
		c.signaler.SendCandidate(c.peerUUID, cand)
	}
	c.pendingLocal = nil

	if c.remoteSet {
		c.advance(Gathering)
	} else {
		c.advance(NegotiatingRemote)
	}
}

// HandleDescription applies a description received from the remote peer. A
// host only accepts answers and a client only accepts offers; anything else
// is logged and skipped.
func (c *Connection) HandleDescription(desc signal.SessionDescription) {
	st := c.getState()
	if st.Terminal() {
		return
	}

	expected := signal.Answer
	if c.role == Client {
		expected = signal.Offer
	}

	if desc.Kind != expected {
		c.logger.WithError(common.NewErr(common.NegotiationError, string(desc.Kind))).
			Warn("Unexpected session description")
		return
	}

	if c.remoteSet {
		c.logger.WithField("kind", desc.Kind).Warn("Remote description already set")
		return
	}

	if c.role == Host && !c.localSent {
		c.logger.Warn("Answer received before offer was sent")
		return
	}

	c.setState(NegotiatingRemote)

	c.exec.Background(func() {
		err := c.link.SetRemoteDescription(desc.Kind, desc.SDP)
		c.exec.Dispatch(func() {
			c.remoteDescriptionApplied(st, err)
		})
	})
}

func (c *Connection) remoteDescriptionApplied(prev State, err error) {
	if c.getState().Terminal() {
		return
	}

	if err != nil {
		c.logger.WithError(common.WrapErr(common.NegotiationError, c.peerUUID, err)).
			Warn("Applying remote description")
		c.setState(prev)
		return
	}

	c.remoteSet = true

	for _, cand := range c.pendingRemote {
		c.addCandidate(cand)
	}
	c.pendingRemote = nil

	if c.role == Host {
		c.advance(Gathering)
		return
	}

	c.setState(NegotiatingLocal)

	c.exec.Background(func() {
		sdp, err := c.link.CreateAnswer()
		if err == nil {
			err = c.link.SetLocalDescription(signal.Answer, sdp)
		}
		c.exec.Dispatch(func() {
			c.localDescriptionReady(signal.Answer, sdp, err)
		})
	})
}

// HandleCandidate filters a remote candidate and applies it, or holds it
// until the remote description is set.
func (c *Connection) HandleCandidate(cand signal.ICECandidate) {
	if c.getState().Terminal() {
		return
	}

	if !ice.Accept(cand.Candidate, c.filter) {
		c.logger.WithFields(logrus.Fields{
			"candidate": cand.Candidate,
			"filter":    c.filter.String(),
		}).Debug("Candidate filtered out")
		return
	}

	if !c.remoteSet {
		c.pendingRemote = append(c.pendingRemote, cand)
		return
	}

	c.addCandidate(cand)
}

func (c *Connection) addCandidate(cand signal.ICECandidate) {
	if err := c.link.AddICECandidate(cand); err != nil {
		c.logger.WithError(common.WrapErr(common.NegotiationError, cand.Candidate, err)).
			Warn("Adding remote candidate")
	}
}

// Send writes data on a channel of this connection.
func (c *Connection) Send(id uint16, data []byte) error {
	if c.getState().Terminal() {
		return common.NewErr(common.Closed, c.peerUUID)
	}

	if err := c.mux.CheckSend(id); err != nil {
		return err
	}

	if max := c.link.MaxMessageSize(); max > 0 && len(data) > max {
		return common.NewErr(common.PacketTooLarge,
			fmt.Sprintf("%d > %d", len(data), max))
	}

	return c.link.Send(id, data)
}

// Close tears the connection down. Open channels are reported closed.
func (c *Connection) Close() {
	if c.getState().Terminal() {
		return
	}
	c.teardown(Closed)
}

func (c *Connection) fail() {
	c.teardown(Failed)
}

func (c *Connection) teardown(s State) {
	wasOpen := c.mux.CloseAll()

	c.setState(s)

	if c.observer != nil {
		for _, id := range wasOpen {
			c.observer.OnChannelStateChange(c.peerUUID, id, false)
		}
	}

	link := c.link
	c.exec.Background(func() {
		if err := link.Close(); err != nil {
			c.logger.WithError(err).Debug("Closing link")
		}
	})
}

// advance moves forward in the negotiation sequence but never back: events
// from the link can overtake the signaling round trip.
func (c *Connection) advance(s State) {
	if c.getState() < s {
		c.setState(s)
	}
}

func (c *Connection) channelsState() State {
	switch n := c.mux.OpenCount(); {
	case n == c.mux.Len():
		return ChannelsOpen
	case n > 0:
		return ChannelsOpening
	default:
		return Established
	}
}

func (c *Connection) onLocalCandidate(cand signal.ICECandidate) {
	if c.getState().Terminal() {
		return
	}

	if !c.localSent {
		c.pendingLocal = append(c.pendingLocal, cand)
		return
	}

	c.signaler.SendCandidate(c.peerUUID, cand)
}

func (c *Connection) onLinkStateChange(s LinkState) {
	if c.getState().Terminal() {
		return
	}

	c.logger.WithField("link", s.String()).Info("Link state")

	switch s {
	case LinkConnected:
		c.linkConnected = true
		c.advance(Established)
	case LinkDisconnected:
		c.linkConnected = false
	case LinkFailed:
		c.linkConnected = false
		c.fail()
	case LinkClosed:
		c.linkConnected = false
		c.teardown(Closed)
	}
}

func (c *Connection) onChannelStateChange(id uint16, open bool) {
	if c.getState().Terminal() {
		return
	}

	label, ok := c.mux.Label(id)
	if !ok {
		c.logger.WithField("channel", id).Warn("Event for undeclared channel")
		return
	}

	var changed bool
	if open {
		changed = c.mux.Open(id)
	} else {
		changed = c.mux.Close(id)
	}
	if !changed {
		return
	}

	c.logger.WithFields(logrus.Fields{
		"channel": label,
		"open":    open,
	}).Info("Channel state")

	// A channel can open before the link reports connected.
	if open {
		c.advance(c.channelsState())
	}

	if c.observer != nil {
		c.observer.OnChannelStateChange(c.peerUUID, id, open)
	}
}

func (c *Connection) onChannelMessage(id uint16, data []byte) {
	if c.mux.State(id) != ChannelOpen {
		c.logger.WithField("channel", strconv.Itoa(int(id))).Debug("Dropping message on closed channel")
		return
	}

	if c.observer != nil {
		c.observer.OnMessage(c.peerUUID, id, data)
	}
}

// linkEvents marshals Link callbacks onto the control loop.
type linkEvents struct {
	c *Connection
}

func (e *linkEvents) OnLocalCandidate(cand signal.ICECandidate) {
	e.c.exec.Dispatch(func() { e.c.onLocalCandidate(cand) })
}

func (e *linkEvents) OnLinkStateChange(s LinkState) {
	e.c.exec.Dispatch(func() { e.c.onLinkStateChange(s) })
}

func (e *linkEvents) OnChannelStateChange(id uint16, open bool) {
	e.c.exec.Dispatch(func() { e.c.onChannelStateChange(id, open) })
}

func (e *linkEvents) OnChannelMessage(id uint16, data []byte) {
	e.c.exec.Dispatch(func() { e.c.onChannelMessage(id, data) })
}
