// Package matchmaker implements the client side of the matchmaking relay
// protocol.
//
// A Client connects to the relay, asks for a slot in a named queue, and waits
// for the roster. When the roster arrives it creates one peer.Connection per
// remote participant following the star topology: the host connects to every
// client, a client connects only to the host. From then on it routes the
// relayed SessionDescription and ICECandidate envelopes to the connection of
// their sender.
//
// The relay is trusted. Any envelope that cannot be decoded or does not fit
// the protocol ends the session.
package matchmaker

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mosaicnetworks/matchmaker/src/common"
	"github.com/mosaicnetworks/matchmaker/src/ice"
	"github.com/mosaicnetworks/matchmaker/src/metrics"
	"github.com/mosaicnetworks/matchmaker/src/net/signal"
	"github.com/mosaicnetworks/matchmaker/src/peer"
	"github.com/sirupsen/logrus"
)

// Options configures a Client.
type Options struct {
	Labels  []string
	Filter  ice.Policy
	Metrics metrics.Collector
	Logger  *logrus.Entry
}

// Client is the session with the matchmaking relay. Except for Connect, its
// methods must be called on the control loop driven by the Executor.
type Client struct {
	dialer signal.Dialer
	engine peer.Engine
	exec   common.Executor

	labels  []string
	filter  ice.Policy
	metrics metrics.Collector
	logger  *logrus.Entry

	session   signal.Session
	requested bool
	closed    bool

	roster      *signal.Roster
	connections map[string]*peer.Connection
	order       []string
	removed     map[string]bool

	observers []Observer
}

// NewClient ...
func NewClient(dialer signal.Dialer, engine peer.Engine, exec common.Executor, opts Options) (*Client, error) {
	if err := peer.ValidateLabels(opts.Labels); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	return &Client{
		dialer:      dialer,
		engine:      engine,
		exec:        exec,
		labels:      opts.Labels,
		filter:      opts.Filter,
		metrics:     metrics.OrNop(opts.Metrics),
		logger:      logger,
		connections: make(map[string]*peer.Connection),
		removed:     make(map[string]bool),
	}, nil
}

// AddObserver registers an Observer. Observers are notified in registration
// order.
func (c *Client) AddObserver(o Observer) {
	c.observers = append(c.observers, o)
}

// Connect dials the relay. It blocks until the session is open and may be
// called from any goroutine; the session is installed on the control loop.
func (c *Client) Connect(ctx context.Context, address string) error {
	session, err := c.dialer.Dial(ctx, address)
	if err != nil {
		return err
	}

	c.logger.WithField("address", address).Info("Connected to relay")

	c.exec.Dispatch(func() {
		if c.closed || c.session != nil {
			session.Close()
			return
		}
		c.session = session
	})

	go c.listen(session)

	return nil
}

// listen feeds inbound frames to the control loop.
func (c *Client) listen(session signal.Session) {
	for data := range session.Consumer() {
		frame := data
		c.exec.Dispatch(func() {
			c.HandleFrame(frame)
		})
	}
	c.exec.Dispatch(func() {
		c.sessionEnded(session)
	})
}

// Connected reports whether the relay session is open.
func (c *Client) Connected() bool {
	return c.session != nil && !c.closed
}

// SendSlotRequest asks the relay for a place in the named queue. Only one
// request is allowed per session.
func (c *Client) SendSlotRequest(name string) error {
	if !c.Connected() {
		return common.NewErr(common.NotConnected, "relay")
	}
	if c.requested {
		return common.NewErr(common.AlreadyRequested, name)
	}

	err := c.send(signal.Envelope{
		From:    signal.UnknownAddress,
		To:      signal.MatchMakerAddress,
		Payload: signal.SlotRequest{Name: name},
	})
	if err != nil {
		return err
	}

	c.requested = true
	c.logger.WithField("slot", name).Info("Slot requested")

	return nil
}

// Roster returns the session roster, or nil before it arrives.
func (c *Client) Roster() *signal.Roster {
	return c.roster
}

// IsHost ...
func (c *Client) IsHost() bool {
	return c.roster != nil && c.roster.IsHost()
}

// OwnUUID ...
func (c *Client) OwnUUID() string {
	if c.roster == nil {
		return ""
	}
	return c.roster.OwnUUID
}

// HostUUID ...
func (c *Client) HostUUID() string {
	if c.roster == nil {
		return ""
	}
	return c.roster.HostUUID
}

// Connection returns the connection to peerUUID.
func (c *Client) Connection(peerUUID string) (*peer.Connection, bool) {
	conn, ok := c.connections[peerUUID]
	return conn, ok
}

// Connections returns the live connections in roster order.
func (c *Client) Connections() []*peer.Connection {
	res := make([]*peer.Connection, 0, len(c.connections))
	for _, id := range c.order {
		if conn, ok := c.connections[id]; ok {
			res = append(res, conn)
		}
	}
	return res
}

// Send writes data on a channel of the connection to peerUUID.
func (c *Client) Send(peerUUID string, channel uint16, data []byte) error {
	conn, ok := c.connections[peerUUID]
	if !ok {
		return common.NewErr(common.UnknownPeer, peerUUID)
	}
	return conn.Send(channel, data)
}

// MaxMessageSize is the largest payload every active connection accepts, or 0
// if none is active.
func (c *Client) MaxMessageSize() int {
	return peer.MinMessageSize(c.Connections())
}

// RemovePeer closes the connection to peerUUID and forgets it. Envelopes from
// that peer are ignored from then on.
func (c *Client) RemovePeer(peerUUID string) error {
	conn, ok := c.connections[peerUUID]
	if !ok {
		return common.NewErr(common.UnknownPeer, peerUUID)
	}

	conn.Close()
	delete(c.connections, peerUUID)
	c.removed[peerUUID] = true

	c.logger.WithField("peer", peerUUID).Info("Peer removed")

	return nil
}

// Close ends the relay session and every connection.
func (c *Client) Close() {
	if c.closed {
		return
	}
	c.closed = true

	for _, id := range c.order {
		if conn, ok := c.connections[id]; ok {
			conn.Close()
		}
	}
	c.connections = make(map[string]*peer.Connection)

	if c.session != nil {
		c.session.Close()
	}

	c.logger.Debug("Client closed")
}

// fatal terminates the session on a protocol violation.
func (c *Client) fatal(err error) {
	if c.closed {
		return
	}

	c.logger.WithError(err).Error("Terminating session")

	if common.Is(err, common.ProtocolError) {
		c.metrics.ProtocolError()
	}

	c.Close()

	for _, o := range c.observers {
		o.OnSessionError(err)
	}
}

func (c *Client) sessionEnded(session signal.Session) {
	if c.closed || session != c.session {
		return
	}

	if c.roster == nil {
		c.fatal(common.NewErr(common.NotConnected, "relay session ended before roster"))
		return
	}

	// The links are direct now; losing the relay only stops further
	// signaling.
	c.logger.Info("Relay session ended")
	c.session = nil
}

func (c *Client) send(e signal.Envelope) error {
	if c.session == nil || c.closed {
		return common.NewErr(common.NotConnected, "relay")
	}

	data, err := signal.Encode(e)
	if err != nil {
		return err
	}

	if err := c.session.Send(data); err != nil {
		return err
	}

	c.metrics.EnvelopeSent(string(e.Type()), len(data))

	c.logger.WithFields(logrus.Fields{
		"type": e.Type(),
		"to":   e.To,
	}).Debug("Envelope sent")

	return nil
}

// HandleFrame processes one frame received from the relay. Connect feeds
// every inbound frame through it; it must be called on the control loop.
func (c *Client) HandleFrame(data []byte) {
	if c.closed {
		return
	}

	env, err := signal.Decode(data)
	if err != nil {
		c.fatal(err)
		return
	}

	c.metrics.EnvelopeReceived(string(env.Type()), len(data))

	c.logger.WithFields(logrus.Fields{
		"type": env.Type(),
		"from": env.From,
	}).Debug("Envelope received")

	switch p := env.Payload.(type) {
	case signal.QueueUpdate:
		for _, o := range c.observers {
			o.OnQueueUpdate(p.CurrentPeerCount, p.RequiredPeerCount)
		}
	case signal.Roster:
		err = c.handleRoster(p)
	case signal.SessionDescription:
		var conn *peer.Connection
		if conn, err = c.route(env); conn != nil {
			conn.HandleDescription(p)
		}
	case signal.ICECandidate:
		var conn *peer.Connection
		if conn, err = c.route(env); conn != nil {
			conn.HandleCandidate(p)
		}
	default:
		err = common.NewErr(common.ProtocolError, fmt.Sprintf("unexpected %s", env.Type()))
	}

	if err != nil {
		c.fatal(err)
	}
}

// route finds the connection a relayed envelope is meant for. It returns a
// nil connection and no error for envelopes from removed peers.
func (c *Client) route(env signal.Envelope) (*peer.Connection, error) {
	if c.roster == nil {
		return nil, common.NewErr(common.ProtocolError,
			fmt.Sprintf("%s before roster", env.Type()))
	}

	if env.To != c.roster.OwnUUID {
		return nil, common.NewErr(common.ProtocolError,
			fmt.Sprintf("%s addressed to %q", env.Type(), env.To))
	}

	if c.removed[env.From] {
		c.logger.WithField("from", env.From).Debug("Ignoring envelope from removed peer")
		return nil, nil
	}

	conn, ok := c.connections[env.From]
	if !ok {
		return nil, common.NewErr(common.ProtocolError,
			fmt.Sprintf("%s from unknown peer %q", env.Type(), env.From))
	}

	return conn, nil
}

func validateRoster(r signal.Roster) error {
	seen := make(map[string]bool, len(r.Peers))
	for _, p := range r.Peers {
		if _, err := uuid.Parse(p); err != nil {
			return common.WrapErr(common.ProtocolError, "roster peer", err)
		}
		if seen[p] {
			return common.NewErr(common.ProtocolError, fmt.Sprintf("duplicate roster peer %s", p))
		}
		seen[p] = true
	}

	if !seen[r.OwnUUID] {
		return common.NewErr(common.ProtocolError, "own uuid not in roster")
	}
	if !seen[r.HostUUID] {
		return common.NewErr(common.ProtocolError, "host uuid not in roster")
	}

	return nil
}

// targets applies the star topology: the host links to every other
// participant, a client only to the host.
func targets(r signal.Roster) []string {
	if !r.IsHost() {
		return []string{r.HostUUID}
	}

	res := make([]string, 0, len(r.Peers)-1)
	for _, p := range r.Peers {
		if p != r.OwnUUID {
			res = append(res, p)
		}
	}
	return res
}

func (c *Client) handleRoster(r signal.Roster) error {
	if c.roster != nil {
		return common.NewErr(common.ProtocolError, "second roster")
	}

	if err := validateRoster(r); err != nil {
		return err
	}

	c.roster = &r

	role := peer.Client
	if r.IsHost() {
		role = peer.Host
	}

	c.logger.WithFields(logrus.Fields{
		"own":   r.OwnUUID,
		"host":  r.HostUUID,
		"peers": len(r.Peers),
		"role":  role.String(),
	}).Info("Roster received")

	for _, o := range c.observers {
		o.OnRoster(r)
	}

	observer := &connectionObserver{c}

	var created []*peer.Connection
	for _, target := range targets(r) {
		conn, err := peer.NewConnection(target, role, c.engine, peer.Options{
			Labels:   c.labels,
			Filter:   c.filter,
			Executor: c.exec,
			Signaler: c,
			Observer: observer,
			Logger:   c.logger,
		})
		if err != nil {
			c.metrics.NegotiationError()
			c.logger.WithError(err).WithField("peer", target).Error("Creating connection")
			continue
		}

		c.connections[target] = conn
		c.order = append(c.order, target)
		created = append(created, conn)

		for _, o := range c.observers {
			o.OnNewConnection(target)
		}
	}

	for _, conn := range created {
		conn.Start()
	}

	return nil
}

// SendDescription implements peer.Signaler.
func (c *Client) SendDescription(to string, desc signal.SessionDescription) {
	c.sendSignal(to, desc)
}

// SendCandidate implements peer.Signaler.
func (c *Client) SendCandidate(to string, candidate signal.ICECandidate) {
	c.sendSignal(to, candidate)
}

func (c *Client) sendSignal(to string, p signal.Payload) {
	err := c.send(signal.Envelope{
		From:    c.OwnUUID(),
		To:      to,
		Payload: p,
	})
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"type": p.MessageType(),
			"to":   to,
		}).Warn("Dropping outbound signal")
	}
}

// connectionObserver forwards peer.Connection events to the Client's
// observers.
type connectionObserver struct {
	c *Client
}

func (o *connectionObserver) OnStateChange(peerUUID string, state peer.State) {
	o.c.metrics.ConnectionStateChanged(state.String())
	for _, obs := range o.c.observers {
		obs.OnConnectionStateChange(peerUUID, state)
	}
}

func (o *connectionObserver) OnChannelStateChange(peerUUID string, channel uint16, open bool) {
	if label := o.c.label(channel); open {
		o.c.metrics.ChannelOpened(label)
	} else {
		o.c.metrics.ChannelClosed(label)
	}
	for _, obs := range o.c.observers {
		obs.OnChannelStateChange(peerUUID, channel, open)
	}
}

func (o *connectionObserver) OnMessage(peerUUID string, channel uint16, data []byte) {
	for _, obs := range o.c.observers {
		obs.OnMessage(peerUUID, channel, data)
	}
}

func (c *Client) label(channel uint16) string {
	if int(channel) < len(c.labels) {
		return c.labels[channel]
	}
	return fmt.Sprintf("%d", channel)
}

// Labels returns the ordered channel labels.
func (c *Client) Labels() []string {
	return c.labels
}
