// Package transport presents the peer connections of a matchmaking session as
// a single multi-peer transport.
//
// Peers are identified by integer PeerIDs: the host is always 1, everybody
// else gets a distinct random positive id when its UUID becomes known.
// Received packets from every peer and channel go through one FIFO that the
// application polls. Outgoing packets are addressed by setting a sticky
// target peer and transfer channel before each Send.
package transport

import (
	"math"
	"strconv"

	"github.com/mosaicnetworks/matchmaker/src/common"
	"github.com/mosaicnetworks/matchmaker/src/matchmaker"
	"github.com/mosaicnetworks/matchmaker/src/metrics"
	"github.com/mosaicnetworks/matchmaker/src/net/signal"
	"github.com/mosaicnetworks/matchmaker/src/peer"
	"github.com/sirupsen/logrus"
)

// Broadcast is the target peer that sends to every connected peer. A
// negative target -id sends to every connected peer except id.
const Broadcast = 0

// Session is the part of the matchmaking client the Adapter drives.
type Session interface {
	Send(peerUUID string, channel uint16, data []byte) error
	MaxMessageSize() int
	RemovePeer(peerUUID string) error
	Labels() []string
	Close()
}

// Observer is notified of transport events on the control loop.
type Observer interface {
	OnPeerConnected(id int)
	OnPeerDisconnected(id int)
	OnStatusChange(status Status)
}

// Options configures an Adapter.
type Options struct {
	ReadyPolicy ReadyPolicy
	IDSource    IDSource
	Metrics     metrics.Collector
	Logger      *logrus.Entry
}

// Adapter implements matchmaker.Observer and turns its events into the
// transport view. It is not safe for concurrent use; all methods must be
// called on the control loop.
type Adapter struct {
	matchmaker.BaseObserver

	session Session
	policy  ReadyPolicy
	table   *TranslationTable
	queue   Queue
	metrics metrics.Collector
	logger  *logrus.Entry

	ownID    int
	isServer bool
	rostered bool
	closed   bool
	status   Status

	// peers we hold a connection to, and those whose main channel is open
	expected map[string]bool
	ready    map[string]bool

	targetPeer      int
	hasTarget       bool
	transferChannel uint16

	observers []Observer
}

// NewAdapter ...
func NewAdapter(session Session, opts Options) *Adapter {
	source := opts.IDSource
	if source == nil {
		source = NewRandomIDSource()
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	return &Adapter{
		session:  session,
		policy:   opts.ReadyPolicy,
		table:    NewTranslationTable(source),
		metrics:  metrics.OrNop(opts.Metrics),
		logger:   logger,
		expected: make(map[string]bool),
		ready:    make(map[string]bool),
	}
}

// AddObserver ...
func (a *Adapter) AddObserver(o Observer) {
	a.observers = append(a.observers, o)
}

// Status ...
func (a *Adapter) Status() Status {
	return a.status
}

// UniqueID is our own PeerID, or 0 before the roster.
func (a *Adapter) UniqueID() int {
	return a.ownID
}

// IsServer reports whether we are the session host.
func (a *Adapter) IsServer() bool {
	return a.isServer
}

// PeerID returns the PeerID of a UUID.
func (a *Adapter) PeerID(uuid string) (int, bool) {
	return a.table.ID(uuid)
}

// PeerUUID returns the UUID of a PeerID.
func (a *Adapter) PeerUUID(id int) (string, bool) {
	return a.table.UUID(id)
}

// ConnectedPeers returns the ids of peers whose main channel is open.
func (a *Adapter) ConnectedPeers() []int {
	res := make([]int, 0, len(a.ready))
	for uuid := range a.ready {
		if id, ok := a.table.ID(uuid); ok {
			res = append(res, id)
		}
	}
	return res
}

// MaxPacketSize is the largest payload Send accepts, bounded by the weakest
// active link. It is 0 while no link is active.
func (a *Adapter) MaxPacketSize() int {
	return a.session.MaxMessageSize()
}

// OnRoster implements matchmaker.Observer. Ids are assigned for ourselves and
// every peer we will connect to, before any of them can deliver a packet.
func (a *Adapter) OnRoster(r signal.Roster) {
	if a.closed {
		return
	}

	a.rostered = true
	a.isServer = r.IsHost()

	id, err := a.table.Assign(r.OwnUUID, a.isServer)
	if err != nil {
		a.logger.WithError(err).Error("Assigning own id")
		return
	}
	a.ownID = id

	if !a.isServer {
		if _, err := a.table.Assign(r.HostUUID, true); err != nil {
			a.logger.WithError(err).Error("Assigning host id")
		}
	}

	a.logger.WithFields(logrus.Fields{
		"id":     a.ownID,
		"server": a.isServer,
	}).Info("Transport ids assigned")

	a.updateStatus()
}

// OnNewConnection implements matchmaker.Observer.
func (a *Adapter) OnNewConnection(uuid string) {
	if a.closed {
		return
	}

	host := a.rostered && !a.isServer
	id, err := a.table.Assign(uuid, host)
	if err != nil {
		a.logger.WithError(err).WithField("peer", uuid).Error("Assigning peer id")
		return
	}

	a.expected[uuid] = true

	a.logger.WithFields(logrus.Fields{
		"peer": uuid,
		"id":   id,
	}).Debug("Expecting peer")

	a.updateStatus()
}

// OnChannelStateChange implements matchmaker.Observer. The main channel
// drives peer connection and disconnection.
func (a *Adapter) OnChannelStateChange(uuid string, channel uint16, open bool) {
	if channel != peer.MainChannel {
		return
	}

	id, ok := a.table.ID(uuid)
	if !ok || !a.expected[uuid] {
		return
	}

	if open {
		if a.ready[uuid] {
			return
		}
		a.ready[uuid] = true
		a.metrics.PeerConnected()

		a.logger.WithField("peer", id).Info("Peer connected")

		for _, o := range a.observers {
			o.OnPeerConnected(id)
		}
		a.updateStatus()
		return
	}

	// A closed main channel never reopens.
	a.disconnect(uuid, id)
}

// OnMessage implements matchmaker.Observer.
func (a *Adapter) OnMessage(uuid string, channel uint16, data []byte) {
	label := a.label(channel)

	id, ok := a.table.ID(uuid)
	if !ok {
		a.metrics.PacketDropped("unknown_peer")
		a.logger.WithField("peer", uuid).Debug("Dropping packet from unknown peer")
		return
	}

	a.queue.Push(Packet{Peer: id, Channel: channel, Data: data})
	a.metrics.PacketReceived(label, len(data))
}

// OnSessionError implements matchmaker.Observer.
func (a *Adapter) OnSessionError(err error) {
	a.shutdown()
}

// AvailablePacketCount ...
func (a *Adapter) AvailablePacketCount() int {
	return a.queue.Len()
}

// PeekPeer returns the PeerID of the next packet, or -1 if the queue is
// empty.
func (a *Adapter) PeekPeer() int {
	p, ok := a.queue.Peek()
	if !ok {
		a.logger.Error("PeekPeer on empty queue")
		return -1
	}
	return p.Peer
}

// PeekChannel returns the channel of the next packet, or -1 if the queue is
// empty.
func (a *Adapter) PeekChannel() int {
	p, ok := a.queue.Peek()
	if !ok {
		a.logger.Error("PeekChannel on empty queue")
		return -1
	}
	return int(p.Channel)
}

// DequeuePayload removes the next packet and returns its data.
func (a *Adapter) DequeuePayload() ([]byte, error) {
	p, err := a.DequeuePacket()
	if err != nil {
		return nil, err
	}
	return p.Data, nil
}

// DequeuePacket removes and returns the next packet.
func (a *Adapter) DequeuePacket() (Packet, error) {
	p, ok := a.queue.Pop()
	if !ok {
		err := common.NewErr(common.EmptyQueue, "")
		a.logger.WithError(err).Error("Dequeue on empty queue")
		return Packet{}, err
	}
	return p, nil
}

// SetTargetPeer sets the destination of the next Send: a PeerID, Broadcast,
// or -id for everybody but id.
func (a *Adapter) SetTargetPeer(id int) {
	a.targetPeer = id
	a.hasTarget = true
}

// SetTransferChannel sets the channel of the next Send.
func (a *Adapter) SetTransferChannel(channel int) error {
	if channel < 0 || channel > math.MaxUint16 || channel >= len(a.session.Labels()) {
		return common.NewErr(common.InvalidChannel, strconv.Itoa(channel))
	}
	a.transferChannel = uint16(channel)
	return nil
}

// TransferChannel ...
func (a *Adapter) TransferChannel() int {
	return int(a.transferChannel)
}

// Send writes data to the target peer on the transfer channel, then clears
// both.
func (a *Adapter) Send(data []byte) error {
	target, hasTarget, channel := a.targetPeer, a.hasTarget, a.transferChannel
	a.targetPeer, a.hasTarget, a.transferChannel = 0, false, 0

	if a.closed {
		return common.NewErr(common.Closed, "transport")
	}
	if !hasTarget {
		return common.NewErr(common.UnknownPeer, "no target")
	}

	if max := a.MaxPacketSize(); max > 0 && len(data) > max {
		return common.NewErr(common.PacketTooLarge,
			strconv.Itoa(len(data))+" > "+strconv.Itoa(max))
	}

	if target > 0 {
		uuid, ok := a.table.UUID(target)
		if !ok || target == a.ownID {
			return common.NewErr(common.UnknownPeer, strconv.Itoa(target))
		}
		return a.sendTo(uuid, channel, data)
	}

	return a.broadcast(-target, channel, data)
}

func (a *Adapter) sendTo(uuid string, channel uint16, data []byte) error {
	if err := a.session.Send(uuid, channel, data); err != nil {
		return err
	}
	a.metrics.PacketSent(a.label(channel), len(data))
	return nil
}

// broadcast sends to every connected peer except the one with id except.
func (a *Adapter) broadcast(except int, channel uint16, data []byte) error {
	var (
		firstErr error
		sent     int
	)

	for uuid := range a.ready {
		id, ok := a.table.ID(uuid)
		if !ok || id == except {
			continue
		}
		if err := a.sendTo(uuid, channel, data); err != nil {
			a.logger.WithError(err).WithField("peer", id).Warn("Broadcast")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sent++
	}

	if sent == 0 && firstErr == nil {
		return common.NewErr(common.NotConnected, "no connected peer")
	}

	return firstErr
}

// DisconnectPeer tears down the connection to id, forgets its PeerID and
// drops its queued packets.
func (a *Adapter) DisconnectPeer(id int) error {
	uuid, ok := a.table.UUID(id)
	if !ok || id == a.ownID {
		return common.NewErr(common.UnknownPeer, strconv.Itoa(id))
	}

	a.disconnect(uuid, id)

	return nil
}

// disconnect removes the table entry first so that packets and channel
// events arriving during teardown find no peer and are dropped.
func (a *Adapter) disconnect(uuid string, id int) {
	wasReady := a.ready[uuid]

	a.table.Remove(uuid)
	delete(a.expected, uuid)
	delete(a.ready, uuid)

	purged := a.queue.Purge(id)

	if err := a.session.RemovePeer(uuid); err != nil {
		a.logger.WithError(err).WithField("peer", uuid).Debug("Removing peer")
	}

	a.logger.WithFields(logrus.Fields{
		"peer":   id,
		"purged": purged,
	}).Info("Peer disconnected")

	if wasReady {
		a.metrics.PeerDisconnected()
		for _, o := range a.observers {
			o.OnPeerDisconnected(id)
		}
	}

	a.updateStatus()
}

// Close ends the session.
func (a *Adapter) Close() {
	if a.closed {
		return
	}
	a.session.Close()
	a.shutdown()
}

func (a *Adapter) shutdown() {
	if a.closed {
		return
	}
	a.closed = true
	a.queue.Clear()
	a.updateStatus()
}

func (a *Adapter) computeStatus() Status {
	if a.closed || !a.rostered || len(a.expected) == 0 {
		return Disconnected
	}
	if a.policy.satisfied(len(a.ready), len(a.expected)) {
		return Connected
	}
	return Connecting
}

func (a *Adapter) updateStatus() {
	s := a.computeStatus()
	if s == a.status {
		return
	}
	a.status = s

	a.logger.WithField("status", s.String()).Info("Transport status")

	for _, o := range a.observers {
		o.OnStatusChange(s)
	}
}

func (a *Adapter) label(channel uint16) string {
	labels := a.session.Labels()
	if int(channel) < len(labels) {
		return labels[channel]
	}
	return strconv.Itoa(int(channel))
}
