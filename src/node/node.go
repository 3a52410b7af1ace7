package node

import (
	"context"
	"sort"
	"strconv"

	"github.com/mosaicnetworks/matchmaker/src/config"
	"github.com/mosaicnetworks/matchmaker/src/matchmaker"
	"github.com/mosaicnetworks/matchmaker/src/metrics"
	"github.com/mosaicnetworks/matchmaker/src/net"
	"github.com/mosaicnetworks/matchmaker/src/net/signal"
	"github.com/mosaicnetworks/matchmaker/src/net/signal/ws"
	"github.com/mosaicnetworks/matchmaker/src/peer"
	"github.com/mosaicnetworks/matchmaker/src/transport"
	"github.com/sirupsen/logrus"
)

// Observer receives Node events. Methods are called on the control loop,
// except during Shutdown where they are called on the caller's goroutine.
type Observer interface {
	transport.Observer

	// OnQueueUpdate reports the progress of the slot request.
	OnQueueUpdate(current, required int)

	// OnSessionError reports the end of the session, through a relay
	// protocol violation or a Timeout.
	OnSessionError(err error)
}

// Node is a matchmaking participant. It joins a slot on the relay, connects
// to its peers and exposes them through a transport.Adapter.
type Node struct {
	state

	conf    *config.Config
	logger  *logrus.Entry
	metrics metrics.Collector

	loop       *Loop
	client     *matchmaker.Client
	adapter    *transport.Adapter
	supervisor *Supervisor

	app Observer
}

// NewNode wires a Node on top of the given relay dialer and peer engine.
func NewNode(conf *config.Config,
	dialer signal.Dialer,
	engine peer.Engine,
	collector metrics.Collector,
	app Observer,
) (*Node, error) {

	if err := conf.Validate(); err != nil {
		return nil, err
	}

	filter, err := conf.Filter()
	if err != nil {
		return nil, err
	}

	ready, err := conf.Ready()
	if err != nil {
		return nil, err
	}

	logger := conf.Logger()
	collector = metrics.OrNop(collector)
	loop := NewLoop()

	client, err := matchmaker.NewClient(dialer, engine, loop, matchmaker.Options{
		Labels:  conf.Channels,
		Filter:  filter,
		Metrics: collector,
		Logger:  logger.WithField("prefix", "client"),
	})
	if err != nil {
		return nil, err
	}

	adapter := transport.NewAdapter(client, transport.Options{
		ReadyPolicy: ready,
		Metrics:     collector,
		Logger:      logger.WithField("prefix", "transport"),
	})

	n := &Node{
		conf:    conf,
		logger:  logger,
		metrics: collector,
		loop:    loop,
		client:  client,
		adapter: adapter,
		app:     app,
	}

	n.supervisor = NewTimeoutSupervisor(loop,
		n.onTimeout,
		collector,
		logger.WithField("prefix", "supervisor"))

	// The adapter must see the roster and session errors before the node.
	client.AddObserver(adapter)
	client.AddObserver(&clientObserver{n: n})
	adapter.AddObserver(&transportObserver{n: n})

	return n, nil
}

// NewWebRTCNode returns a Node that reaches the relay over a websocket and its
// peers over WebRTC data channels.
func NewWebRTCNode(conf *config.Config, collector metrics.Collector, app Observer) (*Node, error) {
	logger := conf.Logger()

	dialer := ws.NewDialer(conf.DialTimeout, logger.WithField("prefix", "signal"))
	engine := net.NewWebRTCEngine(conf.WebRTCICEServers(), logger.WithField("prefix", "webrtc"))

	return NewNode(conf, dialer, engine, collector, app)
}

// Start dials the relay and requests the configured slot. Run must be
// running, or be started afterwards, for the request to go out.
func (n *Node) Start(ctx context.Context) error {
	go n.supervisor.Run()

	n.logger.WithFields(logrus.Fields{
		"signal": n.conf.SignalAddr,
		"slot":   n.conf.Slot,
	}).Debug("Start")

	if err := n.client.Connect(ctx, n.conf.SignalAddr); err != nil {
		return err
	}

	n.loop.Dispatch(func() {
		if err := n.client.SendSlotRequest(n.conf.Slot); err != nil {
			n.logger.WithError(err).Error("Requesting slot")
			n.notifySessionError(err)
			return
		}
		n.setState(Waiting)
	})

	return nil
}

// Run invokes the control loop. It returns when ctx is done or after
// Shutdown.
func (n *Node) Run(ctx context.Context) error {
	return n.loop.Run(ctx)
}

// Do runs f on the control loop with the transport adapter and waits for it
// to return. It returns false if the node was shut down first. It must not be
// called from the control loop.
func (n *Node) Do(f func(a *transport.Adapter)) bool {
	return n.loop.Do(func() {
		f(n.adapter)
	})
}

// State ...
func (n *Node) State() State {
	return n.getState()
}

// Shutdown stops the control loop, closes every connection and the relay
// session. It must not be called from the control loop.
func (n *Node) Shutdown() {
	if n.getState() == Shutdown {
		return
	}

	n.logger.Debug("Shutdown")

	n.setState(Shutdown)

	n.loop.Shutdown()
	n.supervisor.Shutdown()

	// The loop is stopped; nothing else touches the adapter now.
	n.adapter.Close()

	n.loop.Wait()
}

func (n *Node) onTimeout(err error) {
	n.adapter.Close()
	n.notifySessionError(err)
}

func (n *Node) notifySessionError(err error) {
	if n.app != nil {
		n.app.OnSessionError(err)
	}
}

type clientObserver struct {
	matchmaker.BaseObserver
	n *Node
}

func (o *clientObserver) OnQueueUpdate(current, required int) {
	o.n.logger.WithFields(logrus.Fields{
		"current":  current,
		"required": required,
	}).Info("Queue update")

	if o.n.app != nil {
		o.n.app.OnQueueUpdate(current, required)
	}
}

func (o *clientObserver) OnRoster(r signal.Roster) {
	o.n.setState(Negotiating)
	o.n.supervisor.Arm(o.n.conf.Timeout)
}

func (o *clientObserver) OnSessionError(err error) {
	o.n.supervisor.Disarm()
	o.n.notifySessionError(err)
}

type transportObserver struct {
	n *Node
}

func (o *transportObserver) OnPeerConnected(id int) {
	if o.n.app != nil {
		o.n.app.OnPeerConnected(id)
	}
}

func (o *transportObserver) OnPeerDisconnected(id int) {
	if o.n.app != nil {
		o.n.app.OnPeerDisconnected(id)
	}
}

func (o *transportObserver) OnStatusChange(s transport.Status) {
	if s == transport.Connected {
		o.n.supervisor.Disarm()
		if o.n.getState() == Negotiating {
			o.n.setState(Connected)
		}
	}

	if o.n.app != nil {
		o.n.app.OnStatusChange(s)
	}
}

// PeerInfo describes a connected peer.
type PeerInfo struct {
	ID   int    `json:"id"`
	UUID string `json:"uuid"`
}

// GetStats returns a snapshot of the session. It must not be called from the
// control loop.
func (n *Node) GetStats() map[string]string {
	stats := map[string]string{
		"state": n.getState().String(),
		"slot":  n.conf.Slot,
	}

	n.Do(func(a *transport.Adapter) {
		stats["status"] = a.Status().String()
		stats["unique_id"] = strconv.Itoa(a.UniqueID())
		stats["is_server"] = strconv.FormatBool(a.IsServer())
		stats["connected_peers"] = strconv.Itoa(len(a.ConnectedPeers()))
		stats["available_packets"] = strconv.Itoa(a.AvailablePacketCount())
		stats["max_packet_size"] = strconv.Itoa(a.MaxPacketSize())
	})

	return stats
}

// GetPeers returns the peers whose main channel is open, sorted by id. It
// must not be called from the control loop.
func (n *Node) GetPeers() []PeerInfo {
	var res []PeerInfo

	n.Do(func(a *transport.Adapter) {
		for _, id := range a.ConnectedPeers() {
			uuid, _ := a.PeerUUID(id)
			res = append(res, PeerInfo{ID: id, UUID: uuid})
		}
	})

	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })

	return res
}
