package matchmaker

import (
	"context"
	"testing"
	"time"

	"github.com/mosaicnetworks/matchmaker/src/common"
	"github.com/mosaicnetworks/matchmaker/src/ice"
	"github.com/mosaicnetworks/matchmaker/src/net/signal"
	"github.com/mosaicnetworks/matchmaker/src/peer"
)

const (
	hostUUID = "6f1c1a34-5a1f-4d5e-9a8e-0c4f2a0b7a11"
	c1UUID   = "b0d7c3e2-8f0a-4c57-9b3d-2e6c5d4f1a22"
	c2UUID   = "e4a2f6b8-1c3d-4e5f-8a7b-9c0d1e2f3a33"
)

type recordingObserver struct {
	BaseObserver
	updates     [][2]int
	rosters     []signal.Roster
	connections []string
	errors      []error
	channels    map[string]bool
	messages    []string
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{channels: make(map[string]bool)}
}

func (o *recordingObserver) OnQueueUpdate(current, required int) {
	o.updates = append(o.updates, [2]int{current, required})
}

func (o *recordingObserver) OnRoster(r signal.Roster) {
	o.rosters = append(o.rosters, r)
}

func (o *recordingObserver) OnNewConnection(peerUUID string) {
	o.connections = append(o.connections, peerUUID)
}

func (o *recordingObserver) OnChannelStateChange(peerUUID string, channel uint16, open bool) {
	if channel == peer.MainChannel {
		o.channels[peerUUID] = open
	}
}

func (o *recordingObserver) OnMessage(peerUUID string, channel uint16, data []byte) {
	o.messages = append(o.messages, string(data))
}

func (o *recordingObserver) OnSessionError(err error) {
	o.errors = append(o.errors, err)
}

type fixture struct {
	client   *Client
	session  *signal.InmemSession
	engine   *peer.InmemEngine
	observer *recordingObserver
}

// newFixture returns a client whose relay session is already installed.
func newFixture(t *testing.T, filter ice.Policy) *fixture {
	session := signal.NewInmemSession()
	engine := peer.NewInmemEngine()

	client, err := NewClient(&signal.InmemDialer{Session: session}, engine, common.InlineExecutor{}, Options{
		Labels: []string{"main", "chat"},
		Filter: filter,
		Logger: common.NewTestEntry(t, "matchmaker"),
	})
	if err != nil {
		t.Fatal(err)
	}
	client.session = session

	obs := newRecordingObserver()
	client.AddObserver(obs)

	return &fixture{
		client:   client,
		session:  session,
		engine:   engine,
		observer: obs,
	}
}

func frame(t *testing.T, e signal.Envelope) []byte {
	data, err := signal.Encode(e)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func (f *fixture) roster(t *testing.T, own string, peers ...string) {
	f.client.HandleFrame(frame(t, signal.Envelope{
		From:    signal.MatchMakerAddress,
		To:      own,
		Payload: signal.Roster{OwnUUID: own, HostUUID: hostUUID, Peers: peers},
	}))
}

func (f *fixture) relay(t *testing.T, from, to string, p signal.Payload) {
	f.client.HandleFrame(frame(t, signal.Envelope{From: from, To: to, Payload: p}))
}

func sentOfType(session *signal.InmemSession, mt signal.MessageType) []signal.Envelope {
	var res []signal.Envelope
	for _, e := range session.Sent() {
		if e.Type() == mt {
			res = append(res, e)
		}
	}
	return res
}

func TestSendSlotRequest(t *testing.T) {
	f := newFixture(t, ice.All)

	if err := f.client.SendSlotRequest("chess"); err != nil {
		t.Fatal(err)
	}

	sent := f.session.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected one frame, got %d", len(sent))
	}
	if sent[0].From != signal.UnknownAddress || sent[0].To != signal.MatchMakerAddress {
		t.Fatalf("slot request should go from UNKNOWN to MatchMaker, got %s -> %s", sent[0].From, sent[0].To)
	}
	if req, ok := sent[0].Payload.(signal.SlotRequest); !ok || req.Name != "chess" {
		t.Fatalf("unexpected payload %#v", sent[0].Payload)
	}

	if err := f.client.SendSlotRequest("chess"); !common.Is(err, common.AlreadyRequested) {
		t.Fatalf("second request should return AlreadyRequested, not %v", err)
	}
	if len(f.session.Sent()) != 1 {
		t.Fatalf("second request should not be sent")
	}
}

func TestSendSlotRequestNotConnected(t *testing.T) {
	client, _ := NewClient(&signal.InmemDialer{}, peer.NewInmemEngine(), common.InlineExecutor{}, Options{
		Labels: []string{"main"},
		Logger: common.NewTestEntry(t, "matchmaker"),
	})

	if err := client.SendSlotRequest("chess"); !common.Is(err, common.NotConnected) {
		t.Fatalf("expected NotConnected, got %v", err)
	}
}

func TestQueueUpdate(t *testing.T) {
	f := newFixture(t, ice.All)

	f.client.HandleFrame(frame(t, signal.Envelope{
		From:    signal.MatchMakerAddress,
		To:      c1UUID,
		Payload: signal.QueueUpdate{CurrentPeerCount: 2, RequiredPeerCount: 3},
	}))

	if len(f.observer.updates) != 1 || f.observer.updates[0] != [2]int{2, 3} {
		t.Fatalf("unexpected updates %v", f.observer.updates)
	}
}

func TestHostStarTopology(t *testing.T) {
	f := newFixture(t, ice.All)

	f.roster(t, hostUUID, hostUUID, c1UUID, c2UUID)

	if !f.client.IsHost() {
		t.Fatalf("own uuid equals host uuid, should be host")
	}
	if f.engine.LinkCount() != 2 {
		t.Fatalf("host should create exactly 2 links, got %d", f.engine.LinkCount())
	}
	if f.engine.Link(hostUUID) != nil {
		t.Fatalf("host should not link to itself")
	}
	if len(f.observer.connections) != 2 || len(f.observer.rosters) != 1 {
		t.Fatalf("observer should see the roster and 2 connections")
	}

	offers := sentOfType(f.session, signal.TypeSessionDescription)
	if len(offers) != 2 {
		t.Fatalf("expected 2 offers, got %d", len(offers))
	}
	targets := map[string]bool{}
	for _, o := range offers {
		if o.From != hostUUID {
			t.Fatalf("offer should be sent from the host uuid, not %s", o.From)
		}
		if d := o.Payload.(signal.SessionDescription); d.Kind != signal.Offer {
			t.Fatalf("host should send offers, not %s", d.Kind)
		}
		targets[o.To] = true
	}
	if !targets[c1UUID] || !targets[c2UUID] {
		t.Fatalf("offers should target C1 and C2, got %v", targets)
	}
}

func TestClientStarTopology(t *testing.T) {
	f := newFixture(t, ice.All)

	f.roster(t, c1UUID, hostUUID, c1UUID, c2UUID)

	if f.client.IsHost() {
		t.Fatalf("client should not be host")
	}
	if f.engine.LinkCount() != 1 || f.engine.Link(hostUUID) == nil {
		t.Fatalf("client should link only to the host")
	}
	if len(f.session.Sent()) != 0 {
		t.Fatalf("client should wait for an offer")
	}

	f.relay(t, hostUUID, c1UUID, signal.SessionDescription{Kind: signal.Offer, SDP: "offer"})

	answers := sentOfType(f.session, signal.TypeSessionDescription)
	if len(answers) != 1 {
		t.Fatalf("expected one answer, got %d", len(answers))
	}
	if answers[0].To != hostUUID || answers[0].From != c1UUID {
		t.Fatalf("answer should go from C1 to H, got %s -> %s", answers[0].From, answers[0].To)
	}
	if d := answers[0].Payload.(signal.SessionDescription); d.Kind != signal.Answer {
		t.Fatalf("client should answer, not %s", d.Kind)
	}
}

func TestCandidatesRoutedAndFiltered(t *testing.T) {
	f := newFixture(t, ice.RelayOnly)

	f.roster(t, hostUUID, hostUUID, c1UUID, c2UUID)
	f.relay(t, c1UUID, hostUUID, signal.SessionDescription{Kind: signal.Answer, SDP: "answer"})

	f.relay(t, c1UUID, hostUUID, signal.ICECandidate{Candidate: "candidate:1 1 udp 1 10.0.0.1 1 typ host"})
	f.relay(t, c1UUID, hostUUID, signal.ICECandidate{Candidate: "candidate:2 1 udp 1 10.0.0.2 2 typ relay"})

	if got := f.engine.Link(c1UUID).Candidates(); len(got) != 1 {
		t.Fatalf("only the relay candidate should reach C1's link, got %v", got)
	}
	if got := f.engine.Link(c2UUID).Candidates(); len(got) != 0 {
		t.Fatalf("C2's link should not see C1's candidates")
	}
}

func TestLocalCandidatesRelayed(t *testing.T) {
	f := newFixture(t, ice.All)

	f.roster(t, c1UUID, hostUUID, c1UUID)
	f.relay(t, hostUUID, c1UUID, signal.SessionDescription{Kind: signal.Offer, SDP: "offer"})

	f.engine.Link(hostUUID).EmitCandidate(signal.ICECandidate{MediaID: "0", Candidate: "candidate:1 1 udp 1 10.0.0.1 1 typ host"})

	cands := sentOfType(f.session, signal.TypeICECandidate)
	if len(cands) != 1 || cands[0].To != hostUUID || cands[0].From != c1UUID {
		t.Fatalf("local candidate should be relayed to the host, got %v", cands)
	}
}

func TestProtocolErrorsAreFatal(t *testing.T) {
	cases := map[string]func(t *testing.T, f *fixture){
		"garbage": func(t *testing.T, f *fixture) {
			f.client.HandleFrame([]byte("{{{"))
		},
		"unknown type": func(t *testing.T, f *fixture) {
			f.client.HandleFrame([]byte(`{"type":"Hello","from":"a","to":"b","json":"{}"}`))
		},
		"slot request from relay": func(t *testing.T, f *fixture) {
			f.relay(t, hostUUID, c1UUID, signal.SlotRequest{Name: "x"})
		},
		"signal before roster": func(t *testing.T, f *fixture) {
			f.relay(t, hostUUID, c1UUID, signal.SessionDescription{Kind: signal.Offer, SDP: "offer"})
		},
		"second roster": func(t *testing.T, f *fixture) {
			f.roster(t, c1UUID, hostUUID, c1UUID)
			f.roster(t, c1UUID, hostUUID, c1UUID)
		},
		"invalid uuid": func(t *testing.T, f *fixture) {
			f.client.HandleFrame(frame(t, signal.Envelope{
				Payload: signal.Roster{OwnUUID: "me", HostUUID: "me", Peers: []string{"me"}},
			}))
		},
		"own not in roster": func(t *testing.T, f *fixture) {
			f.roster(t, c2UUID, hostUUID, c1UUID)
		},
		"unknown sender": func(t *testing.T, f *fixture) {
			f.roster(t, c1UUID, hostUUID, c1UUID, c2UUID)
			f.relay(t, c2UUID, c1UUID, signal.ICECandidate{Candidate: "typ host"})
		},
		"misaddressed": func(t *testing.T, f *fixture) {
			f.roster(t, c1UUID, hostUUID, c1UUID)
			f.relay(t, hostUUID, c2UUID, signal.SessionDescription{Kind: signal.Offer, SDP: "offer"})
		},
	}

	for name, run := range cases {
		f := newFixture(t, ice.All)
		run(t, f)

		if len(f.observer.errors) != 1 || !common.Is(f.observer.errors[0], common.ProtocolError) {
			t.Fatalf("%s: expected one ProtocolError, got %v", name, f.observer.errors)
		}
		if !f.session.Closed() {
			t.Fatalf("%s: session should be closed", name)
		}
		if len(f.client.Connections()) != 0 {
			t.Fatalf("%s: no connection should survive", name)
		}
		if err := f.client.SendSlotRequest("x"); !common.Is(err, common.NotConnected) {
			t.Fatalf("%s: client should be disconnected, got %v", name, err)
		}
	}
}

func TestProtocolErrorClosesConnections(t *testing.T) {
	f := newFixture(t, ice.All)

	f.roster(t, hostUUID, hostUUID, c1UUID, c2UUID)
	f.client.HandleFrame([]byte("not json"))

	for _, id := range []string{c1UUID, c2UUID} {
		if !f.engine.Link(id).Closed() {
			t.Fatalf("link to %s should be closed", id)
		}
	}

	// nothing happens after termination
	f.client.HandleFrame([]byte("still not json"))
	if len(f.observer.errors) != 1 {
		t.Fatalf("only one error should be reported")
	}
}

func TestRemovePeer(t *testing.T) {
	f := newFixture(t, ice.All)

	f.roster(t, hostUUID, hostUUID, c1UUID, c2UUID)
	if err := f.client.RemovePeer(c1UUID); err != nil {
		t.Fatal(err)
	}
	if !f.engine.Link(c1UUID).Closed() {
		t.Fatalf("link to C1 should be closed")
	}

	// late answer from the removed peer is not an error
	f.relay(t, c1UUID, hostUUID, signal.SessionDescription{Kind: signal.Answer, SDP: "answer"})
	if len(f.observer.errors) != 0 {
		t.Fatalf("envelopes from removed peers should be ignored, got %v", f.observer.errors)
	}

	if err := f.client.Send(c1UUID, 0, []byte("x")); !common.Is(err, common.UnknownPeer) {
		t.Fatalf("sending to a removed peer should return UnknownPeer, not %v", err)
	}
	if err := f.client.RemovePeer(c1UUID); !common.Is(err, common.UnknownPeer) {
		t.Fatalf("removing twice should return UnknownPeer, not %v", err)
	}
}

func TestSendAndMaxMessageSize(t *testing.T) {
	f := newFixture(t, ice.All)

	f.roster(t, hostUUID, hostUUID, c1UUID, c2UUID)
	f.relay(t, c1UUID, hostUUID, signal.SessionDescription{Kind: signal.Answer, SDP: "a1"})
	f.relay(t, c2UUID, hostUUID, signal.SessionDescription{Kind: signal.Answer, SDP: "a2"})

	if f.client.MaxMessageSize() != 0 {
		t.Fatalf("no link is up yet")
	}

	l1, l2 := f.engine.Link(c1UUID), f.engine.Link(c2UUID)
	l1.SetMaxMessageSize(65536)
	l2.SetMaxMessageSize(16384)
	l1.Establish()
	l2.Establish()

	if got := f.client.MaxMessageSize(); got != 16384 {
		t.Fatalf("expected 16384, got %d", got)
	}
	if !f.observer.channels[c1UUID] || !f.observer.channels[c2UUID] {
		t.Fatalf("observer should see both main channels open")
	}

	if err := f.client.Send(c2UUID, 1, []byte("hi")); err != nil {
		t.Fatal(err)
	}
	if sent := l2.Sent(); len(sent) != 1 || sent[0].Channel != 1 {
		t.Fatalf("unexpected packets on C2 link: %v", sent)
	}
	if err := f.client.Send(c2UUID, 9, []byte("hi")); !common.Is(err, common.InvalidChannel) {
		t.Fatalf("expected InvalidChannel, got %v", err)
	}

	l1.Receive(0, []byte("from c1"))
	if len(f.observer.messages) != 1 || f.observer.messages[0] != "from c1" {
		t.Fatalf("message should reach the observer, got %v", f.observer.messages)
	}
}

func TestRelayLossAfterRoster(t *testing.T) {
	f := newFixture(t, ice.All)

	f.roster(t, c1UUID, hostUUID, c1UUID)
	f.client.sessionEnded(f.session)

	if len(f.observer.errors) != 0 {
		t.Fatalf("losing the relay after the roster is not an error")
	}
	if len(f.client.Connections()) != 1 {
		t.Fatalf("connections should survive the relay")
	}
}

func TestRelayLossBeforeRoster(t *testing.T) {
	f := newFixture(t, ice.All)

	f.client.sessionEnded(f.session)

	if len(f.observer.errors) != 1 || !common.Is(f.observer.errors[0], common.NotConnected) {
		t.Fatalf("losing the relay before the roster should report NotConnected, got %v", f.observer.errors)
	}
}

func TestConnectListens(t *testing.T) {
	session := signal.NewInmemSession()
	dialer := &signal.InmemDialer{Session: session}
	exec := &common.QueueExecutor{}

	client, _ := NewClient(dialer, peer.NewInmemEngine(), exec, Options{
		Labels: []string{"main"},
		Logger: common.NewTestEntry(t, "matchmaker"),
	})
	obs := newRecordingObserver()
	client.AddObserver(obs)

	if err := client.Connect(context.Background(), "ws://relay:33333"); err != nil {
		t.Fatal(err)
	}
	if dialer.Address != "ws://relay:33333" {
		t.Fatalf("dialer should receive the address")
	}

	session.Deliver(frame(t, signal.Envelope{
		From:    signal.MatchMakerAddress,
		To:      c1UUID,
		Payload: signal.QueueUpdate{CurrentPeerCount: 1, RequiredPeerCount: 2},
	}))

	deadline := time.Now().Add(5 * time.Second)
	for len(obs.updates) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("queue update should reach the observer")
		}
		time.Sleep(10 * time.Millisecond)
		exec.Drain()
	}

	if !client.Connected() {
		t.Fatalf("client should be connected")
	}

	client.Close()
	exec.Drain()
}
