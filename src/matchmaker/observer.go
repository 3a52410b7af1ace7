package matchmaker

import (
	"github.com/mosaicnetworks/matchmaker/src/net/signal"
	"github.com/mosaicnetworks/matchmaker/src/peer"
)

// Observer receives Client events. All methods are called on the control
// loop.
type Observer interface {
	// OnQueueUpdate reports how many participants are waiting in our slot.
	OnQueueUpdate(current, required int)

	// OnRoster is called once, before any connection is created.
	OnRoster(roster signal.Roster)

	// OnNewConnection is called for every connection created from the
	// roster, before negotiation starts.
	OnNewConnection(peerUUID string)

	OnConnectionStateChange(peerUUID string, state peer.State)
	OnChannelStateChange(peerUUID string, channel uint16, open bool)
	OnMessage(peerUUID string, channel uint16, data []byte)

	// OnSessionError reports a fatal error. The session and every
	// connection are already closed when it is called.
	OnSessionError(err error)
}

// BaseObserver implements Observer with no-ops. Embed it to implement only
// some of the methods.
type BaseObserver struct{}

func (BaseObserver) OnQueueUpdate(current, required int)                             {}
func (BaseObserver) OnRoster(roster signal.Roster)                                   {}
func (BaseObserver) OnNewConnection(peerUUID string)                                 {}
func (BaseObserver) OnConnectionStateChange(peerUUID string, state peer.State)       {}
func (BaseObserver) OnChannelStateChange(peerUUID string, channel uint16, open bool) {}
func (BaseObserver) OnMessage(peerUUID string, channel uint16, data []byte)          {}
func (BaseObserver) OnSessionError(err error)                                        {}
