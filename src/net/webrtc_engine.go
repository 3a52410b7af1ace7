package net

import (
	"github.com/mosaicnetworks/matchmaker/src/peer"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
)

// WebRTCEngine implements peer.Engine with pion. Every Link is a
// PeerConnection whose data channels are detached and read in their own
// goroutines.
type WebRTCEngine struct {
	api    *webrtc.API
	config webrtc.Configuration
	logger *logrus.Entry
}

// NewWebRTCEngine creates an engine that gathers candidates through the given
// ICE servers.
func NewWebRTCEngine(iceServers []webrtc.ICEServer, logger *logrus.Entry) *WebRTCEngine {
	// Create a SettingEngine and enable Detach
	s := webrtc.SettingEngine{}
	s.DetachDataChannels()

	return &WebRTCEngine{
		api: webrtc.NewAPI(webrtc.WithSettingEngine(s)),
		config: webrtc.Configuration{
			ICEServers: iceServers,
		},
		logger: logger,
	}
}

// NewLink implements peer.Engine.
func (e *WebRTCEngine) NewLink(peerUUID string, events peer.LinkEvents) (peer.Link, error) {
	pc, err := e.api.NewPeerConnection(e.config)
	if err != nil {
		return nil, err
	}

	return newWebRTCLink(pc, events, e.logger.WithField("peer", peerUUID)), nil
}
