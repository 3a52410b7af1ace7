// Package net implements the peer.Engine on top of WebRTC.
//
// A WebRTCEngine creates one pion PeerConnection per remote participant. Data
// channels are negotiated out of band: every participant declares the same
// ordered list of labels, and channel i gets stream id i on both sides, so no
// in-band DATA_CHANNEL_OPEN exchange is needed.
//
// Channels are detached from the pion callback API. Each open channel is read
// by its own goroutine which forwards messages to the LinkEvents; a read error
// means the channel closed.
//
// WebRTC
//
// Because the matchmaker is a peer-to-peer application, it can run into issues
// with NATs and firewalls. The WebRTC engine addresses the NAT traversal issue,
// but it requires centralised servers for peers to exchange connection
// information and to provide STUN/TURN services. The matchmaking relay plays
// the first role; STUN and TURN servers are set with the ice-servers option
// (cf config package).
//
// Message size
//
// The largest message a link accepts is read from the a=max-message-size
// attribute of the remote description, defaulting to 65536 bytes when absent
// and capped to what the local stack accepts.
package net
