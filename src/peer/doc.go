// Package peer implements the negotiation and channel lifecycle of a single
// link to a remote participant.
//
// A Connection drives one offer/answer exchange through a Link provided by an
// Engine (the WebRTC implementation lives in the net package). The local
// host always offers and clients always answer. ICE candidates trickle in
// both directions: local candidates are forwarded as soon as the local
// description has gone out, remote candidates are filtered by an ice.Policy
// and held back until the remote description is applied.
//
// Every Link is created with the same ordered list of pre-negotiated data
// channels. Channel i carries label labels[i]. Channel 0 is the main channel
// and its opening is the signal that the connection is usable.
//
// Connections are not safe for concurrent use. Engine callbacks are
// marshalled onto the owner's control loop through a common.Executor, and all
// exported methods must be called from that loop.
package peer
