// Package signal defines the messages exchanged with the matchmaking relay
// and the session primitive that carries them.
//
// Every frame on the relay session is a JSON Envelope:
//
//	{"type": "...", "from": "...", "to": "...", "json": "..."}
//
// where json is itself a JSON document whose schema depends on type. The
// relay forwards SessionDescription and ICECandidate envelopes verbatim to
// the participant named in "to", and produces MatchMakerUpdate and
// MatchMakerResponse envelopes itself.
//
// The Session interface abstracts the relay connection. The ws subpackage
// implements it over a websocket; InmemSession is used in tests.
package signal
