// Package node assembles a matchmaking participant.
//
// A Node owns the control loop, the matchmaking client, the transport adapter
// and the session supervisor.
//
// Control loop
//
// Every event, whether an envelope from the relay, a link or channel event
// from the WebRTC engine, or a supervisor expiry, is dispatched onto a single
// Loop and handled there, one at a time. Blocking engine work runs in
// Background goroutines and dispatches its result back onto the loop. The
// application reaches the transport from other goroutines with Node.Do.
//
// Supervisor
//
// The Supervisor is armed when the roster arrives and disarmed when the
// transport first reports Connected. If it expires first, the session is
// closed and the application receives a Timeout error through
// Observer.OnSessionError.
package node
