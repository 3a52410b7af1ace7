package common

import (
	"errors"
	"fmt"
)

// ErrType identifies the kind of an Err.
type ErrType uint32

const (
	// ProtocolError is a malformed or unexpected signaling envelope. It is
	// fatal to the matchmaking session.
	ProtocolError ErrType = iota
	// NegotiationError is a single SDP or ICE candidate that could not be
	// produced or applied. It only fails that sub-operation.
	NegotiationError
	// UnknownPeer ...
	UnknownPeer
	// InvalidChannel ...
	InvalidChannel
	// ChannelNotOpen ...
	ChannelNotOpen
	// Timeout ...
	Timeout
	// AlreadyRequested is returned on a second slot request in one session.
	AlreadyRequested
	// NotConnected ...
	NotConnected
	// EmptyQueue ...
	EmptyQueue
	// PacketTooLarge ...
	PacketTooLarge
	// Closed ...
	Closed
)

func (t ErrType) String() string {
	switch t {
	case ProtocolError:
		return "Protocol Error"
	case NegotiationError:
		return "Negotiation Error"
	case UnknownPeer:
		return "Unknown Peer"
	case InvalidChannel:
		return "Invalid Channel"
	case ChannelNotOpen:
		return "Channel Not Open"
	case Timeout:
		return "Timeout"
	case AlreadyRequested:
		return "Already Requested"
	case NotConnected:
		return "Not Connected"
	case EmptyQueue:
		return "Empty Queue"
	case PacketTooLarge:
		return "Packet Too Large"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Err is the error type returned by every component of the module. Subject is
// whatever the error is about (a peer UUID, a channel id, an envelope type).
type Err struct {
	errType ErrType
	subject string
	cause   error
}

// NewErr ...
func NewErr(errType ErrType, subject string) Err {
	return Err{
		errType: errType,
		subject: subject,
	}
}

// WrapErr attaches an underlying cause to a new Err.
func WrapErr(errType ErrType, subject string, cause error) Err {
	return Err{
		errType: errType,
		subject: subject,
		cause:   cause,
	}
}

// Error ...
func (e Err) Error() string {
	m := e.errType.String()
	if e.subject != "" {
		m = fmt.Sprintf("%s, %s", m, e.subject)
	}
	if e.cause != nil {
		m = fmt.Sprintf("%s: %v", m, e.cause)
	}
	return m
}

// Unwrap ...
func (e Err) Unwrap() error {
	return e.cause
}

// Type ...
func (e Err) Type() ErrType {
	return e.errType
}

// Is checks that err, or an error it wraps, is an Err of type t.
func Is(err error, t ErrType) bool {
	var e Err
	return errors.As(err, &e) && e.errType == t
}
