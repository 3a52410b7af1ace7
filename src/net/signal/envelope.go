package signal

import (
	"fmt"

	"github.com/mosaicnetworks/matchmaker/src/common"
	"github.com/ugorji/go/codec"
)

// MessageType is the value of the "type" field of an Envelope.
type MessageType string

const (
	// TypeSlotRequest asks the relay to place us in a named queue.
	TypeSlotRequest MessageType = "MatchMakerRequest"
	// TypeRoster carries the session roster once the queue is full.
	TypeRoster MessageType = "MatchMakerResponse"
	// TypeQueueUpdate reports progress of the queue we are waiting in.
	TypeQueueUpdate MessageType = "MatchMakerUpdate"
	// TypeSessionDescription carries an SDP offer or answer.
	TypeSessionDescription MessageType = "SessionDescription"
	// TypeICECandidate carries one trickled ICE candidate.
	TypeICECandidate MessageType = "ICECandidate"
)

const (
	// MatchMakerAddress is the "to" field of a slot request.
	MatchMakerAddress = "MatchMaker"
	// UnknownAddress is the "from" field used before the relay has assigned
	// us a UUID.
	UnknownAddress = "UNKNOWN"
)

// Payload is implemented by the message body of each envelope type.
type Payload interface {
	MessageType() MessageType
}

// SlotRequest ...
type SlotRequest struct {
	Name string `json:"name"`
}

// Roster is the one-time matchmaking result. Peers includes OwnUUID.
type Roster struct {
	OwnUUID  string   `json:"ownUUID"`
	HostUUID string   `json:"hostUUID"`
	Peers    []string `json:"peers"`
}

// IsHost ...
func (r Roster) IsHost() bool {
	return r.OwnUUID == r.HostUUID
}

// QueueUpdate ...
type QueueUpdate struct {
	CurrentPeerCount  int `json:"currentPeerCount"`
	RequiredPeerCount int `json:"requiredPeerCount"`
}

// SDPKind ...
type SDPKind string

const (
	// Offer ...
	Offer SDPKind = "offer"
	// Answer ...
	Answer SDPKind = "answer"
)

// SessionDescription ...
type SessionDescription struct {
	Kind SDPKind `json:"kind"`
	SDP  string  `json:"sdp"`
}

// ICECandidate is one trickled candidate. MediaID and Index identify the
// media section the candidate belongs to.
type ICECandidate struct {
	MediaID   string `json:"mediaId"`
	Index     uint16 `json:"index"`
	Candidate string `json:"candidate"`
}

func (SlotRequest) MessageType() MessageType        { return TypeSlotRequest }
func (Roster) MessageType() MessageType             { return TypeRoster }
func (QueueUpdate) MessageType() MessageType        { return TypeQueueUpdate }
func (SessionDescription) MessageType() MessageType { return TypeSessionDescription }
func (ICECandidate) MessageType() MessageType       { return TypeICECandidate }

// Envelope is one signaling message. The type on the wire is derived from the
// Payload.
type Envelope struct {
	From    string
	To      string
	Payload Payload
}

// Type ...
func (e Envelope) Type() MessageType {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.MessageType()
}

// frame is the wire layout of an Envelope.
type frame struct {
	Type string `json:"type"`
	From string `json:"from"`
	To   string `json:"to"`
	JSON string `json:"json"`
}

var jsonHandle = &codec.JsonHandle{}

func marshal(v interface{}) ([]byte, error) {
	var b []byte
	enc := codec.NewEncoderBytes(&b, jsonHandle)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return b, nil
}

func unmarshal(data []byte, v interface{}) error {
	dec := codec.NewDecoderBytes(data, jsonHandle)
	return dec.Decode(v)
}

// Encode serializes an Envelope into a relay frame.
func Encode(e Envelope) ([]byte, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("envelope has no payload")
	}

	body, err := marshal(e.Payload)
	if err != nil {
		return nil, err
	}

	return marshal(frame{
		Type: string(e.Type()),
		From: e.From,
		To:   e.To,
		JSON: string(body),
	})
}

// Decode parses a relay frame. Any frame that is not valid JSON, carries an
// unknown type, or whose body does not match its type returns a
// ProtocolError.
func Decode(data []byte) (Envelope, error) {
	var f frame
	if err := unmarshal(data, &f); err != nil {
		return Envelope{}, common.WrapErr(common.ProtocolError, "frame", err)
	}

	payload, err := decodePayload(MessageType(f.Type), []byte(f.JSON))
	if err != nil {
		return Envelope{}, err
	}

	return Envelope{
		From:    f.From,
		To:      f.To,
		Payload: payload,
	}, nil
}

func decodePayload(t MessageType, body []byte) (Payload, error) {
	if len(body) == 0 {
		return nil, common.NewErr(common.ProtocolError, fmt.Sprintf("%s: empty body", t))
	}

	var (
		payload Payload
		err     error
	)

	switch t {
	case TypeSlotRequest:
		var p SlotRequest
		err = unmarshal(body, &p)
		payload = p
	case TypeRoster:
		var p Roster
		err = unmarshal(body, &p)
		payload = p
	case TypeQueueUpdate:
		var p QueueUpdate
		err = unmarshal(body, &p)
		payload = p
	case TypeSessionDescription:
		var p SessionDescription
		err = unmarshal(body, &p)
		if err == nil && p.Kind != Offer && p.Kind != Answer {
			err = fmt.Errorf("unknown sdp kind %q", p.Kind)
		}
		payload = p
	case TypeICECandidate:
		var p ICECandidate
		err = unmarshal(body, &p)
		payload = p
	default:
		return nil, common.NewErr(common.ProtocolError, fmt.Sprintf("unknown type %q", t))
	}

	if err != nil {
		return nil, common.WrapErr(common.ProtocolError, string(t), err)
	}

	return payload, nil
}
