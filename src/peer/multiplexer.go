package peer

import (
	"fmt"
	"math"
	"strconv"

	"github.com/mosaicnetworks/matchmaker/src/common"
)

// MainChannel is the id of the channel whose opening makes a connection
// usable.
const MainChannel uint16 = 0

// ChannelState ...
type ChannelState uint8

const (
	// ChannelPending means declared but not open yet.
	ChannelPending ChannelState = iota
	// ChannelOpen ...
	ChannelOpen
	// ChannelClosed is terminal; a closed channel never reopens.
	ChannelClosed
)

func (s ChannelState) String() string {
	switch s {
	case ChannelPending:
		return "Pending"
	case ChannelOpen:
		return "Open"
	case ChannelClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Channel is one pre-declared logical stream.
type Channel struct {
	ID    uint16
	Label string
	State ChannelState
}

// Multiplexer keeps the bookkeeping of a connection's channels.
type Multiplexer struct {
	channels []Channel
	ids      map[string]uint16
}

// ValidateLabels checks that a channel label list can be used to build a
// Multiplexer.
func ValidateLabels(labels []string) error {
	if len(labels) == 0 {
		return fmt.Errorf("at least one channel label is required")
	}
	if len(labels) > math.MaxUint16 {
		return fmt.Errorf("too many channels: %d", len(labels))
	}

	seen := make(map[string]bool, len(labels))
	for i, l := range labels {
		if l == "" {
			return fmt.Errorf("channel %d has an empty label", i)
		}
		if seen[l] {
			return fmt.Errorf("duplicate channel label %q", l)
		}
		seen[l] = true
	}

	return nil
}

// NewMultiplexer declares one channel per label, with id = index.
func NewMultiplexer(labels []string) (*Multiplexer, error) {
	if err := ValidateLabels(labels); err != nil {
		return nil, err
	}

	m := &Multiplexer{
		channels: make([]Channel, len(labels)),
		ids:      make(map[string]uint16, len(labels)),
	}

	for i, l := range labels {
		m.channels[i] = Channel{ID: uint16(i), Label: l}
		m.ids[l] = uint16(i)
	}

	return m, nil
}

// Channels returns a copy of the channel table.
func (m *Multiplexer) Channels() []Channel {
	res := make([]Channel, len(m.channels))
	copy(res, m.channels)
	return res
}

// Len ...
func (m *Multiplexer) Len() int {
	return len(m.channels)
}

// ID returns the id of the channel with the given label.
func (m *Multiplexer) ID(label string) (uint16, bool) {
	id, ok := m.ids[label]
	return id, ok
}

// Label returns the label of a channel id.
func (m *Multiplexer) Label(id uint16) (string, bool) {
	if int(id) >= len(m.channels) {
		return "", false
	}
	return m.channels[id].Label, true
}

// State returns the state of a channel. Undeclared ids report
// ChannelClosed.
func (m *Multiplexer) State(id uint16) ChannelState {
	if int(id) >= len(m.channels) {
		return ChannelClosed
	}
	return m.channels[id].State
}

// Open marks a pending channel open. It returns false if the channel is
// undeclared or not pending.
func (m *Multiplexer) Open(id uint16) bool {
	if int(id) >= len(m.channels) || m.channels[id].State != ChannelPending {
		return false
	}
	m.channels[id].State = ChannelOpen
	return true
}

// Close marks a channel closed. It returns false if it was already closed or
// undeclared.
func (m *Multiplexer) Close(id uint16) bool {
	if int(id) >= len(m.channels) || m.channels[id].State == ChannelClosed {
		return false
	}
	m.channels[id].State = ChannelClosed
	return true
}

// CloseAll closes every channel and returns the ids that were open.
func (m *Multiplexer) CloseAll() []uint16 {
	var wasOpen []uint16
	for i := range m.channels {
		if m.channels[i].State == ChannelOpen {
			wasOpen = append(wasOpen, m.channels[i].ID)
		}
		m.channels[i].State = ChannelClosed
	}
	return wasOpen
}

// OpenCount ...
func (m *Multiplexer) OpenCount() int {
	n := 0
	for _, c := range m.channels {
		if c.State == ChannelOpen {
			n++
		}
	}
	return n
}

// MainOpen ...
func (m *Multiplexer) MainOpen() bool {
	return m.State(MainChannel) == ChannelOpen
}

// CheckSend returns InvalidChannel for an undeclared id and ChannelNotOpen
// for a channel that is not open.
func (m *Multiplexer) CheckSend(id uint16) error {
	if int(id) >= len(m.channels) {
		return common.NewErr(common.InvalidChannel, strconv.Itoa(int(id)))
	}
	if m.channels[id].State != ChannelOpen {
		return common.NewErr(common.ChannelNotOpen, m.channels[id].Label)
	}
	return nil
}

// MinMessageSize returns the smallest known maximum message size among the
// active connections. Connections that are not established, or whose size
// is not known yet, are ignored. It returns 0 when nothing is known.
func MinMessageSize(conns []*Connection) int {
	min := 0
	for _, c := range conns {
		if !c.Active() {
			continue
		}
		s := c.MaxMessageSize()
		if s <= 0 {
			continue
		}
		if min == 0 || s < min {
			min = s
		}
	}
	return min
}
