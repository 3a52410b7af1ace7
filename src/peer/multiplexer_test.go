package peer

import (
	"testing"

	"github.com/mosaicnetworks/matchmaker/src/common"
	"github.com/stretchr/testify/assert"
)

func TestNewMultiplexer(t *testing.T) {
	assert := assert.New(t)

	m, err := NewMultiplexer([]string{"main", "chat", "state"})
	assert.NoError(err)
	assert.Equal(3, m.Len())

	for i, l := range []string{"main", "chat", "state"} {
		id, ok := m.ID(l)
		assert.True(ok)
		assert.Equal(uint16(i), id)

		label, ok := m.Label(uint16(i))
		assert.True(ok)
		assert.Equal(l, label)

		assert.Equal(ChannelPending, m.State(uint16(i)))
	}

	_, ok := m.Label(3)
	assert.False(ok)
}

func TestMultiplexerLabelValidation(t *testing.T) {
	for _, labels := range [][]string{
		nil,
		{},
		{"main", ""},
		{"main", "chat", "main"},
	} {
		if _, err := NewMultiplexer(labels); err == nil {
			t.Fatalf("labels %v should be rejected", labels)
		}
	}
}

func TestChannelLifecycle(t *testing.T) {
	m, _ := NewMultiplexer([]string{"main", "chat"})

	if err := m.CheckSend(5); !common.Is(err, common.InvalidChannel) {
		t.Fatalf("undeclared channel should be InvalidChannel, not %v", err)
	}
	if err := m.CheckSend(1); !common.Is(err, common.ChannelNotOpen) {
		t.Fatalf("pending channel should be ChannelNotOpen, not %v", err)
	}

	if !m.Open(1) {
		t.Fatalf("pending channel should open")
	}
	if err := m.CheckSend(1); err != nil {
		t.Fatalf("open channel should accept sends: %v", err)
	}
	if m.MainOpen() {
		t.Fatalf("main channel is still pending")
	}

	if !m.Close(1) {
		t.Fatalf("open channel should close")
	}
	if m.Open(1) {
		t.Fatalf("closed channel should never reopen")
	}
	if err := m.CheckSend(1); !common.Is(err, common.ChannelNotOpen) {
		t.Fatalf("closed channel should be ChannelNotOpen, not %v", err)
	}

	m.Open(0)
	wasOpen := m.CloseAll()
	if len(wasOpen) != 1 || wasOpen[0] != 0 {
		t.Fatalf("CloseAll should report only the main channel, not %v", wasOpen)
	}
	if m.OpenCount() != 0 {
		t.Fatalf("no channel should be open")
	}
}
