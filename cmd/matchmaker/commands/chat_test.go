package commands

import (
	"bytes"
	"errors"
	"testing"

	"github.com/mosaicnetworks/matchmaker/src/transport"
)

func TestChatOutput(t *testing.T) {
	var out bytes.Buffer
	c := newChat(&out, 0)

	c.OnQueueUpdate(1, 3)
	c.OnPeerConnected(7)
	c.OnStatusChange(transport.Connected)
	c.OnPeerDisconnected(7)

	want := "Waiting for peers: 1/3\nPeer 7 connected\nStatus: Connected\nPeer 7 disconnected\n"
	if out.String() != want {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}

func TestChatSessionErrorDoesNotBlock(t *testing.T) {
	var out bytes.Buffer
	c := newChat(&out, 0)

	first := errors.New("first")
	c.OnSessionError(first)
	c.OnSessionError(errors.New("second"))

	if err := <-c.done; err != first {
		t.Fatalf("expected the first error, got %v", err)
	}
}

func TestChannelIndex(t *testing.T) {
	labels := []string{"main", "chat"}

	if i, err := channelIndex(labels, "chat"); err != nil || i != 1 {
		t.Fatalf("chat should be channel 1, got %d %v", i, err)
	}
	if _, err := channelIndex(labels, "voice"); err == nil {
		t.Fatalf("unknown label should fail")
	}
}
