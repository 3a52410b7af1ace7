package commands

import (
	"bufio"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mosaicnetworks/matchmaker/src/node"
	"github.com/mosaicnetworks/matchmaker/src/transport"
)

const pollInterval = 50 * time.Millisecond

// chat prints session events and relays stdin lines to every connected peer.
// It implements node.Observer.
type chat struct {
	out     io.Writer
	channel int

	mu sync.Mutex

	// receives the error that ended the session
	done chan error
}

func newChat(out io.Writer, channel int) *chat {
	return &chat{
		out:     out,
		channel: channel,
		done:    make(chan error, 1),
	}
}

func (c *chat) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *chat) OnQueueUpdate(current, required int) {
	c.printf("Waiting for peers: %d/%d\n", current, required)
}

func (c *chat) OnPeerConnected(id int) {
	c.printf("Peer %d connected\n", id)
}

func (c *chat) OnPeerDisconnected(id int) {
	c.printf("Peer %d disconnected\n", id)
}

func (c *chat) OnStatusChange(s transport.Status) {
	c.printf("Status: %s\n", s)
}

func (c *chat) OnSessionError(err error) {
	c.printf("Session ended: %v\n", err)
	select {
	case c.done <- err:
	default:
	}
}

// readInput broadcasts every line read from in.
func (c *chat) readInput(n *node.Node, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		var err error
		ok := n.Do(func(a *transport.Adapter) {
			err = c.send(a, []byte(line))
		})
		if !ok {
			return
		}
		if err != nil {
			c.printf("Error sending: %v\n", err)
		}
	}
}

func (c *chat) send(a *transport.Adapter, data []byte) error {
	a.SetTargetPeer(transport.Broadcast)
	if err := a.SetTransferChannel(c.channel); err != nil {
		return err
	}
	return a.Send(data)
}

// poll prints received packets until the node shuts down.
func (c *chat) poll(n *node.Node) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for range ticker.C {
		var packets []transport.Packet
		ok := n.Do(func(a *transport.Adapter) {
			packets = drain(a)
		})
		if !ok {
			return
		}
		for _, p := range packets {
			c.printf("[%d] %s\n", p.Peer, p.Data)
		}
	}
}

func drain(a *transport.Adapter) []transport.Packet {
	var res []transport.Packet
	for a.AvailablePacketCount() > 0 {
		p, err := a.DequeuePacket()
		if err != nil {
			break
		}
		res = append(res, p)
	}
	return res
}
