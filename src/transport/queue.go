package transport

// Packet is one message received from a peer.
type Packet struct {
	Peer    int
	Channel uint16
	Data    []byte
}

// Queue is the FIFO of received packets awaiting the application.
type Queue struct {
	packets []Packet
}

// Push ...
func (q *Queue) Push(p Packet) {
	q.packets = append(q.packets, p)
}

// Peek returns the head without removing it.
func (q *Queue) Peek() (Packet, bool) {
	if len(q.packets) == 0 {
		return Packet{}, false
	}
	return q.packets[0], true
}

// Pop removes and returns the head.
func (q *Queue) Pop() (Packet, bool) {
	if len(q.packets) == 0 {
		return Packet{}, false
	}
	p := q.packets[0]
	q.packets[0] = Packet{}
	q.packets = q.packets[1:]
	return p, true
}

// Len ...
func (q *Queue) Len() int {
	return len(q.packets)
}

// Purge removes every packet from peer and returns how many were removed.
// The relative order of the remaining packets is kept.
func (q *Queue) Purge(peer int) int {
	kept := q.packets[:0]
	for _, p := range q.packets {
		if p.Peer != peer {
			kept = append(kept, p)
		}
	}
	n := len(q.packets) - len(kept)
	for i := len(kept); i < len(q.packets); i++ {
		q.packets[i] = Packet{}
	}
	q.packets = kept
	return n
}

// Clear ...
func (q *Queue) Clear() {
	q.packets = nil
}
