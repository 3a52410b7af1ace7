package transport

import "testing"

func TestQueuePurgeKeepsOrder(t *testing.T) {
	var q Queue
	for i, peer := range []int{3, 5, 3, 7, 5} {
		q.Push(Packet{Peer: peer, Channel: uint16(i)})
	}

	if n := q.Purge(5); n != 2 {
		t.Fatalf("expected 2 purged, got %d", n)
	}

	want := []uint16{0, 2, 3}
	for _, ch := range want {
		p, ok := q.Pop()
		if !ok || p.Channel != ch {
			t.Fatalf("expected channel %d, got %+v", ch, p)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatalf("queue should be empty")
	}
}
