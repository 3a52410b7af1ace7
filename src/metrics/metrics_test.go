package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCollector(t *testing.T) {
	c := NewPrometheusCollector()

	c.EnvelopeReceived("SessionDescription", 1200)
	c.EnvelopeReceived("SessionDescription", 800)
	c.EnvelopeSent("ICECandidate", 150)
	c.PacketDropped("unknown_peer")
	c.PeerConnected()
	c.PeerConnected()
	c.PeerDisconnected()

	if got := testutil.ToFloat64(c.envelopesReceived.WithLabelValues("SessionDescription")); got != 2 {
		t.Fatalf("expected 2 envelopes received, got %v", got)
	}
	if got := testutil.ToFloat64(c.connectedPeers); got != 1 {
		t.Fatalf("expected 1 connected peer, got %v", got)
	}

	// two collectors must not collide on registration
	other := NewPrometheusCollector()
	other.SessionTimeout()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Result().Body)
	if !strings.Contains(string(body), "matchmaker_packets_dropped_total") {
		t.Fatalf("metrics endpoint should expose dropped packets")
	}
}

func TestOrNop(t *testing.T) {
	if _, ok := OrNop(nil).(NopCollector); !ok {
		t.Fatalf("nil collector should become a NopCollector")
	}
	c := NewPrometheusCollector()
	if OrNop(c) != Collector(c) {
		t.Fatalf("non-nil collector should be returned as is")
	}
}
