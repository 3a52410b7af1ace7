// Package metrics instruments the signaling session and the transport with
// Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector defines the interface for metrics collection
type Collector interface {
	// Signaling metrics
	EnvelopeReceived(messageType string, sizeBytes int)
	EnvelopeSent(messageType string, sizeBytes int)
	ProtocolError()
	NegotiationError()

	// Connection metrics
	ConnectionStateChanged(state string)
	ChannelOpened(label string)
	ChannelClosed(label string)

	// Transport metrics
	PacketReceived(channel string, sizeBytes int)
	PacketSent(channel string, sizeBytes int)
	PacketDropped(reason string)
	PeerConnected()
	PeerDisconnected()
	SessionTimeout()

	// Handler returns an HTTP handler for metrics endpoint
	Handler() http.Handler
}

// PrometheusCollector implements the Collector interface using Prometheus
type PrometheusCollector struct {
	registry *prometheus.Registry

	// Signaling metrics
	envelopesReceived *prometheus.CounterVec
	envelopesSent     *prometheus.CounterVec
	envelopeSize      *prometheus.HistogramVec
	protocolErrors    prometheus.Counter
	negotiationErrors prometheus.Counter

	// Connection metrics
	connectionStates *prometheus.CounterVec
	openChannels     *prometheus.GaugeVec

	// Transport metrics
	packetsReceived *prometheus.CounterVec
	packetsSent     *prometheus.CounterVec
	packetSize      *prometheus.HistogramVec
	packetsDropped  *prometheus.CounterVec
	connectedPeers  prometheus.Gauge
	sessionTimeouts prometheus.Counter
}

// NewPrometheusCollector creates a new PrometheusCollector with its own
// registry, so that several sessions can live in one process.
func NewPrometheusCollector() *PrometheusCollector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &PrometheusCollector{
		registry: reg,

		// Signaling metrics
		envelopesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matchmaker_envelopes_received_total",
				Help: "Total number of signaling envelopes received from the relay",
			},
			[]string{"type"},
		),

		envelopesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matchmaker_envelopes_sent_total",
				Help: "Total number of signaling envelopes sent to the relay",
			},
			[]string{"type"},
		),

		envelopeSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "matchmaker_envelope_size_bytes",
				Help:    "Size of signaling envelopes in bytes",
				Buckets: prometheus.ExponentialBuckets(64, 2, 10),
			},
			[]string{"direction"},
		),

		protocolErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "matchmaker_protocol_errors_total",
			Help: "Total number of fatal signaling protocol errors",
		}),

		negotiationErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "matchmaker_negotiation_errors_total",
			Help: "Total number of recoverable SDP or ICE candidate failures",
		}),

		// Connection metrics
		connectionStates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matchmaker_connection_state_transitions_total",
				Help: "Total number of peer connection state transitions by target state",
			},
			[]string{"state"},
		),

		openChannels: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "matchmaker_open_channels",
				Help: "Number of open data channels by label",
			},
			[]string{"label"},
		),

		// Transport metrics
		packetsReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matchmaker_packets_received_total",
				Help: "Total number of packets queued for the application",
			},
			[]string{"channel"},
		),

		packetsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matchmaker_packets_sent_total",
				Help: "Total number of packets sent to peers",
			},
			[]string{"channel"},
		),

		packetSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "matchmaker_packet_size_bytes",
				Help:    "Size of transport packets in bytes",
				Buckets: prometheus.ExponentialBuckets(16, 4, 8),
			},
			[]string{"direction"},
		),

		packetsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matchmaker_packets_dropped_total",
				Help: "Total number of inbound packets dropped",
			},
			[]string{"reason"},
		),

		connectedPeers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "matchmaker_connected_peers",
			Help: "Number of peers whose main channel is open",
		}),

		sessionTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "matchmaker_session_timeouts_total",
			Help: "Total number of sessions that timed out before becoming usable",
		}),
	}
}

// EnvelopeReceived records an envelope received from the relay
func (c *PrometheusCollector) EnvelopeReceived(messageType string, sizeBytes int) {
	c.envelopesReceived.WithLabelValues(messageType).Inc()
	c.envelopeSize.WithLabelValues("in").Observe(float64(sizeBytes))
}

// EnvelopeSent records an envelope sent to the relay
func (c *PrometheusCollector) EnvelopeSent(messageType string, sizeBytes int) {
	c.envelopesSent.WithLabelValues(messageType).Inc()
	c.envelopeSize.WithLabelValues("out").Observe(float64(sizeBytes))
}

// ProtocolError ...
func (c *PrometheusCollector) ProtocolError() {
	c.protocolErrors.Inc()
}

// NegotiationError ...
func (c *PrometheusCollector) NegotiationError() {
	c.negotiationErrors.Inc()
}

// ConnectionStateChanged ...
func (c *PrometheusCollector) ConnectionStateChanged(state string) {
	c.connectionStates.WithLabelValues(state).Inc()
}

// ChannelOpened ...
func (c *PrometheusCollector) ChannelOpened(label string) {
	c.openChannels.WithLabelValues(label).Inc()
}

// ChannelClosed ...
func (c *PrometheusCollector) ChannelClosed(label string) {
	c.openChannels.WithLabelValues(label).Dec()
}

// PacketReceived ...
func (c *PrometheusCollector) PacketReceived(channel string, sizeBytes int) {
	c.packetsReceived.WithLabelValues(channel).Inc()
	c.packetSize.WithLabelValues("in").Observe(float64(sizeBytes))
}

// PacketSent ...
func (c *PrometheusCollector) PacketSent(channel string, sizeBytes int) {
	c.packetsSent.WithLabelValues(channel).Inc()
	c.packetSize.WithLabelValues("out").Observe(float64(sizeBytes))
}

// PacketDropped ...
func (c *PrometheusCollector) PacketDropped(reason string) {
	c.packetsDropped.WithLabelValues(reason).Inc()
}

// PeerConnected ...
func (c *PrometheusCollector) PeerConnected() {
	c.connectedPeers.Inc()
}

// PeerDisconnected ...
func (c *PrometheusCollector) PeerDisconnected() {
	c.connectedPeers.Dec()
}

// SessionTimeout ...
func (c *PrometheusCollector) SessionTimeout() {
	c.sessionTimeouts.Inc()
}

// Registry exposes the underlying registry, mostly for tests.
func (c *PrometheusCollector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler for the metrics endpoint
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// NopCollector discards everything.
type NopCollector struct{}

func (NopCollector) EnvelopeReceived(string, int)  {}
func (NopCollector) EnvelopeSent(string, int)      {}
func (NopCollector) ProtocolError()                {}
func (NopCollector) NegotiationError()             {}
func (NopCollector) ConnectionStateChanged(string) {}
func (NopCollector) ChannelOpened(string)          {}
func (NopCollector) ChannelClosed(string)          {}
func (NopCollector) PacketReceived(string, int)    {}
func (NopCollector) PacketSent(string, int)        {}
func (NopCollector) PacketDropped(string)          {}
func (NopCollector) PeerConnected()                {}
func (NopCollector) PeerDisconnected()             {}
func (NopCollector) SessionTimeout()               {}

// Handler ...
func (NopCollector) Handler() http.Handler { return http.NotFoundHandler() }

// OrNop returns c, or a NopCollector if c is nil.
func OrNop(c Collector) Collector {
	if c == nil {
		return NopCollector{}
	}
	return c
}
