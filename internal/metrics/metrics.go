// Package metrics provides Prometheus metrics for an OrderNet node.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "ordernet"
)

// Metrics contains all Prometheus metrics for a node.
type Metrics struct {
	// Chat metrics
	MessagesSent     prometheus.Counter
	MessagesReceived prometheus.Counter
	MessagesDropped  *prometheus.CounterVec
	MessageSendLatency prometheus.Histogram

	// Presence metrics
	PeersOnline        prometheus.Gauge
	PresenceAnnounces  prometheus.Counter
	PresenceReceived   prometheus.Counter
	PeerPrunes         prometheus.Counter

	// Trust metrics
	VouchesCreated      prometheus.Counter
	VouchesReceived     prometheus.Counter
	VouchesRejected     *prometheus.CounterVec
	JoinRequestsCreated prometheus.Counter
	ThresholdsReached   prometheus.Counter

	// Key exchange metrics
	KeyExchangesSent      prometheus.Counter
	KeyExchangesReceived  prometheus.Counter
	KeyExchangeErrors     *prometheus.CounterVec

	// Storage metrics
	StorageErrors *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the process-wide default metrics instance, registered
// against prometheus.DefaultRegisterer on first use.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a new Metrics instance registered against the
// default Prometheus registerer.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance with a custom
// registry, for isolated testing or multi-node-in-one-process demos.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		MessagesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Total chat messages encrypted, signed, and published",
		}),
		MessagesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total chat messages accepted after verify-decrypt-dedup",
		}),
		MessagesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Total inbound chat messages dropped, by reason",
		}, []string{"reason"}),
		MessageSendLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_send_latency_seconds",
			Help:      "Histogram of encrypt+sign+publish latency for outgoing messages",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}),

		PeersOnline: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers_online",
			Help:      "Number of peers currently believed online",
		}),
		PresenceAnnounces: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_announces_total",
			Help:      "Total presence announcements published by this node",
		}),
		PresenceReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_received_total",
			Help:      "Total presence announcements accepted from peers",
		}),
		PeerPrunes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_prunes_total",
			Help:      "Total peers pruned from the online table for exceeding the TTL",
		}),

		VouchesCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vouches_created_total",
			Help:      "Total vouches created and signed by this node",
		}),
		VouchesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vouches_received_total",
			Help:      "Total vouches accepted from peers after signature verification",
		}),
		VouchesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vouches_rejected_total",
			Help:      "Total vouches rejected, by reason",
		}, []string{"reason"}),
		JoinRequestsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "join_requests_created_total",
			Help:      "Total join requests recorded",
		}),
		ThresholdsReached: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vouch_thresholds_reached_total",
			Help:      "Total join requests whose vouch threshold was met",
		}),

		KeyExchangesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_exchanges_sent_total",
			Help:      "Total group-key exchange payloads sent to newly-approved members",
		}),
		KeyExchangesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_exchanges_received_total",
			Help:      "Total group-key exchange payloads accepted and decrypted",
		}),
		KeyExchangeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_exchange_errors_total",
			Help:      "Total key exchange payloads discarded, by reason",
		}, []string{"reason"}),

		StorageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Total non-idempotent storage errors surfaced to the event bus",
		}, []string{"table"}),
	}
}

// RecordMessageSent records a successfully published outbound chat message.
func (m *Metrics) RecordMessageSent(latencySeconds float64) {
	m.MessagesSent.Inc()
	m.MessageSendLatency.Observe(latencySeconds)
}

// RecordMessageReceived records a chat message accepted into history.
func (m *Metrics) RecordMessageReceived() {
	m.MessagesReceived.Inc()
}

// RecordMessageDropped records an inbound chat message dropped for reason
// (e.g. "dedup", "access-denied", "bad-signature", "malformed").
func (m *Metrics) RecordMessageDropped(reason string) {
	m.MessagesDropped.WithLabelValues(reason).Inc()
}

// RecordPresenceAnnounce records this node publishing a presence announcement.
func (m *Metrics) RecordPresenceAnnounce() {
	m.PresenceAnnounces.Inc()
}

// RecordPresenceReceived records an accepted presence announcement from a peer.
func (m *Metrics) RecordPresenceReceived() {
	m.PresenceReceived.Inc()
}

// SetPeersOnline sets the current online-peer gauge.
func (m *Metrics) SetPeersOnline(count int) {
	m.PeersOnline.Set(float64(count))
}

// RecordPeerPrune records a peer being pruned from the online table.
func (m *Metrics) RecordPeerPrune() {
	m.PeerPrunes.Inc()
}

// RecordVouchCreated records a vouch this node created.
func (m *Metrics) RecordVouchCreated() {
	m.VouchesCreated.Inc()
}

// RecordVouchReceived records a vouch accepted from a peer.
func (m *Metrics) RecordVouchReceived() {
	m.VouchesReceived.Inc()
}

// RecordVouchRejected records a vouch rejected for reason (e.g.
// "bad-signature", "duplicate").
func (m *Metrics) RecordVouchRejected(reason string) {
	m.VouchesRejected.WithLabelValues(reason).Inc()
}

// RecordJoinRequestCreated records a new join request recorded locally.
func (m *Metrics) RecordJoinRequestCreated() {
	m.JoinRequestsCreated.Inc()
}

// RecordThresholdReached records a join request crossing its vouch threshold.
func (m *Metrics) RecordThresholdReached() {
	m.ThresholdsReached.Inc()
}

// RecordKeyExchangeSent records this node sending a group-key exchange payload.
func (m *Metrics) RecordKeyExchangeSent() {
	m.KeyExchangesSent.Inc()
}

// RecordKeyExchangeReceived records an accepted, decrypted key exchange payload.
func (m *Metrics) RecordKeyExchangeReceived() {
	m.KeyExchangesReceived.Inc()
}

// RecordKeyExchangeError records a discarded key exchange payload, by reason
// (e.g. "wrong-recipient", "bad-signature", "aead-failure").
func (m *Metrics) RecordKeyExchangeError(reason string) {
	m.KeyExchangeErrors.WithLabelValues(reason).Inc()
}

// RecordStorageError records a non-idempotent storage write failure.
func (m *Metrics) RecordStorageError(table string) {
	m.StorageErrors.WithLabelValues(table).Inc()
}
