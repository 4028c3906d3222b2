// Package metrics holds the Prometheus collectors of the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the relay. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Control channel
	MessagesReceived *prometheus.CounterVec
	ProtocolErrors   *prometheus.CounterVec
	SendFailures     *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
	ActivePeers      prometheus.Gauge
	SessionsCreated  prometheus.Counter

	// Media channel
	DatagramsReceived *prometheus.CounterVec
	DatagramsDropped  *prometheus.CounterVec
	DatagramsSent     *prometheus.CounterVec
	MediaSendFailures *prometheus.CounterVec
	MixSources        prometheus.Histogram
	AudioBuffersSwept prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MessagesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "meetrelay_messages_received_total",
			Help: "Control messages received, by type",
		}, []string{"type"}),
		ProtocolErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "meetrelay_protocol_errors_total",
			Help: "Control connections closed on a protocol error, by reason",
		}, []string{"reason"}),
		SendFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "meetrelay_send_failures_total",
			Help: "Control messages that could not be queued for a peer, by action taken",
		}, []string{"action"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "meetrelay_active_sessions",
			Help: "Current number of meetings",
		}),
		ActivePeers: f.NewGauge(prometheus.GaugeOpts{
			Name: "meetrelay_active_peers",
			Help: "Current number of connected participants",
		}),
		SessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "meetrelay_sessions_created_total",
			Help: "Total number of meetings created",
		}),

		DatagramsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "meetrelay_datagrams_received_total",
			Help: "Media datagrams received, by kind",
		}, []string{"kind"}),
		DatagramsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "meetrelay_datagrams_dropped_total",
			Help: "Media datagrams dropped on arrival, by reason",
		}, []string{"reason"}),
		DatagramsSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "meetrelay_datagrams_sent_total",
			Help: "Media datagrams sent, by kind",
		}, []string{"kind"}),
		MediaSendFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "meetrelay_media_send_failures_total",
			Help: "Media datagram writes that failed, by kind",
		}, []string{"kind"}),
		MixSources: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "meetrelay_mix_sources",
			Help:    "Number of sources summed into one personalised mix",
			Buckets: prometheus.LinearBuckets(1, 1, 8),
		}),
		AudioBuffersSwept: f.NewCounter(prometheus.CounterOpts{
			Name: "meetrelay_audio_buffers_swept_total",
			Help: "Stale audio buffers removed by the sweep",
		}),
	}
}

func (m *Metrics) RecordMessage(msgType string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(msgType).Inc()
}

func (m *Metrics) RecordProtocolError(reason string) {
	if m == nil {
		return
	}
	m.ProtocolErrors.WithLabelValues(reason).Inc()
}

// RecordSendFailure counts a control message that did not reach a peer.
func (m *Metrics) RecordSendFailure(action string) {
	if m == nil {
		return
	}
	m.SendFailures.WithLabelValues(action).Inc()
}

func (m *Metrics) RecordSessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
}

// SetActive sets the session and peer gauges.
func (m *Metrics) SetActive(sessions, peers int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(sessions))
	m.ActivePeers.Set(float64(peers))
}

func (m *Metrics) RecordDatagram(kind string) {
	if m == nil {
		return
	}
	m.DatagramsReceived.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordDatagramDropped(reason string) {
	if m == nil {
		return
	}
	m.DatagramsDropped.WithLabelValues(reason).Inc()
}

// RecordMediaSent counts one datagram write and whether it failed.
func (m *Metrics) RecordMediaSent(kind string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.MediaSendFailures.WithLabelValues(kind).Inc()
		return
	}
	m.DatagramsSent.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordMix(sources int) {
	if m == nil {
		return
	}
	m.MixSources.Observe(float64(sources))
}

func (m *Metrics) RecordSwept(n int) {
	if m == nil {
		return
	}
	m.AudioBuffersSwept.Add(float64(n))
}
