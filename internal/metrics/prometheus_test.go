package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordMediaSent(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordMediaSent("audio", nil)
	m.RecordMediaSent("audio", nil)
	m.RecordMediaSent("audio", errors.New("boom"))

	if got := testutil.ToFloat64(m.DatagramsSent.WithLabelValues("audio")); got != 2 {
		t.Errorf("expected 2 sent, got %v", got)
	}
	if got := testutil.ToFloat64(m.MediaSendFailures.WithLabelValues("audio")); got != 1 {
		t.Errorf("expected 1 failure, got %v", got)
	}
}

func TestSetActive(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.SetActive(3, 7)
	if got := testutil.ToFloat64(m.ActivePeers); got != 7 {
		t.Errorf("expected 7 peers, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordMessage("chat")
	m.RecordSwept(4)
	m.SetActive(1, 1)
}

func TestSeparateRegistries(t *testing.T) {
	// Two instances on distinct registries must not collide.
	NewMetrics(prometheus.NewRegistry())
	NewMetrics(prometheus.NewRegistry())
}
