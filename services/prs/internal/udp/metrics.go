package udp

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"prsd/pkg/prsproto"
	"prsd/services/prs/internal/lease"
)

// Metrics holds the collectors for the reservation service. It also observes
// lease events to keep the active gauge current.
type Metrics struct {
	requests        *prometheus.CounterVec
	protocolErrors  prometheus.Counter
	transportErrors *prometheus.CounterVec
	duration        prometheus.Histogram
	active          prometheus.Gauge
	expired         prometheus.Counter
}

// NewMetrics registers the collectors with reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "prs_requests_total",
			Help: "Requests handled, by message kind and response status.",
		}, []string{"kind", "status"}),
		protocolErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "prs_protocol_errors_total",
			Help: "Datagrams that could not be decoded.",
		}),
		transportErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "prs_transport_errors_total",
			Help: "Socket receive and send failures.",
		}, []string{"op"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "prs_request_duration_seconds",
			Help:    "Time spent sweeping and handling one request.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
		active: f.NewGauge(prometheus.GaugeOpts{
			Name: "prs_leases_active",
			Help: "Slots currently leased.",
		}),
		expired: f.NewCounter(prometheus.CounterOpts{
			Name: "prs_leases_expired_total",
			Help: "Leases reclaimed by the expiry sweep.",
		}),
	}
}

func (m *Metrics) LeaseEvent(e lease.Event) {
	if m == nil {
		return
	}
	switch e.Type {
	case lease.EventAllocated:
		m.active.Inc()
	case lease.EventReleased:
		m.active.Dec()
	case lease.EventExpired:
		m.active.Dec()
		m.expired.Inc()
	}
}

func (m *Metrics) observeRequest(kind prsproto.MessageType, status prsproto.Status, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(kind.String(), status.String()).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) protocolError() {
	if m == nil {
		return
	}
	m.protocolErrors.Inc()
}

func (m *Metrics) transportError(op string) {
	if m == nil {
		return
	}
	m.transportErrors.WithLabelValues(op).Inc()
}
