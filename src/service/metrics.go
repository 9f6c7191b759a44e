package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tipvault/relayer/src/domain"
)

const metricsNamespace = "relayer"

// Metrics holds the relay counters exported on /metrics.
type Metrics struct {
	relaysTotal     *prometheus.CounterVec
	relayDuration   *prometheus.HistogramVec
	reconciledTotal *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		relaysTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "relays_total",
				Help:      "The number of finished relay runs by status and error kind.",
			}, []string{"status", "kind"}),

		relayDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "relay_duration_seconds",
				Help:      "Time from request to settlement or failure.",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60},
			}, []string{"status"}),

		reconciledTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "reconciled_total",
				Help:      "The number of unresolved relays checked out-of-band, by result.",
			}, []string{"result"}),
	}
}

func (m *Metrics) ObserveRelay(r *domain.Relay, elapsed time.Duration) {
	kind := ""
	if r.ErrorKind != nil {
		kind = *r.ErrorKind
	}
	m.relaysTotal.WithLabelValues(string(r.Status), kind).Inc()
	m.relayDuration.WithLabelValues(string(r.Status)).Observe(elapsed.Seconds())
}

func (m *Metrics) IncReconciled(result string) {
	m.reconciledTotal.WithLabelValues(result).Inc()
}
