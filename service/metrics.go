package service

import (
	"time"

	"download-gate-service/domain"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "download_gate"

	outcomeAllowed = "allowed"
	outcomeDenied  = "denied"
)

type Metrics struct {
	admissions       *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
}

func NewMetrics(registerer prometheus.Registerer) (Metrics, error) {
	m := Metrics{
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "admissions_total",
			Help:      "Admission decisions by outcome and deny reason",
		}, []string{"outcome", "reason"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "upstream_duration_seconds",
			Help:      "Duration of calls to the extraction API",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"result"}),
	}
	for _, collector := range []prometheus.Collector{m.admissions, m.upstreamDuration} {
		err := registerer.Register(collector)
		if err != nil {
			return Metrics{}, errors.WithMessage(err, "register collector")
		}
	}
	return m, nil
}

func (m Metrics) ObserveAdmission(event domain.AdmissionEvent) {
	if event.Allow {
		m.admissions.WithLabelValues(outcomeAllowed, "").Inc()
		return
	}
	m.admissions.WithLabelValues(outcomeDenied, string(event.Reason)).Inc()
}

func (m Metrics) ObserveUpstream(result string, duration time.Duration) {
	m.upstreamDuration.WithLabelValues(result).Observe(duration.Seconds())
}

func (m Metrics) Admissions() *prometheus.CounterVec {
	return m.admissions
}
