package llm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sprachlupe_gateway_requests_total",
			Help: "Anfragen an den KI-Dienst nach Operation und Ergebnis",
		},
		[]string{"operation", "outcome"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sprachlupe_gateway_request_duration_seconds",
			Help:    "Dauer der Anfragen an den KI-Dienst",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"operation"},
	)
)

func observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if e, ok := err.(*Error); ok {
			outcome = string(e.Kind)
		}
	}
	requestCount.WithLabelValues(op, outcome).Inc()
	requestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
