package scheduler

import "github.com/prometheus/client_golang/prometheus"

const (
	reasonDuplicate   = "duplicate_request"
	reasonRateLimited = "rate_limited"
	reasonStopped     = "stopped"

	outcomeOK    = "ok"
	outcomeError = "error"
)

type metrics struct {
	accepted   prometheus.Counter
	rejected   *prometheus.CounterVec
	processed  *prometheus.CounterVec
	queueDepth prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dsq",
			Name:      "requests_accepted_total",
			Help:      "Number of submissions admitted to the dispatch queue.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dsq",
			Name:      "requests_rejected_total",
			Help:      "Number of submissions rejected at admission, by reason.",
		}, []string{"reason"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dsq",
			Name:      "requests_processed_total",
			Help:      "Number of dispatched requests, by processing outcome.",
		}, []string{"outcome"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dsq",
			Name:      "queue_depth",
			Help:      "Number of requests currently waiting for dispatch.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.accepted, m.rejected, m.processed, m.queueDepth)
	}

	return m
}
