package admission

import "github.com/prometheus/client_golang/prometheus"

var (
	failOpenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kokorod",
			Subsystem: "admission",
			Name:      "failopen_total",
			Help:      "Admission checks skipped because the counter store was unavailable",
		},
		[]string{"component"},
	)

	queueDepthGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kokorod",
			Subsystem: "admission",
			Name:      "queue_depth",
			Help:      "Last observed shared queue depth",
		},
	)
)

func init() {
	prometheus.MustRegister(failOpenTotal, queueDepthGauge)
}
