package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	loadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kokorod",
			Subsystem: "engine",
			Name:      "loads_total",
			Help:      "Model load attempts by result",
		},
		[]string{"result"},
	)

	loadedGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kokorod",
			Subsystem: "engine",
			Name:      "loaded",
			Help:      "1 when the model is loaded",
		},
	)

	synthesisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kokorod",
			Subsystem: "engine",
			Name:      "synthesis_duration_seconds",
			Help:      "Wall time of synthesis jobs on the worker pool",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"result"},
	)

	busyWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kokorod",
			Subsystem: "engine",
			Name:      "busy_workers",
			Help:      "Inference workers currently running a job",
		},
	)
)

func init() {
	prometheus.MustRegister(loadsTotal, loadedGauge, synthesisDuration, busyWorkers)
}
