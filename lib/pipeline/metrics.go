package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "nbpipe"
	metricsSubsystem = "pipeline"
)

// Metrics holds the prometheus collectors a pipeline reports to. Every
// collector is labeled by stage name; the source is reported as "source".
type Metrics struct {
	CacheHits *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
	StageErrors *prometheus.CounterVec
	Cancellations *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
}

// NewMetrics creates the pipeline collectors and registers them with reg. A
// nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name: "cache_hits_total",
				Help: "Stage evaluations answered from the cache",
			},
			[]string{"stage"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name: "cache_misses_total",
				Help: "Stage evaluations which had to run the stage",
			},
			[]string{"stage"},
		),
		StageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name: "stage_errors_total",
				Help: "Stage runs which finished with an Error status",
			},
			[]string{"stage"},
		),
		Cancellations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name: "cancellations_total",
				Help: "Stage runs abandoned because the context was canceled",
			},
			[]string{"stage"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name: "stage_duration_seconds",
				Help: "Wall-clock time spent running a stage",
				Buckets: []float64{
					0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 60,
				},
			},
			[]string{"stage"},
		),
	}

	if reg != nil {
		collectors := []prometheus.Collector{
			m.CacheHits, m.CacheMisses, m.StageErrors, m.Cancellations,
			m.StageDuration,
		}
		for _, c := range collectors {
			if err := reg.Register(c); err != nil { return nil, err }
		}
	}
	return m, nil
}

// The helpers below do nothing on a nil *Metrics so that the evaluator can
// call them unconditionally.

func (m *Metrics) hit(stage string) {
	if m != nil { m.CacheHits.WithLabelValues(stage).Inc() }
}

func (m *Metrics) miss(stage string) {
	if m != nil { m.CacheMisses.WithLabelValues(stage).Inc() }
}

func (m *Metrics) failed(stage string) {
	if m != nil { m.StageErrors.WithLabelValues(stage).Inc() }
}

func (m *Metrics) canceled(stage string) {
	if m != nil { m.Cancellations.WithLabelValues(stage).Inc() }
}

func (m *Metrics) observe(stage string, seconds float64) {
	if m != nil { m.StageDuration.WithLabelValues(stage).Observe(seconds) }
}
