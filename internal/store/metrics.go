package store

import "github.com/prometheus/client_golang/prometheus"

const (
	MetricCommits       = "commits_total"
	MetricAbortedWrites = "aborted_writes_total"
	MetricQueueDepth    = "write_queue_depth"
	MetricWriteSeconds  = "write_duration_seconds"
	MetricMergeOutcomes = "merge_outcomes_total"
)

// Abort reasons used as the "reason" label of aborted writes.
const (
	AbortCancelled = "cancelled"
	AbortError     = "error"
	AbortContract  = "contract"
	AbortPersist   = "persist"
	AbortClosed    = "closed"
)

// Metrics are the prometheus collectors of one store. Each store owns its
// collectors so several stores (tests, tools) can live in one process.
type Metrics struct {
	Commits       prometheus.Counter
	AbortedWrites *prometheus.CounterVec
	QueueDepth    prometheus.Gauge
	WriteSeconds  prometheus.Histogram

	// MergeOutcomes counts merged attributes by outcome
	// (trivial, server, resolved, discarded, conflict). Fed by the merge engine.
	MergeOutcomes *prometheus.CounterVec
}

// NewMetrics creates the store collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		Commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "itemsync",
			Name:      MetricCommits,
			Help:      "Write transactions that committed changes.",
		}),
		AbortedWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "itemsync",
			Name:      MetricAbortedWrites,
			Help:      "Write transactions discarded without effect, by reason.",
		}, []string{"reason"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "itemsync",
			Name:      MetricQueueDepth,
			Help:      "Write transactions waiting for the writer.",
		}),
		WriteSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "itemsync",
			Name:      MetricWriteSeconds,
			Help:      "Time spent applying and persisting one write transaction.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		MergeOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "itemsync",
			Name:      MetricMergeOutcomes,
			Help:      "Attributes processed by three-way merges, by outcome.",
		}, []string{"outcome"}),
	}
}

// Register adds every collector to r.
func (m *Metrics) Register(r prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Commits,
		m.AbortedWrites,
		m.QueueDepth,
		m.WriteSeconds,
		m.MergeOutcomes,
	}
}
