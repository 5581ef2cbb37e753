package cloudsync

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ekaya-inc/survey-engine/pkg/retry"
)

// Metrics contains the Prometheus collectors of the sync layer.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ChunkCommits     *prometheus.CounterVec
	DocumentsWritten prometheus.Counter
	Retries          *prometheus.CounterVec
	QueueDepth       prometheus.Gauge
	QueueDropped     prometheus.Counter
	Online           prometheus.Gauge
	Connectivity     *prometheus.GaugeVec
	CommitDuration   prometheus.Histogram
}

// NewMetrics creates the sync collectors and registers them on registry.
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register sync metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.ChunkCommits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "survey_sync_chunk_commits_total",
		Help: "Batched chunk commits by outcome",
	}, []string{"status"})

	m.DocumentsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "survey_sync_documents_written_total",
		Help: "Documents written to the remote store",
	})

	m.Retries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "survey_sync_retries_total",
		Help: "Remote write retries by failure class",
	}, []string{"class"})

	m.QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "survey_sync_queue_depth",
		Help: "Operations waiting for connectivity",
	})

	m.QueueDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "survey_sync_queue_dropped_total",
		Help: "Queued operations dropped after repeated drain failures",
	})

	m.Online = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "survey_sync_online",
		Help: "1 when remote writes are sent immediately, 0 when they are queued",
	})

	m.Connectivity = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "survey_sync_connectivity_state",
		Help: "Current connectivity state (1 for the active state)",
	}, []string{"state"})

	m.CommitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "survey_sync_commit_duration_seconds",
		Help:    "Duration of chunk commits including retries",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.ChunkCommits.Describe(ch)
	m.DocumentsWritten.Describe(ch)
	m.Retries.Describe(ch)
	m.QueueDepth.Describe(ch)
	m.QueueDropped.Describe(ch)
	m.Online.Describe(ch)
	m.Connectivity.Describe(ch)
	m.CommitDuration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.ChunkCommits.Collect(ch)
	m.DocumentsWritten.Collect(ch)
	m.Retries.Collect(ch)
	m.QueueDepth.Collect(ch)
	m.QueueDropped.Collect(ch)
	m.Online.Collect(ch)
	m.Connectivity.Collect(ch)
	m.CommitDuration.Collect(ch)
}

func (m *Metrics) recordCommit(docs int, seconds float64, err error) {
	if m == nil {
		return
	}
	m.CommitDuration.Observe(seconds)
	if err != nil {
		m.ChunkCommits.WithLabelValues("error").Inc()
		return
	}
	m.ChunkCommits.WithLabelValues("success").Inc()
	m.DocumentsWritten.Add(float64(docs))
}

func (m *Metrics) recordRetry(class retry.Class) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(class.String()).Inc()
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

func (m *Metrics) addDropped(n int) {
	if m == nil || n == 0 {
		return
	}
	m.QueueDropped.Add(float64(n))
}

func (m *Metrics) setOnline(online bool) {
	if m == nil {
		return
	}
	if online {
		m.Online.Set(1)
	} else {
		m.Online.Set(0)
	}
}

func (m *Metrics) setState(state State) {
	if m == nil {
		return
	}
	for _, s := range States {
		v := 0.0
		if s == state {
			v = 1
		}
		m.Connectivity.WithLabelValues(string(s)).Set(v)
	}
}
