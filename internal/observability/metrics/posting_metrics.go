package metrics

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config labels every instrument with the service identity.
type Config struct {
	ServiceName string
	Environment string
}

// PostingMetrics tracks the double-entry posting engine.
type PostingMetrics struct {
	postingsTotal       *prometheus.CounterVec
	postingDuration     *prometheus.HistogramVec
	unbalancedRejected  prometheus.Counter
	depreciationBatches prometheus.Counter
	depreciationAssets  prometheus.Counter
}

var (
	postingMetricsOnce sync.Once
	postingMetrics     *PostingMetrics
)

// Posting returns the process-wide posting metrics.
func Posting() *PostingMetrics {
	return PostingWithConfig(Config{})
}

// PostingWithConfig returns the process-wide posting metrics, initializing
// them with the given config on first use.
func PostingWithConfig(cfg Config) *PostingMetrics {
	postingMetricsOnce.Do(func() {
		postingMetrics = newPostingMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return postingMetrics
}

// ResetPostingMetricsForTest clears the singleton between tests.
func ResetPostingMetricsForTest() {
	postingMetricsOnce = sync.Once{}
	postingMetrics = nil
}

func newPostingMetrics(registerer prometheus.Registerer, cfg Config) *PostingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "propledger"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "dev"
	}
	constLabels := prometheus.Labels{
		"service":     serviceName,
		"environment": environment,
	}

	m := &PostingMetrics{
		postingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ledger_postings_total",
			Help:        "Ledger posting batches written, by transaction type.",
			ConstLabels: constLabels,
		}, []string{"transaction_type"}),
		postingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "ledger_posting_duration_seconds",
			Help:        "Time spent writing a posting batch.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"transaction_type"}),
		unbalancedRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "ledger_unbalanced_batches_rejected_total",
			Help:        "Posting batches rejected by balance validation.",
			ConstLabels: constLabels,
		}),
		depreciationBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "depreciation_worker_batches_total",
			Help:        "Depreciation worker batches processed.",
			ConstLabels: constLabels,
		}),
		depreciationAssets: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "depreciation_worker_assets_total",
			Help:        "Assets depreciated by the worker.",
			ConstLabels: constLabels,
		}),
	}

	for _, collector := range []prometheus.Collector{
		m.postingsTotal,
		m.postingDuration,
		m.unbalancedRejected,
		m.depreciationBatches,
		m.depreciationAssets,
	} {
		if err := registerer.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				panic(err)
			}
		}
	}
	return m
}

// ObservePosting records one posting batch of the given type.
func (m *PostingMetrics) ObservePosting(transactionType string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.postingsTotal.WithLabelValues(transactionType).Inc()
	m.postingDuration.WithLabelValues(transactionType).Observe(elapsed.Seconds())
}

// ObserveUnbalancedRejection records a batch refused by balance validation.
func (m *PostingMetrics) ObserveUnbalancedRejection() {
	if m == nil {
		return
	}
	m.unbalancedRejected.Inc()
}

// ObserveDepreciationBatch records one worker batch and the assets it posted.
func (m *PostingMetrics) ObserveDepreciationBatch(assets int) {
	if m == nil {
		return
	}
	m.depreciationBatches.Inc()
	m.depreciationAssets.Add(float64(assets))
}
