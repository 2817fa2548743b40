// Package metrics exposes pipeline counters and scheduler gauges to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"DealScanner/internal/domain"
)

const namespace = "dealscanner"

// Metrics holds every collector on a private registry. All methods accept a
// nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	// Collection
	CollectCycles   *prometheus.CounterVec
	CollectDuration prometheus.Histogram
	OffersCollected prometheus.Counter
	OffersUnique    prometheus.Counter
	OffersDuplicate prometheus.Counter
	OffersQueued    prometheus.Counter
	SourceFailures  *prometheus.CounterVec
	SourcesEnabled  prometheus.Gauge
	SourcesFailing  prometheus.Gauge

	// Publishing
	ValidationBlocked *prometheus.CounterVec
	Published         prometheus.Counter
	PublishFailures   prometheus.Counter

	// Scheduler
	JobTransitions *prometheus.CounterVec
	Jobs           *prometheus.GaugeVec
	JobsTotal      prometheus.Gauge
}

// New registers all collectors, plus the Go and process collectors, on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{registry: reg}
	initCollectMetrics(m, factory)
	initPublishMetrics(m, factory)
	initSchedulerMetrics(m, factory)
	return m
}

func initCollectMetrics(m *Metrics, f promauto.Factory) {
	m.CollectCycles = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "collect_cycles_total",
		Help:      "Collection cycles by result (ok, skipped, cancelled).",
	}, []string{"result"})

	m.CollectDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "collect_duration_seconds",
		Help:      "Wall time of one collection cycle.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	m.OffersCollected = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "offers_collected_total",
		Help:      "Raw offers returned by sources.",
	})

	m.OffersUnique = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "offers_unique_total",
		Help:      "Offers left after deduplication.",
	})

	m.OffersDuplicate = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "offers_duplicate_total",
		Help:      "Offers dropped as duplicates within a cycle.",
	})

	m.OffersQueued = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "offers_queued_total",
		Help:      "Offers inserted into the publish queue.",
	})

	m.SourceFailures = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "source_failures_total",
		Help:      "Sources that exhausted their retries in a cycle.",
	}, []string{"source"})

	m.SourcesEnabled = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sources_enabled",
		Help:      "Sources currently eligible for collection.",
	})

	m.SourcesFailing = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sources_failing",
		Help:      "Sources whose last collection failed.",
	})
}

func initPublishMetrics(m *Metrics, f promauto.Factory) {
	m.ValidationBlocked = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "validation_blocked_total",
		Help:      "Offers blocked by the validation gate.",
	}, []string{"reason"})

	m.Published = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "offers_published_total",
		Help:      "Offers handed to the publish sink.",
	})

	m.PublishFailures = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "publish_failures_total",
		Help:      "Publish attempts that failed and left the offer queued.",
	})
}

func initSchedulerMetrics(m *Metrics, f promauto.Factory) {
	m.JobTransitions = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_transitions_total",
		Help:      "Scheduler state transitions by job and resulting status.",
	}, []string{"job", "status"})

	m.Jobs = f.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "jobs",
		Help:      "Scheduled jobs by status.",
	}, []string{"status"})

	m.JobsTotal = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "jobs_total",
		Help:      "Scheduled jobs known to the scheduler.",
	})
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordCollect accounts one collection cycle.
func (m *Metrics) RecordCollect(result string, collected, unique, duplicates int, took time.Duration) {
	if m == nil {
		return
	}
	m.CollectCycles.WithLabelValues(result).Inc()
	m.CollectDuration.Observe(took.Seconds())
	m.OffersCollected.Add(float64(collected))
	m.OffersUnique.Add(float64(unique))
	m.OffersDuplicate.Add(float64(duplicates))
}

// RecordQueued counts offers inserted into the queue.
func (m *Metrics) RecordQueued(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.OffersQueued.Add(float64(n))
}

// RecordSourceFailure counts a source that failed a cycle.
func (m *Metrics) RecordSourceFailure(source string) {
	if m == nil {
		return
	}
	m.SourceFailures.WithLabelValues(source).Inc()
}

// SetSources publishes registry health.
func (m *Metrics) SetSources(enabled, failing int) {
	if m == nil {
		return
	}
	m.SourcesEnabled.Set(float64(enabled))
	m.SourcesFailing.Set(float64(failing))
}

// RecordBlocked counts a validation failure.
func (m *Metrics) RecordBlocked(reason domain.BlockedReason) {
	if m == nil {
		return
	}
	m.ValidationBlocked.WithLabelValues(string(reason)).Inc()
}

// RecordPublished counts a delivered offer.
func (m *Metrics) RecordPublished() {
	if m == nil {
		return
	}
	m.Published.Inc()
}

// RecordPublishFailure counts a failed delivery.
func (m *Metrics) RecordPublishFailure() {
	if m == nil {
		return
	}
	m.PublishFailures.Inc()
}

// RecordJobTransition counts a scheduler transition.
func (m *Metrics) RecordJobTransition(job domain.ScheduledJob) {
	if m == nil {
		return
	}
	m.JobTransitions.WithLabelValues(job.ID, string(job.Status)).Inc()
}

var jobStatuses = []domain.JobStatus{
	domain.JobPending, domain.JobRunning, domain.JobCompleted,
	domain.JobFailed, domain.JobCancelled, domain.JobPaused,
}

// SetJobCounts publishes the per-status job gauges. Missing statuses are
// reported as zero.
func (m *Metrics) SetJobCounts(total int, byStatus map[domain.JobStatus]int) {
	if m == nil {
		return
	}
	m.JobsTotal.Set(float64(total))
	for _, status := range jobStatuses {
		m.Jobs.WithLabelValues(string(status)).Set(float64(byStatus[status]))
	}
}
