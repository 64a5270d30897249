package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "machinery_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestErrors   *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	anomalyEvents *prometheus.CounterVec

	rulRecomputeTotal   *prometheus.CounterVec
	rulRecomputeLatency *prometheus.HistogramVec

	snapshotLatency *prometheus.HistogramVec

	rankingLatency *prometheus.HistogramVec

	scheduleExportTotal   *prometheus.CounterVec
	scheduleExportLatency *prometheus.HistogramVec

	thresholdPublishTotal *prometheus.CounterVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total reading ingest requests by result",
			},
			[]string{"result"},
		)
		ingestErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_errors_total",
				Help: "Total reading ingest errors by reason",
			},
			[]string{"reason"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Reading ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		anomalyEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "anomaly_events_total",
				Help: "Total anomaly lifecycle events by type",
			},
			[]string{"event"},
		)

		rulRecomputeTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rul_recompute_total",
				Help: "Total RUL recomputations by result",
			},
			[]string{"result"},
		)
		rulRecomputeLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "rul_recompute_latency_seconds",
				Help:    "RUL recomputation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		snapshotLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "kpi_snapshot_latency_seconds",
				Help:    "KPI snapshot latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		rankingLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "optimization_ranking_latency_seconds",
				Help:    "Optimization ranking latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		scheduleExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "schedule_export_total",
				Help: "Total maintenance schedule exports by format and result",
			},
			[]string{"format", "result"},
		)
		scheduleExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "schedule_export_latency_seconds",
				Help:    "Maintenance schedule export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		thresholdPublishTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "threshold_publish_total",
				Help: "Total threshold configuration publishes by outcome",
			},
			[]string{"outcome"},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestErrors,
			ingestLatency,
			anomalyEvents,
			rulRecomputeTotal,
			rulRecomputeLatency,
			snapshotLatency,
			rankingLatency,
			scheduleExportTotal,
			scheduleExportLatency,
			thresholdPublishTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveIngest records ingest request duration and result.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncIngestError increments ingest error counter.
func IncIngestError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if ingestErrors != nil {
		ingestErrors.WithLabelValues(reason).Inc()
	}
}

// IncAnomalyEvent increments anomaly lifecycle counters.
func IncAnomalyEvent(event string) {
	if event == "" {
		event = "unknown"
	}
	if anomalyEvents != nil {
		anomalyEvents.WithLabelValues(event).Inc()
	}
}

// ObserveRULRecompute records RUL recomputation latency and result.
func ObserveRULRecompute(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if rulRecomputeTotal != nil {
		rulRecomputeTotal.WithLabelValues(result).Inc()
	}
	if rulRecomputeLatency != nil {
		rulRecomputeLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveSnapshot records KPI snapshot latency and result.
func ObserveSnapshot(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if snapshotLatency != nil {
		snapshotLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveRanking records optimization ranking latency and result.
func ObserveRanking(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if rankingLatency != nil {
		rankingLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveScheduleExport records schedule export latency and result.
func ObserveScheduleExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if scheduleExportTotal != nil {
		scheduleExportTotal.WithLabelValues(format, result).Inc()
	}
	if scheduleExportLatency != nil {
		scheduleExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// IncThresholdPublish increments threshold publish counter by outcome.
func IncThresholdPublish(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if thresholdPublishTotal != nil {
		thresholdPublishTotal.WithLabelValues(outcome).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
