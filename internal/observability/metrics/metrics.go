package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "tripchat_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	chatRequests *prometheus.CounterVec
	chatLatency  *prometheus.HistogramVec

	planAttempts *prometheus.CounterVec

	fallbacksTotal *prometheus.CounterVec

	llmTokens *prometheus.CounterVec

	streamsActive     prometheus.Gauge
	streamHeartbeats  prometheus.Counter
	streamDisconnects *prometheus.CounterVec

	executorRows prometheus.Histogram
)

// Init registers chat metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		chatRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "requests_total",
				Help: "Total chat requests by transport and result",
			},
			[]string{"transport", "result"},
		)
		chatLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "request_latency_seconds",
				Help:    "End-to-end chat latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"transport", "result"},
		)

		planAttempts = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "plan_attempts_total",
				Help: "Planner attempts by result",
			},
			[]string{"result"},
		)

		fallbacksTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "fallbacks_total",
				Help: "Fallback template executions by reason and template",
			},
			[]string{"reason", "template"},
		)

		llmTokens = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "llm_tokens_total",
				Help: "Tokens consumed by stage",
			},
			[]string{"stage"},
		)

		streamsActive = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "streams_active",
				Help: "Currently open SSE streams",
			},
		)
		streamHeartbeats = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "stream_heartbeats_total",
				Help: "Heartbeat frames written",
			},
		)
		streamDisconnects = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "stream_disconnects_total",
				Help: "Stream terminations by cause",
			},
			[]string{"cause"},
		)

		executorRows = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "executor_rows",
				Help:    "Rows returned per executed plan",
				Buckets: []float64{0, 1, 5, 20, 50, 100, 200},
			},
		)

		prometheus.MustRegister(
			chatRequests,
			chatLatency,
			planAttempts,
			fallbacksTotal,
			llmTokens,
			streamsActive,
			streamHeartbeats,
			streamDisconnects,
			executorRows,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveChat records request duration and result for one transport.
func ObserveChat(transport, result string, duration time.Duration) {
	if transport == "" {
		transport = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if chatRequests != nil {
		chatRequests.WithLabelValues(transport, result).Inc()
	}
	if chatLatency != nil {
		chatLatency.WithLabelValues(transport, result).Observe(duration.Seconds())
	}
}

// IncPlanAttempt increments planner attempt counters.
func IncPlanAttempt(result string) {
	if result == "" {
		result = resultSuccess
	}
	if planAttempts != nil {
		planAttempts.WithLabelValues(result).Inc()
	}
}

// IncFallback increments fallback execution counters.
func IncFallback(reason, template string) {
	if reason == "" {
		reason = "unknown"
	}
	if template == "" {
		template = "unknown"
	}
	if fallbacksTotal != nil {
		fallbacksTotal.WithLabelValues(reason, template).Inc()
	}
}

// AddLLMTokens adds consumed tokens for a pipeline stage.
func AddLLMTokens(stage string, count int) {
	if count <= 0 {
		return
	}
	if stage == "" {
		stage = "unknown"
	}
	if llmTokens != nil {
		llmTokens.WithLabelValues(stage).Add(float64(count))
	}
}

// StreamOpened marks an SSE stream open.
func StreamOpened() {
	if streamsActive != nil {
		streamsActive.Inc()
	}
}

// StreamClosed marks an SSE stream closed with its cause.
func StreamClosed(cause string) {
	if cause == "" {
		cause = "unknown"
	}
	if streamsActive != nil {
		streamsActive.Dec()
	}
	if streamDisconnects != nil {
		streamDisconnects.WithLabelValues(cause).Inc()
	}
}

// IncHeartbeat counts one heartbeat frame.
func IncHeartbeat() {
	if streamHeartbeats != nil {
		streamHeartbeats.Inc()
	}
}

// ObserveExecutorRows records the row count of an executed plan.
func ObserveExecutorRows(count int) {
	if count < 0 {
		return
	}
	if executorRows != nil {
		executorRows.Observe(float64(count))
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
