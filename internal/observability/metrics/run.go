package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/case-analyst/internal/core/domain"
)

// RunMetrics implements ports.RunObserver on a private Prometheus registry.
type RunMetrics struct {
	registry *prometheus.Registry

	pairTotal       *prometheus.CounterVec
	pairDuration    *prometheus.HistogramVec
	pairInFlight    prometheus.Gauge
	truncatedTotal  prometheus.Counter
	extractionTotal *prometheus.CounterVec
	retryTotal      *prometheus.CounterVec
	llmTokensTotal  *prometheus.CounterVec
}

func NewRunMetrics(service string) *RunMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	pairTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "case_analyst",
			Subsystem:   "run",
			Name:        "pairs_total",
			Help:        "Total finished document/case pairs by status and error kind.",
			ConstLabels: constLabels,
		},
		[]string{"status", "kind"},
	)
	pairDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "case_analyst",
			Subsystem:   "run",
			Name:        "pair_duration_seconds",
			Help:        "Pair processing duration in seconds by status.",
			Buckets:     []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300, 600},
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)
	pairInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "case_analyst",
			Subsystem:   "run",
			Name:        "pairs_in_flight",
			Help:        "Number of pairs being processed.",
			ConstLabels: constLabels,
		},
	)
	truncatedTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "case_analyst",
			Subsystem:   "run",
			Name:        "truncated_prompts_total",
			Help:        "Total prompts whose document text was truncated.",
			ConstLabels: constLabels,
		},
	)
	extractionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "case_analyst",
			Subsystem:   "extractor",
			Name:        "documents_total",
			Help:        "Total text extractions by status.",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)
	retryTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "case_analyst",
			Subsystem:   "llm",
			Name:        "retries_total",
			Help:        "Total retried model calls by operation.",
			ConstLabels: constLabels,
		},
		[]string{"operation"},
	)
	llmTokensTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "case_analyst",
			Subsystem:   "llm",
			Name:        "tokens_total",
			Help:        "Reported token usage by direction.",
			ConstLabels: constLabels,
		},
		[]string{"direction", "model"},
	)

	registry.MustRegister(
		pairTotal,
		pairDuration,
		pairInFlight,
		truncatedTotal,
		extractionTotal,
		retryTotal,
		llmTokensTotal,
	)

	return &RunMetrics{
		registry:        registry,
		pairTotal:       pairTotal,
		pairDuration:    pairDuration,
		pairInFlight:    pairInFlight,
		truncatedTotal:  truncatedTotal,
		extractionTotal: extractionTotal,
		retryTotal:      retryTotal,
		llmTokensTotal:  llmTokensTotal,
	}
}

func (m *RunMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile dumps the current values in the node_exporter textfile format.
func (m *RunMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *RunMetrics) StartPair() {
	m.pairInFlight.Inc()
}

func (m *RunMetrics) FinishPair(result domain.AnalysisResult, duration time.Duration) {
	m.pairInFlight.Dec()

	status := "success"
	kind := ""
	if result.Err != nil {
		status = "error"
		kind = domain.KindName(result.Err)
		if kind == "Canceled" {
			status = "skipped"
		}
	}
	m.pairTotal.WithLabelValues(status, kind).Inc()
	m.pairDuration.WithLabelValues(status).Observe(duration.Seconds())
	if result.Truncated {
		m.truncatedTotal.Inc()
	}
	m.RecordTokenUsage(result.Model, result.Analysis.PromptTokens, result.Analysis.CompletionTokens)
}

func (m *RunMetrics) ObserveExtraction(_ string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.extractionTotal.WithLabelValues(status).Inc()
}

// RecordRetry matches the resilience retry hook.
func (m *RunMetrics) RecordRetry(operation string, _ int, _ error) {
	m.retryTotal.WithLabelValues(operation).Inc()
}

func (m *RunMetrics) RecordTokenUsage(model string, promptTokens, completionTokens int) {
	if model == "" {
		model = "unknown"
	}
	if promptTokens > 0 {
		m.llmTokensTotal.WithLabelValues("in", model).Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.llmTokensTotal.WithLabelValues("out", model).Add(float64(completionTokens))
	}
}
