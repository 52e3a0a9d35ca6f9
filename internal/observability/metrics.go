package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ent0n29/cheapchat/internal/reliability"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ChatTurns       *prometheus.CounterVec
	ProviderErrors  *prometheus.CounterVec
	LLMLatency      prometheus.Histogram
	LLMTokens       prometheus.Counter
	ContextBlocks   prometheus.Histogram
	ContextTokens   prometheus.Histogram
	MemoryEvents    *prometheus.CounterVec
	TempFilesActive prometheus.Gauge
	TempFileEvents  *prometheus.CounterVec
	WSMessages      *prometheus.CounterVec

	Stages *StageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ChatTurns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Chat sends by outcome.",
		}, []string{"outcome"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and code.",
		}, []string{"provider", "code"}),
		LLMLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_latency_ms",
			Help:      "Latency of chat model calls in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 16000, 32000},
		}),
		LLMTokens: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Total tokens reported by chat model calls.",
		}),
		ContextBlocks: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "context_blocks",
			Help:      "Number of blocks sent to the chat model per turn.",
			Buckets:   []float64{2, 4, 8, 16, 32, 64, 128},
		}),
		ContextTokens: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "context_tokens",
			Help:      "Estimated prompt tokens per turn.",
			Buckets:   prometheus.ExponentialBuckets(256, 2, 10),
		}),
		MemoryEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_events_total",
			Help:      "Global memory events by type.",
		}, []string{"event"}),
		TempFilesActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temp_files_active",
			Help:      "Number of live transient files.",
		}),
		TempFileEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "temp_file_events_total",
			Help:      "Transient file events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		Stages: NewStageWindow(256),
	}
}

func (m *Metrics) ObserveLLMCall(d time.Duration, tokens int) {
	if m == nil {
		return
	}
	m.LLMLatency.Observe(float64(d.Milliseconds()))
	if tokens > 0 {
		m.LLMTokens.Add(float64(tokens))
	}
	m.Stages.Observe(StageLLM, d)
}

func (m *Metrics) ObserveContext(blocks, tokens int) {
	if m == nil {
		return
	}
	m.ContextBlocks.Observe(float64(blocks))
	if tokens > 0 {
		m.ContextTokens.Observe(float64(tokens))
	}
}

func (m *Metrics) ObserveProviderError(provider string, err error) {
	if m == nil || err == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, reliability.ErrorCode(err)).Inc()
}

func (m *Metrics) ObserveTurn(outcome string) {
	if m == nil {
		return
	}
	m.ChatTurns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.Stages.Observe(stage, d)
}

func (m *Metrics) ObserveIndicator(name string) {
	if m == nil {
		return
	}
	m.Stages.Count(name)
}

func (m *Metrics) ObserveMemoryEvent(event string) {
	if m == nil {
		return
	}
	m.MemoryEvents.WithLabelValues(event).Inc()
}

// ObserveTempFile matches the tempfiles registry observer signature.
func (m *Metrics) ObserveTempFile(event string, active int) {
	if m == nil {
		return
	}
	m.TempFileEvents.WithLabelValues(event).Inc()
	m.TempFilesActive.Set(float64(active))
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// SnapshotStages returns the rolling latency window; nil metrics yield an
// empty snapshot.
func (m *Metrics) SnapshotStages() StageSnapshot {
	if m == nil {
		return StageSnapshot{Stages: []StageStats{}}
	}
	return m.Stages.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
