package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ent0n29/agrigenius/internal/reliability"
)

// Rolling window stage names.
const (
	StageTTSRequest    = "tts_request"
	StageTTSSynthesize = "tts_synthesize"
	StageChatRequest   = "chat_request"
	StageChatGenerate  = "chat_generate"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	CacheEvents     *prometheus.CounterVec
	CacheEntries    prometheus.Gauge
	ProviderErrors  *prometheus.CounterVec
	UpstreamLatency *prometheus.HistogramVec
	WSMessages      *prometheus.CounterVec

	stages *latencyWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "status"}),
		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 25, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"route"}),
		CacheEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tts_cache_events_total",
			Help:      "Audio cache events by type (hit, miss, evict).",
		}, []string{"event"}),
		CacheEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tts_cache_entries",
			Help:      "Number of entries held by the audio cache.",
		}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Upstream provider errors by provider, status class and retryability.",
		}, []string{"provider", "class", "retryable"}),
		UpstreamLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_latency_ms",
			Help:      "Latency of upstream provider calls in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000},
		}, []string{"provider"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		stages: newLatencyWindow(256),
	}
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(float64(d.Milliseconds()))
}

// ObserveCacheEvent counts a cache hit, miss or eviction. The same event is
// also tracked as a window indicator.
func (m *Metrics) ObserveCacheEvent(event string) {
	if m == nil {
		return
	}
	m.CacheEvents.WithLabelValues(event).Inc()
	m.stages.ObserveIndicator("tts_cache_" + event)
}

func (m *Metrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(n))
}

// ObserveProviderError counts an upstream failure. statusCode is 0 for
// transport errors.
func (m *Metrics) ObserveProviderError(provider string, statusCode int, retryable bool) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, reliability.StatusClass(statusCode), reliability.RetryableLabel(retryable)).Inc()
}

func (m *Metrics) ObserveUpstreamLatency(provider string, d time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamLatency.WithLabelValues(provider).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// ObserveStage feeds the rolling latency window.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.Observe(stage, float64(d.Microseconds())/1000)
}

// ObserveIndicator bumps a named counter reported next to the stage stats.
func (m *Metrics) ObserveIndicator(name string) {
	if m == nil {
		return
	}
	m.stages.ObserveIndicator(name)
}

func (m *Metrics) SnapshotStages() LatencySnapshot {
	if m == nil {
		return LatencySnapshot{GeneratedAt: time.Now().UTC(), Stages: []StageStats{}}
	}
	return m.stages.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
