// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the colloquy backend.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts all HTTP requests by method, status class, and mode.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colloquy_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "mode"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "colloquy_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "mode"},
	)

	// StreamingConnections tracks the number of active SSE streaming connections.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "colloquy_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// ProviderRequestsTotal counts requests sent to backend LLM providers.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colloquy_provider_requests_total",
			Help: "Provider requests",
		},
		[]string{"provider", "model", "status"},
	)

	// ProviderLatency records backend provider latency in seconds.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "colloquy_provider_latency_seconds",
			Help:    "Provider latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "model"},
	)

	// ProviderTokensTotal counts tokens processed by direction (input/output).
	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colloquy_provider_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "model", "direction"},
	)

	// ToolExecutionsTotal counts tool executions by name and outcome.
	ToolExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colloquy_tool_executions_total",
			Help: "Tool executions",
		},
		[]string{"tool_name", "status"},
	)

	// CostAttributionsTotal counts cost attributions by strategy and outcome.
	// Strategy is "vendor" or "computed"; outcome is "ok" or "failed".
	CostAttributionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colloquy_cost_attributions_total",
			Help: "Cost attributions",
		},
		[]string{"strategy", "outcome"},
	)

	// AttributedCostTotal accumulates attributed cost in USD per provider
	// and model.
	AttributedCostTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colloquy_attributed_cost_usd_total",
			Help: "Attributed cost in USD",
		},
		[]string{"provider", "model"},
	)

	// RecordWritesTotal counts request record persistence attempts by outcome.
	RecordWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colloquy_record_writes_total",
			Help: "Request record writes",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		ProviderRequestsTotal,
		ProviderLatency,
		ProviderTokensTotal,
		ToolExecutionsTotal,
		CostAttributionsTotal,
		AttributedCostTotal,
		RecordWritesTotal,
	)
}
