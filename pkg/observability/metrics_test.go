package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// TestMetricsRegistered verifies that all metrics are registered in the
// default registry without panicking.
func TestMetricsRegistered(t *testing.T) {
	// Counters and histograms only appear after first observation, so seed
	// them before gathering.
	RequestsTotal.WithLabelValues("POST", "2xx", "sync").Inc()
	RequestDuration.WithLabelValues("POST", "sync").Observe(0.1)
	ProviderRequestsTotal.WithLabelValues("openrouter", "test", "success").Inc()
	ProviderLatency.WithLabelValues("openrouter", "test").Observe(0.1)
	ProviderTokensTotal.WithLabelValues("openrouter", "test", "input").Add(10)
	ToolExecutionsTotal.WithLabelValues("search_records", "success").Inc()
	CostAttributionsTotal.WithLabelValues("vendor", "ok").Inc()
	AttributedCostTotal.WithLabelValues("openrouter", "test").Add(0.001)
	RecordWritesTotal.WithLabelValues("ok").Inc()

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("unexpected gather error: %v", err)
	}

	expected := map[string]bool{
		"colloquy_requests_total":                false,
		"colloquy_request_duration_seconds":      false,
		"colloquy_streaming_connections_active":  false,
		"colloquy_provider_requests_total":       false,
		"colloquy_provider_latency_seconds":      false,
		"colloquy_provider_tokens_total":         false,
		"colloquy_tool_executions_total":         false,
		"colloquy_cost_attributions_total":       false,
		"colloquy_attributed_cost_usd_total":     false,
		"colloquy_record_writes_total":           false,
	}

	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("metric %q not found in default registry", name)
		}
	}
}

// TestMiddlewareRecordsRequestCount verifies that the middleware increments
// the request counter for each served request.
func TestMiddlewareRecordsRequestCount(t *testing.T) {
	before := counterValue(t, RequestsTotal, "POST", "2xx", "sync")

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/v1/agents/acme/support/messages", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	after := counterValue(t, RequestsTotal, "POST", "2xx", "sync")
	if after != before+1 {
		t.Errorf("request counter = %v, want %v", after, before+1)
	}
}

// TestMiddlewareStreamingMode verifies that SSE requests are labeled as
// streaming and tracked on the connection gauge while in flight.
func TestMiddlewareStreamingMode(t *testing.T) {
	before := counterValue(t, RequestsTotal, "POST", "2xx", "stream")

	var inFlight float64
	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inFlight = gaugeValue(t, StreamingConnections)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/v1/agents/acme/support/messages", nil)
	req.Header.Set("Accept", "text/event-stream")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if inFlight < 1 {
		t.Errorf("streaming gauge during request = %v, want >= 1", inFlight)
	}
	after := counterValue(t, RequestsTotal, "POST", "2xx", "stream")
	if after != before+1 {
		t.Errorf("stream request counter = %v, want %v", after, before+1)
	}
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	c, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting counter: %v", err)
	}
	if err := c.Write(m); err != nil {
		t.Fatalf("reading counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("reading gauge: %v", err)
	}
	return m.GetGauge().GetValue()
}
