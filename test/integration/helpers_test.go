// Package integration tests the colloquy API end to end.
//
// Tests run against a real colloquy HTTP adapter backed by a mock Chat
// Completions backend, both started in-process using net/http/httptest.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/averbach/colloquy/pkg/billing"
	"github.com/averbach/colloquy/pkg/config"
	"github.com/averbach/colloquy/pkg/engine"
	"github.com/averbach/colloquy/pkg/pipeline"
	"github.com/averbach/colloquy/pkg/prompt"
	"github.com/averbach/colloquy/pkg/provider/chatcompat"
	"github.com/averbach/colloquy/pkg/record"
	"github.com/averbach/colloquy/pkg/record/memory"
	"github.com/averbach/colloquy/pkg/tools/directory"
	transporthttp "github.com/averbach/colloquy/pkg/transport/http"
)

var testEnv *TestEnvironment

// TestEnvironment holds the colloquy server, the mock backend, and the
// recorder so tests can inspect persisted request records.
type TestEnvironment struct {
	ColloquyServer *httptest.Server
	MockBackend    *httptest.Server
	Recorder       *capturingRecorder
}

func TestMain(m *testing.M) {
	testEnv = setupTestEnvironment()
	code := m.Run()
	testEnv.Teardown()
	os.Exit(code)
}

const testPriceTable = `
version: "2026-08-01"
rates:
  openrouter:
    mock-model:
      input_per_million: "0.14"
      output_per_million: "0.28"
`

func setupTestEnvironment() *TestEnvironment {
	mockBackend := startMockBackend()

	agentsDir, err := os.MkdirTemp("", "colloquy-agents")
	if err != nil {
		panic(err)
	}
	writeTenantFixture(agentsDir)

	cfg := config.Defaults()
	cfg.Backend.BaseURL = mockBackend.URL
	cfg.Backend.DefaultModel = "mock-model"
	cfg.Tenants.AgentsDir = agentsDir
	cfg.Tenants.ModulesDir = filepath.Join(agentsDir, "modules")

	prov := chatcompat.New(chatcompat.Options{
		Name:    "openrouter",
		BaseURL: mockBackend.URL,
	})

	table, err := billing.ParsePriceTable([]byte(testPriceTable))
	if err != nil {
		panic(fmt.Sprintf("parsing price table: %v", err))
	}

	catalog, err := directory.NewCatalog([]*directory.Schema{plantsSchema()})
	if err != nil {
		panic(fmt.Sprintf("building catalog: %v", err))
	}

	recorder := &capturingRecorder{Recorder: memory.New(100)}

	pipe := pipeline.New(pipeline.Options{
		Resolver:   config.NewResolver(&cfg),
		Assembler:  prompt.New(&cfg),
		Engine:     engine.New(prov, 8),
		Attributor: billing.NewAttributor(table),
		Recorder:   recorder,

		DirectoryStore:      &fixtureStore{},
		Catalog:             catalog,
		DirectoryMaxResults: 10,
	})

	adapter := transporthttp.NewAdapter(pipe, recorder, transporthttp.DefaultConfig())

	return &TestEnvironment{
		ColloquyServer: httptest.NewServer(adapter.Handler()),
		MockBackend:    mockBackend,
		Recorder:       recorder,
	}
}

func writeTenantFixture(agentsDir string) {
	accountDir := filepath.Join(agentsDir, "acme")
	if err := os.MkdirAll(accountDir, 0o755); err != nil {
		panic(err)
	}
	agentYAML := `
instruction_file: persona.md
model: mock-model
collections: [plants]
`
	if err := os.WriteFile(filepath.Join(accountDir, "support.yaml"), []byte(agentYAML), 0o644); err != nil {
		panic(err)
	}
	if err := os.WriteFile(filepath.Join(accountDir, "persona.md"), []byte("You are a garden-center assistant."), 0o644); err != nil {
		panic(err)
	}
	// An agent without collections, for the no-tools path.
	plainYAML := "instruction_file: persona.md\nmodel: mock-model\n"
	if err := os.WriteFile(filepath.Join(accountDir, "plain.yaml"), []byte(plainYAML), 0o644); err != nil {
		panic(err)
	}
}

func (env *TestEnvironment) Teardown() {
	if env.ColloquyServer != nil {
		env.ColloquyServer.Close()
	}
	if env.MockBackend != nil {
		env.MockBackend.Close()
	}
}

func (env *TestEnvironment) BaseURL() string {
	return env.ColloquyServer.URL
}

// capturingRecorder exposes the most recent record for assertions.
type capturingRecorder struct {
	*memory.Recorder
	mu   sync.Mutex
	last *record.RequestRecord
}

func (r *capturingRecorder) Record(ctx context.Context, rec *record.RequestRecord) error {
	r.mu.Lock()
	r.last = rec
	r.mu.Unlock()
	return r.Recorder.Record(ctx, rec)
}

func (r *capturingRecorder) Last() *record.RequestRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// --- Tenant fixtures ---

func plantsSchema() *directory.Schema {
	return &directory.Schema{
		Name:        "plants",
		Description: "Plants in stock.",
		Fields: map[string]directory.FieldSpec{
			"name":      {Type: directory.FieldTypeString, Filterable: true, Searchable: true},
			"poisonous": {Type: directory.FieldTypeBool},
		},
		Output: []directory.OutputField{
			{Name: "name", Required: true},
			{Name: "poisonous"},
		},
	}
}

// fixtureStore serves a fixed plant inventory.
type fixtureStore struct{}

func (s *fixtureStore) Search(_ context.Context, q directory.Query) ([]directory.Entry, error) {
	return []directory.Entry{
		{
			ID:         "p1",
			Tags:       []string{"indoor"},
			Attributes: map[string]any{"name": "Monstera", "poisonous": false},
		},
	}, nil
}

func (s *fixtureStore) Count(context.Context, string) (int, error) { return 1, nil }

func (s *fixtureStore) DistinctTags(context.Context, string) ([]string, error) {
	return []string{"indoor"}, nil
}

func (s *fixtureStore) HealthCheck(context.Context) error { return nil }
func (s *fixtureStore) Close() error                      { return nil }

// --- HTTP helpers ---

func postMessage(t *testing.T, path string, body any, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, testEnv.BaseURL()+path, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response body: %v", err)
	}
	return string(body)
}

func decodeJSON(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decoding JSON: %v", err)
	}
}

func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == "colloquy_session" {
			return c
		}
	}
	t.Fatal("no session cookie in response")
	return nil
}

// --- Mock backend ---

// startMockBackend mimics an OpenRouter-style Chat Completions API.
// Non-streaming responses report a vendor cost; streamed responses report
// token counts only. A request offering tools gets one search_records
// call before the final answer.
func startMockBackend() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/completions", handleMockChatCompletions)
	return httptest.NewServer(mux)
}

func handleMockChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		Tools  []any `json:"tools"`
		Stream bool  `json:"stream"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request","type":"invalid_request_error"}}`, http.StatusBadRequest)
		return
	}

	hasToolResults := false
	lastUser := ""
	for _, msg := range req.Messages {
		if msg.Role == "tool" {
			hasToolResults = true
		}
		if msg.Role == "user" {
			lastUser = msg.Content
		}
	}

	if req.Stream {
		handleMockStreaming(w, lastUser)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	switch {
	case hasToolResults:
		writeMockText(w, "The Monstera is not poisonous.")
	case len(req.Tools) > 0 && strings.Contains(strings.ToLower(lastUser), "monstera"):
		writeMockToolCall(w)
	default:
		writeMockText(w, "Hello! How can I help?")
	}
}

func writeMockText(w http.ResponseWriter, text string) {
	json.NewEncoder(w).Encode(map[string]any{
		"id": "chatcmpl-mock", "object": "chat.completion", "model": "mock-model",
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": text},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{
			"prompt_tokens": 100, "completion_tokens": 20, "total_tokens": 120,
			"cost": 0.00042,
		},
	})
}

func writeMockToolCall(w http.ResponseWriter) {
	json.NewEncoder(w).Encode(map[string]any{
		"id": "chatcmpl-mock-tool", "object": "chat.completion", "model": "mock-model",
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": nil,
					"tool_calls": []map[string]any{
						{
							"id":   "call_mock_1",
							"type": "function",
							"function": map[string]any{
								"name":      "search_records",
								"arguments": `{"collection":"plants","query":"monstera"}`,
							},
						},
					},
				},
				"finish_reason": "tool_calls",
			},
		},
		"usage": map[string]any{
			"prompt_tokens": 80, "completion_tokens": 15, "total_tokens": 95,
		},
	})
}

func handleMockStreaming(w http.ResponseWriter, lastUser string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	tokens := []string{"Hello", "! ", "How ", "can ", "I ", "help", "?"}
	if strings.Contains(strings.ToLower(lastUser), "table") {
		// A multi-line markdown payload in a single delta.
		tokens = []string{"| Plant | Light |\n|---|---|\n| Monstera | indirect |"}
	}

	writeMockChunk(w, "", true)
	flusher.Flush()
	for _, token := range tokens {
		writeMockChunk(w, token, false)
		flusher.Flush()
	}

	finishData, _ := json.Marshal(map[string]any{
		"id": "chatcmpl-mock-stream", "object": "chat.completion.chunk", "model": "mock-model",
		"choices": []map[string]any{
			{"index": 0, "delta": map[string]any{}, "finish_reason": "stop"},
		},
		"usage": map[string]any{
			"prompt_tokens": 100, "completion_tokens": len(tokens), "total_tokens": 100 + len(tokens),
		},
	})
	fmt.Fprintf(w, "data: %s\n\n", finishData)
	flusher.Flush()

	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func writeMockChunk(w http.ResponseWriter, content string, isRole bool) {
	delta := map[string]any{}
	if isRole {
		delta["role"] = "assistant"
	}
	if content != "" {
		delta["content"] = content
	}
	data, _ := json.Marshal(map[string]any{
		"id": "chatcmpl-mock-stream", "object": "chat.completion.chunk", "model": "mock-model",
		"choices": []map[string]any{
			{"index": 0, "delta": delta, "finish_reason": nil},
		},
	})
	fmt.Fprintf(w, "data: %s\n\n", data)
}
