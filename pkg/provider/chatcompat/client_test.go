package chatcompat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/averbach/colloquy/pkg/api"
	"github.com/averbach/colloquy/pkg/provider"
)

func TestComplete_TextResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Stream {
			t.Error("stream = true on Complete request")
		}
		if req.Usage == nil || !req.Usage.Include {
			t.Error("usage accounting not requested")
		}

		json.NewEncoder(w).Encode(chatResponse{
			ID: "cmpl-1",
			Choices: []chatChoice{{
				Message:      chatMessage{Role: "assistant", Content: "Aloe vera thrives in bright light."},
				FinishReason: "stop",
			}},
			Usage: &chatUsage{PromptTokens: 20, CompletionTokens: 8, TotalTokens: 28},
		})
	}))
	defer server.Close()

	client := New(Options{Name: "openrouter", BaseURL: server.URL, APIKey: "test-key"})
	resp, err := client.Complete(context.Background(), &provider.Request{
		Model:    "openai/gpt-4o-mini",
		Messages: []provider.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "Aloe vera thrives in bright light." {
		t.Errorf("text = %q", resp.Text)
	}
	if resp.Usage.TotalTokens != 28 {
		t.Errorf("total tokens = %d, want 28", resp.Usage.TotalTokens)
	}
	if resp.Usage.VendorCost != nil {
		t.Errorf("vendor cost = %v, want nil when backend reports none", *resp.Usage.VendorCost)
	}
}

func TestComplete_VendorCostCarried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cost := 0.00042
		in := 0.0003
		out := 0.00012
		json.NewEncoder(w).Encode(chatResponse{
			ID: "cmpl-1",
			Choices: []chatChoice{{
				Message:      chatMessage{Role: "assistant", Content: "ok"},
				FinishReason: "stop",
			}},
			Usage: &chatUsage{
				PromptTokens:     100,
				CompletionTokens: 40,
				TotalTokens:      140,
				Cost:             &cost,
				CostDetails:      &chatCostDetails{InputCost: &in, OutputCost: &out},
			},
		})
	}))
	defer server.Close()

	client := New(Options{Name: "openrouter", BaseURL: server.URL})
	resp, err := client.Complete(context.Background(), &provider.Request{Model: "m"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Usage.VendorCost == nil || *resp.Usage.VendorCost != 0.00042 {
		t.Fatalf("vendor cost = %v, want 0.00042", resp.Usage.VendorCost)
	}
	if resp.Usage.VendorInputCost == nil || *resp.Usage.VendorInputCost != 0.0003 {
		t.Errorf("vendor input cost = %v, want 0.0003", resp.Usage.VendorInputCost)
	}
	if resp.Usage.VendorOutputCost == nil || *resp.Usage.VendorOutputCost != 0.00012 {
		t.Errorf("vendor output cost = %v, want 0.00012", resp.Usage.VendorOutputCost)
	}
}

func TestComplete_ToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{
			ID: "cmpl-1",
			Choices: []chatChoice{{
				Message: chatMessage{
					Role: "assistant",
					ToolCalls: []chatToolCall{{
						ID:   "call_1",
						Type: "function",
						Function: chatFunctionCall{
							Name:      "search_records",
							Arguments: `{"collection":"plants"}`,
						},
					}},
				},
				FinishReason: "tool_calls",
			}},
		})
	}))
	defer server.Close()

	client := New(Options{Name: "openrouter", BaseURL: server.URL})
	resp, err := client.Complete(context.Background(), &provider.Request{Model: "m"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].Name != "search_records" {
		t.Errorf("tool call name = %q", resp.ToolCalls[0].Name)
	}
}

func TestComplete_BackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limit hit","type":"rate_limit_error"}}`))
	}))
	defer server.Close()

	client := New(Options{Name: "openrouter", BaseURL: server.URL})
	_, err := client.Complete(context.Background(), &provider.Request{Model: "m"})
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *api.APIError", err)
	}
	if apiErr.Type != api.ErrorTypeModelError {
		t.Errorf("error type = %q, want %q", apiErr.Type, api.ErrorTypeModelError)
	}
	if apiErr.Message != "rate limit hit" {
		t.Errorf("message = %q, want backend message carried through", apiErr.Message)
	}
}

func TestStream_EndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("stream = false on Stream request")
		}
		if req.StreamOptions == nil || !req.StreamOptions.IncludeUsage {
			t.Error("include_usage not requested")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"id":"c1","choices":[{"index":0,"delta":{"content":"Hel"},"finish_reason":null}]}

data: {"id":"c1","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":null}]}

data: {"id":"c1","choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":4,"completion_tokens":2,"total_tokens":6}}

data: [DONE]
`))
	}))
	defer server.Close()

	client := New(Options{Name: "openrouter", BaseURL: server.URL})
	events, err := client.Stream(context.Background(), &provider.Request{Model: "m"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var text string
	var done *provider.Event
	for ev := range events {
		switch ev.Type {
		case provider.EventTextDelta:
			text += ev.Delta
		case provider.EventDone:
			e := ev
			done = &e
		case provider.EventError:
			t.Fatalf("unexpected error event: %v", ev.Err)
		}
	}
	if text != "Hello" {
		t.Errorf("streamed text = %q, want Hello", text)
	}
	if done == nil || done.Usage == nil || done.Usage.TotalTokens != 6 {
		t.Errorf("done event usage missing or wrong: %+v", done)
	}
}

func TestStream_HTTPErrorBeforeBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"backend exploded"}}`))
	}))
	defer server.Close()

	client := New(Options{Name: "openrouter", BaseURL: server.URL})
	_, err := client.Stream(context.Background(), &provider.Request{Model: "m"})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *api.APIError", err)
	}
}
