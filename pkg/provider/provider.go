// Package provider abstracts the generative-model backend. The interface
// is protocol-agnostic; the chatcompat subpackage implements it for
// OpenAI-compatible Chat Completions backends.
package provider

import (
	"context"
	"encoding/json"

	"github.com/averbach/colloquy/pkg/api"
)

// Provider abstracts an LLM inference backend.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier (e.g. "openrouter") used for
	// price table lookups and diagnostics.
	Name() string

	// Complete performs non-streaming inference. The returned usage may
	// carry a vendor-reported cost figure.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Stream performs streaming inference. The returned channel receives
	// Event values and is closed by the provider when the stream completes
	// or errors. The final usage carries token counts only; streaming
	// backends do not report a cost figure on the terminating chunk.
	Stream(ctx context.Context, req *Request) (<-chan Event, error)

	// Close releases provider resources (HTTP clients, connections).
	Close() error
}

// Request is the backend-facing request, stripped of transport and
// persistence concerns.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []ToolDef
	Temperature *float64
	MaxTokens   *int
}

// Message represents one entry of the backend conversation.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall is a model-issued capability invocation.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolDef is a tool definition in backend format.
type ToolDef struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Response is the backend's complete non-streaming answer: final text
// and/or tool calls, plus usage.
type Response struct {
	Text      string
	ToolCalls []ToolCall
	Usage     api.Usage
}

// EventType classifies a streaming event from the backend.
type EventType int

const (
	EventTextDelta EventType = iota // Incremental text content
	EventToolCall                   // One fully assembled tool call
	EventDone                       // Stream finished, Usage populated when reported
	EventError                      // Stream error
)

// Event is a single streaming event from the backend.
type Event struct {
	Type EventType

	// Delta contains incremental text for EventTextDelta.
	Delta string

	// ToolCall is populated for EventToolCall.
	ToolCall *ToolCall

	// Usage is populated on EventDone when the backend reported it.
	Usage *api.Usage

	// Err is populated for EventError.
	Err error
}
