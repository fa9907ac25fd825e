package tools

import (
	"context"
	"encoding/json"
)

// Descriptor describes one named capability the model may invoke: its
// name, a natural-language description, and a JSON Schema for its
// parameters. The process-wide catalog of descriptors is fixed; individual
// requests see a tenant-scoped subset.
type Descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Executor executes tool calls. An executor serves one family of
// capabilities (directory search, semantic search) and reports the
// descriptors it exposes for a given tenant configuration.
//
// Execute never returns an error for "no results" or "bad name" cases;
// those are encoded in the result payload so the model can adapt.
type Executor interface {
	// Descriptors returns the tool definitions this executor exposes.
	Descriptors() []Descriptor

	// CanExecute checks if this executor handles the given tool name.
	CanExecute(toolName string) bool

	// Execute runs the tool and returns the result.
	Execute(ctx context.Context, call Call) (*Result, error)
}

// Call represents a model's request to invoke a tool.
type Call struct {
	// ID is the unique call identifier from the model (e.g. "call_abc123").
	ID string

	// Name is the tool function name.
	Name string

	// Arguments is the JSON-encoded arguments string.
	Arguments string
}

// Result represents the output of a tool execution.
type Result struct {
	// CallID matches the originating Call.ID.
	CallID string

	// Output is the JSON-serializable tool output text.
	Output string

	// IsError indicates that the output is an error message.
	IsError bool
}

// ErrorResult builds a Result carrying an explanatory message instead of
// data. The message is returned to the model, never raised.
func ErrorResult(callID, message string) *Result {
	return &Result{CallID: callID, Output: message, IsError: true}
}
