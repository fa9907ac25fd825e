// Package engine drives the generative-model call for one request,
// including the bounded capability-invocation cycle. Each run starts from
// the assembled instructions and conversation history, lets the model
// invoke the exposed tools for a limited number of rounds, and finishes
// with a final answer, a finalized turn history, and cumulative usage.
package engine

import (
	"context"

	"github.com/averbach/colloquy/pkg/api"
	"github.com/averbach/colloquy/pkg/provider"
	"github.com/averbach/colloquy/pkg/tools"
)

// Status is the terminal state of an engine run.
type Status string

const (
	// StatusCompleted means the model produced a final answer.
	StatusCompleted Status = "completed"

	// StatusIncomplete means the round limit was reached before the model
	// stopped invoking tools.
	StatusIncomplete Status = "incomplete"

	// StatusCancelled means the caller's context was cancelled mid-run.
	// Partial usage from finished rounds is still reported.
	StatusCancelled Status = "cancelled"
)

// Request is one engine invocation.
type Request struct {
	// Model is the backend model identifier.
	Model string

	// Instructions is the assembled instruction text, sent as the system
	// message.
	Instructions string

	// History holds prior conversation turns in order.
	History []api.Turn

	// Message is the new user message.
	Message string

	// Executors are the tenant-scoped capability executors for this
	// request. The exposed tool definitions are derived from them.
	Executors []tools.Executor

	Temperature *float64
	MaxTokens   *int
}

// Result is the finalized outcome of a run. Usage is cumulative across
// all rounds; for non-streamed runs it may carry a vendor-reported cost.
type Result struct {
	Text     string
	Turn     api.Turn
	Usage    api.Usage
	Status   Status
	Streamed bool
	Rounds   int
}

// StreamSink receives incremental text during a streaming run. A write
// error aborts the run.
type StreamSink interface {
	WriteDelta(ctx context.Context, delta string) error
}

// Engine executes runs against one backend provider. Engines are
// stateless between runs and safe for concurrent use.
type Engine struct {
	provider  provider.Provider
	maxRounds int
}

// New creates an engine. maxRounds bounds the number of model invocations
// per run; values below one are clamped to one.
func New(p provider.Provider, maxRounds int) *Engine {
	if maxRounds < 1 {
		maxRounds = 1
	}
	return &Engine{provider: p, maxRounds: maxRounds}
}

// buildMessages converts instructions, history, and the new user message
// into the backend conversation.
func buildMessages(req *Request) []provider.Message {
	msgs := make([]provider.Message, 0, len(req.History)+2)
	if req.Instructions != "" {
		msgs = append(msgs, provider.Message{Role: "system", Content: req.Instructions})
	}
	for _, t := range req.History {
		msgs = append(msgs, provider.Message{Role: string(t.Role), Content: t.Content})
	}
	msgs = append(msgs, provider.Message{Role: "user", Content: req.Message})
	return msgs
}

// exposedTools collects the tool definitions from the request's executors.
func exposedTools(req *Request) ([]tools.Descriptor, []provider.ToolDef) {
	var descriptors []tools.Descriptor
	for _, ex := range req.Executors {
		descriptors = append(descriptors, ex.Descriptors()...)
	}
	defs := make([]provider.ToolDef, 0, len(descriptors))
	for _, d := range descriptors {
		defs = append(defs, provider.ToolDef{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}
	return descriptors, defs
}

// findExecutor returns the executor that handles the named tool, or nil.
func (e *Engine) findExecutor(req *Request, name string) tools.Executor {
	for _, ex := range req.Executors {
		if ex.CanExecute(name) {
			return ex
		}
	}
	return nil
}
