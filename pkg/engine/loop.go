package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/averbach/colloquy/pkg/api"
	"github.com/averbach/colloquy/pkg/observability"
	"github.com/averbach/colloquy/pkg/provider"
	"github.com/averbach/colloquy/pkg/tools"
)

// Run executes the capability-invocation cycle with non-streaming model
// calls. It returns a Result for completed, incomplete, and cancelled
// runs; an error is only returned for backend failures.
func (e *Engine) Run(ctx context.Context, req *Request) (*Result, error) {
	descriptors, defs := exposedTools(req)

	provReq := &provider.Request{
		Model:       req.Model,
		Messages:    buildMessages(req),
		Tools:       defs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	var usage api.Usage
	var traces []api.ToolTrace

	for round := 0; round < e.maxRounds; round++ {
		if ctx.Err() != nil {
			return cancelled(usage, traces, round), nil
		}

		start := time.Now()
		resp, err := e.provider.Complete(ctx, provReq)
		e.recordProviderMetrics(req.Model, time.Since(start), err == nil)
		if err != nil {
			if ctx.Err() != nil {
				return cancelled(usage, traces, round), nil
			}
			return nil, err
		}
		usage.Add(resp.Usage)
		e.recordTokenMetrics(req.Model, resp.Usage)

		if len(resp.ToolCalls) == 0 {
			turn := api.Turn{Role: api.RoleAssistant, Content: resp.Text, ToolTraces: traces}
			return &Result{
				Text:   resp.Text,
				Turn:   turn,
				Usage:  usage,
				Status: StatusCompleted,
				Rounds: round + 1,
			}, nil
		}

		results, roundTraces := e.dispatchRound(ctx, req, descriptors, resp.ToolCalls)
		traces = append(traces, roundTraces...)
		provReq.Messages = appendToolRound(provReq.Messages, resp.ToolCalls, results)
	}

	slog.Warn("tool round limit reached", "model", req.Model, "max_rounds", e.maxRounds)
	return &Result{
		Turn:   api.Turn{Role: api.RoleAssistant, ToolTraces: traces},
		Usage:  usage,
		Status: StatusIncomplete,
		Rounds: e.maxRounds,
	}, nil
}

// RunStream executes the cycle with streaming model calls. Text deltas
// from the answer are forwarded to the sink as they arrive; capability
// rounds produce no visible output. The returned usage carries token
// counts only.
func (e *Engine) RunStream(ctx context.Context, req *Request, sink StreamSink) (*Result, error) {
	descriptors, defs := exposedTools(req)

	provReq := &provider.Request{
		Model:       req.Model,
		Messages:    buildMessages(req),
		Tools:       defs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	var usage api.Usage
	var traces []api.ToolTrace

	for round := 0; round < e.maxRounds; round++ {
		if ctx.Err() != nil {
			return streamCancelled(usage, traces, round), nil
		}

		start := time.Now()
		events, err := e.provider.Stream(ctx, provReq)
		if err != nil {
			e.recordProviderMetrics(req.Model, time.Since(start), false)
			if ctx.Err() != nil {
				return streamCancelled(usage, traces, round), nil
			}
			return nil, err
		}

		turn, turnErr := e.consumeStream(ctx, events, sink)
		e.recordProviderMetrics(req.Model, time.Since(start), turnErr == nil)
		if turnErr != nil {
			// The stream is being abandoned; release the producer so it
			// can close the backend connection.
			go drainEvents(events)
			if ctx.Err() != nil {
				return streamCancelled(usage, traces, round), nil
			}
			return nil, turnErr
		}
		if turn.usage != nil {
			usage.Add(*turn.usage)
			e.recordTokenMetrics(req.Model, *turn.usage)
		}

		if len(turn.toolCalls) == 0 {
			out := &Result{
				Text:     turn.text,
				Turn:     api.Turn{Role: api.RoleAssistant, Content: turn.text, ToolTraces: traces},
				Usage:    usage,
				Status:   StatusCompleted,
				Streamed: true,
				Rounds:   round + 1,
			}
			return out, nil
		}

		results, roundTraces := e.dispatchRound(ctx, req, descriptors, turn.toolCalls)
		traces = append(traces, roundTraces...)
		provReq.Messages = appendToolRound(provReq.Messages, turn.toolCalls, results)
	}

	slog.Warn("tool round limit reached", "model", req.Model, "max_rounds", e.maxRounds)
	return &Result{
		Turn:     api.Turn{Role: api.RoleAssistant, ToolTraces: traces},
		Usage:    usage,
		Status:   StatusIncomplete,
		Streamed: true,
		Rounds:   e.maxRounds,
	}, nil
}

// streamTurn is the outcome of consuming one provider stream round.
type streamTurn struct {
	text      string
	toolCalls []provider.ToolCall
	usage     *api.Usage
}

// consumeStream drains one round's event channel. Text deltas are
// forwarded to the sink; tool calls and usage are collected for the
// caller. Rounds that end in tool calls carry no visible text by
// construction of the backend protocol.
func (e *Engine) consumeStream(ctx context.Context, events <-chan provider.Event, sink StreamSink) (*streamTurn, error) {
	turn := &streamTurn{}
	for ev := range events {
		switch ev.Type {
		case provider.EventTextDelta:
			turn.text += ev.Delta
			if sink != nil {
				if err := sink.WriteDelta(ctx, ev.Delta); err != nil {
					return nil, err
				}
			}
		case provider.EventToolCall:
			turn.toolCalls = append(turn.toolCalls, *ev.ToolCall)
		case provider.EventDone:
			turn.usage = ev.Usage
		case provider.EventError:
			return nil, ev.Err
		}
	}
	return turn, nil
}

// drainEvents discards the remainder of an abandoned event channel so
// the producing goroutine never blocks on a full buffer.
func drainEvents(events <-chan provider.Event) {
	for range events {
	}
}

// dispatchRound filters one round's tool calls against the exposed set,
// executes the allowed ones concurrently, and returns the combined
// results plus the traces for the audit record. Rejected and failed calls
// produce explanatory error results fed back to the model, never a run
// failure.
func (e *Engine) dispatchRound(ctx context.Context, req *Request, exposed []tools.Descriptor, provCalls []provider.ToolCall) ([]tools.Result, []api.ToolTrace) {
	calls := make([]tools.Call, 0, len(provCalls))
	for _, c := range provCalls {
		calls = append(calls, tools.Call{ID: c.ID, Name: c.Name, Arguments: c.Arguments})
	}

	filtered := tools.FilterExposed(calls, exposed)
	results := e.executeConcurrently(ctx, req, filtered.Allowed)
	results = append(results, filtered.Rejected...)

	byID := make(map[string]tools.Result, len(results))
	for _, r := range results {
		byID[r.CallID] = r
	}

	traces := make([]api.ToolTrace, 0, len(calls))
	for _, c := range calls {
		r := byID[c.ID]
		traces = append(traces, api.ToolTrace{
			Name:      c.Name,
			Arguments: c.Arguments,
			Result:    r.Output,
			IsError:   r.IsError,
		})
	}
	return results, traces
}

// executeConcurrently dispatches tool calls to executors in parallel and
// collects results in call order.
func (e *Engine) executeConcurrently(ctx context.Context, req *Request, calls []tools.Call) []tools.Result {
	if len(calls) == 0 {
		return nil
	}

	results := make([]tools.Result, len(calls))
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, tc tools.Call) {
			defer wg.Done()

			exec := e.findExecutor(req, tc.Name)
			if exec == nil {
				results[idx] = *tools.ErrorResult(tc.ID, "no executor found for tool "+tc.Name)
				observability.ToolExecutionsTotal.WithLabelValues(tc.Name, "error").Inc()
				return
			}

			result, err := exec.Execute(ctx, tc)
			if err != nil {
				slog.Warn("tool execution error",
					"tool", tc.Name,
					"call_id", tc.ID,
					"error", err.Error(),
				)
				results[idx] = *tools.ErrorResult(tc.ID, err.Error())
				observability.ToolExecutionsTotal.WithLabelValues(tc.Name, "error").Inc()
				return
			}

			status := "success"
			if result.IsError {
				status = "error"
			}
			observability.ToolExecutionsTotal.WithLabelValues(tc.Name, status).Inc()
			results[idx] = *result
		}(i, call)
	}

	wg.Wait()
	return results
}

// appendToolRound extends the conversation with the assistant's tool call
// message followed by one tool message per result. The assistant message
// must precede the tool messages per Chat Completions convention.
func appendToolRound(msgs []provider.Message, calls []provider.ToolCall, results []tools.Result) []provider.Message {
	msgs = append(msgs, provider.Message{Role: "assistant", ToolCalls: calls})
	for _, r := range results {
		msgs = append(msgs, provider.Message{
			Role:       "tool",
			Content:    r.Output,
			ToolCallID: r.CallID,
		})
	}
	return msgs
}

func (e *Engine) recordProviderMetrics(model string, elapsed time.Duration, ok bool) {
	status := "success"
	if !ok {
		status = "error"
	}
	name := e.provider.Name()
	observability.ProviderRequestsTotal.WithLabelValues(name, model, status).Inc()
	observability.ProviderLatency.WithLabelValues(name, model).Observe(elapsed.Seconds())
}

func (e *Engine) recordTokenMetrics(model string, u api.Usage) {
	name := e.provider.Name()
	observability.ProviderTokensTotal.WithLabelValues(name, model, "input").Add(float64(u.InputTokens))
	observability.ProviderTokensTotal.WithLabelValues(name, model, "output").Add(float64(u.OutputTokens))
}

func cancelled(usage api.Usage, traces []api.ToolTrace, rounds int) *Result {
	return &Result{
		Turn:   api.Turn{Role: api.RoleAssistant, ToolTraces: traces},
		Usage:  usage,
		Status: StatusCancelled,
		Rounds: rounds,
	}
}

func streamCancelled(usage api.Usage, traces []api.ToolTrace, rounds int) *Result {
	r := cancelled(usage, traces, rounds)
	r.Streamed = true
	return r
}
