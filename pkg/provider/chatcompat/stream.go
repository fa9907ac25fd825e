package chatcompat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sort"
	"strings"

	"github.com/averbach/colloquy/pkg/api"
	"github.com/averbach/colloquy/pkg/provider"
)

// toolCallBuffer accumulates tool call fragments across chunks. Backends
// stream tool calls incrementally: the first fragment carries the ID and
// name, later fragments append argument text. Fragments are keyed by the
// choice-local index.
type toolCallBuffer struct {
	calls map[int]*provider.ToolCall
}

func newToolCallBuffer() *toolCallBuffer {
	return &toolCallBuffer{calls: make(map[int]*provider.ToolCall)}
}

func (b *toolCallBuffer) add(tc chatChunkToolCall) {
	call, ok := b.calls[tc.Index]
	if !ok {
		call = &provider.ToolCall{}
		b.calls[tc.Index] = call
	}
	if tc.ID != "" {
		call.ID = tc.ID
	}
	if tc.Function.Name != "" {
		call.Name = tc.Function.Name
	}
	call.Arguments += tc.Function.Arguments
}

// drain returns the buffered calls in index order and resets the buffer.
func (b *toolCallBuffer) drain() []provider.ToolCall {
	if len(b.calls) == 0 {
		return nil
	}
	indices := make([]int, 0, len(b.calls))
	for i := range b.calls {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	out := make([]provider.ToolCall, 0, len(indices))
	for _, i := range indices {
		call := *b.calls[i]
		if call.ID == "" {
			// Some backends stream fragments without an id; the tool
			// result message still needs one to reference.
			call.ID = api.NewCallID()
		}
		out = append(out, call)
	}
	b.calls = make(map[int]*provider.ToolCall)
	return out
}

// parseStream reads the SSE response body and emits provider events.
// It terminates with exactly one EventDone or EventError, unless the
// request is cancelled first.
func parseStream(ctx context.Context, body io.Reader, events chan<- provider.Event) {
	// Every send must stay cancellable: a consumer that abandons the
	// channel mid-stream would otherwise strand this goroutine, and the
	// response body with it, on a full buffer.
	emit := func(ev provider.Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	buffer := newToolCallBuffer()
	var finalUsage *api.Usage
	doneSentinel := false

	for scanner.Scan() {
		if ctx.Err() != nil {
			emit(provider.Event{Type: provider.EventError, Err: ctx.Err()})
			return
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		if data == "[DONE]" {
			doneSentinel = true
			break
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Malformed chunks are skipped; backends occasionally emit
			// keep-alive comments or partial writes.
			continue
		}

		if chunk.Usage != nil {
			u := translateUsage(chunk.Usage, false)
			finalUsage = &u
		}

		for _, choice := range chunk.Choices {
			if choice.Delta.Content != nil && *choice.Delta.Content != "" {
				if !emit(provider.Event{Type: provider.EventTextDelta, Delta: *choice.Delta.Content}) {
					return
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				buffer.add(tc)
			}
			if choice.FinishReason != nil && *choice.FinishReason != "" {
				for _, call := range buffer.drain() {
					c := call
					if !emit(provider.Event{Type: provider.EventToolCall, ToolCall: &c}) {
						return
					}
				}
			}
		}
	}

	if err := scanner.Err(); err != nil && !doneSentinel {
		emit(provider.Event{Type: provider.EventError, Err: mapNetworkError(err)})
		return
	}

	// Flush calls the backend never closed with a finish_reason.
	for _, call := range buffer.drain() {
		c := call
		if !emit(provider.Event{Type: provider.EventToolCall, ToolCall: &c}) {
			return
		}
	}

	emit(provider.Event{Type: provider.EventDone, Usage: finalUsage})
}
