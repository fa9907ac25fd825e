// Package transport defines the boundary between the request pipeline and
// the HTTP layer: the response writer abstraction, request-scoped context
// values, and error-to-status mapping. The http subpackage implements the
// SSE and JSON wire formats.
package transport

import (
	"context"

	"github.com/averbach/colloquy/pkg/api"
)

// ResponseWriter delivers a pipeline's output to the client. Exactly one
// of the two shapes is used per request: WriteReply for synchronous JSON,
// or a sequence of WriteDelta calls closed by WriteDone for streaming.
// WriteError may be called in either mode; once streaming has started it
// is delivered in-band as an error event.
type ResponseWriter interface {
	// WriteDelta streams one chunk of assistant text. The chunk may
	// contain internal line breaks; the wire encoding preserves them.
	WriteDelta(ctx context.Context, delta string) error

	// WriteReply sends the complete non-streaming JSON response. Mutually
	// exclusive with WriteDelta/WriteDone.
	WriteReply(ctx context.Context, reply *api.Reply) error

	// WriteDone terminates a stream with the terminal event.
	WriteDone(ctx context.Context) error

	// WriteError reports a failure. Before any delta it produces an HTTP
	// error response; mid-stream it produces an in-band error event
	// followed by the terminal event.
	WriteError(ctx context.Context, apiErr *api.APIError) error
}
