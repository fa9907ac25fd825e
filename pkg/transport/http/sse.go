// Package http implements the HTTP/SSE boundary: the message handler,
// the stream encoder, and the server lifecycle.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/averbach/colloquy/pkg/api"
	"github.com/averbach/colloquy/pkg/transport"
)

// SSE event names on the wire.
const (
	eventDelta = "delta"
	eventError = "error"
	eventDone  = "done"
)

// writerState tracks the state of an SSE response writer.
type writerState int

const (
	writerIdle      writerState = iota // no writes yet
	writerStreaming                    // at least one delta written
	writerCompleted                    // terminal event sent or JSON reply written
)

// sseWriter implements transport.ResponseWriter over one HTTP response.
// It handles both streaming (SSE) and non-streaming (JSON) output.
//
// Encoding invariant: a delta payload containing internal line breaks is
// emitted as one data line per payload line, all under a single event
// header. Event-stream clients silently discard continuation lines that
// lack the data marker, which corrupts tables and multi-paragraph text
// without any error on either side; per-line prefixing is what prevents
// that.
type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu    sync.Mutex
	state writerState
}

var _ transport.ResponseWriter = (*sseWriter)(nil)

// newSSEWriter wraps an http.ResponseWriter.
func newSSEWriter(w http.ResponseWriter) *sseWriter {
	return &sseWriter{
		w:  w,
		rc: http.NewResponseController(w),
	}
}

// WriteDelta emits one delta event. The payload is split on line breaks
// and every resulting line gets its own data marker.
func (s *sseWriter) WriteDelta(_ context.Context, delta string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerCompleted {
		return errors.New("cannot write delta: stream is completed")
	}
	if s.state == writerIdle {
		s.writeSSEHeaders()
		s.state = writerStreaming
	}

	if err := s.writeEvent(eventDelta, delta); err != nil {
		return err
	}
	return s.flush()
}

// WriteDone emits the terminal event, which carries no payload. The
// client finalizes rendering of the accumulated document only once this
// arrives.
func (s *sseWriter) WriteDone(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerCompleted {
		return nil
	}
	if s.state == writerIdle {
		s.writeSSEHeaders()
	}
	s.state = writerCompleted

	if _, err := fmt.Fprintf(s.w, "event: %s\n\n", eventDone); err != nil {
		return fmt.Errorf("writing terminal event: %w", err)
	}
	return s.flush()
}

// WriteReply sends the complete non-streaming JSON response. Mutually
// exclusive with the streaming writes.
func (s *sseWriter) WriteReply(_ context.Context, reply *api.Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != writerIdle {
		return errors.New("cannot write reply: streaming has already started")
	}
	s.state = writerCompleted

	s.w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(s.w).Encode(reply); err != nil {
		return fmt.Errorf("encoding reply: %w", err)
	}
	return nil
}

// WriteError reports a failure. Before any streaming write it produces a
// plain HTTP error response; mid-stream the HTTP status is already on the
// wire, so the error travels in-band followed by the terminal event.
func (s *sseWriter) WriteError(_ context.Context, apiErr *api.APIError) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case writerCompleted:
		return errors.New("cannot write error: response is completed")
	case writerIdle:
		s.state = writerCompleted
		transport.WriteAPIError(s.w, apiErr)
		return nil
	}

	payload, err := json.Marshal(api.ErrorResponse{Error: apiErr})
	if err != nil {
		return fmt.Errorf("marshaling error event: %w", err)
	}
	if err := s.writeEvent(eventError, string(payload)); err != nil {
		return err
	}
	s.state = writerCompleted
	if _, err := fmt.Fprintf(s.w, "event: %s\n\n", eventDone); err != nil {
		return fmt.Errorf("writing terminal event: %w", err)
	}
	return s.flush()
}

// streaming reports whether at least one delta has been written.
func (s *sseWriter) streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != writerIdle
}

func (s *sseWriter) writeSSEHeaders() {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
}

// writeEvent frames one event: the event header, one data line per
// payload line, and the blank-line frame boundary.
func (s *sseWriter) writeEvent(event, payload string) error {
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(event)
	b.WriteByte('\n')
	for _, line := range strings.Split(payload, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	if _, err := fmt.Fprint(s.w, b.String()); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	return nil
}

func (s *sseWriter) flush() error {
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("flushing stream: %w", err)
	}
	return nil
}
