// Package record persists one durable, append-only audit record per
// model invocation: the assembled instructions, the capability trace,
// token usage, and the derived cost breakdown. Records are never updated
// after the initial write.
package record

import (
	"context"
	"errors"
	"time"

	"github.com/averbach/colloquy/pkg/api"
	"github.com/averbach/colloquy/pkg/billing"
)

// Sentinel errors shared by recorder implementations.
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

// Status is the terminal state written to the audit record.
type Status string

const (
	StatusCompleted       Status = "completed"
	StatusFallbackCost    Status = "completed-with-fallback-cost"
	StatusFailed          Status = "failed"
	StatusClientCancelled Status = "client-cancelled"
)

// RequestRecord is one request's durable audit row.
type RequestRecord struct {
	RequestID string `json:"request_id"`
	Tenant    string `json:"tenant"`
	SessionID string `json:"session_id"`

	Provider string `json:"provider"`
	Model    string `json:"model"`
	Streamed bool   `json:"streamed"`
	Status   Status `json:"status"`

	UserMessage   string `json:"user_message"`
	AssistantText string `json:"assistant_text"`

	// Instructions is the full assembled instruction text; Fragments is
	// its per-source breakdown.
	Instructions string         `json:"instructions"`
	Fragments    []api.Fragment `json:"fragments,omitempty"`

	ToolTraces []api.ToolTrace `json:"tool_traces,omitempty"`

	Usage api.Usage             `json:"usage"`
	Cost  billing.CostBreakdown `json:"cost"`

	CreatedAt time.Time `json:"created_at"`
}

// Recorder writes and reads audit records. Implementations must be safe
// for concurrent use.
type Recorder interface {
	// Record writes one record. Writing an existing request ID returns
	// ErrConflict; records are append-only and never updated.
	Record(ctx context.Context, rec *RequestRecord) error

	// Get retrieves one record by request ID, scoped to a tenant.
	Get(ctx context.Context, tenant, requestID string) (*RequestRecord, error)

	// History returns the conversation turns of a session in chronological
	// order, reconstructed from its records. limit bounds the number of
	// records consulted, newest first; zero means a recorder-chosen default.
	History(ctx context.Context, tenant, sessionID string, limit int) ([]api.Turn, error)

	// HealthCheck verifies the backing store is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// Turns converts one record into its user and assistant turns. Records
// without assistant text (failed runs) contribute only the user turn.
func (r *RequestRecord) Turns() []api.Turn {
	turns := []api.Turn{{Role: api.RoleUser, Content: r.UserMessage}}
	if r.AssistantText != "" {
		turns = append(turns, api.Turn{
			Role:       api.RoleAssistant,
			Content:    r.AssistantText,
			ToolTraces: r.ToolTraces,
		})
	}
	return turns
}
