package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/averbach/colloquy/pkg/api"
	"github.com/averbach/colloquy/pkg/record"
)

func testRecord(requestID, session string, createdAt time.Time) *record.RequestRecord {
	return &record.RequestRecord{
		RequestID:     requestID,
		Tenant:        "acme/support",
		SessionID:     session,
		Provider:      "openrouter",
		Model:         "test-model",
		Status:        record.StatusCompleted,
		UserMessage:   "question " + requestID,
		AssistantText: "answer " + requestID,
		CreatedAt:     createdAt,
	}
}

func TestRecordAndGet(t *testing.T) {
	r := New(0)
	ctx := context.Background()

	rec := testRecord("req_1", "sess_1", time.Now())
	if err := r.Record(ctx, rec); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := r.Get(ctx, "acme/support", "req_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.UserMessage != "question req_1" {
		t.Errorf("user message = %q", got.UserMessage)
	}

	if _, err := r.Get(ctx, "other/agent", "req_1"); !errors.Is(err, record.ErrNotFound) {
		t.Errorf("cross-tenant get error = %v, want ErrNotFound", err)
	}
}

func TestRecord_AppendOnly(t *testing.T) {
	r := New(0)
	ctx := context.Background()

	rec := testRecord("req_1", "sess_1", time.Now())
	if err := r.Record(ctx, rec); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := r.Record(ctx, rec); !errors.Is(err, record.ErrConflict) {
		t.Errorf("duplicate write error = %v, want ErrConflict", err)
	}
}

func TestHistory_ChronologicalTurns(t *testing.T) {
	r := New(0)
	ctx := context.Background()
	base := time.Now()

	// Inserted out of order to check sorting by creation time.
	r.Record(ctx, testRecord("req_2", "sess_1", base.Add(time.Minute)))
	r.Record(ctx, testRecord("req_1", "sess_1", base))
	r.Record(ctx, testRecord("req_3", "sess_other", base))

	turns, err := r.History(ctx, "acme/support", "sess_1", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(turns) != 4 {
		t.Fatalf("turns = %d, want 4", len(turns))
	}
	want := []string{"question req_1", "answer req_1", "question req_2", "answer req_2"}
	for i, w := range want {
		if turns[i].Content != w {
			t.Errorf("turn %d = %q, want %q", i, turns[i].Content, w)
		}
	}
	if turns[0].Role != api.RoleUser || turns[1].Role != api.RoleAssistant {
		t.Errorf("roles = %q, %q", turns[0].Role, turns[1].Role)
	}
}

func TestHistory_LimitNewest(t *testing.T) {
	r := New(0)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		r.Record(ctx, testRecord(fmt.Sprintf("req_%d", i), "sess_1", base.Add(time.Duration(i)*time.Minute)))
	}

	turns, err := r.History(ctx, "acme/support", "sess_1", 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	// Two records, two turns each.
	if len(turns) != 4 {
		t.Fatalf("turns = %d, want 4", len(turns))
	}
	if turns[0].Content != "question req_3" {
		t.Errorf("oldest retained turn = %q, want question req_3", turns[0].Content)
	}
}

func TestEviction(t *testing.T) {
	r := New(2)
	ctx := context.Background()
	base := time.Now()

	r.Record(ctx, testRecord("req_1", "sess_1", base))
	r.Record(ctx, testRecord("req_2", "sess_1", base.Add(time.Second)))
	r.Record(ctx, testRecord("req_3", "sess_1", base.Add(2*time.Second)))

	if _, err := r.Get(ctx, "acme/support", "req_1"); !errors.Is(err, record.ErrNotFound) {
		t.Errorf("oldest record still present, err = %v", err)
	}
	if _, err := r.Get(ctx, "acme/support", "req_3"); err != nil {
		t.Errorf("newest record missing: %v", err)
	}
}

func TestFailedRunContributesOnlyUserTurn(t *testing.T) {
	r := New(0)
	ctx := context.Background()

	rec := testRecord("req_1", "sess_1", time.Now())
	rec.Status = record.StatusFailed
	rec.AssistantText = ""
	r.Record(ctx, rec)

	turns, err := r.History(ctx, "acme/support", "sess_1", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(turns) != 1 || turns[0].Role != api.RoleUser {
		t.Errorf("turns = %+v, want single user turn", turns)
	}
}
