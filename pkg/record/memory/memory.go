// Package memory provides an in-memory Recorder for testing and
// lightweight deployments. Records are lost when the process restarts.
// Optional LRU eviction limits memory usage.
package memory

import (
	"container/list"
	"context"
	"sort"
	"sync"

	"github.com/averbach/colloquy/pkg/api"
	"github.com/averbach/colloquy/pkg/record"
)

const defaultHistoryLimit = 50

// Recorder is an in-memory record store with optional LRU eviction.
type Recorder struct {
	mu      sync.RWMutex
	entries map[string]*entry // keyed by tenant + "\x00" + request ID
	lruList *list.List        // front = most recent
	maxSize int               // 0 = unlimited
}

type entry struct {
	rec     *record.RequestRecord
	lruElem *list.Element
}

var _ record.Recorder = (*Recorder)(nil)

// New creates an in-memory recorder. maxSize bounds the number of
// retained records; zero means unlimited.
func New(maxSize int) *Recorder {
	return &Recorder{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

func key(tenant, requestID string) string {
	return tenant + "\x00" + requestID
}

// Record stores one record. Duplicate request IDs are rejected; records
// are append-only.
func (r *Recorder) Record(_ context.Context, rec *record.RequestRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(rec.Tenant, rec.RequestID)
	if _, exists := r.entries[k]; exists {
		return record.ErrConflict
	}

	if r.maxSize > 0 && len(r.entries) >= r.maxSize {
		r.evictOldest()
	}

	stored := *rec
	elem := r.lruList.PushFront(k)
	r.entries[k] = &entry{rec: &stored, lruElem: elem}
	return nil
}

// Get retrieves one record by request ID within a tenant.
func (r *Recorder) Get(_ context.Context, tenant, requestID string) (*record.RequestRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[key(tenant, requestID)]
	if !ok {
		return nil, record.ErrNotFound
	}
	out := *e.rec
	return &out, nil
}

// History reconstructs a session's conversation turns from its records,
// oldest first.
func (r *Recorder) History(_ context.Context, tenant, sessionID string, limit int) ([]api.Turn, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	r.mu.RLock()
	var records []*record.RequestRecord
	for _, e := range r.entries {
		if e.rec.Tenant == tenant && e.rec.SessionID == sessionID {
			records = append(records, e.rec)
		}
	}
	r.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	if len(records) > limit {
		records = records[len(records)-limit:]
	}

	var turns []api.Turn
	for _, rec := range records {
		turns = append(turns, rec.Turns()...)
	}
	return turns, nil
}

// HealthCheck always succeeds for the in-memory recorder.
func (r *Recorder) HealthCheck(_ context.Context) error {
	return nil
}

// Close releases nothing for the in-memory recorder.
func (r *Recorder) Close() error {
	return nil
}

// evictOldest removes the least recently added record. Caller holds the
// write lock.
func (r *Recorder) evictOldest() {
	oldest := r.lruList.Back()
	if oldest == nil {
		return
	}
	k := oldest.Value.(string)
	r.lruList.Remove(oldest)
	delete(r.entries, k)
}
