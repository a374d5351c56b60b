package tier

import (
	"context"
	"sync"
	"time"

	"github.com/mnemora/mnemora/engine/docstore"
	"github.com/mnemora/mnemora/engine/memcore"
	"github.com/mnemora/mnemora/pkg/logger"
)

// accessTracker keeps per-item access counters in memory and mirrors
// them to the tracking collection so tier placement survives restarts.
// The mutex is never held across a store call.
type accessTracker struct {
	mu      sync.Mutex
	records map[string]memcore.AccessRecord
}

func newAccessTracker() *accessTracker {
	return &accessTracker{records: make(map[string]memcore.AccessRecord)}
}

// Init seeds a fresh record for a newly added item.
func (t *accessTracker) Init(id string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[id] = memcore.AccessRecord{Count: 1, LastAccess: now}
}

// Record notes one access, creating the record on first read of an
// untracked item.
func (t *accessTracker) Record(id string, now time.Time) memcore.AccessRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec := t.records[id]
	rec.Count++
	rec.LastAccess = now
	t.records[id] = rec
	return rec
}

func (t *accessTracker) Get(id string) (memcore.AccessRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[id]
	return rec, ok
}

func (t *accessTracker) Delete(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, id)
}

func (t *accessTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

func (t *accessTracker) snapshot() map[string]memcore.AccessRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]memcore.AccessRecord, len(t.records))
	for id, rec := range t.records {
		out[id] = rec
	}
	return out
}

// persist mirrors the current records to the tracking collection. Per-
// record failures are logged and skipped.
func (t *accessTracker) persist(ctx context.Context, docs docstore.Store, collection string) {
	log := logger.FromContext(ctx).With("component", "access_tracker")
	for id, rec := range t.snapshot() {
		doc := map[string]any{
			"access_count": rec.Count,
			"last_access":  rec.LastAccess.UTC().Format(time.RFC3339Nano),
		}
		if err := docs.SetDocument(ctx, collection, id, doc, false); err != nil {
			log.Warn("persisting access record failed", "item_id", id, "error", err)
		}
	}
}

// load restores records from the tracking collection at startup.
func (t *accessTracker) load(ctx context.Context, docs docstore.Store, collection string) error {
	results, err := docs.QueryDocuments(ctx, collection, docstore.Query{})
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, doc := range results {
		rec := memcore.AccessRecord{}
		switch n := doc.Data["access_count"].(type) {
		case int64:
			rec.Count = n
		case int:
			rec.Count = int64(n)
		case float64:
			rec.Count = int64(n)
		}
		if raw, ok := doc.Data["last_access"].(string); ok {
			if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
				rec.LastAccess = parsed
			}
		}
		t.records[doc.ID] = rec
	}
	return nil
}
