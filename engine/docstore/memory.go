package docstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/mnemora/mnemora/engine/memcore"
)

// MemoryStore is an in-process Store with the same semantics as the
// Postgres implementation. It backs tests and embedded single-process
// deployments.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
}

// NewMemoryStore returns an empty in-memory document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]map[string]any)}
}

func (s *MemoryStore) GetDocument(_ context.Context, collection, id string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, memcore.ErrNotFound
	}
	return cloneDoc(doc), nil
}

func (s *MemoryStore) SetDocument(_ context.Context, collection, id string, data map[string]any, merge bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]map[string]any)
		s.collections[collection] = coll
	}
	if existing, ok := coll[id]; ok && merge {
		merged := cloneDoc(existing)
		for k, v := range data {
			merged[k] = v
		}
		coll[id] = merged
		return nil
	}
	coll[id] = cloneDoc(data)
	return nil
}

func (s *MemoryStore) DeleteDocument(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], id)
	return nil
}

func (s *MemoryStore) QueryDocuments(_ context.Context, collection string, q Query) ([]Document, error) {
	if err := validateQuery(q); err != nil {
		return nil, memcore.NewOperationError("memory_docstore", "query", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Document
	for id, doc := range s.collections[collection] {
		if matchesFilters(doc, q.Filters) {
			out = append(out, Document{ID: id, Data: cloneDoc(doc)})
		}
	}
	// Stable order for unordered queries so pagination is deterministic.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if q.OrderBy != "" {
		field, desc := orderField(q.OrderBy)
		sort.SliceStable(out, func(i, j int) bool {
			cmp := compareValues(out[i].Data[field], out[j].Data[field])
			if desc {
				return cmp > 0
			}
			return cmp < 0
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Health(_ context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func matchesFilters(doc map[string]any, filters []Filter) bool {
	for _, f := range filters {
		val, ok := doc[f.Field]
		if !ok {
			return false
		}
		cmp := compareValues(val, f.Value)
		switch f.Op {
		case OpEq:
			if cmp != 0 {
				return false
			}
		case OpNeq:
			if cmp == 0 {
				return false
			}
		case OpLt:
			if cmp >= 0 {
				return false
			}
		case OpLte:
			if cmp > 0 {
				return false
			}
		case OpGt:
			if cmp <= 0 {
				return false
			}
		case OpGte:
			if cmp < 0 {
				return false
			}
		}
	}
	return true
}

// compareValues orders two document values: numerically when both are
// numbers, lexicographically otherwise.
func compareValues(a, b any) int {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := stringify(a), stringify(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func cloneDoc(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
