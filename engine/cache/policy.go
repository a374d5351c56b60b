package cache

import "fmt"

// PolicyKind names a supported eviction strategy.
type PolicyKind string

const (
	// LRU evicts the entry with the oldest last-access time.
	LRU PolicyKind = "lru"
	// LFU evicts the entry with the smallest access count, breaking ties
	// by insertion order.
	LFU PolicyKind = "lfu"
	// TTL evicts the entry with the smallest remaining time to live;
	// entries without a TTL are evicted last.
	TTL PolicyKind = "ttl"
)

// Policy ranks entries for eviction. Less reports whether a should be
// evicted before b.
type Policy[V any] interface {
	Name() string
	Less(a, b *Entry[V]) bool
}

// NewPolicy builds the eviction policy for the given kind.
func NewPolicy[V any](kind PolicyKind) (Policy[V], error) {
	switch kind {
	case LRU:
		return lruPolicy[V]{}, nil
	case LFU:
		return lfuPolicy[V]{}, nil
	case TTL:
		return ttlPolicy[V]{}, nil
	default:
		return nil, fmt.Errorf("unknown eviction policy: %q", kind)
	}
}

type lruPolicy[V any] struct{}

func (lruPolicy[V]) Name() string { return string(LRU) }

func (lruPolicy[V]) Less(a, b *Entry[V]) bool {
	if a.LastAccessedAt.Equal(b.LastAccessedAt) {
		return a.seq < b.seq
	}
	return a.LastAccessedAt.Before(b.LastAccessedAt)
}

type lfuPolicy[V any] struct{}

func (lfuPolicy[V]) Name() string { return string(LFU) }

func (lfuPolicy[V]) Less(a, b *Entry[V]) bool {
	if a.AccessCount == b.AccessCount {
		return a.seq < b.seq
	}
	return a.AccessCount < b.AccessCount
}

type ttlPolicy[V any] struct{}

func (ttlPolicy[V]) Name() string { return string(TTL) }

func (ttlPolicy[V]) Less(a, b *Entry[V]) bool {
	aHas, bHas := !a.ExpiresAt.IsZero(), !b.ExpiresAt.IsZero()
	switch {
	case aHas && !bHas:
		return true
	case !aHas && bHas:
		return false
	case !aHas && !bHas:
		return a.seq < b.seq
	default:
		if a.ExpiresAt.Equal(b.ExpiresAt) {
			return a.seq < b.seq
		}
		return a.ExpiresAt.Before(b.ExpiresAt)
	}
}
