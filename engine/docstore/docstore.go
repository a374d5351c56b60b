// Package docstore abstracts the document database backing the warm and
// cold tiers plus access-tracking metadata. Two implementations ship: a
// Postgres JSONB store for production and an in-memory store for tests
// and embedded use.
package docstore

import (
	"context"
	"fmt"
	"strings"
)

// Filter restricts a query to documents whose field compares to Value
// with Op.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Op is a filter comparison operator.
type Op string

const (
	OpEq  Op = "=="
	OpNeq Op = "!="
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="
)

// Document is a query result: id plus payload.
type Document struct {
	ID   string
	Data map[string]any
}

// Query bundles the optional parts of a document lookup. OrderBy names a
// document field, with a leading '-' for descending order. Limit<=0 means
// unbounded.
type Query struct {
	Filters []Filter
	OrderBy string
	Limit   int
}

// Store is the document-database surface the tiering engine consumes.
// Reads of absent documents return memcore.ErrNotFound.
type Store interface {
	GetDocument(ctx context.Context, collection, id string) (map[string]any, error)
	// SetDocument upserts. With merge, existing fields not present in
	// data are preserved.
	SetDocument(ctx context.Context, collection, id string, data map[string]any, merge bool) error
	DeleteDocument(ctx context.Context, collection, id string) error
	QueryDocuments(ctx context.Context, collection string, q Query) ([]Document, error)
	Health(ctx context.Context) error
	Close() error
}

func (o Op) valid() bool {
	switch o {
	case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte:
		return true
	}
	return false
}

// orderField splits an OrderBy spec into field name and direction.
func orderField(spec string) (field string, desc bool) {
	if strings.HasPrefix(spec, "-") {
		return spec[1:], true
	}
	return spec, false
}

func validateQuery(q Query) error {
	for _, f := range q.Filters {
		if f.Field == "" {
			return fmt.Errorf("filter field must not be empty")
		}
		if !f.Op.valid() {
			return fmt.Errorf("unknown filter op: %q", f.Op)
		}
	}
	return nil
}
