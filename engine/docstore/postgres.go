package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mnemora/mnemora/engine/memcore"
	"github.com/mnemora/mnemora/pkg/logger"
)

// PgxPool is the pgxpool surface the store uses; pgxmock satisfies it in
// tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore keeps every collection in a single JSONB table keyed by
// (collection, id).
type PostgresStore struct {
	pool PgxPool
}

const createDocumentsTable = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
)`

var fieldNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// NewPostgresStore connects a pool, verifies connectivity and ensures the
// documents table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, memcore.NewConnectionError("postgres", "connect", err)
	}
	store := &PostgresStore{pool: pool}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, memcore.NewConnectionError("postgres", "ping", err)
	}
	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.FromContext(ctx).With("component", "docstore").Info("postgres document store ready")
	return store, nil
}

// NewPostgresStoreWithPool wraps an existing pool without schema setup.
func NewPostgresStoreWithPool(pool PgxPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createDocumentsTable); err != nil {
		return memcore.NewOperationError("postgres", "ensure_schema", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, collection, id string) (map[string]any, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, memcore.ErrNotFound
	}
	if err != nil {
		return nil, memcore.NewOperationError("postgres", "get_document", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, memcore.NewOperationError("postgres", "get_document", err)
	}
	return doc, nil
}

func (s *PostgresStore) SetDocument(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return memcore.NewOperationError("postgres", "set_document", err)
	}
	update := `data = EXCLUDED.data`
	if merge {
		update = `data = documents.data || EXCLUDED.data`
	}
	query := fmt.Sprintf(`INSERT INTO documents (collection, id, data, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (collection, id) DO UPDATE SET %s, updated_at = now()`, update)
	if _, err := s.pool.Exec(ctx, query, collection, id, raw); err != nil {
		return memcore.NewOperationError("postgres", "set_document", err)
	}
	return nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, collection, id string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	if err != nil {
		return memcore.NewOperationError("postgres", "delete_document", err)
	}
	return nil
}

func (s *PostgresStore) QueryDocuments(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := validateQuery(q); err != nil {
		return nil, memcore.NewOperationError("postgres", "query_documents", err)
	}
	query, args, err := buildQuerySQL(collection, q)
	if err != nil {
		return nil, memcore.NewOperationError("postgres", "query_documents", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, memcore.NewOperationError("postgres", "query_documents", err)
	}
	defer rows.Close()
	var out []Document
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, memcore.NewOperationError("postgres", "query_documents", err)
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, memcore.NewOperationError("postgres", "query_documents", err)
		}
		out = append(out, Document{ID: id, Data: doc})
	}
	if err := rows.Err(); err != nil {
		return nil, memcore.NewOperationError("postgres", "query_documents", err)
	}
	return out, nil
}

func (s *PostgresStore) Health(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return memcore.NewConnectionError("postgres", "health", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var sqlOps = map[Op]string{
	OpEq:  "=",
	OpNeq: "<>",
	OpLt:  "<",
	OpLte: "<=",
	OpGt:  ">",
	OpGte: ">=",
}

// buildQuerySQL renders a filtered, ordered, limited select over the JSONB
// payload. Field names come from engine code, not callers, but are still
// checked against a strict pattern before interpolation.
func buildQuerySQL(collection string, q Query) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, data FROM documents WHERE collection = $1`)
	args := []any{collection}
	for _, f := range q.Filters {
		if !fieldNamePattern.MatchString(f.Field) {
			return "", nil, fmt.Errorf("invalid filter field: %q", f.Field)
		}
		args = append(args, filterArg(f.Value))
		if _, numeric := toFloat(f.Value); numeric {
			fmt.Fprintf(&sb, ` AND (data->>'%s')::numeric %s $%d`, f.Field, sqlOps[f.Op], len(args))
		} else {
			fmt.Fprintf(&sb, ` AND data->>'%s' %s $%d`, f.Field, sqlOps[f.Op], len(args))
		}
	}
	if q.OrderBy != "" {
		field, desc := orderField(q.OrderBy)
		if !fieldNamePattern.MatchString(field) {
			return "", nil, fmt.Errorf("invalid order field: %q", field)
		}
		dir := "ASC"
		if desc {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, ` ORDER BY data->>'%s' %s`, field, dir)
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))
	}
	return sb.String(), args, nil
}

func filterArg(v any) any {
	if f, ok := toFloat(v); ok {
		return f
	}
	return stringify(v)
}
