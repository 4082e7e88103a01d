// Package postgres implements records.Adapter on PostgreSQL through a pgx
// connection pool. Documents are stored as jsonb; equality filters become a
// single containment (@>) predicate.
package postgres

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

	records "github.com/goliatone/go-records"
	"github.com/goliatone/go-records/pkg/adapter"
	"github.com/goliatone/go-records/pkg/query"
	"github.com/goliatone/go-records/pkg/serializer"
)

// DefaultTable is the table used without WithTable.
const DefaultTable = "records"

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Option configures a Store.
type Option func(*Store)

// WithSerializer selects the payload serializer. The default is msgpack.
func WithSerializer(s records.Serializer) Option {
	return func(store *Store) {
		store.codec = adapter.NewCodec(s)
	}
}

// WithMatcher replaces the default query matcher.
func WithMatcher(m *query.Matcher) Option {
	return func(store *Store) {
		if m != nil {
			store.matcher = m
		}
	}
}

// WithKeyFunc replaces the UUID key generator.
func WithKeyFunc(gen adapter.KeyFunc) Option {
	return func(store *Store) {
		if gen != nil {
			store.keys = gen
		}
	}
}

// WithTable stores records in table instead of DefaultTable.
func WithTable(table string) Option {
	return func(store *Store) {
		store.table = strings.TrimSpace(table)
	}
}

// Store persists records in PostgreSQL.
type Store struct {
	db      DB
	pool    *pgxpool.Pool
	table   string
	codec   adapter.Codec
	matcher *query.Matcher
	keys    adapter.KeyFunc
}

// Connect opens a pool for dsn and migrates the table.
func Connect(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	store, err := New(ctx, pool, opts...)
	if err != nil {
		pool.Close()
		return nil, err
	}
	store.pool = pool
	return store, nil
}

// New wraps db and migrates the table. Close does not close db.
func New(ctx context.Context, db DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("postgres: db is required")
	}
	store := &Store{
		db:      db,
		table:   DefaultTable,
		codec:   adapter.NewCodec(nil),
		matcher: query.NewMatcher(),
		keys:    adapter.NewKey,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	if !tableName.MatchString(store.table) {
		return nil, fmt.Errorf("postgres: invalid table name %q", store.table)
	}
	if err := store.migrate(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			seq        BIGSERIAL,
			type       TEXT NOT NULL,
			key        TEXT NOT NULL,
			data       BYTEA NOT NULL,
			doc        JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (type, key)
		)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_doc_idx ON %s USING GIN (doc jsonb_path_ops)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return nil
}

// Close releases the pool when Connect opened it.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// SaveRecord upserts r, assigning a key when it has none.
func (s *Store) SaveRecord(ctx context.Context, r *records.Record) error {
	key, err := adapter.AssignKey(r, s.keys)
	if err != nil {
		return err
	}
	payload, doc, err := s.codec.Encode(r)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("postgres: encode document: %w", err)
	}
	_, err = s.db.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (type, key, data, doc)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (type, key) DO UPDATE SET data = EXCLUDED.data, doc = EXCLUDED.doc, updated_at = now()`, s.table),
		r.Type().Name(), key, payload, string(encoded))
	if err != nil {
		return fmt.Errorf("postgres: save %s: %w", r.Type().Name(), err)
	}
	return nil
}

// DeleteRecord removes r. Unknown records fail with records.ErrNotFound.
func (s *Store) DeleteRecord(ctx context.Context, r *records.Record) error {
	key, err := adapter.RequireKey(r)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE type = $1 AND key = $2`, s.table), r.Type().Name(), key)
	if err != nil {
		return fmt.Errorf("postgres: delete %s: %w", r.Type().Name(), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s key=%s", records.ErrNotFound, r.Type().Name(), key)
	}
	return nil
}

// FindAll returns every stored record of t in insertion order.
func (s *Store) FindAll(ctx context.Context, t *records.RecordType) (*records.Collection, error) {
	return s.FindQuery(ctx, t, nil)
}

// FindQuery returns the records of t matching params.
func (s *Store) FindQuery(ctx context.Context, t *records.RecordType, params records.Params) (*records.Collection, error) {
	criteria, err := query.Parse(params)
	if err != nil {
		return nil, err
	}
	stmt, args, err := s.selectStatement(t.Name(), criteria)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query %s: %w", t.Name(), err)
	}
	defer rows.Close()

	var payloads [][]byte
	for rows.Next() {
		var payload, raw []byte
		if err := rows.Scan(&payload, &raw); err != nil {
			return nil, fmt.Errorf("postgres: scan %s: %w", t.Name(), err)
		}
		doc, err := decodeDocument(raw)
		if err != nil {
			return nil, err
		}
		ok, err := s.matcher.Match(criteria, doc)
		if err != nil {
			return nil, err
		}
		if ok {
			payloads = append(payloads, payload)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: query %s: %w", t.Name(), err)
	}
	start, end := criteria.Window(len(payloads))
	return s.codec.DecodeAll(t, payloads[start:end])
}

// FindByKey returns the record of t stored under key. Non-nil params must
// also match the stored document.
func (s *Store) FindByKey(ctx context.Context, t *records.RecordType, key any, params records.Params) (*records.Record, error) {
	k := records.KeyString(key)
	var payload, raw []byte
	err := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT data, doc FROM %s WHERE type = $1 AND key = $2`, s.table), t.Name(), k).Scan(&payload, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s key=%s", records.ErrNotFound, t.Name(), k)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find %s: %w", t.Name(), err)
	}
	if params != nil {
		criteria, err := query.Parse(params)
		if err != nil {
			return nil, err
		}
		doc, err := decodeDocument(raw)
		if err != nil {
			return nil, err
		}
		ok, err := s.matcher.Match(criteria, doc)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s key=%s", records.ErrNotFound, t.Name(), k)
		}
	}
	return s.codec.Decode(t, payload)
}

func (s *Store) selectStatement(typeName string, c query.Criteria) (string, []any, error) {
	stmt := fmt.Sprintf(`SELECT data, doc FROM %s WHERE type = $1`, s.table)
	args := []any{typeName}
	if contained := containment(c); len(contained) > 0 {
		encoded, err := json.Marshal(contained)
		if err != nil {
			return "", nil, fmt.Errorf("postgres: encode filter: %w", err)
		}
		stmt += ` AND doc @> $2::jsonb`
		args = append(args, string(encoded))
	}
	return stmt + ` ORDER BY seq`, args, nil
}

// containment returns the equality filters jsonb containment can express
// exactly. Numbers are left to the matcher because 1 and 1.0 differ in
// jsonb.
func containment(c query.Criteria) map[string]any {
	out := map[string]any{}
	for _, key := range c.Keys() {
		switch v := c.Equal[key].(type) {
		case string, bool:
			out[key] = v
		}
	}
	return out
}

func decodeDocument(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("postgres: decode document: %w", err)
	}
	normalized, _ := serializer.Normalize(doc).(map[string]any)
	return normalized, nil
}

var _ records.Adapter = (*Store)(nil)
