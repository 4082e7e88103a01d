// Package sqlite implements records.Adapter on SQLite through the pure Go
// modernc.org/sqlite driver.
//
// All types share one table keyed by (type, key). Equality filters on
// scalar values are pushed into SQL with json_extract over the stored
// document; where clauses and windowing run through pkg/query.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	records "github.com/goliatone/go-records"
	"github.com/goliatone/go-records/pkg/adapter"
	"github.com/goliatone/go-records/pkg/query"
	"github.com/goliatone/go-records/pkg/serializer"
)

const schema = `CREATE TABLE IF NOT EXISTS records (
	type       TEXT NOT NULL,
	key        TEXT NOT NULL,
	data       BLOB NOT NULL,
	doc        TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (type, key)
)`

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

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

// WithBusyTimeout sets how long writers wait on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(store *Store) {
		store.busyTimeout = d
	}
}

// Store persists records in a SQLite database.
type Store struct {
	db          *sql.DB
	codec       adapter.Codec
	matcher     *query.Matcher
	keys        adapter.KeyFunc
	busyTimeout time.Duration
	owned       bool
}

// Open opens or creates the database at path and migrates it. ":memory:"
// opens a shared in-memory database.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite: path is required")
	}
	if path != ":memory:" && strings.ContainsAny(path, "?#") {
		return nil, errors.New("sqlite: path cannot contain '?' or '#' characters")
	}
	store := newStore(opts)

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", path, store.busyTimeout.Milliseconds())
	if path == ":memory:" {
		dsn = "file::memory:?mode=memory&cache=shared"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	store.db = db
	store.owned = true
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an existing database handle and migrates it. Close does not
// close db.
func New(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("sqlite: db is required")
	}
	store := newStore(opts)
	store.db = db
	if err := store.migrate(context.Background()); err != nil {
		return nil, err
	}
	return store, nil
}

func newStore(opts []Option) *Store {
	store := &Store{
		codec:       adapter.NewCodec(nil),
		matcher:     query.NewMatcher(),
		keys:        adapter.NewKey,
		busyTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// Close releases the database when the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
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
		return fmt.Errorf("sqlite: encode document: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO records (type, key, data, doc, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(type, key) DO UPDATE SET data = excluded.data, doc = excluded.doc, updated_at = excluded.updated_at`,
		r.Type().Name(), key, payload, string(encoded), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sqlite: save %s: %w", r.Type().Name(), err)
	}
	return nil
}

// DeleteRecord removes r. Unknown records fail with records.ErrNotFound.
func (s *Store) DeleteRecord(ctx context.Context, r *records.Record) error {
	key, err := adapter.RequireKey(r)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE type = ? AND key = ?`, r.Type().Name(), key)
	if err != nil {
		return fmt.Errorf("sqlite: delete %s: %w", r.Type().Name(), err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
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
	stmt, args := selectStatement(t.Name(), criteria)
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query %s: %w", t.Name(), err)
	}
	defer rows.Close()

	var payloads [][]byte
	for rows.Next() {
		var (
			payload []byte
			raw     string
		)
		if err := rows.Scan(&payload, &raw); err != nil {
			return nil, fmt.Errorf("sqlite: scan %s: %w", t.Name(), err)
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
		return nil, fmt.Errorf("sqlite: query %s: %w", t.Name(), err)
	}
	start, end := criteria.Window(len(payloads))
	return s.codec.DecodeAll(t, payloads[start:end])
}

// FindByKey returns the record of t stored under key. Non-nil params must
// also match the stored document.
func (s *Store) FindByKey(ctx context.Context, t *records.RecordType, key any, params records.Params) (*records.Record, error) {
	k := records.KeyString(key)
	var (
		payload []byte
		raw     string
	)
	err := s.db.QueryRowContext(ctx, `SELECT data, doc FROM records WHERE type = ? AND key = ?`, t.Name(), k).Scan(&payload, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s key=%s", records.ErrNotFound, t.Name(), k)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: find %s: %w", t.Name(), err)
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

// selectStatement pushes scalar equality filters into SQL. Everything it
// leaves out is still checked by the matcher.
func selectStatement(typeName string, c query.Criteria) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT data, doc FROM records WHERE type = ?`)
	args := []any{typeName}
	for _, name := range c.Keys() {
		if !fieldName.MatchString(name) {
			continue
		}
		switch v := c.Equal[name].(type) {
		case string, int, int32, int64:
			b.WriteString(` AND json_extract(doc, '$.` + name + `') = ?`)
			args = append(args, v)
		case bool:
			b.WriteString(` AND json_extract(doc, '$.` + name + `') = ?`)
			if v {
				args = append(args, 1)
			} else {
				args = append(args, 0)
			}
		}
	}
	b.WriteString(` ORDER BY rowid`)
	return b.String(), args
}

func decodeDocument(raw string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("sqlite: decode document: %w", err)
	}
	normalized, _ := serializer.Normalize(doc).(map[string]any)
	return normalized, nil
}

var _ records.Adapter = (*Store)(nil)
