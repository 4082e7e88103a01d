// Package memory implements records.Adapter over an in-process map. It is
// intended for tests and for caching layers that never outlive the process.
package memory

import (
	"context"
	"fmt"
	"sync"

	records "github.com/goliatone/go-records"
	"github.com/goliatone/go-records/pkg/adapter"
	"github.com/goliatone/go-records/pkg/query"
)

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

type entry struct {
	payload []byte
	doc     map[string]any
}

type table struct {
	order []string
	rows  map[string]entry
}

func (t *table) put(key string, e entry) {
	if _, ok := t.rows[key]; !ok {
		t.order = append(t.order, key)
	}
	t.rows[key] = e
}

func (t *table) remove(key string) bool {
	if _, ok := t.rows[key]; !ok {
		return false
	}
	delete(t.rows, key)
	for i, existing := range t.order {
		if existing == key {
			t.order = append(t.order[:i:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// Store keeps records per type name in insertion order.
type Store struct {
	mu      sync.RWMutex
	tables  map[string]*table
	codec   adapter.Codec
	matcher *query.Matcher
	keys    adapter.KeyFunc
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	store := &Store{
		tables:  map[string]*table{},
		codec:   adapter.NewCodec(nil),
		matcher: query.NewMatcher(),
		keys:    adapter.NewKey,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// Len returns the number of records stored for t.
func (s *Store) Len(t *records.RecordType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if tbl, ok := s.tables[t.Name()]; ok {
		return len(tbl.order)
	}
	return 0
}

// SaveRecord stores r, assigning a key when it has none.
func (s *Store) SaveRecord(ctx context.Context, r *records.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := adapter.AssignKey(r, s.keys)
	if err != nil {
		return err
	}
	payload, doc, err := s.codec.Encode(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	name := r.Type().Name()
	tbl, ok := s.tables[name]
	if !ok {
		tbl = &table{rows: map[string]entry{}}
		s.tables[name] = tbl
	}
	tbl.put(key, entry{payload: payload, doc: doc})
	return nil
}

// DeleteRecord removes r. Unknown records fail with records.ErrNotFound.
func (s *Store) DeleteRecord(ctx context.Context, r *records.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := adapter.RequireKey(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tbl, ok := s.tables[r.Type().Name()]
	if !ok || !tbl.remove(key) {
		return fmt.Errorf("%w: %s key=%s", records.ErrNotFound, r.Type().Name(), key)
	}
	return nil
}

// FindAll returns every stored record of t.
func (s *Store) FindAll(ctx context.Context, t *records.RecordType) (*records.Collection, error) {
	return s.FindQuery(ctx, t, nil)
}

// FindQuery returns the records of t matching params.
func (s *Store) FindQuery(ctx context.Context, t *records.RecordType, params records.Params) (*records.Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	criteria, err := query.Parse(params)
	if err != nil {
		return nil, err
	}
	entries := s.snapshot(t)
	var payloads [][]byte
	for _, e := range entries {
		ok, err := s.matcher.Match(criteria, e.doc)
		if err != nil {
			return nil, err
		}
		if ok {
			payloads = append(payloads, e.payload)
		}
	}
	start, end := criteria.Window(len(payloads))
	return s.codec.DecodeAll(t, payloads[start:end])
}

// FindByKey returns the record of t stored under key. Non-nil params must
// also match the stored document.
func (s *Store) FindByKey(ctx context.Context, t *records.RecordType, key any, params records.Params) (*records.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k := records.KeyString(key)
	s.mu.RLock()
	var (
		e     entry
		found bool
	)
	if tbl, ok := s.tables[t.Name()]; ok {
		e, found = tbl.rows[k]
	}
	s.mu.RUnlock()
	if !found {
		return nil, fmt.Errorf("%w: %s key=%s", records.ErrNotFound, t.Name(), k)
	}
	if params != nil {
		criteria, err := query.Parse(params)
		if err != nil {
			return nil, err
		}
		ok, err := s.matcher.Match(criteria, e.doc)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s key=%s", records.ErrNotFound, t.Name(), k)
		}
	}
	return s.codec.Decode(t, e.payload)
}

func (s *Store) snapshot(t *records.RecordType) []entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tbl, ok := s.tables[t.Name()]
	if !ok {
		return nil
	}
	out := make([]entry, 0, len(tbl.order))
	for _, key := range tbl.order {
		out = append(out, tbl.rows[key])
	}
	return out
}

var _ records.Adapter = (*Store)(nil)
