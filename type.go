package records

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"
)

// RecordType is the static surface of one defined type: its descriptor
// table, primary key, resource name and the finder operations.
type RecordType struct {
	client         *Client
	name           string
	fields         *Fields
	typeAdapter    Adapter
	typeSerializer Serializer
}

// Name returns the fully qualified type name.
func (t *RecordType) Name() string { return t.name }

// Client returns the owning client.
func (t *RecordType) Client() *Client { return t.client }

// Fields returns the memoized descriptor table. Every call returns the same
// pointer.
func (t *RecordType) Fields() *Fields {
	if t.fields == nil {
		t.fields = t.client.registry.FieldsOf(t.name)
	}
	return t.fields
}

// PrimaryKey returns the primary key field name. It is read from the client
// configuration on every call.
func (t *RecordType) PrimaryKey() string {
	return t.client.config.PrimaryKey(t.name)
}

// ResourceName returns the snake_case form of the last segment of the type
// name: "models.BlogPost" becomes "blog_post".
func (t *RecordType) ResourceName() string {
	return resourceName(t.name)
}

func resourceName(name string) string {
	runes := []rune(lastSegment(name))
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if r == '-' || r == ' ' {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// New returns an empty, ready record.
func (t *RecordType) New() *Record {
	rec := newRecord(t)
	_ = rec.populate(func() error { return nil })
	return rec
}

// Create allocates a record, applies values with change tracking suspended
// and then makes the record ready. The primary key is applied first.
func (t *RecordType) Create(values map[string]any) (*Record, error) {
	pk := t.PrimaryKey()
	for name := range values {
		if name != pk && !t.Fields().Has(name) {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, t.name, name)
		}
	}
	rec := newRecord(t)
	err := rec.populate(func() error {
		if key, ok := values[pk]; ok {
			if err := rec.Set(pk, key); err != nil {
				return err
			}
		}
		for _, name := range t.Fields().Names() {
			value, ok := values[name]
			if !ok || name == pk {
				continue
			}
			if err := rec.Set(name, value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Reference returns an unloaded record that only carries key. Serializers use
// it for relationships encoded as bare keys.
func (t *RecordType) Reference(key any) (*Record, error) {
	rec := newRecord(t)
	if err := rec.populate(func() error { return rec.SetKey(key) }); err != nil {
		return nil, err
	}
	return rec, nil
}

// Load builds a loaded record from a serialized payload.
func (t *RecordType) Load(data []byte) (*Record, error) {
	return t.LoadWith(func(rec *Record) error {
		_, err := rec.Deserialize(data)
		return err
	})
}

// LoadWith builds a loaded record populated by fill. No assignment made by
// fill dirties the record.
func (t *RecordType) LoadWith(fill func(*Record) error) (*Record, error) {
	rec := newRecord(t)
	if err := rec.populate(func() error { return fill(rec) }); err != nil {
		return nil, err
	}
	rec.state.didLoad()
	rec.changed = nil
	rec.logTransition("", TransitionLoaded)
	return rec, nil
}

// LoadMany builds a loaded collection from a serialized payload.
func (t *RecordType) LoadMany(data []byte) (*Collection, error) {
	c, err := NewCollection(t)
	if err != nil {
		return nil, err
	}
	if _, err := c.DeserializeMany(data); err != nil {
		return nil, err
	}
	c.SetLoaded(true)
	return c, nil
}

// FindResult is the outcome of Find: a single record for key lookups or a
// collection for queries.
type FindResult struct {
	Record     *Record
	Collection *Collection
}

// Single reports the record of a key lookup, or the first member of a
// collection result.
func (r FindResult) Single() *Record {
	if r.Record != nil {
		return r.Record
	}
	return r.Collection.At(0)
}

// Find routes params to the matching finder:
//
//   - nil: FindAll
//   - a scalar key: FindByKey(key, nil)
//   - a map holding the primary key: FindByKey(key, remaining params)
//   - any other map: FindQuery(map)
//
// Other values fail with ErrAmbiguousFind.
func (t *RecordType) Find(ctx context.Context, params any) (FindResult, error) {
	switch p := params.(type) {
	case nil:
		c, err := t.FindAll(ctx)
		return FindResult{Collection: c}, err
	case Params:
		return t.findMap(ctx, p)
	case map[string]any:
		return t.findMap(ctx, Params(p))
	case map[string]string:
		converted := make(Params, len(p))
		for key, value := range p {
			converted[key] = value
		}
		return t.findMap(ctx, converted)
	}
	if isScalarKey(params) {
		rec, err := t.FindByKey(ctx, params, nil)
		return FindResult{Record: rec}, err
	}
	return FindResult{}, fmt.Errorf("%w: %s: %T", ErrAmbiguousFind, t.name, params)
}

func (t *RecordType) findMap(ctx context.Context, params Params) (FindResult, error) {
	pk := t.PrimaryKey()
	key, ok := params[pk]
	if !ok {
		c, err := t.FindQuery(ctx, params.clone())
		return FindResult{Collection: c}, err
	}
	rest := params.clone()
	delete(rest, pk)
	if len(rest) == 0 {
		rest = nil
	}
	rec, err := t.FindByKey(ctx, key, rest)
	return FindResult{Record: rec}, err
}

func isScalarKey(value any) bool {
	switch value.(type) {
	case *Record, *Collection:
		return false
	case string, json.Number, fmt.Stringer:
		return true
	}
	switch reflect.ValueOf(value).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// FindAll asks the adapter for every record of the type.
func (t *RecordType) FindAll(ctx context.Context) (*Collection, error) {
	adapter := t.adapter()
	if adapter == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, t.name)
	}
	start := time.Now()
	c, err := adapter.FindAll(contextOrBackground(ctx), t)
	t.logOperation("find_all", nil, start, err)
	if err != nil {
		return nil, wrapOperationError("find_all", t.name, nil, err)
	}
	return c, nil
}

// FindQuery asks the adapter for the records matching params.
func (t *RecordType) FindQuery(ctx context.Context, params Params) (*Collection, error) {
	adapter := t.adapter()
	if adapter == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, t.name)
	}
	start := time.Now()
	c, err := adapter.FindQuery(contextOrBackground(ctx), t, params)
	t.logOperation("find_query", nil, start, err)
	if err != nil {
		return nil, wrapOperationError("find_query", t.name, nil, err)
	}
	return c, nil
}

// FindByKey asks the adapter for the record stored under key.
func (t *RecordType) FindByKey(ctx context.Context, key any, params Params) (*Record, error) {
	adapter := t.adapter()
	if adapter == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, t.name)
	}
	start := time.Now()
	rec, err := adapter.FindByKey(contextOrBackground(ctx), t, key, params)
	t.logOperation("find_by_key", key, start, err)
	if err != nil {
		return nil, wrapOperationError("find_by_key", t.name, key, err)
	}
	return rec, nil
}

func (t *RecordType) adapter() Adapter {
	if t.typeAdapter != nil {
		return t.typeAdapter
	}
	return t.client.adapter
}

func (t *RecordType) serializer() Serializer {
	if t.typeSerializer != nil {
		return t.typeSerializer
	}
	return t.client.serializer
}

func (t *RecordType) transform(d FieldDescriptor) (Transform, error) {
	transform, ok := t.client.transforms.Lookup(d.Transform)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s uses unknown transform %q", ErrTransform, t.name, d.Name, d.Transform)
	}
	return transform, nil
}

func (t *RecordType) logOperation(op string, key any, start time.Time, err error) {
	t.client.logger.LogOperation(OperationEvent{
		Op:       op,
		Type:     t.name,
		Key:      key,
		Duration: time.Since(start),
		Err:      err,
	})
}

// KeyString renders a primary key the way adapters index it.
func KeyString(key any) string {
	switch v := key.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	}
	return fmt.Sprint(key)
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// RelatedType returns the record type a relationship field points at.
func (t *RecordType) RelatedType(field string) (*RecordType, error) {
	d, ok := t.Fields().Get(field)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, t.name, field)
	}
	if !d.IsRelationship() {
		return nil, fmt.Errorf("records: %s.%s is not a relationship", t.name, field)
	}
	return t.client.lookupRelated(d.Related)
}
