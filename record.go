package records

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/goliatone/go-records/internal/layering"
	"github.com/goliatone/go-records/pkg/activity"
)

// Record is one instance of a RecordType. It owns its raw data exclusively;
// the descriptor table is shared with every other instance of the type.
//
// A Record is not safe for concurrent use. Mutations and the notifications
// they trigger run synchronously on the caller's goroutine.
type Record struct {
	typ       *RecordType
	data      map[string]any
	related   map[string]any
	state     State
	observer  *changeObserver
	dirtied   signal
	suspended int
	changed   []string
}

func newRecord(t *RecordType) *Record {
	r := &Record{
		typ:     t,
		data:    map[string]any{},
		related: map[string]any{},
		state:   State{New: true},
	}
	r.observer = newChangeObserver(r.handleFieldChange)
	return r
}

// Type returns the record's type.
func (r *Record) Type() *RecordType { return r.typ }

// Fields returns the shared descriptor table of the record's type.
func (r *Record) Fields() *Fields { return r.typ.Fields() }

// State returns a copy of the lifecycle flags.
func (r *Record) State() State { return r.state }

func (r *Record) IsNew() bool     { return r.state.New }
func (r *Record) IsLoaded() bool  { return r.state.Loaded }
func (r *Record) IsDirty() bool   { return r.state.Dirty }
func (r *Record) IsSaving() bool  { return r.state.Saving }
func (r *Record) IsError() bool   { return r.state.Error }
func (r *Record) IsDeleted() bool { return r.state.Deleted }
func (r *Record) IsReady() bool   { return r.state.ready }

// Key returns the primary key value, or nil when unassigned.
func (r *Record) Key() any {
	return r.data[r.typ.PrimaryKey()]
}

// SetKey assigns the primary key.
func (r *Record) SetKey(key any) error {
	return r.Set(r.typ.PrimaryKey(), key)
}

// Get returns the typed value of name. Attributes pass through their
// transform; relationships return a *Record or a *Collection.
func (r *Record) Get(name string) (any, error) {
	if name == r.typ.PrimaryKey() {
		if d, ok := r.typ.Fields().Get(name); ok && d.IsAttribute() {
			return r.readAttribute(d)
		}
		return r.data[name], nil
	}
	d, ok := r.typ.Fields().Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, r.typ.name, name)
	}
	if d.IsRelationship() {
		return r.related[name], nil
	}
	return r.readAttribute(d)
}

// Raw returns the stored representation of an attribute or the primary key.
func (r *Record) Raw(name string) any {
	return r.data[name]
}

// Related returns the record held by a to-one relationship.
func (r *Record) Related(name string) *Record {
	rec, _ := r.related[name].(*Record)
	return rec
}

// Many returns the collection held by a to-many relationship.
func (r *Record) Many(name string) *Collection {
	c, _ := r.related[name].(*Collection)
	return c
}

// Set assigns a declared field. Setting an attribute to the value it already
// holds is not a mutation.
func (r *Record) Set(name string, value any) error {
	if r.state.Deleted {
		return fmt.Errorf("%w: %s", ErrRecordDeleted, r.describe())
	}
	d, declared := r.typ.Fields().Get(name)
	if name == r.typ.PrimaryKey() {
		if !declared || !d.IsAttribute() {
			d = FieldDescriptor{Name: name, Kind: KindAttribute}
		}
		return r.setAttribute(d, value, true)
	}
	if !declared {
		return fmt.Errorf("%w: %s.%s", ErrUnknownField, r.typ.name, name)
	}
	if d.IsRelationship() {
		return r.setRelation(d, value)
	}
	return r.setAttribute(d, value, true)
}

// SetRaw assigns an attribute from its stored representation without running
// the transform. Serializers use it when populating records.
func (r *Record) SetRaw(name string, raw any) error {
	if r.state.Deleted {
		return fmt.Errorf("%w: %s", ErrRecordDeleted, r.describe())
	}
	d, declared := r.typ.Fields().Get(name)
	if name == r.typ.PrimaryKey() && (!declared || !d.IsAttribute()) {
		d, declared = FieldDescriptor{Name: name, Kind: KindAttribute}, true
	}
	if !declared {
		return fmt.Errorf("%w: %s.%s", ErrUnknownField, r.typ.name, name)
	}
	if d.IsRelationship() {
		return r.setRelation(d, raw)
	}
	return r.setAttribute(d, raw, false)
}

// Populate runs fn with change tracking suspended. Every assignment made by
// fn establishes state instead of dirtying the record.
func (r *Record) Populate(fn func(*Record) error) error {
	return r.populate(func() error { return fn(r) })
}

func (r *Record) readAttribute(d FieldDescriptor) (any, error) {
	raw, ok := r.data[d.Name]
	if !ok {
		return nil, nil
	}
	transform, err := r.typ.transform(d)
	if err != nil {
		return nil, err
	}
	value, err := transform.Deserialize(raw)
	if err != nil {
		return nil, fmt.Errorf("records: read %s.%s: %w", r.typ.name, d.Name, err)
	}
	return value, nil
}

func (r *Record) setAttribute(d FieldDescriptor, value any, transformed bool) error {
	raw := value
	if transformed {
		transform, err := r.typ.transform(d)
		if err != nil {
			return err
		}
		raw, err = transform.Serialize(value)
		if err != nil {
			return fmt.Errorf("records: set %s.%s: %w", r.typ.name, d.Name, err)
		}
	}
	old, had := r.data[d.Name]
	if had && sameValue(old, raw) {
		return nil
	}
	if !had && raw == nil {
		return nil
	}
	if raw == nil {
		delete(r.data, d.Name)
	} else {
		r.data[d.Name] = raw
	}
	r.observer.notifyFieldChanged(d.Name)
	return nil
}

func (r *Record) setRelation(d FieldDescriptor, value any) error {
	related, err := r.typ.client.lookupRelated(d.Related)
	if err != nil {
		return fmt.Errorf("records: %s.%s: %w", r.typ.name, d.Name, err)
	}

	var next dirtySource
	switch d.Cardinality {
	case CardinalityOne:
		switch v := value.(type) {
		case nil:
		case *Record:
			if v == nil {
				break
			}
			if v.typ != related {
				return fmt.Errorf("%w: %s.%s expects %s, got %s", ErrRelationType, r.typ.name, d.Name, related.name, v.typ.name)
			}
			next = v
		default:
			ref, err := related.Reference(value)
			if err != nil {
				return err
			}
			next = ref
		}
	case CardinalityMany:
		switch v := value.(type) {
		case nil:
		case *Collection:
			if v == nil {
				break
			}
			if v.typ != related {
				return fmt.Errorf("%w: %s.%s expects %s, got %s", ErrRelationType, r.typ.name, d.Name, related.name, v.typ.name)
			}
			next = v
		case []*Record:
			c, err := NewCollection(related, v...)
			if err != nil {
				return fmt.Errorf("records: %s.%s: %w", r.typ.name, d.Name, err)
			}
			next = c
		default:
			return fmt.Errorf("%w: %s.%s expects a collection of %s, got %T", ErrRelationType, r.typ.name, d.Name, related.name, value)
		}
	}

	current, had := r.related[d.Name]
	if next == nil {
		if !had {
			return nil
		}
		delete(r.related, d.Name)
	} else {
		if had && current == next {
			return nil
		}
		r.related[d.Name] = next
	}
	r.observer.watch(d.Name, next)
	r.observer.notifyFieldChanged(d.Name)
	return nil
}

// handleFieldChange is the observer's mutation handler.
func (r *Record) handleFieldChange(name string) {
	identified, dirtied := r.state.fieldChanged(name, r.typ.PrimaryKey())
	if identified {
		r.logTransition(name, TransitionIdentified)
	}
	if r.state.ready && !r.state.Deleted {
		r.trackChanged(name)
	}
	if dirtied {
		r.logTransition(name, TransitionDirtied)
		r.dirtied.emit()
	}
}

func (r *Record) trackChanged(name string) {
	for _, existing := range r.changed {
		if existing == name {
			return
		}
	}
	r.changed = append(r.changed, name)
}

// ChangedFields lists the fields mutated since the record was last loaded or
// saved, in first-change order.
func (r *Record) ChangedFields() []string {
	return append([]string(nil), r.changed...)
}

// onDirty subscribes fn to the record's dirty flip.
func (r *Record) onDirty(fn func()) func() {
	return r.dirtied.subscribe(fn)
}

// Copy returns a new, clean record of the same type holding the same field
// values. The primary key is not copied. Attribute values that are maps or
// slices are cloned when deep is set; relationships are always shared.
func (r *Record) Copy(deep bool) (*Record, error) {
	cp := newRecord(r.typ)
	err := cp.populate(func() error {
		return r.copyFieldsInto(cp, deep)
	})
	if err != nil {
		return nil, err
	}
	return cp, nil
}

// CopyWithState is Copy plus the primary key and the New, Loaded and Dirty
// flags of the source.
func (r *Record) CopyWithState(deep bool) (*Record, error) {
	cp := newRecord(r.typ)
	err := cp.populate(func() error {
		if err := r.copyFieldsInto(cp, deep); err != nil {
			return err
		}
		if key := r.Key(); key != nil {
			return cp.SetRaw(r.typ.PrimaryKey(), copyRaw(key, deep))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	cp.state.New = r.state.New
	cp.state.Loaded = r.state.Loaded
	cp.state.Dirty = r.state.Dirty
	cp.changed = r.ChangedFields()
	return cp, nil
}

func (r *Record) copyFieldsInto(cp *Record, deep bool) error {
	pk := r.typ.PrimaryKey()
	var err error
	r.typ.Fields().Each(func(d FieldDescriptor) bool {
		if d.Name == pk {
			return true
		}
		if d.IsRelationship() {
			if value, ok := r.related[d.Name]; ok {
				err = cp.setRelation(d, value)
			}
			return err == nil
		}
		if raw, ok := r.data[d.Name]; ok && raw != nil {
			err = cp.setAttribute(d, copyRaw(raw, deep), false)
		}
		return err == nil
	})
	return err
}

func copyRaw(raw any, deep bool) any {
	if !deep {
		return raw
	}
	switch reflect.ValueOf(raw).Kind() {
	case reflect.Map, reflect.Slice:
		return layering.Clone(raw)
	default:
		return raw
	}
}

// Snapshot returns a detached document of the record: the primary key, raw
// attribute values, and the keys of related records.
func (r *Record) Snapshot() map[string]any {
	doc := make(map[string]any, len(r.data)+len(r.related))
	for name, raw := range r.data {
		doc[name] = copyRaw(raw, true)
	}
	for name, value := range r.related {
		switch v := value.(type) {
		case *Record:
			doc[name] = v.Key()
		case *Collection:
			doc[name] = v.Keys()
		}
	}
	return doc
}

// Serialize delegates to the type's serializer.
func (r *Record) Serialize() ([]byte, error) {
	serializer := r.typ.serializer()
	if serializer == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSerializer, r.typ.name)
	}
	start := time.Now()
	data, err := serializer.Serialize(r)
	r.typ.logOperation("serialize", r.Key(), start, err)
	if err != nil {
		return nil, wrapOperationError("serialize", r.typ.name, r.Key(), err)
	}
	return data, nil
}

// Deserialize delegates to the type's serializer, which populates r.
func (r *Record) Deserialize(data []byte) (*Record, error) {
	serializer := r.typ.serializer()
	if serializer == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSerializer, r.typ.name)
	}
	start := time.Now()
	out, err := serializer.Deserialize(r, data)
	r.typ.logOperation("deserialize", r.Key(), start, err)
	if err != nil {
		return nil, wrapOperationError("deserialize", r.typ.name, r.Key(), err)
	}
	return out, nil
}

// SaveRecord hands the record to the adapter. The record becomes clean and
// loaded only when the adapter reports success. On failure the key and the
// New, Loaded and Dirty flags are restored to their values before the call.
func (r *Record) SaveRecord(ctx context.Context) error {
	if r.state.Deleted {
		return fmt.Errorf("%w: %s", ErrRecordDeleted, r.describe())
	}
	adapter := r.typ.adapter()
	if adapter == nil {
		return fmt.Errorf("%w: %s", ErrNoAdapter, r.typ.name)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	created := !r.state.Loaded
	changed := r.ChangedFields()
	pk := r.typ.PrimaryKey()
	prevKey, hadKey := r.data[pk]
	prev := r.state
	r.state.beginSave()
	r.logTransition("", TransitionSaving)

	start := time.Now()
	err := adapter.SaveRecord(ctx, r)
	r.typ.logOperation("save", r.Key(), start, err)
	if err != nil {
		// Adapters may assign a key before failing.
		if hadKey {
			r.data[pk] = prevKey
		} else {
			delete(r.data, pk)
		}
		r.state.New, r.state.Loaded, r.state.Dirty = prev.New, prev.Loaded, prev.Dirty
		r.changed = changed
		r.state.saveFailed()
		r.logTransition("", TransitionSaveFailed)
		return wrapOperationError("save", r.typ.name, r.Key(), err)
	}

	r.state.didSave()
	r.changed = nil
	r.logTransition("", TransitionSaved)

	input := r.activityInput(ctx, changed)
	if created {
		r.typ.emit(ctx, activity.BuildRecordCreated(input))
	} else {
		r.typ.emit(ctx, activity.BuildRecordUpdated(input))
	}
	return nil
}

// DeleteRecord hands the record to the adapter. On success the record is
// terminally deleted and stops following its relationships.
func (r *Record) DeleteRecord(ctx context.Context) error {
	if r.state.Deleted {
		return fmt.Errorf("%w: %s", ErrRecordDeleted, r.describe())
	}
	adapter := r.typ.adapter()
	if adapter == nil {
		return fmt.Errorf("%w: %s", ErrNoAdapter, r.typ.name)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	err := adapter.DeleteRecord(ctx, r)
	r.typ.logOperation("delete", r.Key(), start, err)
	if err != nil {
		return wrapOperationError("delete", r.typ.name, r.Key(), err)
	}

	r.state.didDelete()
	r.observer.teardown()
	r.changed = nil
	r.logTransition("", TransitionDeleted)
	r.typ.emit(ctx, activity.BuildRecordDeleted(r.activityInput(ctx, nil)))
	return nil
}

func (r *Record) activityInput(ctx context.Context, changed []string) activity.RecordEventInput {
	actor, _ := activity.ActorFromContext(ctx)
	return activity.RecordEventInput{
		Resource:      r.typ.ResourceName(),
		TypeName:      r.typ.name,
		Key:           r.Key(),
		ChangedFields: changed,
		State:         r.state.String(),
		Actor:         actor,
	}
}

func (r *Record) logTransition(field, transition string) {
	r.typ.client.logger.LogTransition(TransitionEvent{
		Type:       r.typ.name,
		Key:        r.Key(),
		Field:      field,
		Transition: transition,
		State:      r.state,
	})
}

func (r *Record) describe() string {
	if key := r.Key(); key != nil {
		return fmt.Sprintf("%s key=%v", r.typ.name, key)
	}
	return r.typ.name
}

// String renders the type, key and state, mostly for logs.
func (r *Record) String() string {
	return fmt.Sprintf("%s(%s)", r.describe(), r.state)
}
