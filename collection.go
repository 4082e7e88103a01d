package records

import (
	"fmt"
	"time"
)

// Collection is an ordered set of records of one type. It is the container
// returned by LoadMany and FindQuery and the value of to-many relationships.
//
// Subscribers of a collection hear about membership changes and about any
// member becoming dirty.
type Collection struct {
	typ     *RecordType
	records []*Record
	members map[*Record]func()
	changed signal
	loaded  bool
}

// NewCollection returns a collection of t holding records.
func NewCollection(t *RecordType, records ...*Record) (*Collection, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: collection without type", ErrUnknownType)
	}
	c := &Collection{typ: t, members: map[*Record]func(){}}
	for _, rec := range records {
		if err := c.add(rec); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Type returns the member type.
func (c *Collection) Type() *RecordType { return c.typ }

// Len returns the number of members.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.records)
}

// At returns the member at index i.
func (c *Collection) At(i int) *Record {
	if c == nil || i < 0 || i >= len(c.records) {
		return nil
	}
	return c.records[i]
}

// Records returns the members in order. The slice is a copy.
func (c *Collection) Records() []*Record {
	if c == nil {
		return nil
	}
	return append([]*Record(nil), c.records...)
}

// Each walks members in order until fn returns false.
func (c *Collection) Each(fn func(int, *Record) bool) {
	if c == nil {
		return
	}
	for i, rec := range c.Records() {
		if !fn(i, rec) {
			return
		}
	}
}

// Keys returns the primary keys of the members in order.
func (c *Collection) Keys() []any {
	if c == nil {
		return nil
	}
	keys := make([]any, 0, len(c.records))
	for _, rec := range c.records {
		keys = append(keys, rec.Key())
	}
	return keys
}

// Find returns the member whose primary key equals key.
func (c *Collection) Find(key any) *Record {
	if c == nil {
		return nil
	}
	for _, rec := range c.records {
		if k := rec.Key(); k != nil && KeyString(k) == KeyString(key) {
			return rec
		}
	}
	return nil
}

// Add appends records. A record already in the collection is skipped.
func (c *Collection) Add(records ...*Record) error {
	changed := false
	for _, rec := range records {
		if _, ok := c.members[rec]; ok {
			continue
		}
		if err := c.add(rec); err != nil {
			return err
		}
		changed = true
	}
	if changed {
		c.changed.emit()
	}
	return nil
}

func (c *Collection) add(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("records: nil record added to %s collection", c.typ.name)
	}
	if rec.typ != c.typ {
		return fmt.Errorf("%w: %s collection cannot hold %s", ErrRelationType, c.typ.name, rec.typ.name)
	}
	if _, ok := c.members[rec]; ok {
		return nil
	}
	c.records = append(c.records, rec)
	c.members[rec] = rec.onDirty(c.changed.emit)
	return nil
}

// Remove drops rec and reports whether it was a member.
func (c *Collection) Remove(rec *Record) bool {
	cancel, ok := c.members[rec]
	if !ok {
		return false
	}
	cancel()
	delete(c.members, rec)
	for i, member := range c.records {
		if member == rec {
			c.records = append(c.records[:i:i], c.records[i+1:]...)
			break
		}
	}
	c.changed.emit()
	return true
}

// Clear drops every member.
func (c *Collection) Clear() {
	if len(c.records) == 0 {
		return
	}
	for rec, cancel := range c.members {
		cancel()
		delete(c.members, rec)
	}
	c.records = nil
	c.changed.emit()
}

// IsLoaded reports whether the collection was filled from an external source.
func (c *Collection) IsLoaded() bool { return c != nil && c.loaded }

// SetLoaded marks the collection as filled from an external source.
func (c *Collection) SetLoaded(loaded bool) { c.loaded = loaded }

// DeserializeMany delegates to the type's serializer, which appends the
// records encoded in data.
func (c *Collection) DeserializeMany(data []byte) (*Collection, error) {
	serializer := c.typ.serializer()
	if serializer == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSerializer, c.typ.name)
	}
	start := time.Now()
	out, err := serializer.DeserializeMany(c, data)
	c.typ.logOperation("deserialize_many", nil, start, err)
	if err != nil {
		return nil, wrapOperationError("deserialize_many", c.typ.name, nil, err)
	}
	return out, nil
}

func (c *Collection) onDirty(fn func()) func() {
	return c.changed.subscribe(fn)
}
