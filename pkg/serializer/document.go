// Package serializer provides Serializer implementations for records:
// JSON documents (optionally wrapped in a resource root key) and msgpack.
//
// Both encode a record as a document holding the primary key, the raw
// attribute values and its relationships. Related records are embedded as
// nested documents unless keys-only output is requested; a record already
// being encoded is written as its key, which keeps cyclic graphs finite.
// On decode, nested documents become loaded records and bare keys become
// unloaded references.
package serializer

import (
	"encoding/json"
	"fmt"
	"math"

	records "github.com/goliatone/go-records"
)

// Encode returns the document form of r.
func Encode(r *records.Record, embed bool) map[string]any {
	return encode(r, embed, map[*records.Record]bool{})
}

func encode(r *records.Record, embed bool, visiting map[*records.Record]bool) map[string]any {
	visiting[r] = true
	defer delete(visiting, r)

	t := r.Type()
	doc := map[string]any{}
	if key := r.Key(); key != nil {
		doc[t.PrimaryKey()] = key
	}
	t.Fields().Each(func(d records.FieldDescriptor) bool {
		if d.IsAttribute() {
			if raw := r.Raw(d.Name); raw != nil {
				doc[d.Name] = raw
			}
			return true
		}
		switch d.Cardinality {
		case records.CardinalityOne:
			if rel := r.Related(d.Name); rel != nil {
				doc[d.Name] = encodeRelated(rel, embed, visiting)
			}
		case records.CardinalityMany:
			if c := r.Many(d.Name); c != nil {
				items := make([]any, 0, c.Len())
				c.Each(func(_ int, rel *records.Record) bool {
					items = append(items, encodeRelated(rel, embed, visiting))
					return true
				})
				doc[d.Name] = items
			}
		}
		return true
	})
	return doc
}

func encodeRelated(rel *records.Record, embed bool, visiting map[*records.Record]bool) any {
	if !embed || visiting[rel] || isReference(rel) {
		return rel.Key()
	}
	return encode(rel, embed, visiting)
}

// isReference reports whether rel only carries its key.
func isReference(rel *records.Record) bool {
	if rel.IsLoaded() || rel.IsDirty() || rel.Key() == nil {
		return false
	}
	empty := true
	rel.Type().Fields().Each(func(d records.FieldDescriptor) bool {
		if d.IsAttribute() && d.Name != rel.Type().PrimaryKey() && rel.Raw(d.Name) != nil {
			empty = false
		}
		return empty
	})
	return empty
}

// Populate assigns the values of doc to r. Unknown keys are ignored.
func Populate(r *records.Record, doc map[string]any) error {
	t := r.Type()
	pk := t.PrimaryKey()
	if key, ok := doc[pk]; ok && key != nil {
		if err := r.SetRaw(pk, Normalize(key)); err != nil {
			return err
		}
	}
	var err error
	t.Fields().Each(func(d records.FieldDescriptor) bool {
		value, ok := doc[d.Name]
		if !ok || d.Name == pk {
			return true
		}
		if d.IsAttribute() {
			err = r.SetRaw(d.Name, Normalize(value))
			return err == nil
		}
		err = populateRelation(r, d, value)
		return err == nil
	})
	return err
}

func populateRelation(r *records.Record, d records.FieldDescriptor, value any) error {
	related, err := r.Type().RelatedType(d.Name)
	if err != nil {
		return err
	}
	if value == nil {
		return r.SetRaw(d.Name, nil)
	}
	if d.Cardinality == records.CardinalityOne {
		rel, err := decodeRelated(related, value)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", r.Type().Name(), d.Name, err)
		}
		return r.SetRaw(d.Name, rel)
	}
	items, ok := value.([]any)
	if !ok {
		return fmt.Errorf("%s.%s: expected array, got %T", r.Type().Name(), d.Name, value)
	}
	members := make([]*records.Record, 0, len(items))
	for _, item := range items {
		rel, err := decodeRelated(related, item)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", r.Type().Name(), d.Name, err)
		}
		members = append(members, rel)
	}
	return r.SetRaw(d.Name, members)
}

func decodeRelated(t *records.RecordType, value any) (*records.Record, error) {
	if nested, ok := asDocument(value); ok {
		return t.LoadWith(func(rec *records.Record) error {
			return Populate(rec, nested)
		})
	}
	return t.Reference(Normalize(value))
}

func asDocument(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[fmt.Sprint(key)] = item
		}
		return out, true
	}
	return nil, false
}

// Normalize converts decoder number types into int64 or float64 and walks
// nested maps and slices.
func Normalize(value any) any {
	switch v := value.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return int64(v)
		}
		return v
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v)
		}
		return v
	case []byte:
		return string(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = Normalize(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[fmt.Sprint(key)] = Normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Normalize(item)
		}
		return out
	}
	return value
}
