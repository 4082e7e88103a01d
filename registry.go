package records

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// FieldRegistry stores field descriptors per record type. Tables are built
// lazily on first read and never change afterwards.
type FieldRegistry struct {
	mu       sync.RWMutex
	declared map[string][]FieldDescriptor
	tables   map[string]*Fields
}

// NewFieldRegistry constructs an empty registry.
func NewFieldRegistry() *FieldRegistry {
	return &FieldRegistry{
		declared: make(map[string][]FieldDescriptor),
		tables:   make(map[string]*Fields),
	}
}

// Register adds descriptor to typeID exactly once. Registering the same
// descriptor again is a no-op; a different kind, cardinality, related type or
// transform under the same name is a configuration error.
func (r *FieldRegistry) Register(typeID string, descriptor FieldDescriptor) error {
	return r.RegisterAll(typeID, descriptor)
}

// RegisterAll registers descriptors as one batch. Either every descriptor is
// recorded or, on error, none is.
func (r *FieldRegistry) RegisterAll(typeID string, descriptors ...FieldDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	added, err := r.check(typeID, descriptors)
	if err != nil {
		return err
	}
	if len(added) == 0 {
		return nil
	}
	if r.declared == nil {
		r.declared = make(map[string][]FieldDescriptor)
		r.tables = make(map[string]*Fields)
	}
	for _, d := range added {
		r.declared[typeID] = append(r.declared[typeID], d.clone())
	}
	return nil
}

// Check reports the error RegisterAll would return without recording
// anything.
func (r *FieldRegistry) Check(typeID string, descriptors ...FieldDescriptor) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, err := r.check(typeID, descriptors)
	return err
}

// check validates descriptors against the declared table and each other and
// returns the ones not declared yet. Callers hold r.mu.
func (r *FieldRegistry) check(typeID string, descriptors []FieldDescriptor) ([]FieldDescriptor, error) {
	if typeID == "" {
		return nil, fmt.Errorf("records: type id must not be empty")
	}
	seen := make(map[string]FieldDescriptor, len(r.declared[typeID])+len(descriptors))
	for _, existing := range r.declared[typeID] {
		seen[existing.Name] = existing
	}
	var added []FieldDescriptor
	for _, d := range descriptors {
		if err := validateDescriptor(typeID, d); err != nil {
			return nil, err
		}
		if existing, ok := seen[d.Name]; ok {
			if !sameDeclaration(existing, d) {
				return nil, fmt.Errorf("%w: %s.%s declared as %s, got %s",
					ErrConflictingField, typeID, d.Name, existing.declaration(), d.declaration())
			}
			continue
		}
		seen[d.Name] = d
		added = append(added, d)
	}
	if _, sealed := r.tables[typeID]; sealed && len(added) > 0 {
		return nil, fmt.Errorf("%w: %s.%s", ErrRegistrySealed, typeID, added[0].Name)
	}
	return added, nil
}

func validateDescriptor(typeID string, d FieldDescriptor) error {
	if d.Name == "" {
		return fmt.Errorf("records: field name must not be empty for type %q", typeID)
	}
	if d.Kind == KindUnknown {
		return fmt.Errorf("records: field %s.%s has no kind", typeID, d.Name)
	}
	if d.IsRelationship() && d.Related == "" {
		return fmt.Errorf("records: relationship %s.%s has no related type", typeID, d.Name)
	}
	return nil
}

func sameDeclaration(a, b FieldDescriptor) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.IsRelationship() {
		return a.Cardinality == b.Cardinality && a.Related == b.Related
	}
	return a.Transform == b.Transform
}

// RegisterStruct walks the exported fields of a struct (or pointer to one)
// and registers the ones tagged with `record:"..."`. Untagged fields are plain
// properties and are skipped.
//
//	type Post struct {
//	    Title    string `record:"title,attr=string"`
//	    Author   any    `record:"author,belongsTo=User"`
//	    Comments any    `record:"comments,hasMany=Comment"`
//	    cache    string
//	}
func (r *FieldRegistry) RegisterStruct(typeID string, value any) error {
	descriptors, err := DescriptorsFromStruct(value)
	if err != nil {
		return fmt.Errorf("records: %s: %w", typeID, err)
	}
	return r.RegisterAll(typeID, descriptors...)
}

// FieldsOf returns the descriptor table for typeID. The first call builds and
// seals the table; later calls return the same pointer.
func (r *FieldRegistry) FieldsOf(typeID string) *Fields {
	r.mu.RLock()
	table, ok := r.tables[typeID]
	r.mu.RUnlock()
	if ok {
		return table
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if table, ok := r.tables[typeID]; ok {
		return table
	}
	if r.tables == nil {
		r.tables = make(map[string]*Fields)
	}
	declared := r.declared[typeID]
	table = &Fields{
		order:  make([]string, 0, len(declared)),
		byName: make(map[string]*FieldDescriptor, len(declared)),
	}
	for i := range declared {
		d := declared[i]
		table.order = append(table.order, d.Name)
		table.byName[d.Name] = &d
	}
	r.tables[typeID] = table
	return table
}

// Sealed reports whether the table for typeID has been built.
func (r *FieldRegistry) Sealed(typeID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tables[typeID]
	return ok
}

// DescriptorsFromStruct derives descriptors from `record` struct tags.
func DescriptorsFromStruct(value any) ([]FieldDescriptor, error) {
	rt := reflect.TypeOf(value)
	for rt != nil && rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt == nil || rt.Kind() != reflect.Struct {
		return nil, fmt.Errorf("expected struct, got %v", rt)
	}

	var out []FieldDescriptor
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		tag, ok := sf.Tag.Lookup("record")
		if !ok || tag == "-" || !sf.IsExported() {
			continue
		}
		d, err := parseRecordTag(sf.Name, tag)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func parseRecordTag(fieldName, tag string) (FieldDescriptor, error) {
	parts := strings.Split(tag, ",")
	name := strings.TrimSpace(parts[0])
	if name == "" {
		name = lowerFirst(fieldName)
	}
	d := FieldDescriptor{Name: name, Kind: KindAttribute}
	for _, part := range parts[1:] {
		key, value, _ := strings.Cut(strings.TrimSpace(part), "=")
		switch key {
		case "attr":
			d.Kind = KindAttribute
			d.Transform = value
		case "belongsTo":
			d.Kind = KindRelationship
			d.Cardinality = CardinalityOne
			d.Related = value
		case "hasMany":
			d.Kind = KindRelationship
			d.Cardinality = CardinalityMany
			d.Related = value
		case "":
		default:
			return FieldDescriptor{}, fmt.Errorf("field %s: unknown tag option %q", fieldName, key)
		}
	}
	if d.IsRelationship() && d.Related == "" {
		return FieldDescriptor{}, fmt.Errorf("field %s: relationship without related type", fieldName)
	}
	return d, nil
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
