package records

import "fmt"

// FieldKind separates scalar attributes from relationships.
type FieldKind int

const (
	// KindUnknown guards against zero-value descriptors.
	KindUnknown FieldKind = iota
	// KindAttribute is a scalar field with a value transform.
	KindAttribute
	// KindRelationship is a field pointing at another record or a collection.
	KindRelationship
)

func (k FieldKind) String() string {
	switch k {
	case KindAttribute:
		return "attribute"
	case KindRelationship:
		return "relationship"
	default:
		return "unknown"
	}
}

// Cardinality describes how many related records a relationship holds.
type Cardinality int

const (
	CardinalityNone Cardinality = iota
	CardinalityOne
	CardinalityMany
)

func (c Cardinality) String() string {
	switch c {
	case CardinalityOne:
		return "one"
	case CardinalityMany:
		return "many"
	default:
		return "none"
	}
}

// FieldDescriptor is the static metadata for one declared field. Descriptors
// are created at type-definition time and shared by every instance.
type FieldDescriptor struct {
	Name        string
	Kind        FieldKind
	Transform   string
	Cardinality Cardinality
	Related     string
	Options     map[string]any
}

// FieldOption configures optional descriptor metadata.
type FieldOption func(*FieldDescriptor)

// WithFieldOption stores an arbitrary option on the descriptor.
func WithFieldOption(key string, value any) FieldOption {
	return func(d *FieldDescriptor) {
		if d.Options == nil {
			d.Options = map[string]any{}
		}
		d.Options[key] = value
	}
}

// Attr declares an attribute using the named transform ("string", "number",
// "integer", "boolean", "date", "json" or "" for passthrough).
func Attr(name, transform string, opts ...FieldOption) FieldDescriptor {
	return newDescriptor(FieldDescriptor{Name: name, Kind: KindAttribute, Transform: transform}, opts)
}

// BelongsTo declares a to-one relationship to the related type.
func BelongsTo(name, related string, opts ...FieldOption) FieldDescriptor {
	return newDescriptor(FieldDescriptor{
		Name:        name,
		Kind:        KindRelationship,
		Cardinality: CardinalityOne,
		Related:     related,
	}, opts)
}

// HasMany declares a to-many relationship to the related type.
func HasMany(name, related string, opts ...FieldOption) FieldDescriptor {
	return newDescriptor(FieldDescriptor{
		Name:        name,
		Kind:        KindRelationship,
		Cardinality: CardinalityMany,
		Related:     related,
	}, opts)
}

func newDescriptor(d FieldDescriptor, opts []FieldOption) FieldDescriptor {
	for _, opt := range opts {
		if opt != nil {
			opt(&d)
		}
	}
	return d
}

// IsAttribute reports whether the descriptor is a scalar attribute.
func (d FieldDescriptor) IsAttribute() bool { return d.Kind == KindAttribute }

// IsRelationship reports whether the descriptor points at other records.
func (d FieldDescriptor) IsRelationship() bool { return d.Kind == KindRelationship }

func (d FieldDescriptor) String() string {
	if d.IsRelationship() {
		return fmt.Sprintf("%s(%s %s %s)", d.Name, d.Kind, d.Cardinality, d.Related)
	}
	return fmt.Sprintf("%s(%s %s)", d.Name, d.Kind, d.Transform)
}

// declaration renders the parts of d that must agree between registrations.
func (d FieldDescriptor) declaration() string {
	if d.IsRelationship() {
		return fmt.Sprintf("%s %s %s", d.Kind, d.Cardinality, d.Related)
	}
	return fmt.Sprintf("%s %q", d.Kind, d.Transform)
}

func (d FieldDescriptor) clone() FieldDescriptor {
	out := d
	if len(d.Options) > 0 {
		out.Options = make(map[string]any, len(d.Options))
		for key, value := range d.Options {
			out.Options[key] = value
		}
	}
	return out
}

// Fields is the ordered, read-only descriptor table of one record type.
type Fields struct {
	order  []string
	byName map[string]*FieldDescriptor
}

// Len returns the number of declared fields.
func (f *Fields) Len() int {
	if f == nil {
		return 0
	}
	return len(f.order)
}

// Names returns field names in declaration order.
func (f *Fields) Names() []string {
	if f == nil {
		return nil
	}
	return append([]string(nil), f.order...)
}

// Get returns a copy of the descriptor for name.
func (f *Fields) Get(name string) (FieldDescriptor, bool) {
	if f == nil {
		return FieldDescriptor{}, false
	}
	d, ok := f.byName[name]
	if !ok {
		return FieldDescriptor{}, false
	}
	return d.clone(), true
}

// Has reports whether name is declared.
func (f *Fields) Has(name string) bool {
	if f == nil {
		return false
	}
	_, ok := f.byName[name]
	return ok
}

// Each walks descriptors in declaration order until fn returns false.
func (f *Fields) Each(fn func(FieldDescriptor) bool) {
	if f == nil {
		return
	}
	for _, name := range f.order {
		if !fn(f.byName[name].clone()) {
			return
		}
	}
}

// Attributes returns the attribute descriptors in declaration order.
func (f *Fields) Attributes() []FieldDescriptor {
	return f.filter(KindAttribute)
}

// Relationships returns the relationship descriptors in declaration order.
func (f *Fields) Relationships() []FieldDescriptor {
	return f.filter(KindRelationship)
}

func (f *Fields) filter(kind FieldKind) []FieldDescriptor {
	var out []FieldDescriptor
	f.Each(func(d FieldDescriptor) bool {
		if d.Kind == kind {
			out = append(out, d)
		}
		return true
	})
	return out
}
