package records

import "context"

// Params are query modifiers passed to adapters. Keys other than the
// reserved ones understood by pkg/query are equality filters.
type Params map[string]any

func (p Params) clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for key, value := range p {
		out[key] = value
	}
	return out
}

// Adapter persists records. Implementations report success by returning nil;
// the record applies its own state transitions afterwards. SaveRecord may
// assign a primary key to a new record with SetKey.
type Adapter interface {
	SaveRecord(ctx context.Context, record *Record) error
	DeleteRecord(ctx context.Context, record *Record) error
	FindAll(ctx context.Context, t *RecordType) (*Collection, error)
	FindQuery(ctx context.Context, t *RecordType, params Params) (*Collection, error)
	FindByKey(ctx context.Context, t *RecordType, key any, params Params) (*Record, error)
}

// Serializer converts records to and from a wire representation.
// Deserialize populates record and returns it; DeserializeMany appends to
// collection and returns it.
type Serializer interface {
	Serialize(record *Record) ([]byte, error)
	Deserialize(record *Record, data []byte) (*Record, error)
	DeserializeMany(collection *Collection, data []byte) (*Collection, error)
}
