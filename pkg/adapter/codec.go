// Package adapter holds the pieces shared by the storage adapters: the codec
// that turns records into stored payloads and filter documents, and primary
// key assignment for new records.
//
// Every adapter stores two forms of a record. The payload is the serializer
// output and is what records are loaded from. The document is
// Record.Snapshot, a flat map of raw attribute values and related keys, and
// is what queries filter on.
package adapter

import (
	"fmt"

	"github.com/google/uuid"

	records "github.com/goliatone/go-records"
	"github.com/goliatone/go-records/pkg/serializer"
)

// KeyFunc generates primary keys for records saved without one.
type KeyFunc func() string

// NewKey returns a random UUID string.
func NewKey() string {
	return uuid.NewString()
}

// Codec encodes records for storage.
type Codec struct {
	serializer records.Serializer
}

// NewCodec returns a codec using s for payloads. A nil s selects msgpack.
func NewCodec(s records.Serializer) Codec {
	if s == nil {
		s = serializer.NewMsgpack()
	}
	return Codec{serializer: s}
}

// Encode returns the stored payload and filter document of r.
func (c Codec) Encode(r *records.Record) ([]byte, map[string]any, error) {
	payload, err := c.serializer.Serialize(r)
	if err != nil {
		return nil, nil, err
	}
	doc, ok := serializer.Normalize(r.Snapshot()).(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("adapter: snapshot of %s is not a document", r.Type().Name())
	}
	return payload, doc, nil
}

// Decode loads a record of t from payload.
func (c Codec) Decode(t *records.RecordType, payload []byte) (*records.Record, error) {
	return t.LoadWith(func(rec *records.Record) error {
		_, err := c.serializer.Deserialize(rec, payload)
		return err
	})
}

// DecodeAll loads a collection of t from payloads, in order.
func (c Codec) DecodeAll(t *records.RecordType, payloads [][]byte) (*records.Collection, error) {
	members := make([]*records.Record, 0, len(payloads))
	for _, payload := range payloads {
		rec, err := c.Decode(t, payload)
		if err != nil {
			return nil, err
		}
		members = append(members, rec)
	}
	out, err := records.NewCollection(t, members...)
	if err != nil {
		return nil, err
	}
	out.SetLoaded(true)
	return out, nil
}

// AssignKey gives r a generated key when it has none and returns the key.
func AssignKey(r *records.Record, gen KeyFunc) (string, error) {
	if key := r.Key(); key != nil {
		return records.KeyString(key), nil
	}
	if gen == nil {
		gen = NewKey
	}
	key := gen()
	if err := r.SetKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// RequireKey returns the storage key of r or records.ErrNotFound when r has
// never been assigned one.
func RequireKey(r *records.Record) (string, error) {
	key := r.Key()
	if key == nil {
		return "", fmt.Errorf("%w: %s has no key", records.ErrNotFound, r.Type().Name())
	}
	return records.KeyString(key), nil
}
