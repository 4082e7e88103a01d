package serializer

import (
	"fmt"
	"reflect"

	records "github.com/goliatone/go-records"
	"github.com/ugorji/go/codec"
)

// Msgpack serializes records as msgpack maps. Collections are msgpack
// arrays of maps.
type Msgpack struct {
	embed bool
	mh    codec.MsgpackHandle
}

// MsgpackOption configures the msgpack serializer.
type MsgpackOption func(*Msgpack)

// MsgpackKeysOnly writes related records as their keys.
func MsgpackKeysOnly() MsgpackOption {
	return func(s *Msgpack) {
		s.embed = false
	}
}

// NewMsgpack returns a msgpack serializer.
func NewMsgpack(opts ...MsgpackOption) *Msgpack {
	s := &Msgpack{embed: true}
	s.mh.MapType = reflect.TypeOf(map[string]any(nil))
	s.mh.RawToString = true
	s.mh.WriteExt = true
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Serialize implements records.Serializer.
func (s *Msgpack) Serialize(r *records.Record) ([]byte, error) {
	return s.encode(Encode(r, s.embed))
}

// Deserialize implements records.Serializer.
func (s *Msgpack) Deserialize(r *records.Record, data []byte) (*records.Record, error) {
	var doc map[string]any
	if err := codec.NewDecoderBytes(data, &s.mh).Decode(&doc); err != nil {
		return nil, fmt.Errorf("serializer: decode msgpack: %w", err)
	}
	if err := Populate(r, doc); err != nil {
		return nil, err
	}
	return r, nil
}

// DeserializeMany implements records.Serializer.
func (s *Msgpack) DeserializeMany(c *records.Collection, data []byte) (*records.Collection, error) {
	var items []any
	if err := codec.NewDecoderBytes(data, &s.mh).Decode(&items); err != nil {
		return nil, fmt.Errorf("serializer: decode msgpack: %w", err)
	}
	for i, item := range items {
		doc, ok := asDocument(item)
		if !ok {
			return nil, fmt.Errorf("serializer: %s item %d is %T, want map", c.Type().Name(), i, item)
		}
		rec, err := c.Type().LoadWith(func(rec *records.Record) error {
			return Populate(rec, doc)
		})
		if err != nil {
			return nil, err
		}
		if err := c.Add(rec); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// SerializeMany encodes every member of c as a msgpack array.
func (s *Msgpack) SerializeMany(c *records.Collection) ([]byte, error) {
	items := make([]any, 0, c.Len())
	c.Each(func(_ int, r *records.Record) bool {
		items = append(items, Encode(r, s.embed))
		return true
	})
	return s.encode(items)
}

func (s *Msgpack) encode(value any) ([]byte, error) {
	var out []byte
	if err := codec.NewEncoderBytes(&out, &s.mh).Encode(value); err != nil {
		return nil, fmt.Errorf("serializer: encode msgpack: %w", err)
	}
	return out, nil
}
