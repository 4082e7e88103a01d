package serializer

import (
	"fmt"

	simplejson "github.com/bitly/go-simplejson"
	records "github.com/goliatone/go-records"
	"github.com/goliatone/go-records/internal/hydrate"
)

// KeyStyle selects how field names appear in JSON payloads.
type KeyStyle int

const (
	// KeysAsDeclared writes field names unchanged.
	KeysAsDeclared KeyStyle = iota
	// KeysCamel writes snake_case field names as lowerCamelCase and reads
	// them back.
	KeysCamel
)

// JSONOption configures the JSON serializer.
type JSONOption func(*JSON)

// WithRootKey wraps single records under their resource name and
// collections under the resource name with an "s" suffix.
func WithRootKey() JSONOption {
	return func(s *JSON) {
		s.rootKey = true
	}
}

// WithKeysOnly writes related records as their keys instead of nested
// documents.
func WithKeysOnly() JSONOption {
	return func(s *JSON) {
		s.embed = false
	}
}

// WithKeyStyle renames top-level keys on the way out and back in.
func WithKeyStyle(style KeyStyle) JSONOption {
	return func(s *JSON) {
		s.style = style
	}
}

// WithInboundHook rewrites decoded documents before they populate a record.
func WithInboundHook(hook hydrate.Hook) JSONOption {
	return func(s *JSON) {
		s.inboundHooks = append(s.inboundHooks, hook)
	}
}

// WithOutboundHook rewrites documents before they are encoded.
func WithOutboundHook(hook hydrate.Hook) JSONOption {
	return func(s *JSON) {
		s.outboundHooks = append(s.outboundHooks, hook)
	}
}

// JSON serializes records as JSON objects.
type JSON struct {
	rootKey       bool
	embed         bool
	style         KeyStyle
	inboundHooks  []hydrate.Hook
	outboundHooks []hydrate.Hook
	inbound       *hydrate.Pipeline
	outbound      *hydrate.Pipeline
}

// NewJSON returns a JSON serializer.
func NewJSON(opts ...JSONOption) *JSON {
	s := &JSON{embed: true}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.outbound = hydrate.NewPipeline(s.outboundHooks...)
	s.inbound = hydrate.NewPipeline()
	if s.style == KeysCamel {
		s.outbound.Append(hydrate.RenameKeys(hydrate.CamelCase))
		s.inbound.Append(hydrate.RenameKeys(hydrate.SnakeCase))
	}
	for _, hook := range s.inboundHooks {
		s.inbound.Append(hook)
	}
	return s
}

func hydrateContext(t *records.RecordType) hydrate.Context {
	return hydrate.Context{Type: t.Name(), Resource: t.ResourceName()}
}

// Serialize implements records.Serializer.
func (s *JSON) Serialize(r *records.Record) ([]byte, error) {
	doc, err := s.outbound.Run(hydrateContext(r.Type()), Encode(r, s.embed))
	if err != nil {
		return nil, err
	}
	js := simplejson.New()
	if s.rootKey {
		js.Set(r.Type().ResourceName(), doc)
	} else {
		for key, value := range doc {
			js.Set(key, value)
		}
	}
	return js.Encode()
}

// Deserialize implements records.Serializer.
func (s *JSON) Deserialize(r *records.Record, data []byte) (*records.Record, error) {
	js, err := simplejson.NewJson(data)
	if err != nil {
		return nil, fmt.Errorf("serializer: decode json: %w", err)
	}
	if s.rootKey {
		if inner, ok := js.CheckGet(r.Type().ResourceName()); ok {
			js = inner
		}
	}
	doc, err := js.Map()
	if err != nil {
		return nil, fmt.Errorf("serializer: %s payload is not an object: %w", r.Type().Name(), err)
	}
	if err := s.populate(r, doc); err != nil {
		return nil, err
	}
	return r, nil
}

// DeserializeMany implements records.Serializer.
func (s *JSON) DeserializeMany(c *records.Collection, data []byte) (*records.Collection, error) {
	js, err := simplejson.NewJson(data)
	if err != nil {
		return nil, fmt.Errorf("serializer: decode json: %w", err)
	}
	if s.rootKey {
		if inner, ok := js.CheckGet(c.Type().ResourceName() + "s"); ok {
			js = inner
		}
	}
	items, err := js.Array()
	if err != nil {
		return nil, fmt.Errorf("serializer: %s payload is not an array: %w", c.Type().Name(), err)
	}
	for i, item := range items {
		doc, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("serializer: %s item %d is %T, want object", c.Type().Name(), i, item)
		}
		rec, err := c.Type().LoadWith(func(rec *records.Record) error {
			return s.populate(rec, doc)
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

// SerializeMany encodes every member of c as a JSON array, wrapped under the
// collection root key when enabled.
func (s *JSON) SerializeMany(c *records.Collection) ([]byte, error) {
	items := make([]any, 0, c.Len())
	var err error
	c.Each(func(_ int, r *records.Record) bool {
		var doc map[string]any
		doc, err = s.outbound.Run(hydrateContext(r.Type()), Encode(r, s.embed))
		items = append(items, doc)
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	js := simplejson.New()
	if s.rootKey {
		js.Set(c.Type().ResourceName()+"s", items)
		return js.Encode()
	}
	js.SetPath(nil, items)
	return js.Encode()
}

func (s *JSON) populate(r *records.Record, doc map[string]any) error {
	doc, err := s.inbound.Run(hydrateContext(r.Type()), doc)
	if err != nil {
		return err
	}
	return Populate(r, doc)
}
