package records

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-records/pkg/activity"
)

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	adapter         Adapter
	serializer      Serializer
	config          *Config
	registry        *FieldRegistry
	transforms      map[string]Transform
	logger          Logger
	activityHooks   activity.Hooks
	activityChannel string
}

// WithAdapter sets the default adapter for every type.
func WithAdapter(adapter Adapter) Option {
	return func(cfg *clientConfig) {
		cfg.adapter = adapter
	}
}

// WithSerializer sets the default serializer for every type.
func WithSerializer(serializer Serializer) Option {
	return func(cfg *clientConfig) {
		cfg.serializer = serializer
	}
}

// WithConfig supplies the per-type configuration source.
func WithConfig(config *Config) Option {
	return func(cfg *clientConfig) {
		cfg.config = config
	}
}

// WithFieldRegistry shares a registry between clients.
func WithFieldRegistry(registry *FieldRegistry) Option {
	return func(cfg *clientConfig) {
		cfg.registry = registry
	}
}

// WithTransform registers a named attribute transform.
func WithTransform(name string, transform Transform) Option {
	return func(cfg *clientConfig) {
		if cfg.transforms == nil {
			cfg.transforms = map[string]Transform{}
		}
		cfg.transforms[name] = transform
	}
}

// WithLogger records transitions and collaborator calls.
func WithLogger(logger Logger) Option {
	return func(cfg *clientConfig) {
		if logger == nil {
			logger = noopLogger{}
		}
		cfg.logger = logger
	}
}

// WithActivityHooks emits record lifecycle events to hooks after successful
// saves and deletes. Nil hooks are dropped.
func WithActivityHooks(hooks ...activity.ActivityHook) Option {
	return func(cfg *clientConfig) {
		for _, hook := range hooks {
			if hook != nil {
				cfg.activityHooks = append(cfg.activityHooks, hook)
			}
		}
	}
}

// WithActivityChannel overrides activity.DefaultChannel.
func WithActivityChannel(channel string) Option {
	return func(cfg *clientConfig) {
		cfg.activityChannel = strings.TrimSpace(channel)
	}
}

// Client owns the field registry, the configuration, the type table and the
// default collaborators. It is safe for concurrent use; the records it
// produces are not.
type Client struct {
	mu         sync.RWMutex
	types      map[string]*RecordType
	registry   *FieldRegistry
	config     *Config
	transforms *TransformRegistry
	adapter    Adapter
	serializer Serializer
	logger     Logger
	emitter    *activity.Emitter
}

// NewClient builds a client from opts.
func NewClient(opts ...Option) (*Client, error) {
	cfg := clientConfig{logger: noopLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.config == nil {
		config, err := NewConfig()
		if err != nil {
			return nil, err
		}
		cfg.config = config
	}
	if cfg.registry == nil {
		cfg.registry = NewFieldRegistry()
	}
	transforms := NewTransformRegistry()
	names := make([]string, 0, len(cfg.transforms))
	for name := range cfg.transforms {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := transforms.Register(name, cfg.transforms[name]); err != nil {
			return nil, err
		}
	}

	return &Client{
		types:      map[string]*RecordType{},
		registry:   cfg.registry,
		config:     cfg.config,
		transforms: transforms,
		adapter:    cfg.adapter,
		serializer: cfg.serializer,
		logger:     cfg.logger,
		emitter: activity.NewEmitter(cfg.activityHooks, activity.Config{
			Enabled: len(cfg.activityHooks) > 0,
			Channel: cfg.activityChannel,
		}),
	}, nil
}

// DefineOption configures one record type.
type DefineOption func(*RecordType) error

// WithTypeAdapter overrides the client adapter for one type.
func WithTypeAdapter(adapter Adapter) DefineOption {
	return func(t *RecordType) error {
		t.typeAdapter = adapter
		return nil
	}
}

// WithTypeSerializer overrides the client serializer for one type.
func WithTypeSerializer(serializer Serializer) DefineOption {
	return func(t *RecordType) error {
		t.typeSerializer = serializer
		return nil
	}
}

// WithPrimaryKey sets the type's primary key in the configuration defaults
// layer. File and runtime layers still take precedence.
func WithPrimaryKey(name string) DefineOption {
	return func(t *RecordType) error {
		return t.client.config.SetDefault(t.name, TypeOptions{PrimaryKey: name})
	}
}

// Define registers fields under name and returns the new type. The field
// table is sealed once Define returns. A failed Define registers nothing.
func (c *Client) Define(name string, fields []FieldDescriptor, opts ...DefineOption) (*RecordType, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("records: type name must not be empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.types[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateType, name)
	}
	for _, d := range fields {
		if d.IsAttribute() {
			if _, ok := c.transforms.Lookup(d.Transform); !ok {
				return nil, fmt.Errorf("%w: %s.%s uses unknown transform %q", ErrTransform, name, d.Name, d.Transform)
			}
		}
	}
	if err := c.registry.Check(name, fields...); err != nil {
		return nil, err
	}
	t := &RecordType{client: c, name: name}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(t); err != nil {
			return nil, fmt.Errorf("records: define %s: %w", name, err)
		}
	}
	if err := c.registry.RegisterAll(name, fields...); err != nil {
		return nil, err
	}
	t.fields = c.registry.FieldsOf(name)
	c.types[name] = t
	return t, nil
}

// DefineStruct derives fields from the `record` tags of value.
func (c *Client) DefineStruct(name string, value any, opts ...DefineOption) (*RecordType, error) {
	fields, err := DescriptorsFromStruct(value)
	if err != nil {
		return nil, fmt.Errorf("records: %s: %w", name, err)
	}
	return c.Define(name, fields, opts...)
}

// Type returns the type defined under name.
func (c *Client) Type(name string) (*RecordType, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return t, nil
}

// Types returns defined type names sorted alphabetically.
func (c *Client) Types() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.types))
	for name := range c.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registry returns the field registry.
func (c *Client) Registry() *FieldRegistry { return c.registry }

// Config returns the configuration source.
func (c *Client) Config() *Config { return c.config }

// Transforms returns the attribute transform registry.
func (c *Client) Transforms() *TransformRegistry { return c.transforms }

// lookupRelated resolves a relationship target: the exact type name first,
// then a unique match on the last name segment.
func (c *Client) lookupRelated(name string) (*RecordType, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if t, ok := c.types[name]; ok {
		return t, nil
	}
	short := lastSegment(name)
	var found *RecordType
	for typeName, t := range c.types {
		if lastSegment(typeName) != short {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: %q matches more than one type", ErrUnknownType, name)
		}
		found = t
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return found, nil
}

func lastSegment(name string) string {
	if idx := strings.LastIndexAny(name, "./:"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

func (t *RecordType) emit(ctx context.Context, event activity.Event) {
	emitter := t.client.emitter
	if !emitter.Enabled() {
		return
	}
	start := time.Now()
	err := emitter.Emit(ctx, event)
	if err != nil {
		t.logOperation("activity", event.ObjectID, start, err)
	}
}
