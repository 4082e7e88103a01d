package records

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/goliatone/go-records/internal/layering"
	"gopkg.in/yaml.v3"
)

// DefaultPrimaryKey is used for types without a primary key override.
const DefaultPrimaryKey = "id"

// Recommended layer priorities. Higher numbers win.
const (
	ConfigPriorityDefaults = 100
	ConfigPriorityFile     = 200
	ConfigPriorityRuntime  = 1000
)

const (
	runtimeLayerName  = "runtime"
	defaultsLayerName = "defaults"
)

var (
	// ErrLayerNameRequired indicates a configuration layer without a name.
	ErrLayerNameRequired = errors.New("config: layer name must be provided")
	// ErrDuplicateLayerName indicates two layers share a name.
	ErrDuplicateLayerName = errors.New("config: layer names must be unique")
	// ErrLayerPriorityOrder indicates two layers share a priority.
	ErrLayerPriorityOrder = errors.New("config: layer priorities must be strictly ordered")
)

// TypeOptions are the per-type settings read by RecordType.
type TypeOptions struct {
	PrimaryKey string `yaml:"primary_key" json:"primary_key,omitempty"`
}

// ConfigLayer is one named source of per-type options, keyed by the fully
// qualified type name.
type ConfigLayer struct {
	Name     string                 `yaml:"name" json:"name"`
	Priority int                    `yaml:"priority" json:"priority"`
	Types    map[string]TypeOptions `yaml:"types" json:"types"`
}

// Config is the explicit configuration source for a Client. Layers are
// merged strongest first; Set writes to a runtime layer that outranks every
// other layer. Readers always see the latest merge.
type Config struct {
	mu      sync.RWMutex
	layers  []ConfigLayer
	merged  map[string]TypeOptions
	version uint64
}

// NewConfig validates and merges layers.
func NewConfig(layers ...ConfigLayer) (*Config, error) {
	cfg := &Config{}
	if err := cfg.update(func([]ConfigLayer) ([]ConfigLayer, error) {
		return layers, nil
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Apply adds layer, replacing any existing layer with the same name.
func (c *Config) Apply(layer ConfigLayer) error {
	return c.update(func(current []ConfigLayer) ([]ConfigLayer, error) {
		next := make([]ConfigLayer, 0, len(current)+1)
		for _, existing := range current {
			if existing.Name != layer.Name {
				next = append(next, existing)
			}
		}
		return append(next, layer), nil
	})
}

// Set overrides the options of one type in the runtime layer, created at
// ConfigPriorityRuntime when needed.
func (c *Config) Set(typeName string, opts TypeOptions) error {
	return c.setIn(runtimeLayerName, ConfigPriorityRuntime, typeName, opts)
}

// SetDefault records opts for typeName in the defaults layer, creating the
// layer at ConfigPriorityDefaults when needed.
func (c *Config) SetDefault(typeName string, opts TypeOptions) error {
	return c.setIn(defaultsLayerName, ConfigPriorityDefaults, typeName, opts)
}

func (c *Config) setIn(name string, priority int, typeName string, opts TypeOptions) error {
	return c.update(func(current []ConfigLayer) ([]ConfigLayer, error) {
		for i := range current {
			if current[i].Name != name {
				continue
			}
			if current[i].Types == nil {
				current[i].Types = map[string]TypeOptions{}
			}
			current[i].Types[typeName] = opts
			return current, nil
		}
		return append(current, ConfigLayer{
			Name:     name,
			Priority: priority,
			Types:    map[string]TypeOptions{typeName: opts},
		}), nil
	})
}

// PrimaryKey returns the primary key field name for typeName.
func (c *Config) PrimaryKey(typeName string) string {
	if c == nil {
		return DefaultPrimaryKey
	}
	opts, ok := c.TypeOptions(typeName)
	if !ok || opts.PrimaryKey == "" {
		return DefaultPrimaryKey
	}
	return opts.PrimaryKey
}

// TypeOptions returns the merged options for typeName.
func (c *Config) TypeOptions(typeName string) (TypeOptions, bool) {
	if c == nil {
		return TypeOptions{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	opts, ok := c.merged[typeName]
	return opts, ok
}

// Version increments on every change and lets callers detect reconfiguration.
func (c *Config) Version() uint64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Layers returns copies of the layers ordered strongest first.
func (c *Config) Layers() []ConfigLayer {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ConfigLayer, len(c.layers))
	for i := range c.layers {
		out[i] = layering.Clone(c.layers[i])
	}
	return out
}

// update runs fn on copies of the current layers and installs the result.
// The whole read-modify-write holds c.mu, so concurrent updates never drop
// each other's layers.
func (c *Config) update(fn func([]ConfigLayer) ([]ConfigLayer, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := make([]ConfigLayer, len(c.layers))
	for i := range c.layers {
		current[i] = layering.Clone(c.layers[i])
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	validated, err := validateLayers(next)
	if err != nil {
		return err
	}
	c.layers = validated
	c.remerge()
	return nil
}

// validateLayers returns detached copies of layers ordered strongest first.
func validateLayers(layers []ConfigLayer) ([]ConfigLayer, error) {
	seen := make(map[string]struct{}, len(layers))
	copied := make([]ConfigLayer, len(layers))
	for i, layer := range layers {
		if layer.Name == "" {
			return nil, ErrLayerNameRequired
		}
		if _, ok := seen[layer.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateLayerName, layer.Name)
		}
		seen[layer.Name] = struct{}{}
		copied[i] = layering.Clone(layer)
	}
	sort.Slice(copied, func(i, j int) bool {
		if copied[i].Priority == copied[j].Priority {
			return copied[i].Name < copied[j].Name
		}
		return copied[i].Priority > copied[j].Priority
	})
	for i := 1; i < len(copied); i++ {
		if copied[i-1].Priority <= copied[i].Priority {
			return nil, fmt.Errorf("%w: %d", ErrLayerPriorityOrder, copied[i].Priority)
		}
	}
	return copied, nil
}

// remerge must be called with c.mu held for writing.
func (c *Config) remerge() {
	snapshots := make([]map[string]TypeOptions, 0, len(c.layers))
	for _, layer := range c.layers {
		snapshots = append(snapshots, layer.Types)
	}
	merged := layering.MergeLayers(snapshots...)
	if merged == nil {
		merged = map[string]TypeOptions{}
	}
	c.merged = merged
	c.version++
}

// LoadConfigYAML decodes one layer from YAML:
//
//	name: app
//	priority: 200
//	types:
//	  models.Post:
//	    primary_key: slug
//
// Missing name and priority default to "file" and ConfigPriorityFile.
func LoadConfigYAML(r io.Reader) (ConfigLayer, error) {
	var layer ConfigLayer
	if err := yaml.NewDecoder(r).Decode(&layer); err != nil && !errors.Is(err, io.EOF) {
		return ConfigLayer{}, fmt.Errorf("config: decode yaml: %w", err)
	}
	if layer.Name == "" {
		layer.Name = "file"
	}
	if layer.Priority == 0 {
		layer.Priority = ConfigPriorityFile
	}
	if layer.Types == nil {
		layer.Types = map[string]TypeOptions{}
	}
	return layer, nil
}
