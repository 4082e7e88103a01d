package records

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Transform converts between the typed value callers see and the raw value a
// record stores and serializers exchange.
type Transform interface {
	// Serialize converts a caller value into its raw form.
	Serialize(value any) (any, error)
	// Deserialize converts a raw value into its typed form.
	Deserialize(raw any) (any, error)
}

// TransformFuncs adapts a pair of functions to Transform. A nil function
// passes values through unchanged.
type TransformFuncs struct {
	SerializeFunc   func(any) (any, error)
	DeserializeFunc func(any) (any, error)
}

func (t TransformFuncs) Serialize(value any) (any, error) {
	if t.SerializeFunc == nil {
		return value, nil
	}
	return t.SerializeFunc(value)
}

func (t TransformFuncs) Deserialize(raw any) (any, error) {
	if t.DeserializeFunc == nil {
		return raw, nil
	}
	return t.DeserializeFunc(raw)
}

// TransformRegistry stores transforms keyed by name.
type TransformRegistry struct {
	mu         sync.RWMutex
	transforms map[string]Transform
}

// NewTransformRegistry returns a registry seeded with the built-in transforms.
func NewTransformRegistry() *TransformRegistry {
	return &TransformRegistry{
		transforms: map[string]Transform{
			"":        passthroughTransform{},
			"string":  stringTransform{},
			"number":  numberTransform{},
			"integer": integerTransform{},
			"boolean": booleanTransform{},
			"date":    dateTransform{},
			"json":    passthroughTransform{},
		},
	}
}

// Register stores t under name guarding against duplicates.
func (r *TransformRegistry) Register(name string, t Transform) error {
	if t == nil {
		return fmt.Errorf("records: transform %q is nil", name)
	}
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return fmt.Errorf("records: transform name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.transforms == nil {
		r.transforms = map[string]Transform{}
	}
	if _, exists := r.transforms[key]; exists {
		return fmt.Errorf("records: transform %q already registered", name)
	}
	r.transforms[key] = t
	return nil
}

// Lookup returns the transform registered for name.
func (r *TransformRegistry) Lookup(name string) (Transform, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transforms[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}

func transformError(name string, value any, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s cannot convert %T(%v): %v", ErrTransform, name, value, value, err)
	}
	return fmt.Errorf("%w: %s cannot convert %T(%v)", ErrTransform, name, value, value)
}

type passthroughTransform struct{}

func (passthroughTransform) Serialize(value any) (any, error)  { return value, nil }
func (passthroughTransform) Deserialize(raw any) (any, error) { return raw, nil }

type stringTransform struct{}

func (stringTransform) Serialize(value any) (any, error) { return toString(value), nil }
func (stringTransform) Deserialize(raw any) (any, error) { return toString(raw), nil }

func toString(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

type numberTransform struct{}

func (numberTransform) Serialize(value any) (any, error)  { return toFloat("number", value) }
func (numberTransform) Deserialize(raw any) (any, error) { return toFloat("number", raw) }

func toFloat(name string, value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case float64:
		return v, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, transformError(name, value, err)
		}
		return f, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, transformError(name, value, err)
		}
		return f, nil
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	}
	return nil, transformError(name, value, nil)
}

type integerTransform struct{}

func (integerTransform) Serialize(value any) (any, error)  { return toInt(value) }
func (integerTransform) Deserialize(raw any) (any, error) { return toInt(raw) }

func toInt(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case int64:
		return v, nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, transformError("integer", value, err)
		}
		return i, nil
	}
	f, err := toFloat("integer", value)
	if err != nil {
		return nil, err
	}
	n := f.(float64)
	if n != math.Trunc(n) {
		return nil, transformError("integer", value, nil)
	}
	return int64(n), nil
}

type booleanTransform struct{}

func (booleanTransform) Serialize(value any) (any, error)  { return toBool(value) }
func (booleanTransform) Deserialize(raw any) (any, error) { return toBool(raw) }

func toBool(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, transformError("boolean", value, err)
		}
		return b, nil
	}
	f, err := toFloat("boolean", value)
	if err != nil {
		return nil, err
	}
	return f.(float64) != 0, nil
}

// dateTransform stores RFC 3339 strings and exposes time.Time values.
type dateTransform struct{}

func (dateTransform) Serialize(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if v.IsZero() {
			return nil, nil
		}
		return v.UTC().Format(time.RFC3339Nano), nil
	case *time.Time:
		if v == nil || v.IsZero() {
			return nil, nil
		}
		return v.UTC().Format(time.RFC3339Nano), nil
	case string:
		t, err := parseDate(v)
		if err != nil {
			return nil, transformError("date", value, err)
		}
		return t.UTC().Format(time.RFC3339Nano), nil
	}
	return nil, transformError("date", value, nil)
}

func (dateTransform) Deserialize(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return v, nil
	case string:
		t, err := parseDate(v)
		if err != nil {
			return nil, transformError("date", raw, err)
		}
		return t, nil
	}
	return nil, transformError("date", raw, nil)
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date layout %q", value)
}

// sameValue reports whether two raw values are equal without a deep walk.
// Non comparable values (maps, slices) are always treated as different.
func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
