package query

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Reserved parameter names. Every other key is an equality filter.
const (
	ParamWhere  = "where"
	ParamLimit  = "limit"
	ParamOffset = "offset"
)

// Criteria is the parsed form of a find parameter map.
type Criteria struct {
	Equal  map[string]any
	Where  string
	Limit  int
	Offset int
}

// Parse splits params into equality filters and reserved keys.
func Parse(params map[string]any) (Criteria, error) {
	c := Criteria{}
	for key, value := range params {
		switch key {
		case ParamWhere:
			where, ok := value.(string)
			if !ok {
				return Criteria{}, fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidParam, key, value)
			}
			c.Where = strings.TrimSpace(where)
		case ParamLimit, ParamOffset:
			n, err := toNonNegativeInt(value)
			if err != nil {
				return Criteria{}, fmt.Errorf("%w: %s: %v", ErrInvalidParam, key, err)
			}
			if key == ParamLimit {
				c.Limit = n
			} else {
				c.Offset = n
			}
		default:
			if c.Equal == nil {
				c.Equal = map[string]any{}
			}
			c.Equal[key] = value
		}
	}
	return c, nil
}

// Keys returns the equality filter names sorted, so generated SQL is stable.
func (c Criteria) Keys() []string {
	keys := make([]string, 0, len(c.Equal))
	for key := range c.Equal {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Window returns the [start, end) slice bounds for total matches.
func (c Criteria) Window(total int) (int, int) {
	start := c.Offset
	if start > total {
		start = total
	}
	end := total
	if c.Limit > 0 && start+c.Limit < end {
		end = start + c.Limit
	}
	return start, end
}

// MatchEqual reports whether doc satisfies every equality filter.
func (c Criteria) MatchEqual(doc map[string]any) bool {
	for key, want := range c.Equal {
		got, ok := doc[key]
		if !ok {
			if want != nil {
				return false
			}
			continue
		}
		if !Equal(got, want) {
			return false
		}
	}
	return true
}

func toNonNegativeInt(value any) (int, error) {
	var n float64
	switch v := value.(type) {
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, err
		}
		n = float64(parsed)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, err
		}
		n = parsed
	default:
		f, ok := asFloat(value)
		if !ok {
			return 0, fmt.Errorf("expected integer, got %T", value)
		}
		n = f
	}
	if n < 0 || n != math.Trunc(n) {
		return 0, fmt.Errorf("expected non-negative integer, got %v", value)
	}
	return int(n), nil
}

// Equal compares two decoded values loosely: numbers compare by value across
// Go numeric types and everything else falls back to its string form.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			return fa == fb
		}
	}
	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ba == bb
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Kind() == reflect.Map || ra.Kind() == reflect.Slice || rb.Kind() == reflect.Map || rb.Kind() == reflect.Slice {
		return reflect.DeepEqual(a, b)
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func asFloat(value any) (float64, bool) {
	if n, ok := value.(json.Number); ok {
		f, err := n.Float64()
		return f, err == nil
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
