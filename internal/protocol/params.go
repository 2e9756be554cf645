package protocol

import (
	"encoding/json"
	"fmt"
	"math"
)

// Params holds the decoded "params" object of a request. Missing keys and
// JSON null both resolve to the caller's default.
type Params map[string]any

// Has reports whether key is present with a non-null value.
func (p Params) Has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

// Int returns key as an integer, or def when absent.
func (p Params) Int(key string, def int) (int, error) {
	if !p.Has(key) {
		return def, nil
	}
	switch v := p[key].(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i), nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, invalidParam(key, "integer", v)
		}
		return floatToInt(key, f)
	case float64:
		return floatToInt(key, v)
	case float32:
		return floatToInt(key, float64(v))
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case int32:
		return int(v), nil
	default:
		return 0, invalidParam(key, "integer", v)
	}
}

// OptionalInt returns nil when key is absent, otherwise the integer value.
func (p Params) OptionalInt(key string) (*int, error) {
	if !p.Has(key) {
		return nil, nil
	}
	v, err := p.Int(key, 0)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Float returns key as a float, or def when absent.
func (p Params) Float(key string, def float64) (float64, error) {
	if !p.Has(key) {
		return def, nil
	}
	switch v := p[key].(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, invalidParam(key, "number", v)
		}
		return f, nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int32:
		return float64(v), nil
	default:
		return 0, invalidParam(key, "number", v)
	}
}

// String returns key as a string, or def when absent.
func (p Params) String(key, def string) (string, error) {
	if !p.Has(key) {
		return def, nil
	}
	s, ok := p[key].(string)
	if !ok {
		return "", invalidParam(key, "string", p[key])
	}
	return s, nil
}

// Bool returns key as a boolean, or def when absent.
func (p Params) Bool(key string, def bool) (bool, error) {
	if !p.Has(key) {
		return def, nil
	}
	b, ok := p[key].(bool)
	if !ok {
		return false, invalidParam(key, "boolean", p[key])
	}
	return b, nil
}

// List returns key as a JSON array, or nil when absent.
func (p Params) List(key string) ([]any, error) {
	if !p.Has(key) {
		return nil, nil
	}
	l, ok := p[key].([]any)
	if !ok {
		return nil, invalidParam(key, "array", p[key])
	}
	return l, nil
}

// Object returns key as a nested Params, or nil when absent.
func (p Params) Object(key string) (Params, error) {
	if !p.Has(key) {
		return nil, nil
	}
	switch v := p[key].(type) {
	case map[string]any:
		return Params(v), nil
	case Params:
		return v, nil
	default:
		return nil, invalidParam(key, "object", v)
	}
}

func floatToInt(key string, f float64) (int, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, invalidParam(key, "integer", f)
	}
	return int(f), nil
}

func invalidParam(key, want string, got any) error {
	return Validation(fmt.Sprintf("parameter %q must be %s, got %T", key, want, got))
}
