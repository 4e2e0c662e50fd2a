package graph

import (
	"fmt"
	"time"
)

// Record is the property bag a store returns for one node. Stores return
// dynamic shapes; entity code decodes them into typed structs through the
// accessors below, which reject missing or mistyped properties instead of
// trusting the shape silently.
type Record map[string]any

// String returns a required string property.
func (r Record) String(key string) (string, error) {
	v, ok := r[key]
	if !ok {
		return "", fmt.Errorf("record missing property %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("record property %q: expected string, got %T", key, v)
	}
	return s, nil
}

// NullString returns an optional string property. A missing key or a nil
// value decodes as the empty string.
func (r Record) NullString(key string) (string, error) {
	v, ok := r[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("record property %q: expected string or null, got %T", key, v)
	}
	return s, nil
}

// Bool returns a required boolean property.
func (r Record) Bool(key string) (bool, error) {
	v, ok := r[key]
	if !ok {
		return false, fmt.Errorf("record missing property %q", key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("record property %q: expected bool, got %T", key, v)
	}
	return b, nil
}

// Float returns a required numeric property. Integer-typed values are
// widened; anything else is a shape error.
func (r Record) Float(key string) (float64, error) {
	v, ok := r[key]
	if !ok {
		return 0, fmt.Errorf("record missing property %q", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("record property %q: expected number, got %T", key, v)
	}
}

// Date returns a required calendar-date property stored in DateLayout form.
func (r Record) Date(key string) (time.Time, error) {
	s, err := r.String(key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("record property %q: %w", key, err)
	}
	return t, nil
}
