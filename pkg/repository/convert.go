package repository

import (
	"datamapper/pkg/domain"
	"fmt"
	"math"
	"strconv"
)

// Setter helpers. Backends may hand values back in a different Go type than
// they were stored with (a SQL backend decodes every number as float64), so
// the helpers accept any compatible representation.

// AsString converts strings and numbers into a string.
func AsString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	}
	if n, ok := asInt(v); ok {
		return strconv.FormatInt(n, 10), nil
	}
	if f, ok := domain.Number(v); ok {
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	}
	return "", fmt.Errorf("%w: %T is not a string", domain.ErrMalformedInput, v)
}

// AsInt64 converts integral numbers and numeric strings into an int64.
func AsInt64(v any) (int64, error) {
	if n, ok := asInt(v); ok {
		return n, nil
	}
	if f, ok := domain.Number(v); ok {
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("%w: %v is not integral", domain.ErrMalformedInput, v)
		}
		return int64(f), nil
	}
	if s, ok := v.(string); ok {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", domain.ErrMalformedInput, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: %T is not an integer", domain.ErrMalformedInput, v)
}

// AsFloat64 converts any number into a float64.
func AsFloat64(v any) (float64, error) {
	if f, ok := domain.Number(v); ok {
		return f, nil
	}
	return 0, fmt.Errorf("%w: %T is not a number", domain.ErrMalformedInput, v)
}

// AsBool accepts booleans only.
func AsBool(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %T is not a bool", domain.ErrMalformedInput, v)
	}
	return b, nil
}

func asInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	default:
		return 0, false
	}
}
