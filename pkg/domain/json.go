package domain

import "encoding/json"

// ExactNumbers rewrites values decoded with json.Decoder.UseNumber: integer
// literals in int64 range become int64, every other number float64. Maps,
// entities and slices are rewritten in place.
func ExactNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		f, _ := t.Float64()
		return f
	case Entity:
		for k, item := range t {
			t[k] = ExactNumbers(item)
		}
		return t
	case map[string]any:
		for k, item := range t {
			t[k] = ExactNumbers(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = ExactNumbers(item)
		}
		return t
	default:
		return v
	}
}
