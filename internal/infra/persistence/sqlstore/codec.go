package sqlstore

import (
	"bytes"
	"datamapper/pkg/domain"
	"encoding/json"
	"fmt"
)

// encodeValue renders a property value for a TEXT column. Identical values
// always encode identically so equality filters and joins compare text.
func encodeValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: encode %T: %w", domain.ErrMalformedInput, v, err)
	}
	return string(raw), nil
}

// encodeColumn encodes the value of c. Reference columns keep only the join
// value of the embedded entity.
func encodeColumn(c column, v any) (any, error) {
	if c.ref != nil && v != nil {
		if embedded, ok := domain.AsEntity(v); ok {
			v, _ = embedded.Get(c.ref.JoinProperty)
		}
	}
	return encodeValue(v)
}

func decodeValue(raw any) (any, bool, error) {
	var text []byte
	switch t := raw.(type) {
	case nil:
		return nil, false, nil
	case []byte:
		text = t
	case string:
		text = []byte(t)
	default:
		return t, true, nil
	}
	dec := json.NewDecoder(bytes.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false, fmt.Errorf("decode column value: %w", err)
	}
	v = domain.ExactNumbers(v)
	return v, v != nil, nil
}

// entityArgs returns the column names and encoded values of e in schema order.
func entityArgs(sc tableSchema, e domain.Entity) ([]string, []any, error) {
	names := make([]string, 0, len(sc.columns))
	args := make([]any, 0, len(sc.columns))
	for _, c := range sc.columns {
		v, _ := e.Get(c.property)
		enc, err := encodeColumn(c, v)
		if err != nil {
			return nil, nil, fmt.Errorf("%s.%s: %w", sc.md.TableName, c.property, err)
		}
		names = append(names, c.name)
		args = append(args, enc)
	}
	return names, args, nil
}

// rowEntity rebuilds an entity from a scanned row. Reference columns become
// placeholders carrying only the join property.
func rowEntity(sc tableSchema, row map[string]any) (domain.Entity, error) {
	out := make(domain.Entity, len(sc.columns))
	for _, c := range sc.columns {
		v, ok, err := decodeValue(row[c.name])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", sc.md.TableName, c.name, err)
		}
		if !ok {
			continue
		}
		if c.ref != nil {
			out[c.property] = domain.Entity{c.ref.JoinProperty: v}
			continue
		}
		out[c.property] = v
	}
	return out, nil
}
