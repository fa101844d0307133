package domain

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// Entity is a persisted domain object addressed by property name. Relation
// properties hold nested Entity values (many-to-one) or []Entity
// (one-to-many) after population.
type Entity map[string]any

// Get returns the value stored at property and whether it is present.
func (e Entity) Get(property string) (any, bool) {
	if e == nil {
		return nil, false
	}
	v, ok := e[property]
	if ok && v == nil {
		return nil, false
	}
	return v, ok
}

// Clone returns a deep copy of the entity. Nested entities, maps and slices
// are copied; scalar values are shared.
func (e Entity) Clone() Entity {
	if e == nil {
		return nil
	}
	out := make(Entity, len(e))
	for k, v := range e {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Entity:
		return t.Clone()
	case map[string]any:
		return map[string]any(Entity(t).Clone())
	case []Entity:
		out := make([]Entity, len(t))
		for i, item := range t {
			out[i] = item.Clone()
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []byte:
		return append([]byte(nil), t...)
	default:
		return v
	}
}

// AsEntity converts a nested value into an Entity. Both Entity and
// map[string]any are accepted so decoded JSON payloads behave like entities.
func AsEntity(v any) (Entity, bool) {
	switch t := v.(type) {
	case Entity:
		return t, t != nil
	case map[string]any:
		return Entity(t), t != nil
	default:
		return nil, false
	}
}

// ValidID reports whether v can act as a primary key: a non-empty string or
// any number.
func ValidID(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	default:
		_, ok := numeric(v)
		return ok
	}
}

// ValuesEqual compares two property values strictly: numbers compare by
// exact numeric value regardless of their Go type (integers never pass
// through float64), strings never equal numbers, and composite values
// compare structurally.
func ValuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	na, aNum := exactNumber(a)
	nb, bNum := exactNumber(b)
	if aNum || bNum {
		return aNum && bNum && na.equal(nb)
	}
	switch ta := a.(type) {
	case string:
		tb, ok := b.(string)
		return ok && ta == tb
	case bool:
		tb, ok := b.(bool)
		return ok && ta == tb
	case time.Time:
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

// number holds a value in the widest representation that keeps it exact.
type number struct {
	kind byte // 'i' fits int64, 'u' above MaxInt64, 'f' anything else
	i    int64
	u    uint64
	f    float64
}

func exactNumber(v any) (number, bool) {
	switch t := v.(type) {
	case int:
		return number{kind: 'i', i: int64(t)}, true
	case int8:
		return number{kind: 'i', i: int64(t)}, true
	case int16:
		return number{kind: 'i', i: int64(t)}, true
	case int32:
		return number{kind: 'i', i: int64(t)}, true
	case int64:
		return number{kind: 'i', i: t}, true
	case uint:
		return fromUint(uint64(t)), true
	case uint8:
		return fromUint(uint64(t)), true
	case uint16:
		return fromUint(uint64(t)), true
	case uint32:
		return fromUint(uint64(t)), true
	case uint64:
		return fromUint(t), true
	case float32:
		return fromFloat(float64(t)), true
	case float64:
		return fromFloat(t), true
	default:
		return number{}, false
	}
}

func fromUint(u uint64) number {
	if u <= math.MaxInt64 {
		return number{kind: 'i', i: int64(u)}
	}
	return number{kind: 'u', u: u}
}

func fromFloat(f float64) number {
	if f != math.Trunc(f) {
		return number{kind: 'f', f: f}
	}
	switch {
	case f >= -(1<<63) && f < 1<<63:
		return number{kind: 'i', i: int64(f)}
	case f >= 1<<63 && f < 1<<64:
		return number{kind: 'u', u: uint64(f)}
	}
	return number{kind: 'f', f: f}
}

func (n number) equal(o number) bool {
	if n.kind != o.kind {
		return false
	}
	switch n.kind {
	case 'i':
		return n.i == o.i
	case 'u':
		return n.u == o.u
	default:
		return n.f == o.f
	}
}

func (n number) key() string {
	switch n.kind {
	case 'i':
		return strconv.FormatInt(n.i, 10)
	case 'u':
		return strconv.FormatUint(n.u, 10)
	default:
		return strconv.FormatFloat(n.f, 'g', -1, 64)
	}
}

func numeric(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

// FormatID renders an id for error messages.
func FormatID(id any) string {
	if s, ok := id.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", id)
}

// IDKey normalizes an id into a map key. Numerically equal numbers share a
// key while the string "1" and the number 1 stay distinct.
func IDKey(id any) string {
	if s, ok := id.(string); ok {
		return "s:" + s
	}
	if n, ok := exactNumber(id); ok {
		return "n:" + n.key()
	}
	return fmt.Sprintf("%T:%v", id, id)
}

// Number reports the numeric value of v for any Go number type.
func Number(v any) (float64, bool) {
	return numeric(v)
}
