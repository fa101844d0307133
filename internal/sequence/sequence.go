// Package sequence hands out primary keys from a single process-wide
// counter shared by every table and every persister.
package sequence

import (
	"datamapper/pkg/domain"
	"fmt"
	"math"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// Mode selects how generated ids are represented.
type Mode string

const (
	// ModeString renders the counter as a decimal string.
	ModeString Mode = "string"
	// ModeNumber keeps the counter value as an int64.
	ModeNumber Mode = "number"
	// ModeUUID ignores the counter and returns a random UUID string.
	ModeUUID Mode = "uuid"
)

var counter atomic.Int64

// Next returns the next counter value. The first value is 1.
func Next() int64 {
	return counter.Add(1)
}

// NewID returns a fresh id in the given representation.
func NewID(mode Mode) any {
	switch mode {
	case ModeNumber:
		return Next()
	case ModeUUID:
		return uuid.NewString()
	default:
		return strconv.FormatInt(Next(), 10)
	}
}

// ParseMode converts a configuration value into a Mode. Empty selects
// ModeString.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeString:
		return ModeString, nil
	case ModeNumber, ModeUUID:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: unknown id mode %q", domain.ErrMalformedInput, s)
	}
}

// Observe advances the counter to at least the value of id so later ids
// never collide with it. Integers and decimal strings are considered; other
// ids are ignored.
func Observe(id any) {
	n, ok := counterValue(id)
	if !ok {
		return
	}
	for {
		cur := counter.Load()
		if cur >= n || counter.CompareAndSwap(cur, n) {
			return
		}
	}
}

func counterValue(id any) (int64, bool) {
	switch t := id.(type) {
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint32:
		return int64(t), true
	case uint64:
		if t > math.MaxInt64 {
			return 0, false
		}
		return int64(t), true
	case float64:
		if t != math.Trunc(t) || t < 0 || t >= 1<<63 {
			return 0, false
		}
		return int64(t), true
	default:
		return 0, false
	}
}

// ResetForTests rewinds the counter. Only test harnesses should call it.
func ResetForTests() {
	counter.Store(0)
}
