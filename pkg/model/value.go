package model

import (
	"bytes"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Kind is the type class of a plain resource value. All Go numeric types
// share KindNumber.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindNumber
	KindString
	KindBool
	KindBytes
	KindMap
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindBytes:
		return "bytes"
	case KindMap:
		return "map"
	default:
		return "invalid"
	}
}

// KindOf returns the kind of v.
func KindOf(v any) Kind {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return KindNumber
	case string:
		return KindString
	case bool:
		return KindBool
	case []byte:
		return KindBytes
	case map[string]any:
		return KindMap
	default:
		return KindInvalid
	}
}

// IsNumber returns true if v is any Go numeric type.
func IsNumber(v any) bool {
	return KindOf(v) == KindNumber
}

// ToFloat64 converts a numeric value to float64.
func ToFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// Equal compares two values. Numbers compare by value regardless of their
// Go type; maps compare leaf by leaf.
func Equal(a, b any) bool {
	if fa, ok := ToFloat64(a); ok {
		fb, ok := ToFloat64(b)
		return ok && fa == fb
	}
	switch av := a.(type) {
	case []byte:
		bv, ok := b.([]byte)
		return ok && bytes.Equal(av, bv)
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, x := range av {
			y, ok := bv[k]
			if !ok || !Equal(x, y) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// Clone returns a deep copy of maps and byte slices.
func Clone(v any) any {
	switch x := v.(type) {
	case []byte:
		return bytes.Clone(x)
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[k] = Clone(e)
		}
		return m
	default:
		return v
	}
}

// normalizeValue validates a plain value and converts integer-keyed maps
// to string keys.
func normalizeValue(v any) (any, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil value", ErrTypeMismatch)
	}
	if reflect.ValueOf(v).Kind() == reflect.Func {
		return nil, fmt.Errorf("%w: bare function is not a resource, use *Active", ErrTypeMismatch)
	}
	switch x := v.(type) {
	case map[int]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			n, err := normalizeValue(e)
			if err != nil {
				return nil, err
			}
			m[strconv.Itoa(k)] = n
		}
		return m, nil
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			n, err := normalizeValue(e)
			if err != nil {
				return nil, err
			}
			m[k] = n
		}
		return m, nil
	}
	if KindOf(v) == KindInvalid {
		return nil, fmt.Errorf("%w: unsupported value type %T", ErrTypeMismatch, v)
	}
	return v, nil
}

// ParseScalar converts text to a value of kind k. KindInvalid keeps the
// text unchanged.
func ParseScalar(s string, k Kind) (any, error) {
	switch k {
	case KindNumber:
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", ErrTypeMismatch, s)
		}
		return f, nil
	case KindBool:
		switch strings.ToLower(s) {
		case "1", "true":
			return true, nil
		case "0", "false":
			return false, nil
		}
		return nil, fmt.Errorf("%w: %q is not a boolean", ErrTypeMismatch, s)
	case KindBytes:
		return []byte(s), nil
	case KindMap:
		return nil, fmt.Errorf("%w: text cannot encode a composite value", ErrTypeMismatch)
	default:
		return s, nil
	}
}
