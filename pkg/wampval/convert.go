package wampval

import (
	"fmt"
	"math"
)

// ToNative converts a Value into the nearest plain Go representation
// (nil, bool, int64, float64, string, []any, map[string]any) suitable for
// handing to a generic encoder such as encoding/json or a MessagePack
// library.
func ToNative(v Value) any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindReal:
		return v.r
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = ToNative(e)
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			out[k] = ToNative(e)
		}
		return out
	default:
		return nil
	}
}

// FromNative converts a decoded Go value (as produced by encoding/json once
// json.Number values are resolved to int64/float64, or by a MessagePack
// decoder) back into a Value. Integers that
// do not fit in a signed 64-bit range fail with ErrNumericRange.
func FromNative(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case int64:
		return Int(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case uint:
		return fromUint64(uint64(t))
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint64:
		return fromUint64(t)
	case float32:
		return Real(float64(t)), nil
	case float64:
		return Real(t), nil
	case []any:
		out := make([]Value, len(t))
		for i, e := range t {
			cv, err := FromNative(e)
			if err != nil {
				return Null, err
			}
			out[i] = cv
		}
		return ArraySlice(out), nil
	case map[string]any:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			cv, err := FromNative(e)
			if err != nil {
				return Null, err
			}
			out[k] = cv
		}
		return Object(out), nil
	default:
		return Null, fmt.Errorf("wampval: unsupported native type %T", x)
	}
}

func fromUint64(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return Null, ErrNumericRange
	}
	return Int(int64(u)), nil
}
