package overlay

import (
	"reflect"
	"time"
)

// equalValues implements the reconciliation equality used to decide whether
// the persisted base already reflects an overlay value.
//
// Rules, in order:
//   - nil equals only nil. A cleared field (nil) and an untouched field
//     (key absent from the overlay, never passed here) are distinct states;
//     this is deliberate and the rest of the system depends on it.
//   - time.Time compares with Equal, ignoring monotonic clock readings.
//   - strings and numbers compare by value across named types and kinds, so
//     a status that round-tripped through JSON still matches its typed form.
//   - slices and arrays compare element-wise in order; reordering without
//     content change is NOT equal, order is semantically meaningful.
//   - maps compare by key-set equality plus recursive equality of values.
//   - pointers compare by pointee; structs field-wise.
func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return equalReflect(reflect.ValueOf(a), reflect.ValueOf(b))
}

var timeType = reflect.TypeOf(time.Time{})

func equalReflect(a, b reflect.Value) bool {
	a = indirect(a)
	b = indirect(b)
	if !a.IsValid() || !b.IsValid() {
		return a.IsValid() == b.IsValid()
	}

	if a.Type() == timeType && b.Type() == timeType {
		ta := a.Interface().(time.Time)
		tb := b.Interface().(time.Time)
		return ta.Equal(tb)
	}

	ka, kb := a.Kind(), b.Kind()
	switch {
	case ka == reflect.String && kb == reflect.String:
		return a.String() == b.String()
	case isNumeric(ka) && isNumeric(kb):
		return numericEqual(a, b)
	case ka == reflect.Bool && kb == reflect.Bool:
		return a.Bool() == b.Bool()
	}

	if ka != kb {
		return false
	}

	switch ka {
	case reflect.Slice, reflect.Array:
		if ka == reflect.Slice && (a.IsNil() != b.IsNil()) {
			return false
		}
		if a.Len() != b.Len() {
			return false
		}
		for i := 0; i < a.Len(); i++ {
			if !equalReflect(a.Index(i), b.Index(i)) {
				return false
			}
		}
		return true
	case reflect.Map:
		if a.IsNil() != b.IsNil() || a.Len() != b.Len() {
			return false
		}
		for _, key := range a.MapKeys() {
			bv := b.MapIndex(convertKey(key, b.Type().Key()))
			if !bv.IsValid() {
				return false
			}
			if !equalReflect(a.MapIndex(key), bv) {
				return false
			}
		}
		return true
	case reflect.Struct:
		if a.Type() != b.Type() {
			return false
		}
		for i := 0; i < a.NumField(); i++ {
			if !equalReflect(a.Field(i), b.Field(i)) {
				return false
			}
		}
		return true
	default:
		if a.Type() != b.Type() {
			return false
		}
		return reflect.DeepEqual(a.Interface(), b.Interface())
	}
}

// indirect unwraps interfaces and pointers down to the concrete value. A nil
// pointer or interface unwraps to the invalid Value, which equals only
// another invalid Value.
func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func numericEqual(a, b reflect.Value) bool {
	return asFloat(a) == asFloat(b)
}

func asFloat(v reflect.Value) float64 {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint())
	default:
		return v.Float()
	}
}

func convertKey(key reflect.Value, want reflect.Type) reflect.Value {
	if key.Type() == want {
		return key
	}
	if key.Type().ConvertibleTo(want) {
		return key.Convert(want)
	}
	return key
}
