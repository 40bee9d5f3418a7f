package document

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Normalize converts an arbitrary Go value into one of the document value
// variants. Maps become documents and slices become []any.
func Normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string, bool, int64, float64, time.Time, *Document:
		return t
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		if t > math.MaxInt64 {
			return float64(t)
		}
		return int64(t)
	case float32:
		return float64(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case *time.Time:
		if t == nil {
			return nil
		}
		return *t
	case map[string]any:
		return FromMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Normalize(e)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	case []*Document:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return fmt.Sprint(v)
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return FromMap(m)
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return Normalize(rv.Elem().Interface())
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	}
	return fmt.Sprint(v)
}

// String coerces a value to its string form. Documents coerce to their _id.
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case *Document:
		return t.ID()
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(Normalize(v))
}

// Float returns the numeric value of v.
func Float(v any) (float64, bool) {
	switch t := Normalize(v).(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

// Equal compares two values after normalization. Numbers compare by value,
// times by instant, documents and lists element-wise.
func Equal(a, b any) bool {
	a, b = Normalize(a), Normalize(b)
	if af, ok := Float(a); ok {
		bf, ok := Float(b)
		return ok && af == bf
	}
	switch at := a.(type) {
	case nil:
		return b == nil
	case string:
		switch bt := b.(type) {
		case string:
			return at == bt
		case time.Time:
			return at == String(bt)
		}
		return false
	case bool:
		bt, ok := b.(bool)
		return ok && at == bt
	case time.Time:
		switch bt := b.(type) {
		case time.Time:
			return at.Equal(bt)
		case string:
			return String(at) == bt
		}
		return false
	case *Document:
		bt, ok := b.(*Document)
		if !ok || at.Len() != bt.Len() {
			return false
		}
		for _, k := range at.keys {
			bv, present := bt.Get(k)
			if !present || !Equal(at.values[k], bv) {
				return false
			}
		}
		return true
	case []any:
		bt, ok := b.([]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !Equal(at[i], bt[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Compare orders two values of the same family. The second result is false
// when the values are not comparable.
func Compare(a, b any) (int, bool) {
	a, b = Normalize(a), Normalize(b)
	if af, ok := Float(a); ok {
		bf, ok := Float(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	switch at := a.(type) {
	case string:
		if bt, ok := b.(time.Time); ok {
			return strings.Compare(at, String(bt)), true
		}
		bt, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(at, bt), true
	case time.Time:
		var bt time.Time
		switch other := b.(type) {
		case time.Time:
			bt = other
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, other)
			if err != nil {
				return 0, false
			}
			bt = parsed
		default:
			return 0, false
		}
		return at.Compare(bt), true
	case bool:
		bt, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case at == bt:
			return 0, true
		case !at:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}
