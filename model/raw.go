package model

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"time"
)

// asSlice returns raw as a []any. Other slice types are copied element by
// element, which detaches them from the caller's slice; []byte is not a list.
func asSlice(raw any) ([]any, bool) {
	switch v := raw.(type) {
	case nil:
		return nil, false
	case []any:
		return v, true
	case []byte:
		return nil, false
	case []map[string]any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out, true
	}

	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

func isNumber(raw any) bool {
	if _, ok := raw.(string); ok {
		return false
	}
	_, ok := toFloat(raw)
	return ok
}

// valuesEqual is the equality used by filters and sequence comparison.
// Numbers compare by value across Go types, so a criterion of 1 matches a
// decoded JSON 1.0 or a SQLite int64.
func valuesEqual(a, b any) bool {
	if y, ok := b.(*View); ok {
		if _, isView := a.(*View); !isView {
			return y.Equal(a)
		}
	}

	switch x := a.(type) {
	case *View:
		return x.Equal(b)
	case wrappedElements:
		if eq, ok := x.(interface{ Equal(any) bool }); ok {
			return eq.Equal(b)
		}
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	}

	if isNumber(a) && isNumber(b) {
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

// cloneRaw deep copies mappings and lists so a derived store shares nothing
// with its source.
func cloneRaw(raw any) any {
	switch v := raw.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = cloneRaw(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneRaw(item)
		}
		return out
	}
	return raw
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// attribute reads a named attribute of a sequence element: a view field,
// or a key of a plain mapping.
func attribute(elem any, name string) (any, error) {
	switch e := elem.(type) {
	case interface{ Get(string) (any, error) }:
		return e.Get(name)
	case map[string]any:
		value, ok := e[name]
		if !ok {
			return nil, fmt.Errorf("%w: no key %q", ErrMissingField, name)
		}
		return value, nil
	}
	return nil, fmt.Errorf("%w: %T has no attributes", ErrInvalidStoreShape, elem)
}

// matches compares criteria against elem. A missing or unreadable attribute
// reads as nil, so it only matches a nil criterion.
func matches(elem any, criteria map[string]any) bool {
	for name, want := range criteria {
		got, err := attribute(elem, name)
		if err != nil {
			got = nil
		}
		if !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// Matches reports whether every criterion equals the attribute of elem with
// the same name, the test Sequence.Filter applies to each element.
func Matches(elem any, criteria map[string]any) bool { return matches(elem, criteria) }
