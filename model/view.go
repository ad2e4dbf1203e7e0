package model

import (
	"fmt"
	"iter"
)

// View is a typed facade over one raw store.
// Every read and write goes through the accessor table of its Type.
type View struct {
	typ  *Type
	data any
}

// Type returns the view's type descriptor.
func (v *View) Type() *Type { return v.typ }

// Data returns the raw store, creating an empty mapping on first access.
func (v *View) Data() any {
	if v.data == nil {
		v.data = make(map[string]any)
	}
	return v.data
}

// SetData rebinds the view to another raw store.
func (v *View) SetData(data any) { v.data = data }

// Raw implements RawHolder.
func (v *View) Raw() any { return v.Data() }

// Get returns the typed value of a declared field.
// It fails with ErrUnknownField for undeclared names and ErrMissingField
// when the raw store has no value for the field.
func (v *View) Get(name string) (any, error) {
	f, err := v.typ.Field(name)
	if err != nil {
		return nil, err
	}
	return f.get(v.Data(), v.typ)
}

// Set writes the unwrapped value of a declared field into the raw store.
func (v *View) Set(name string, value any) error {
	f, err := v.typ.Field(name)
	if err != nil {
		return err
	}
	return f.set(v.Data(), value)
}

// Delete removes a declared field's key from the raw store.
func (v *View) Delete(name string) error {
	f, err := v.typ.Field(name)
	if err != nil {
		return err
	}
	return f.delete(v.Data(), v.typ)
}

// Has reports whether a declared field currently holds a value.
// A value that fails to wrap is still present.
func (v *View) Has(name string) bool {
	f, err := v.typ.Field(name)
	if err != nil {
		return false
	}
	_, ok := v.lookup(f)
	return ok
}

// Len returns the number of raw keys in the store, which may differ from
// the number of declared fields.
func (v *View) Len() int {
	if m, ok := v.Data().(map[string]any); ok {
		return len(m)
	}
	return 0
}

// Fields returns the declared fields that currently hold a value,
// in declaration order.
func (v *View) Fields() []string {
	names := make([]string, 0, len(v.typ.fields))
	for _, f := range v.typ.fields {
		if v.Has(f.name) {
			names = append(names, f.name)
		}
	}
	return names
}

// All iterates over the present fields and their typed values in declaration order.
// A field whose value fails to wrap yields its raw value; use Get to see the error.
func (v *View) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for _, f := range v.typ.fields {
			value, ok := v.lookup(f)
			if !ok {
				continue
			}
			if !yield(f.name, value) {
				return
			}
		}
	}
}

// FilterCriteria returns the typed values of the filter fields keyed by field name.
// Filter fields without a value are left out.
func (v *View) FilterCriteria() map[string]any {
	criteria := make(map[string]any, len(v.typ.filters))
	for _, name := range v.typ.filters {
		f, err := v.typ.Field(name)
		if err != nil {
			continue
		}
		if value, ok := v.lookup(f); ok {
			criteria[name] = value
		}
	}
	return criteria
}

// lookup returns the typed value of a present field, falling back to the raw
// value when it does not wrap.
func (v *View) lookup(f *Field) (any, bool) {
	store := v.Data()
	m, ok := store.(map[string]any)
	if !ok {
		return nil, false
	}
	raw, ok := m[f.Key()]
	if !ok {
		return nil, false
	}
	value, err := f.get(store, v.typ)
	if err != nil {
		return raw, true
	}
	return value, true
}

// RawFilterCriteria returns the raw values of the filter fields keyed by store key,
// read directly from the store. Keys absent from the store are left out.
func (v *View) RawFilterCriteria() map[string]any {
	criteria := make(map[string]any, len(v.typ.filters))
	m, ok := v.Data().(map[string]any)
	if !ok {
		return criteria
	}
	for _, name := range v.typ.filters {
		key, err := v.typ.StoreKey(name)
		if err != nil {
			continue
		}
		if value, ok := m[key]; ok {
			criteria[key] = value
		}
	}
	return criteria
}

// StoreKey returns the raw store key of a declared field.
func (v *View) StoreKey(name string) (string, error) { return v.typ.StoreKey(name) }

// Equal compares the present fields of two views, or of a view and a mapping
// keyed by field name.
func (v *View) Equal(other any) bool {
	var theirs map[string]any
	switch o := other.(type) {
	case *View:
		if o == nil {
			return false
		}
		theirs = o.items()
	case map[string]any:
		theirs = o
	default:
		return false
	}

	ours := v.items()
	if len(ours) != len(theirs) {
		return false
	}
	for k, a := range ours {
		b, ok := theirs[k]
		if !ok || !valuesEqual(a, b) {
			return false
		}
	}
	return true
}

func (v *View) items() map[string]any {
	out := make(map[string]any)
	for name, value := range v.All() {
		out[name] = value
	}
	return out
}

func (v *View) String() string { return fmt.Sprintf("M:%v", v.Data()) }

// Attr returns the typed value of a declared field asserted to T.
func Attr[T any](v *View, name string) (T, error) {
	var zero T
	value, err := v.Get(name)
	if err != nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s.%s holds %T, not %T", ErrInvalidValue, v.typ, name, value, zero)
	}
	return typed, nil
}
