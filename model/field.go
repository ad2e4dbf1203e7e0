package model

import (
	"fmt"
)

// WrapFunc turns a raw store value into the typed value returned on read.
// The owner is the view type the field is being read through, which lets
// nested fields default to binding the owner type.
type WrapFunc func(owner *Type, raw any) (any, error)

// UnwrapFunc turns a typed value into the raw value written to the store.
type UnwrapFunc func(value any) (any, error)

// Field is a named accessor bound to one key of a raw store.
// Fields are declared once per Type and shared by every View of that type.
type Field struct {
	name   string
	key    string
	filter bool
	wrap   WrapFunc
	unwrap UnwrapFunc
}

// FieldOption configures a Field at declaration time.
type FieldOption func(*Field)

// Key binds the field to a store key that differs from its declared name.
func Key(key string) FieldOption {
	return func(f *Field) {
		f.key = key
	}
}

// Filter marks the field as part of the view's natural identity.
// Filter fields are what transports use to find "the same" record remotely.
func Filter() FieldOption {
	return func(f *Field) {
		f.filter = true
	}
}

// WithWrap sets the transform applied to raw values on read. It is not
// called for nil values.
func WithWrap(fn WrapFunc) FieldOption {
	return func(f *Field) {
		f.wrap = fn
	}
}

// WithUnwrap sets the transform applied to values before they are written
// to the store. It is not called for nil values.
func WithUnwrap(fn UnwrapFunc) FieldOption {
	return func(f *Field) {
		f.unwrap = fn
	}
}

// NewField declares a plain field that stores values as they are given.
func NewField(name string, opts ...FieldOption) *Field {
	return newField(name, nil, nil, opts)
}

func newField(name string, wrap WrapFunc, unwrap UnwrapFunc, opts []FieldOption) *Field {
	f := &Field{
		name:   name,
		wrap:   wrap,
		unwrap: unwrap,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name returns the declared attribute name.
func (f *Field) Name() string { return f.name }

// Key returns the raw store key, which defaults to the declared name.
func (f *Field) Key() string {
	if f.key == "" {
		return f.name
	}
	return f.key
}

// IsFilter reports whether the field is part of the natural identity.
func (f *Field) IsFilter() bool { return f.filter }

// apply registers the field on a type under construction.
func (f *Field) apply(t *Type) { t.add(f) }

func (f *Field) get(store any, owner *Type) (any, error) {
	m, ok := store.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: reading %q from %T, want map[string]any", ErrInvalidStoreShape, f.name, store)
	}

	raw, ok := m[f.Key()]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no value for %q", ErrMissingField, owner, f.name)
	}

	value, err := f.wrapValue(owner, raw)
	if err != nil {
		return nil, err
	}

	// list fields share this store slot with every other read of it
	if seq, ok := value.(sourceAttacher); ok {
		key := f.Key()
		load := func() ([]any, bool) {
			raw, ok := m[key]
			if !ok {
				return nil, false
			}
			if data, ok := raw.([]any); ok {
				return data, true
			}
			data, ok := asSlice(raw)
			if ok {
				m[key] = data
			}
			return data, ok
		}
		seq.attach(load, func(data []any) { m[key] = data })
	}
	return value, nil
}

func (f *Field) set(store any, value any) error {
	m, ok := store.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: writing %q into %T, want map[string]any", ErrInvalidStoreShape, f.name, store)
	}

	raw, err := f.unwrapValue(value)
	if err != nil {
		return err
	}
	m[f.Key()] = raw
	return nil
}

func (f *Field) delete(store any, owner *Type) error {
	m, ok := store.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: deleting %q from %T, want map[string]any", ErrInvalidStoreShape, f.name, store)
	}
	if _, ok := m[f.Key()]; !ok {
		return fmt.Errorf("%w: %s has no value for %q", ErrMissingField, owner, f.name)
	}
	delete(m, f.Key())
	return nil
}

// wrapValue skips the transform for nil so that explicit nulls round trip.
func (f *Field) wrapValue(owner *Type, raw any) (any, error) {
	if raw == nil || f.wrap == nil {
		return raw, nil
	}
	value, err := f.wrap(owner, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: wrapping %q : %w", ErrInvalidValue, f.name, err)
	}
	return value, nil
}

func (f *Field) unwrapValue(value any) (any, error) {
	if value == nil || f.unwrap == nil {
		return value, nil
	}
	raw, err := f.unwrap(value)
	if err != nil {
		return nil, fmt.Errorf("%w: unwrapping %q : %w", ErrInvalidValue, f.name, err)
	}
	return raw, nil
}
