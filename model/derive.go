package model

import (
	"fmt"
	"slices"
)

type deriveOptions struct {
	keep  []string
	drop  []string
	extra []extraField
}

type extraField struct {
	name  string
	value any
}

// DeriveOption configures View.Derive.
type DeriveOption func(*deriveOptions)

// Keep copies exactly the named fields. When given, Drop is ignored entirely.
func Keep(names ...string) DeriveOption {
	return func(o *deriveOptions) {
		o.keep = append(o.keep, names...)
	}
}

// Drop copies every declared field except the named ones.
func Drop(names ...string) DeriveOption {
	return func(o *deriveOptions) {
		o.drop = append(o.drop, names...)
	}
}

// With declares an extra plain field on the derived type, seeded with value.
func With(name string, value any) DeriveOption {
	return func(o *deriveOptions) {
		o.extra = append(o.extra, extraField{name: name, value: value})
	}
}

// Derive builds a view of a new type "Derived<Type>" that extends the view's
// type with the extra fields, and copies the current values of the effective
// fields into a fresh store.
//
// The effective fields are the declared fields minus Drop, replaced verbatim by
// Keep when Keep names any field. Copy failures are returned: keeping a field
// the view does not hold is an error, not a skip. The derived store shares no
// mappings or lists with the source.
func (v *View) Derive(opts ...DeriveOption) (*View, error) {
	var o deriveOptions
	for _, opt := range opts {
		opt(&o)
	}

	fields := v.typ.Fields()
	if len(o.drop) > 0 {
		fields = slices.DeleteFunc(fields, func(name string) bool {
			return slices.Contains(o.drop, name)
		})
	}
	if len(o.keep) > 0 {
		fields = o.keep
	}

	members := make([]Member, 0, len(o.extra))
	seed := make(map[string]any, len(o.extra))
	for _, e := range o.extra {
		members = append(members, NewField(e.name))
		seed[e.name] = cloneRaw(Unwrap(e.value))
	}
	derived := v.typ.Extend("Derived"+v.typ.name, members...).bind(seed)

	for _, name := range fields {
		value, err := v.Get(name)
		if err != nil {
			return nil, fmt.Errorf("deriving %q from %s : %w", name, v.typ, err)
		}
		if err := derived.Set(name, value); err != nil {
			return nil, fmt.Errorf("deriving %q from %s : %w", name, v.typ, err)
		}
		key, _ := derived.typ.StoreKey(name)
		seed[key] = cloneRaw(seed[key])
	}
	return derived, nil
}
