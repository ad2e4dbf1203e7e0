package model

import (
	"fmt"
	"slices"
)

// IncomingFunc normalizes a payload before it is bound, for example to unpack
// an envelope such as {"data": [...]} into the list it carries.
type IncomingFunc func(raw any) (any, error)

// Member is anything that can be passed to Define or Type.Extend:
// a *Field or a TypeOption.
type Member interface {
	apply(*Type)
}

// TypeOption configures a Type at definition time.
type TypeOption func(*Type)

func (o TypeOption) apply(t *Type) { o(t) }

// Incoming sets the hook Wrap applies to payloads before binding them.
func Incoming(fn IncomingFunc) TypeOption {
	return func(t *Type) {
		t.incoming = fn
	}
}

// Type is the descriptor of a view type: its name, its field accessor table
// in declaration order and the names of its filter fields.
type Type struct {
	name     string
	parent   *Type
	fields   []*Field
	index    map[string]int
	filters  []string
	incoming IncomingFunc
}

// Define declares a new view type.
//
//	var User = model.Define("User",
//		model.NewField("id", model.Filter()),
//		model.NewField("name", model.Key("full_name")),
//		model.ViewListField("friends", nil),
//	)
//
// A field declared twice keeps its first position and the last declaration.
func Define(name string, members ...Member) *Type {
	t := &Type{
		name:  name,
		index: make(map[string]int),
	}
	for _, m := range members {
		m.apply(t)
	}
	t.collectFilters()
	return t
}

// Extend declares a new type that inherits every field and the incoming hook of t.
// Members redeclaring an inherited field replace it in place.
func (t *Type) Extend(name string, members ...Member) *Type {
	child := &Type{
		name:     name,
		parent:   t,
		fields:   slices.Clone(t.fields),
		index:    make(map[string]int, len(t.index)),
		incoming: t.incoming,
	}
	for k, v := range t.index {
		child.index[k] = v
	}
	for _, m := range members {
		m.apply(child)
	}
	child.collectFilters()
	return child
}

func (t *Type) add(f *Field) {
	if i, ok := t.index[f.name]; ok {
		t.fields[i] = f
		return
	}
	t.index[f.name] = len(t.fields)
	t.fields = append(t.fields, f)
}

func (t *Type) collectFilters() {
	t.filters = t.filters[:0]
	for _, f := range t.fields {
		if f.filter {
			t.filters = append(t.filters, f.name)
		}
	}
}

// Name returns the declared type name.
func (t *Type) Name() string { return t.name }

func (t *Type) String() string {
	if t == nil {
		return "<nil type>"
	}
	return t.name
}

// Parent returns the type t was extended from, or nil.
func (t *Type) Parent() *Type { return t.parent }

// Fields returns the declared field names in declaration order.
func (t *Type) Fields() []string {
	names := make([]string, len(t.fields))
	for i, f := range t.fields {
		names[i] = f.name
	}
	return names
}

// FilterFields returns the names of the fields marked with Filter.
func (t *Type) FilterFields() []string { return slices.Clone(t.filters) }

// Has reports whether name is a declared field.
func (t *Type) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Field returns the accessor declared under name.
func (t *Type) Field(name string) (*Field, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no field %q", ErrUnknownField, t, name)
	}
	return t.fields[i], nil
}

// StoreKey returns the raw store key the named field is bound to.
// Transports use it to translate field names into columns, wire keys or attributes.
func (t *Type) StoreKey(name string) (string, error) {
	f, err := t.Field(name)
	if err != nil {
		return "", err
	}
	return f.Key(), nil
}

// New creates a View with an empty store and sets each of values through its field.
func (t *Type) New(values map[string]any) (*View, error) {
	v := &View{typ: t}
	for _, name := range sortedKeys(values) {
		if err := v.Set(name, values[name]); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Wrap applies the incoming hook to raw and binds the result. A list result
// becomes a *Sequence[*View] of this type, anything else a single *View.
func (t *Type) Wrap(raw any) (any, error) {
	if t.incoming != nil {
		transformed, err := t.incoming(raw)
		if err != nil {
			return nil, fmt.Errorf("transforming incoming data for %s : %w", t, err)
		}
		raw = transformed
	}
	return t.wrapRaw(raw), nil
}

// Bind is Wrap for payloads that must hold a single mapping.
func (t *Type) Bind(raw any) (*View, error) {
	wrapped, err := t.Wrap(raw)
	if err != nil {
		return nil, err
	}
	v, ok := wrapped.(*View)
	if !ok {
		return nil, fmt.Errorf("%w: binding %s to a list payload", ErrInvalidStoreShape, t)
	}
	return v, nil
}

// BindList is Wrap for payloads that must hold a list.
func (t *Type) BindList(raw any) (*Sequence[*View], error) {
	wrapped, err := t.Wrap(raw)
	if err != nil {
		return nil, err
	}
	seq, ok := wrapped.(*Sequence[*View])
	if !ok {
		return nil, fmt.Errorf("%w: binding a list of %s to a single payload", ErrInvalidStoreShape, t)
	}
	return seq, nil
}

// Wrapper returns the element wrapper binding raw elements to views of t.
func (t *Type) Wrapper() Wrapper[*View] { return t.bind }

func (t *Type) wrapRaw(raw any) any {
	if data, ok := asSlice(raw); ok {
		return NewSequence(data, t.bind)
	}
	return t.bind(raw)
}

func (t *Type) bind(raw any) *View {
	return &View{typ: t, data: raw}
}
