package model

import (
	"fmt"
	"iter"
	"reflect"
)

// Wrapper turns one raw element into the typed value a Sequence hands out.
type Wrapper[T any] func(raw any) T

// RawHolder is implemented by values that expose their raw store.
// Writes into stores and sequences unwrap RawHolders to their raw data.
type RawHolder interface {
	Raw() any
}

// Unwrap returns the raw store of a RawHolder, or value itself.
// A nil pointer holder unwraps to nil.
func Unwrap(value any) any {
	h, ok := value.(RawHolder)
	if !ok {
		return value
	}
	if rv := reflect.ValueOf(h); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil
	}
	return h.Raw()
}

// RawElement is the identity Wrapper for sequences of plain values.
func RawElement(raw any) any { return raw }

type sourceAttacher interface {
	attach(load func() ([]any, bool), store func([]any))
}

// Sequence is an ordered view over a raw []any. Elements are wrapped on every
// access; the sequence never keeps typed copies.
type Sequence[T any] struct {
	data []any
	wrap Wrapper[T]
	// load and store bind the sequence to the store slot it was read from:
	// every operation starts from the slot's current slice and length
	// changes are written back to it.
	load  func() ([]any, bool)
	store func([]any)
}

// NewSequence binds data to wrap. A nil data starts an empty sequence.
func NewSequence[T any](data []any, wrap Wrapper[T]) *Sequence[T] {
	if data == nil {
		data = []any{}
	}
	return &Sequence[T]{
		data: data,
		wrap: wrap,
	}
}

func (s *Sequence[T]) attach(load func() ([]any, bool), store func([]any)) {
	s.load = load
	s.store = store
}

// refresh picks up the slot's current slice. A slot that was deleted or
// replaced by a non-list detaches the sequence.
func (s *Sequence[T]) refresh() {
	if s.load == nil {
		return
	}
	data, ok := s.load()
	if !ok {
		s.load, s.store = nil, nil
		return
	}
	s.data = data
}

func (s *Sequence[T]) sync() {
	if s.store != nil {
		s.store(s.data)
	}
}

// Data returns the backing raw slice.
func (s *Sequence[T]) Data() []any {
	s.refresh()
	return s.data
}

// Raw implements RawHolder.
func (s *Sequence[T]) Raw() any { return s.Data() }

func (s *Sequence[T]) Len() int { return len(s.Data()) }

// Empty reports whether the sequence has no elements.
func (s *Sequence[T]) Empty() bool { return s.Len() == 0 }

// At returns the wrapped element at i. Negative indexes count from the end.
func (s *Sequence[T]) At(i int) (T, error) {
	var zero T
	s.refresh()
	idx, err := s.index(i)
	if err != nil {
		return zero, err
	}
	return s.wrap(s.data[idx]), nil
}

// Set stores the unwrapped value at i.
func (s *Sequence[T]) Set(i int, value any) error {
	s.refresh()
	idx, err := s.index(i)
	if err != nil {
		return err
	}
	s.data[idx] = Unwrap(value)
	return nil
}

func (s *Sequence[T]) Append(values ...any) {
	s.refresh()
	for _, value := range values {
		s.data = append(s.data, Unwrap(value))
	}
	s.sync()
}

// Insert places the unwrapped value before index i. Out-of-range indexes are
// clamped to the ends of the sequence.
func (s *Sequence[T]) Insert(i int, value any) {
	s.refresh()
	n := len(s.data)
	if i < 0 {
		i += n
	}
	i = max(0, min(i, n))

	s.data = append(s.data, nil)
	copy(s.data[i+1:], s.data[i:])
	s.data[i] = Unwrap(value)
	s.sync()
}

func (s *Sequence[T]) Delete(i int) error {
	s.refresh()
	idx, err := s.index(i)
	if err != nil {
		return err
	}
	s.data = append(s.data[:idx], s.data[idx+1:]...)
	s.sync()
	return nil
}

// Pop removes and returns the raw element at i, the last one by default.
func (s *Sequence[T]) Pop(i ...int) (any, error) {
	at := -1
	if len(i) > 0 {
		at = i[0]
	}
	s.refresh()
	idx, err := s.index(at)
	if err != nil {
		return nil, err
	}
	raw := s.data[idx]
	s.data = append(s.data[:idx], s.data[idx+1:]...)
	s.sync()
	return raw, nil
}

// Extend appends every element of other: a Sequence, any RawHolder over a
// list, or a slice. Elements are unwrapped on the way in.
func (s *Sequence[T]) Extend(other any) error {
	items, ok := asSlice(Unwrap(other))
	if !ok {
		return fmt.Errorf("%w: extending with %T", ErrInvalidStoreShape, other)
	}
	s.Append(items...)
	return nil
}

// All iterates over the wrapped elements. Each call starts from the beginning.
func (s *Sequence[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		s.refresh()
		for i := range s.data {
			if !yield(i, s.wrap(s.data[i])) {
				return
			}
		}
	}
}

// Equal compares element by element up to the shorter length: a sequence
// equals any other sequence it is a prefix of, and vice versa.
// TODO: compare lengths once callers relying on prefix matches are migrated.
func (s *Sequence[T]) Equal(other any) bool {
	theirs, ok := elements(other)
	if !ok {
		return false
	}
	s.refresh()
	for i := 0; i < len(s.data) && i < len(theirs); i++ {
		if !valuesEqual(s.wrap(s.data[i]), theirs[i]) {
			return false
		}
	}
	return true
}

// Filter returns a new sequence with the same wrapper holding the elements
// whose attributes equal every criterion.
func (s *Sequence[T]) Filter(criteria map[string]any) *Sequence[T] {
	result := NewSequence(nil, s.wrap)
	data := s.Data()
	for i, elem := range s.All() {
		if matches(elem, criteria) {
			result.data = append(result.data, data[i])
		}
	}
	return result
}

// Unique returns the only element matching criteria. Zero or several matches
// fail with *UniqueNotFoundError.
func (s *Sequence[T]) Unique(criteria map[string]any) (T, error) {
	result := s.Filter(criteria)
	if result.Len() == 1 {
		return result.At(0)
	}
	var zero T
	return zero, &UniqueNotFoundError{
		Sequence: s,
		Criteria: criteria,
		Result:   result,
		Matches:  result.Len(),
	}
}

// UniqueByView looks up the element matching v's filter criteria.
func (s *Sequence[T]) UniqueByView(v *View) (T, error) {
	return s.Unique(v.FilterCriteria())
}

// Attributes projects the named attributes of every element.
func (s *Sequence[T]) Attributes(names ...string) ([][]any, error) {
	out := make([][]any, 0, s.Len())
	for i, elem := range s.All() {
		row := make([]any, len(names))
		for j, name := range names {
			value, err := attribute(elem, name)
			if err != nil {
				return nil, fmt.Errorf("element %d : %w", i, err)
			}
			row[j] = value
		}
		out = append(out, row)
	}
	return out, nil
}

// Attribute projects one attribute of every element.
func (s *Sequence[T]) Attribute(name string) ([]any, error) {
	out := make([]any, 0, s.Len())
	for i, elem := range s.All() {
		value, err := attribute(elem, name)
		if err != nil {
			return nil, fmt.Errorf("element %d : %w", i, err)
		}
		out = append(out, value)
	}
	return out, nil
}

func (s *Sequence[T]) String() string { return fmt.Sprintf("I:%v", s.Data()) }

func (s *Sequence[T]) wrapped() []any {
	s.refresh()
	out := make([]any, len(s.data))
	for i := range s.data {
		out[i] = s.wrap(s.data[i])
	}
	return out
}

func (s *Sequence[T]) index(i int) (int, error) {
	n := len(s.data)
	idx := i
	if idx < 0 {
		idx += n
	}
	if idx < 0 || idx >= n {
		return 0, fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfRange, i, n)
	}
	return idx, nil
}

type wrappedElements interface {
	wrapped() []any
}

// elements returns the comparable elements of a sequence or slice.
func elements(other any) ([]any, bool) {
	if w, ok := other.(wrappedElements); ok {
		return w.wrapped(), true
	}
	return asSlice(other)
}
