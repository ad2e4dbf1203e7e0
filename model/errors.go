package model

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownField is returned when a name is not declared on the view type.
	ErrUnknownField = errors.New("unknown field")
	// ErrMissingField is returned when a declared field has no value in the raw store.
	ErrMissingField = errors.New("missing field")
	// ErrInvalidStoreShape is returned when a keyed accessor meets a store that is not a mapping.
	ErrInvalidStoreShape = errors.New("invalid store shape")
	// ErrUniqueNotFound is matched by *UniqueNotFoundError.
	ErrUniqueNotFound = errors.New("unique object not found")
	// ErrIndexOutOfRange is returned when a sequence index is past either end.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrInvalidValue is returned when a wrap or unwrap transform rejects a value.
	ErrInvalidValue = errors.New("invalid value")
)

// UniqueNotFoundError reports a lookup that expected exactly one match.
// It keeps the searched sequence, the criteria and the filtered result so that
// a failing test prints everything needed to see why the lookup failed.
type UniqueNotFoundError struct {
	Sequence any
	Criteria map[string]any
	Result   any
	Matches  int
}

func (e *UniqueNotFoundError) Error() string {
	return fmt.Sprintf("%s (%d matches)\nList: %v\nFilter: %v\nResult: %v",
		ErrUniqueNotFound, e.Matches, e.Sequence, e.Criteria, e.Result)
}

func (e *UniqueNotFoundError) Unwrap() error { return ErrUniqueNotFound }
