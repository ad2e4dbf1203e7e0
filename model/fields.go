package model

import (
	"fmt"
	"math"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
)

// DefaultTimeLayout is the layout TimeField writes when none is given.
const DefaultTimeLayout = "2006-01-02T15:04:05.000000"

// Precision selects how TimestampField stores epoch seconds.
type Precision int

const (
	// FractionalSeconds stores float64 seconds with microsecond resolution.
	FractionalSeconds Precision = iota
	// Seconds stores whole int64 seconds.
	Seconds
)

// ViewField declares a field holding a nested mapping.
// Reads bind the sub-mapping to a View of typ, or of the owner type when typ is nil
// (a raw list is bound as a Sequence instead). Writes accept a *View or a raw mapping.
func ViewField(name string, typ *Type, opts ...FieldOption) *Field {
	wrap := func(owner *Type, raw any) (any, error) {
		return chooseType(typ, owner).wrapRaw(raw), nil
	}
	unwrap := func(value any) (any, error) {
		return Unwrap(value), nil
	}
	return newField(name, wrap, unwrap, opts)
}

// ViewListField declares a field holding a list of nested mappings.
// Reads return a *Sequence[*View] bound to the stored slice; appends and
// deletes made through that sequence are written back into the owning store.
func ViewListField(name string, typ *Type, opts ...FieldOption) *Field {
	wrap := func(owner *Type, raw any) (any, error) {
		data, ok := asSlice(raw)
		if !ok {
			return nil, fmt.Errorf("%w: %T is not a list", ErrInvalidStoreShape, raw)
		}
		return NewSequence(data, chooseType(typ, owner).bind), nil
	}
	unwrap := func(value any) (any, error) {
		if _, ok := value.(RawHolder); ok {
			return Unwrap(value), nil
		}
		if data, ok := asSlice(value); ok {
			out := make([]any, len(data))
			for i := range data {
				out[i] = Unwrap(data[i])
			}
			return out, nil
		}
		return value, nil
	}
	return newField(name, wrap, unwrap, opts)
}

// TimeField declares a field storing time.Time as text formatted with layout.
// Reads accept any recognizable date representation; numbers are read as epoch seconds.
func TimeField(name string, layout string, opts ...FieldOption) *Field {
	if layout == "" {
		layout = DefaultTimeLayout
	}
	wrap := func(_ *Type, raw any) (any, error) {
		return parseTime(raw)
	}
	unwrap := func(value any) (any, error) {
		// layouts without a zone are read back as UTC
		switch t := value.(type) {
		case time.Time:
			return t.UTC().Format(layout), nil
		case *time.Time:
			if t == nil {
				return nil, nil
			}
			return t.UTC().Format(layout), nil
		}
		return value, nil
	}
	return newField(name, wrap, unwrap, opts)
}

// TimestampField declares a field storing time.Time as epoch seconds.
func TimestampField(name string, precision Precision, opts ...FieldOption) *Field {
	wrap := func(_ *Type, raw any) (any, error) {
		if t, ok := raw.(time.Time); ok {
			return t, nil
		}
		seconds, ok := toFloat(raw)
		if !ok {
			return nil, fmt.Errorf("parsing timestamp from %T %v", raw, raw)
		}
		return fromEpoch(seconds), nil
	}
	unwrap := func(value any) (any, error) {
		t, ok := value.(time.Time)
		if !ok {
			return value, nil
		}
		if precision == Seconds {
			return t.Unix(), nil
		}
		return float64(t.UnixMicro()) / 1e6, nil
	}
	return newField(name, wrap, unwrap, opts)
}

// UUIDField declares a field storing uuid.UUID as its canonical string.
func UUIDField(name string, opts ...FieldOption) *Field {
	wrap := func(_ *Type, raw any) (any, error) {
		switch v := raw.(type) {
		case uuid.UUID:
			return v, nil
		case string:
			id, err := uuid.Parse(v)
			if err != nil {
				return nil, fmt.Errorf("parsing uuid %q : %w", v, err)
			}
			return id, nil
		case []byte:
			id, err := uuid.ParseBytes(v)
			if err != nil {
				return nil, fmt.Errorf("parsing uuid %q : %w", v, err)
			}
			return id, nil
		}
		return nil, fmt.Errorf("parsing uuid from %T", raw)
	}
	unwrap := func(value any) (any, error) {
		if id, ok := value.(uuid.UUID); ok {
			return id.String(), nil
		}
		return value, nil
	}
	return newField(name, wrap, unwrap, opts)
}

func chooseType(declared, owner *Type) *Type {
	if declared != nil {
		return declared
	}
	return owner
}

func parseTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		t, err := dateparse.ParseAny(v)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing time %q : %w", v, err)
		}
		return t, nil
	case []byte:
		return parseTime(string(v))
	}

	if seconds, ok := toFloat(raw); ok {
		return fromEpoch(seconds), nil
	}
	return time.Time{}, fmt.Errorf("parsing time from %T", raw)
}

// fromEpoch rounds the fractional part to whole microseconds.
func fromEpoch(seconds float64) time.Time {
	whole, frac := math.Modf(seconds)
	micros := math.Round(frac * 1e6)
	return time.Unix(int64(whole), int64(micros)*int64(time.Microsecond)).UTC()
}
