package model

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestViewField(t *testing.T) {
	address := Define("Address", NewField("city"))
	person := Define("Person",
		NewField("name"),
		ViewField("address", address),
		ViewField("manager", nil),
	)

	t.Run("should wrap nested mappings in the declared type", func(t *testing.T) {
		v, _ := person.Bind(map[string]any{"address": map[string]any{"city": "Dubai"}})

		addr, err := Attr[*View](v, "address")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if addr.Type() != address {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", address, addr.Type())
		}
		if err := addr.Set("city", "Abu Dhabi"); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		raw := v.Data().(map[string]any)["address"].(map[string]any)
		if raw["city"] != "Abu Dhabi" {
			t.Fatalf("\nwanted:\nwrite through to parent store\ngot:\n%v", raw)
		}
	})

	t.Run("should default to the owner type", func(t *testing.T) {
		v, _ := person.Bind(map[string]any{"manager": map[string]any{"name": "boss"}})

		manager, err := Attr[*View](v, "manager")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if manager.Type() != person {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", person, manager.Type())
		}
	})

	t.Run("should write nil views as nil", func(t *testing.T) {
		v, _ := person.New(nil)
		var manager *View

		if err := v.Set("manager", manager); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if raw, ok := v.Data().(map[string]any)["manager"]; !ok || raw != nil {
			t.Fatalf("\nwanted:\nnil manager\ngot:\n%v", raw)
		}
	})

	t.Run("should unwrap views on write and round trip", func(t *testing.T) {
		addr, _ := address.New(map[string]any{"city": "Sharjah"})
		v, _ := person.New(map[string]any{"address": addr})

		stored := v.Data().(map[string]any)["address"]
		if _, ok := stored.(map[string]any); !ok {
			t.Fatalf("\nwanted:\nmap[string]any\ngot:\n%T", stored)
		}

		got, _ := v.Get("address")
		if !addr.Equal(got) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", addr, got)
		}
	})
}

func TestViewListField(t *testing.T) {
	node := Define("Node", NewField("id", Filter()), ViewListField("children", nil))

	t.Run("should write appends back into the parent store", func(t *testing.T) {
		v, _ := node.Bind(map[string]any{"id": 1, "children": []any{map[string]any{"id": 2}}})

		children, err := Attr[*Sequence[*View]](v, "children")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		child, _ := node.New(map[string]any{"id": 3})
		children.Append(child)

		raw := v.Data().(map[string]any)["children"].([]any)
		if len(raw) != 2 {
			t.Fatalf("\nwanted:\n2 children\ngot:\n%v", raw)
		}
		if _, ok := raw[1].(map[string]any); !ok {
			t.Fatalf("\nwanted:\nunwrapped child\ngot:\n%T", raw[1])
		}

		if err := children.Delete(0); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		raw = v.Data().(map[string]any)["children"].([]any)
		if len(raw) != 1 {
			t.Fatalf("\nwanted:\n1 child\ngot:\n%v", raw)
		}
	})

	t.Run("should unwrap lists of views on write", func(t *testing.T) {
		a, _ := node.New(map[string]any{"id": 1})
		b, _ := node.New(map[string]any{"id": 2})
		v, _ := node.New(map[string]any{"children": []*View{a, b}})

		children, _ := Attr[*Sequence[*View]](v, "children")
		ids, err := children.Attribute("id")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
			t.Fatalf("\nwanted:\n[1 2]\ngot:\n%v", ids)
		}
	})

	t.Run("sequences read from the same field should share the list", func(t *testing.T) {
		v, _ := node.Bind(map[string]any{"id": 1, "children": []any{map[string]any{"id": 2}}})

		first, _ := Attr[*Sequence[*View]](v, "children")
		second, _ := Attr[*Sequence[*View]](v, "children")
		first.Append(map[string]any{"id": 3})
		second.Append(map[string]any{"id": 4})

		want := []any{map[string]any{"id": 2}, map[string]any{"id": 3}, map[string]any{"id": 4}}
		if got := v.Data().(map[string]any)["children"]; !reflect.DeepEqual(want, got) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", want, got)
		}
		if first.Len() != 3 {
			t.Fatalf("\nwanted:\n3\ngot:\n%d", first.Len())
		}
	})

	t.Run("sequences should follow the field after it is set", func(t *testing.T) {
		v, _ := node.Bind(map[string]any{"children": []any{map[string]any{"id": 2}}})

		children, _ := Attr[*Sequence[*View]](v, "children")
		if err := v.Set("children", []any{}); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		children.Append(map[string]any{"id": 5})

		want := []any{map[string]any{"id": 5}}
		if got := v.Data().(map[string]any)["children"]; !reflect.DeepEqual(want, got) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", want, got)
		}
	})

	t.Run("sequences should detach once the field is deleted", func(t *testing.T) {
		v, _ := node.Bind(map[string]any{"children": []any{}})

		children, _ := Attr[*Sequence[*View]](v, "children")
		if err := v.Delete("children"); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		children.Append(map[string]any{"id": 6})

		if v.Has("children") {
			t.Fatalf("\nwanted:\nno children\ngot:\n%v", v.Data())
		}
		if children.Len() != 1 {
			t.Fatalf("\nwanted:\n1\ngot:\n%d", children.Len())
		}
	})

	t.Run("should write nil sequences as nil", func(t *testing.T) {
		v, _ := node.New(nil)
		var children *Sequence[*View]

		if err := v.Set("children", children); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if raw, ok := v.Data().(map[string]any)["children"]; !ok || raw != nil {
			t.Fatalf("\nwanted:\nnil children\ngot:\n%v", raw)
		}
	})

	t.Run("should reject non-list values on read", func(t *testing.T) {
		v, _ := node.Bind(map[string]any{"children": "nope"})

		_, err := v.Get("children")
		if !errors.Is(err, ErrInvalidStoreShape) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrInvalidStoreShape, err)
		}
	})
}

func TestTimeField(t *testing.T) {
	event := Define("Event", TimeField("at", ""), TimeField("day", "2006-01-02"))
	want := time.Date(2024, 3, 5, 14, 30, 15, 123456000, time.UTC)

	t.Run("should round trip to the same instant", func(t *testing.T) {
		v, _ := event.New(map[string]any{"at": want})

		if raw := v.Data().(map[string]any)["at"]; raw != "2024-03-05T14:30:15.123456" {
			t.Fatalf("\nwanted:\n2024-03-05T14:30:15.123456\ngot:\n%v", raw)
		}

		got, err := Attr[time.Time](v, "at")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if !got.Equal(want) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", want, got)
		}
	})

	t.Run("should keep the instant of zoned times", func(t *testing.T) {
		cet := time.Date(2024, 3, 5, 14, 30, 15, 123456000, time.FixedZone("CET", 3600))
		v, _ := event.New(map[string]any{"at": cet})

		if raw := v.Data().(map[string]any)["at"]; raw != "2024-03-05T13:30:15.123456" {
			t.Fatalf("\nwanted:\n2024-03-05T13:30:15.123456\ngot:\n%v", raw)
		}
		got, err := Attr[time.Time](v, "at")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if !got.Equal(cet) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", cet, got)
		}

		if err := v.Set("at", &cet); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if raw := v.Data().(map[string]any)["at"]; raw != "2024-03-05T13:30:15.123456" {
			t.Fatalf("\nwanted:\n2024-03-05T13:30:15.123456\ngot:\n%v", raw)
		}
	})

	t.Run("should store nil time pointers as nil", func(t *testing.T) {
		v, _ := event.New(nil)
		var at *time.Time

		if err := v.Set("at", at); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if raw, ok := v.Data().(map[string]any)["at"]; !ok || raw != nil {
			t.Fatalf("\nwanted:\nnil at\ngot:\n%v", raw)
		}
	})

	t.Run("should parse other representations permissively", func(t *testing.T) {
		v, _ := event.Bind(map[string]any{"at": "2024-03-05", "day": float64(want.Unix())})

		at, err := Attr[time.Time](v, "at")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if at.Year() != 2024 || at.Month() != time.March || at.Day() != 5 {
			t.Fatalf("\nwanted:\n2024-03-05\ngot:\n%v", at)
		}

		day, err := Attr[time.Time](v, "day")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if !day.Equal(want.Truncate(time.Second)) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", want.Truncate(time.Second), day)
		}
	})

	t.Run("should fail with ErrInvalidValue for unparseable text", func(t *testing.T) {
		v, _ := event.Bind(map[string]any{"at": "not a date"})

		_, err := v.Get("at")
		if !errors.Is(err, ErrInvalidValue) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrInvalidValue, err)
		}
		if !v.Has("at") {
			t.Fatalf("\nwanted:\nunparseable value still present\ngot:\nmissing")
		}
	})
}

func TestTimestampField(t *testing.T) {
	typ := Define("Stamped",
		TimestampField("created", FractionalSeconds),
		TimestampField("updated", Seconds),
	)
	want := time.Date(2024, 3, 5, 14, 30, 15, 123456000, time.UTC)

	v, _ := typ.New(map[string]any{"created": want, "updated": want})
	raw := v.Data().(map[string]any)

	if _, ok := raw["created"].(float64); !ok {
		t.Fatalf("\nwanted:\nfloat64\ngot:\n%T", raw["created"])
	}
	if raw["updated"] != want.Unix() {
		t.Fatalf("\nwanted:\n%d\ngot:\n%v", want.Unix(), raw["updated"])
	}

	created, err := Attr[time.Time](v, "created")
	if err != nil || !created.Equal(want) {
		t.Fatalf("\nwanted:\n%v\ngot:\n%v (%v)", want, created, err)
	}
	updated, err := Attr[time.Time](v, "updated")
	if err != nil || !updated.Equal(want.Truncate(time.Second)) {
		t.Fatalf("\nwanted:\n%v\ngot:\n%v (%v)", want.Truncate(time.Second), updated, err)
	}

	v.SetData(map[string]any{"created": "1709649015.5"})
	created, err = Attr[time.Time](v, "created")
	if err != nil || created.Nanosecond() != 500000000 {
		t.Fatalf("\nwanted:\nhalf a second\ngot:\n%v (%v)", created, err)
	}
}

func TestUUIDField(t *testing.T) {
	typ := Define("Entity", UUIDField("id", Filter()))
	id := uuid.New()

	v, _ := typ.New(map[string]any{"id": id})
	if raw := v.Data().(map[string]any)["id"]; raw != id.String() {
		t.Fatalf("\nwanted:\n%s\ngot:\n%v", id, raw)
	}

	got, err := Attr[uuid.UUID](v, "id")
	if err != nil || got != id {
		t.Fatalf("\nwanted:\n%s\ngot:\n%v (%v)", id, got, err)
	}

	v.SetData(map[string]any{"id": "not-a-uuid"})
	if _, err := v.Get("id"); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrInvalidValue, err)
	}
}

func TestField_NilSkipsTransforms(t *testing.T) {
	calls := 0
	typ := Define("Hooked", NewField("v",
		WithWrap(func(_ *Type, raw any) (any, error) { calls++; return raw, nil }),
		WithUnwrap(func(value any) (any, error) { calls++; return value, nil }),
	))

	v, _ := typ.New(map[string]any{"v": nil})
	if _, err := v.Get("v"); err != nil {
		t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
	}
	if calls != 0 {
		t.Fatalf("\nwanted:\n0 hook calls\ngot:\n%d", calls)
	}
}
