package model

import (
	"errors"
	"reflect"
	"testing"
)

func TestView_Derive(t *testing.T) {
	source := func(t *testing.T) *View {
		t.Helper()
		v, err := testUserType().New(map[string]any{"id": 1, "name": "x"})
		if err != nil {
			t.Fatalf("creating source view: %v", err)
		}
		return v
	}

	tests := []struct {
		name string
		opts []DeriveOption
		want map[string]any
	}{
		{
			name: "should copy every field by default",
			want: map[string]any{"id": 1, "name": "x"},
		},
		{
			name: "should copy only kept fields",
			opts: []DeriveOption{Keep("id")},
			want: map[string]any{"id": 1},
		},
		{
			name: "should skip dropped fields",
			opts: []DeriveOption{Drop("id")},
			want: map[string]any{"name": "x"},
		},
		{
			name: "keep should win over drop",
			opts: []DeriveOption{Keep("id"), Drop("name")},
			want: map[string]any{"id": 1},
		},
		{
			name: "keep should ignore drop naming the same field",
			opts: []DeriveOption{Keep("id"), Drop("id")},
			want: map[string]any{"id": 1},
		},
		{
			name: "should seed extra fields",
			opts: []DeriveOption{Drop("name"), With("token", "abc")},
			want: map[string]any{"id": 1, "token": "abc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			derived, err := source(t).Derive(tt.opts...)
			if err != nil {
				t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
			}
			if !reflect.DeepEqual(tt.want, derived.Data()) {
				t.Fatalf("\nwanted:\n%v\ngot:\n%v", tt.want, derived.Data())
			}
		})
	}

	t.Run("should name and extend the source type", func(t *testing.T) {
		derived, _ := source(t).Derive(With("token", "abc"))

		if derived.Type().Name() != "DerivedUser" {
			t.Fatalf("\nwanted:\nDerivedUser\ngot:\n%s", derived.Type().Name())
		}
		want := []string{"id", "name", "token"}
		if got := derived.Type().Fields(); !reflect.DeepEqual(want, got) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", want, got)
		}
		if got := derived.FilterCriteria(); !reflect.DeepEqual(map[string]any{"id": 1}, got) {
			t.Fatalf("\nwanted:\nmap[id:1]\ngot:\n%v", got)
		}
	})

	t.Run("should fail when a kept field has no value", func(t *testing.T) {
		v, _ := testUserType().New(map[string]any{"id": 1})

		_, err := v.Derive(Keep("name"))
		if !errors.Is(err, ErrMissingField) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrMissingField, err)
		}
	})

	t.Run("should share no storage with the source", func(t *testing.T) {
		typ := Define("Tagged", NewField("id"), NewField("tags"), NewField("meta"))
		v, _ := typ.Bind(map[string]any{
			"id":   1,
			"tags": []any{"a"},
			"meta": map[string]any{"k": "v"},
		})

		derived, err := v.Derive()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		derived.Data().(map[string]any)["tags"].([]any)[0] = "changed"
		derived.Data().(map[string]any)["meta"].(map[string]any)["k"] = "changed"
		derived.Set("id", 2)

		want := map[string]any{
			"id":   1,
			"tags": []any{"a"},
			"meta": map[string]any{"k": "v"},
		}
		if !reflect.DeepEqual(want, v.Data()) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", want, v.Data())
		}
	})

	t.Run("should unwrap extra views into raw data", func(t *testing.T) {
		inner, _ := testUserType().New(map[string]any{"id": 5})
		derived, err := source(t).Derive(Keep("id"), With("owner", inner))
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		want := map[string]any{"id": 1, "owner": map[string]any{"id": 5}}
		if !reflect.DeepEqual(want, derived.Data()) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", want, derived.Data())
		}
	})
}
