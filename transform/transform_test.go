package transform

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/tfkr-ae/arsenal/model"
)

func TestJSONPath(t *testing.T) {
	payload := map[string]any{
		"data": map[string]any{
			"items": []any{
				map[string]any{"id": 1.0, "name": "a"},
				map[string]any{"id": 2.0, "name": "b"},
			},
		},
	}

	t.Run("should unpack an envelope", func(t *testing.T) {
		hook, err := JSONPath("$.data.items")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		got, err := hook(payload)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if !reflect.DeepEqual(payload["data"].(map[string]any)["items"], got) {
			t.Fatalf("\nwanted:\nitems list\ngot:\n%v", got)
		}
	})

	t.Run("should project with wildcards", func(t *testing.T) {
		hook, _ := JSONPath("$.data.items[*].name")

		got, err := hook(payload)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if !reflect.DeepEqual([]any{"a", "b"}, got) {
			t.Fatalf("\nwanted:\n[a b]\ngot:\n%v", got)
		}
	})

	t.Run("should bind through a model type", func(t *testing.T) {
		hook, _ := JSONPath("$.data.items")
		item := model.Define("Item", model.NewField("id", model.Filter()), model.NewField("name"), model.Incoming(hook))

		seq, err := item.BindList(payload)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		found, err := seq.Unique(map[string]any{"id": 2})
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if name, _ := found.Get("name"); name != "b" {
			t.Fatalf("\nwanted:\nb\ngot:\n%v", name)
		}
	})

	t.Run("should fail on unknown keys", func(t *testing.T) {
		hook, _ := JSONPath("$.missing")

		if _, err := hook(payload); err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}
	})

	t.Run("should reject invalid expressions", func(t *testing.T) {
		if _, err := JSONPath("$.data[?("); err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}
	})
}

func TestChain(t *testing.T) {
	first, _ := JSONPath("$.data")
	second, _ := JSONPath("$.items")

	got, err := Chain(first, second)(map[string]any{"data": map[string]any{"items": []any{1.0}}})
	if err != nil {
		t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
	}
	if !reflect.DeepEqual([]any{1.0}, got) {
		t.Fatalf("\nwanted:\n[1]\ngot:\n%v", got)
	}

	failing := func(any) (any, error) { return nil, errors.New("stop") }
	if _, err := Chain(failing, first)(nil); err == nil || err.Error() != "stop" {
		t.Fatalf("\nwanted:\nstop\ngot:\n%v", err)
	}
}

func TestScript_Sandbox(t *testing.T) {
	for _, global := range restrictedGlobals {
		t.Run(fmt.Sprintf("%s should be nil", global), func(t *testing.T) {
			src := fmt.Sprintf(`
				function transform(data)
					if %s == nil then return "nil" end
					return "exists"
				end
			`, global)

			s, err := NewScript(src)
			if err != nil {
				t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
			}
			got, err := s.Call(nil)
			if err != nil || got != "nil" {
				t.Fatalf("\nwanted:\nnil\ngot:\n%v (%v)", got, err)
			}
		})
	}
}

func TestScript_Call(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		input any
		want  any
	}{
		{
			name:  "should return lists for sequential tables",
			src:   `function transform(data) return data.items end`,
			input: map[string]any{"items": []any{"a", "b"}},
			want:  []any{"a", "b"},
		},
		{
			name: "should return mappings for keyed tables",
			src: `function transform(data)
				data.count = #data.items
				data.items = nil
				return data
			end`,
			input: map[string]any{"items": []any{1, 2, 3}, "ok": true},
			want:  map[string]any{"count": 3.0, "ok": true},
		},
		{
			name:  "should stringify mixed keys",
			src:   `function transform(data) return {[1] = "a", x = "b"} end`,
			input: nil,
			want:  map[string]any{"1": "a", "x": "b"},
		},
		{
			name:  "should return empty tables as empty lists",
			src:   `function transform(data) return {} end`,
			input: nil,
			want:  []any{},
		},
		{
			name:  "should expose the arsenal library",
			src:   `function transform(data) return string.len(arsenal.uuid()) end`,
			input: nil,
			want:  36.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewScript(tt.src)
			if err != nil {
				t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
			}

			got, err := s.Call(tt.input)
			if err != nil {
				t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
			}
			if !reflect.DeepEqual(tt.want, got) {
				t.Fatalf("\nwanted:\n%#v\ngot:\n%#v", tt.want, got)
			}
		})
	}
}

func TestScript_Errors(t *testing.T) {
	t.Run("should reject invalid syntax", func(t *testing.T) {
		if _, err := NewScript(`function transform(`); err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}
	})

	t.Run("should require the entry function", func(t *testing.T) {
		_, err := NewScript(`function other(data) return data end`)
		if !errors.Is(err, ErrNoFunction) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrNoFunction, err)
		}

		if _, err := NewScript(`function other(data) return data end`, WithFunction("other")); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
	})

	t.Run("should surface runtime errors and stay usable", func(t *testing.T) {
		s, _ := NewScript(`function transform(data)
			if data == nil then error("boom") end
			return data
		end`)

		_, err := s.Call(nil)
		if err == nil || !strings.Contains(err.Error(), "boom") {
			t.Fatalf("\nwanted:\nboom\ngot:\n%v", err)
		}
		got, err := s.Call("ok")
		if err != nil || got != "ok" {
			t.Fatalf("\nwanted:\nok\ngot:\n%v (%v)", got, err)
		}
	})

	t.Run("CallMap should reject lists", func(t *testing.T) {
		s, _ := NewScript(`function transform(data) return {1, 2} end`)

		_, err := s.CallMap(nil)
		if !errors.Is(err, model.ErrInvalidStoreShape) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", model.ErrInvalidStoreShape, err)
		}
	})
}

func TestScript_Concurrent(t *testing.T) {
	hook, err := Lua(`function transform(data) return data.n * 2 end`)
	if err != nil {
		t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := hook(map[string]any{"n": i})
			if err != nil {
				errs <- err
				return
			}
			if got != float64(i*2) {
				errs <- fmt.Errorf("wanted %d, got %v", i*2, got)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}
