// Package codec converts between wire bytes and raw stores.
//
// A raw store is what the model package binds views to: map[string]any,
// []any and scalar leaves. Codecs are looked up by name so that transports
// can be configured with a string ("json", "yaml", ...) the way a serializer
// is chosen per request or per connection.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/tfkr-ae/arsenal/model"
	"gopkg.in/yaml.v3"
)

// ErrUnknownCodec is returned when no codec is registered under a name.
var ErrUnknownCodec = errors.New("unknown codec")

const (
	Raw  = "raw"
	JSON = "json"
	YAML = "yaml"
	XML  = "xml"
	Auto = "auto"
)

// Codec encodes raw stores into bytes and decodes bytes back into raw stores.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte) (any, error)
}

// Registry maps codec names to codecs. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Codec
}

// NewRegistry returns a registry holding the built-in codecs.
func NewRegistry() *Registry {
	r := &Registry{codecs: make(map[string]Codec)}
	r.Register(Raw, rawCodec{})
	r.Register(JSON, jsonCodec{})
	r.Register(YAML, yamlCodec{})
	r.Register(XML, xmlCodec{})
	r.Register(Auto, autoCodec{})
	return r
}

// Default is the registry used by the package level functions and transports.
var Default = NewRegistry()

// Register adds or replaces the codec stored under name.
func (r *Registry) Register(name string, c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[name] = c
}

func (r *Registry) Lookup(name string) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
	return c, nil
}

// Names lists the registered codec names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.codecs))
	for name := range r.codecs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Marshal encodes v with the named codec. Views and sequences are encoded
// through their raw store.
func (r *Registry) Marshal(name string, v any) ([]byte, error) {
	c, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	data, err := c.Marshal(model.Unwrap(v))
	if err != nil {
		return nil, fmt.Errorf("marshalling with %s : %w", name, err)
	}
	return data, nil
}

func (r *Registry) Unmarshal(name string, data []byte) (any, error) {
	c, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	raw, err := c.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshalling with %s : %w", name, err)
	}
	return raw, nil
}

func Register(name string, c Codec) { Default.Register(name, c) }

func Lookup(name string) (Codec, error) { return Default.Lookup(name) }

func Marshal(name string, v any) ([]byte, error) { return Default.Marshal(name, v) }

func Unmarshal(name string, data []byte) (any, error) { return Default.Unmarshal(name, data) }

// rawCodec passes text through unchanged.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	switch b := v.(type) {
	case nil:
		return []byte{}, nil
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	case fmt.Stringer:
		return []byte(b.String()), nil
	}
	return nil, fmt.Errorf("raw codec cannot encode %T", v)
}

func (rawCodec) Unmarshal(data []byte) (any, error) {
	return string(data), nil
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

type yamlCodec struct{}

func (yamlCodec) Marshal(v any) ([]byte, error) { return yaml.Marshal(v) }

func (yamlCodec) Unmarshal(data []byte) (any, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return normalize(raw), nil
}

// normalize rewrites map[any]any nodes, which YAML produces for non-string
// keys, into map[string]any.
func normalize(raw any) any {
	switch v := raw.(type) {
	case map[string]any:
		for k, item := range v {
			v[k] = normalize(item)
		}
		return v
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[fmt.Sprint(k)] = normalize(item)
		}
		return out
	case []any:
		for i := range v {
			v[i] = normalize(v[i])
		}
		return v
	}
	return raw
}
