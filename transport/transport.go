// Package transport holds what the transports under it share: choosing the
// payload to send, filling URL templates from a bound view, merging filter
// criteria and reporting unexpected HTTP statuses.
//
// Every transport can be bound either to a view type, in which case received
// payloads are wrapped in that type, or to a view instance, in which case the
// instance is also what gets sent and what fills URL templates and filters.
package transport

import (
	"fmt"
	"maps"
	"net/url"
	"regexp"
	"strings"

	"github.com/tfkr-ae/arsenal/model"
)

// Wrapper turns a decoded payload into the value handed back to callers.
// (*model.Type).Wrap satisfies it.
type Wrapper func(raw any) (any, error)

// Identity is the Wrapper of unbound transports.
func Identity(raw any) (any, error) { return raw, nil }

// Binding is the view type and, optionally, the view instance a transport is
// bound to.
type Binding struct {
	Type *model.Type
	View *model.View
}

// Bind binds to a view instance and its type.
func Bind(v *model.View) Binding {
	if v == nil {
		return Binding{}
	}
	return Binding{Type: v.Type(), View: v}
}

// BindType binds to a view type only.
func BindType(t *model.Type) Binding {
	return Binding{Type: t}
}

// Wrapper returns the bound type's Wrap, or Identity when unbound.
func (b Binding) Wrapper() Wrapper {
	if b.Type == nil {
		return Identity
	}
	return b.Type.Wrap
}

// Payload returns the raw data to send: explicit when it is not nil,
// otherwise the bound view's store. Views and sequences are unwrapped.
func (b Binding) Payload(explicit any) any {
	if explicit != nil {
		return model.Unwrap(explicit)
	}
	if b.View == nil {
		return nil
	}
	return b.View.Data()
}

// Criteria merges the bound view's filter criteria with explicit ones;
// explicit criteria win. With raw set, the view contributes store keys and raw
// values instead of field names and typed values.
func (b Binding) Criteria(raw bool, explicit map[string]any) map[string]any {
	merged := make(map[string]any)
	if b.View != nil {
		if raw {
			maps.Copy(merged, b.View.RawFilterCriteria())
		} else {
			maps.Copy(merged, b.View.FilterCriteria())
		}
	}
	maps.Copy(merged, explicit)
	return merged
}

var placeholder = regexp.MustCompile(`\{(\w+)\}`)

// Expand replaces {name} placeholders with the path-escaped values of the
// bound view's fields. Unknown, missing and nil fields expand to "".
func (b Binding) Expand(template string) string {
	return placeholder.ReplaceAllStringFunc(template, func(match string) string {
		if b.View == nil {
			return ""
		}
		value, err := b.View.Get(match[1 : len(match)-1])
		if err != nil || value == nil {
			return ""
		}
		return url.PathEscape(fmt.Sprint(value))
	})
}

// URL resolves path against host, expands placeholders in both and collapses
// the empty segments a blank placeholder leaves behind, so "/users/{id}/"
// with no id becomes "/users/".
func (b Binding) URL(host, path string) (string, error) {
	target, err := url.Parse(b.Expand(path))
	if err != nil {
		return "", fmt.Errorf("parsing url %q : %w", path, err)
	}
	if host != "" {
		base, err := url.Parse(b.Expand(host))
		if err != nil {
			return "", fmt.Errorf("parsing host %q : %w", host, err)
		}
		target = base.ResolveReference(target)
	}

	if strings.Contains(target.Path, "//") {
		for strings.Contains(target.Path, "//") {
			target.Path = strings.ReplaceAll(target.Path, "//", "/")
		}
		target.RawPath = ""
	}
	return target.String(), nil
}
