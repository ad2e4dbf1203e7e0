package codec

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/beevik/etree"
)

const (
	attrPrefix = "-"
	textKey    = "#text"
)

// xmlCodec maps an element tree onto nested mappings. The document becomes
// {rootTag: value}; attributes are stored under "-name", character data next
// to child elements under "#text", and repeated children as lists. A leaf
// element without attributes becomes its text.
type xmlCodec struct{}

func (xmlCodec) Unmarshal(data []byte) (any, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("reading xml : %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, errors.New("xml document has no root element")
	}
	return map[string]any{root.FullTag(): elementValue(root)}, nil
}

func (xmlCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return nil, fmt.Errorf("xml needs a mapping with exactly one root key, got %T", v)
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	for tag, value := range m {
		fill(doc.CreateElement(tag), value)
	}
	doc.Indent(2)
	return doc.WriteToBytes()
}

func elementValue(e *etree.Element) any {
	children := e.ChildElements()
	text := strings.TrimSpace(e.Text())
	if len(e.Attr) == 0 && len(children) == 0 {
		return text
	}

	out := make(map[string]any, len(e.Attr)+len(children)+1)
	for _, attr := range e.Attr {
		out[attrPrefix+attr.FullKey()] = attr.Value
	}
	for _, child := range children {
		tag := child.FullTag()
		value := elementValue(child)
		switch existing := out[tag].(type) {
		case nil:
			out[tag] = value
		case []any:
			out[tag] = append(existing, value)
		default:
			out[tag] = []any{existing, value}
		}
	}
	if text != "" {
		out[textKey] = text
	}
	return out
}

func fill(e *etree.Element, value any) {
	switch v := value.(type) {
	case nil:
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		slices.Sort(keys)

		for _, k := range keys {
			switch {
			case k == textKey:
				e.SetText(fmt.Sprint(v[k]))
			case strings.HasPrefix(k, attrPrefix):
				e.CreateAttr(strings.TrimPrefix(k, attrPrefix), fmt.Sprint(v[k]))
			default:
				if items, ok := v[k].([]any); ok {
					for _, item := range items {
						fill(e.CreateElement(k), item)
					}
					continue
				}
				fill(e.CreateElement(k), v[k])
			}
		}
	default:
		e.SetText(fmt.Sprint(v))
	}
}
