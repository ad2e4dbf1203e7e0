package codec

import (
	"bytes"

	"github.com/gabriel-vasile/mimetype"
)

// autoCodec decodes by sniffing the content: JSON and XML are decoded as
// such, anything else falls back to plain text. It always encodes JSON.
type autoCodec struct{}

func (autoCodec) Marshal(v any) ([]byte, error) { return jsonCodec{}.Marshal(v) }

func (autoCodec) Unmarshal(data []byte) (any, error) {
	return DetectCodec(data).Unmarshal(data)
}

// DetectCodec picks the built-in codec able to decode data.
func DetectCodec(data []byte) Codec {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return rawCodec{}
	}

	mt := mimetype.Detect(trimmed)
	switch {
	case mt.Is("application/json"):
		return jsonCodec{}
	case mt.Is("text/xml"), mt.Is("application/xml"):
		return xmlCodec{}
	}

	// scalars and documents without an xml declaration are not sniffed
	if _, err := (jsonCodec{}).Unmarshal(trimmed); err == nil {
		return jsonCodec{}
	}
	if trimmed[0] == '<' {
		if _, err := (xmlCodec{}).Unmarshal(trimmed); err == nil {
			return xmlCodec{}
		}
	}
	return rawCodec{}
}
