package rawhttp

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/beevik/etree"
	"github.com/gabriel-vasile/mimetype"
	"github.com/yosssi/gohtml"
)

// Prettify indents a JSON, XML or HTML body.
// Bodies it does not recognize produce an empty slice and no error.
func Prettify(body []byte) ([]byte, error) {
	if len(body) == 0 {
		return []byte{}, nil
	}

	trimmed := bytes.TrimSpace(body)

	var jsonData any
	if err := json.Unmarshal(trimmed, &jsonData); err == nil {
		output, err := json.MarshalIndent(jsonData, "", "  ")
		if err != nil {
			return []byte{}, fmt.Errorf("remarshalling JSON : %w", err)
		}
		return output, nil
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(trimmed); err == nil && doc.Root() != nil {
		doc.Indent(1)
		var output bytes.Buffer
		if _, err := doc.WriteTo(&output); err != nil {
			return []byte{}, fmt.Errorf("writing indented XML : %w", err)
		}
		return output.Bytes(), nil
	}

	contentType := mimetype.Detect(trimmed).String()
	if strings.Contains(contentType, "text/html") ||
		(bytes.HasPrefix(trimmed, []byte("<")) && !bytes.HasPrefix(trimmed, []byte("<?xml"))) {
		output := gohtml.FormatBytes(trimmed)
		if !bytes.Equal(output, trimmed) && len(output) > 0 {
			return output, nil
		}
	}

	return []byte{}, nil
}

// DumpResponse dumps res and puts the body back so it can still be consumed.
// The pretty dump is empty when the body cannot be prettified.
func DumpResponse(res *http.Response) (rawDump []byte, prettyDump string, err error) {
	head, err := httputil.DumpResponse(res, false)
	if err != nil {
		return []byte{}, "", fmt.Errorf("dumping response : %w", err)
	}

	body, err := readAndReset(&res.Body)
	if err != nil {
		return []byte{}, "", fmt.Errorf("reading response body : %w", err)
	}
	return dump(head, body)
}

// DumpRequest dumps req and puts the body back so it can still be sent.
func DumpRequest(req *http.Request) (rawDump []byte, prettyDump string, err error) {
	head, err := httputil.DumpRequest(req, false)
	if err != nil {
		return []byte{}, "", fmt.Errorf("dumping request : %w", err)
	}

	body, err := readAndReset(&req.Body)
	if err != nil {
		return []byte{}, "", fmt.Errorf("reading request body : %w", err)
	}
	return dump(head, body)
}

// Decompress replaces a gzip or brotli encoded response body with its decoded
// bytes, drops Content-Encoding and fixes Content-Length. Other encodings are
// left untouched.
func Decompress(res *http.Response) error {
	if res.Body == nil || res.Body == http.NoBody {
		return nil
	}

	var reader io.Reader
	switch strings.ToLower(res.Header.Get("Content-Encoding")) {
	case "gzip":
		gzipReader, err := gzip.NewReader(res.Body)
		if err != nil {
			return fmt.Errorf("creating gzip reader : %w", err)
		}
		defer gzipReader.Close()
		reader = gzipReader
	case "br":
		reader = brotli.NewReader(res.Body)
	default:
		return nil
	}
	defer res.Body.Close()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("reading %s content : %w", res.Header.Get("Content-Encoding"), err)
	}

	res.Body = io.NopCloser(bytes.NewReader(decompressed))
	res.ContentLength = int64(len(decompressed))
	res.Header.Set("Content-Length", strconv.Itoa(len(decompressed)))
	res.Header.Del("Content-Encoding")
	res.Uncompressed = true
	return nil
}

func readAndReset(body *io.ReadCloser) ([]byte, error) {
	if *body == nil || *body == http.NoBody {
		return []byte{}, nil
	}
	data, err := io.ReadAll(*body)
	if err != nil {
		return nil, err
	}
	(*body).Close()
	*body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func dump(head, body []byte) ([]byte, string, error) {
	full := make([]byte, 0, len(head)+len(body))
	full = append(full, head...)
	full = append(full, body...)

	prettified, err := Prettify(body)
	if err != nil || len(prettified) == 0 {
		return full, "", nil
	}

	pretty := make([]byte, 0, len(head)+len(prettified))
	pretty = append(pretty, head...)
	pretty = append(pretty, prettified...)
	return full, string(pretty), nil
}
