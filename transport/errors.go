package transport

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tfkr-ae/arsenal/rawhttp"
)

// ErrUnexpectedStatus is matched by every *StatusError.
var ErrUnexpectedStatus = errors.New("unexpected response status")

// StatusError reports a response whose status differs from the expected one,
// together with the request that produced it.
type StatusError struct {
	Method   string
	URL      string
	Header   http.Header
	Params   url.Values
	Data     []byte
	Expected int
	Actual   int
	// Response is the dumped response, prettified when the body allows it.
	Response string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf(
		"\nMethod: %s\nResponse: %s\nExpected response code: %d\nActual response code: %d\nUrl: %s\nHeaders: %v\nParams: %v\nData: %s\n",
		e.Method, e.Response, e.Expected, e.Actual, e.URL, e.Header, e.Params, e.Data,
	)
}

func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }

// CheckStatus returns a *StatusError when expected is set and res carries
// another status. data is the body that was sent with req.
func CheckStatus(req *http.Request, res *http.Response, data []byte, expected int) error {
	if expected == 0 || res.StatusCode == expected {
		return nil
	}

	rawDump, prettyDump, err := rawhttp.DumpResponse(res)
	if err != nil {
		return fmt.Errorf("reporting status %d : %w", res.StatusCode, err)
	}
	dump := prettyDump
	if dump == "" {
		dump = string(rawDump)
	}

	return &StatusError{
		Method:   req.Method,
		URL:      req.URL.String(),
		Header:   req.Header.Clone(),
		Params:   req.URL.Query(),
		Data:     data,
		Expected: expected,
		Actual:   res.StatusCode,
		Response: dump,
	}
}
