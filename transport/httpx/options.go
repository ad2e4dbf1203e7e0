package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/tfkr-ae/arsenal/codec"
	"github.com/tfkr-ae/arsenal/model"
	"github.com/tfkr-ae/arsenal/transport"
)

// WithLogger sets the logger used for request logging. A nil logger falls
// back to slog.Default().
func WithLogger(logger *slog.Logger) func(*Client) error {
	return func(c *Client) error {
		if logger == nil {
			c.logger = slog.Default()
			return nil
		}
		c.logger = logger
		return nil
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(client *http.Client) func(*Client) error {
	return func(c *Client) error {
		if client == nil {
			return errors.New("http client is nil")
		}
		c.client = client
		return nil
	}
}

func WithTimeout(timeout time.Duration) func(*Client) error {
	return func(c *Client) error {
		c.client.Timeout = timeout
		return nil
	}
}

// WithHost sets the base URL request paths are resolved against.
func WithHost(host string) func(*Client) error {
	return func(c *Client) error {
		if _, err := url.Parse(host); err != nil {
			return err
		}
		c.Host = host
		return nil
	}
}

// WithURL sets the default request path. It may contain {field} placeholders.
func WithURL(path string) func(*Client) error {
	return func(c *Client) error {
		c.URL = path
		return nil
	}
}

// WithCodec sets the default codec. The name must be registered.
func WithCodec(name string) func(*Client) error {
	return func(c *Client) error {
		if _, err := c.codecs.Lookup(name); err != nil {
			return err
		}
		c.Codec = name
		return nil
	}
}

// WithRegistry replaces the codec registry, codec.Default by default.
func WithRegistry(registry *codec.Registry) func(*Client) error {
	return func(c *Client) error {
		if registry == nil {
			return errors.New("codec registry is nil")
		}
		c.codecs = registry
		return nil
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) func(*Client) error {
	return func(c *Client) error {
		c.Header.Add(key, value)
		return nil
	}
}

// WithView binds the client to a view: it is sent when no data is given,
// fills URL placeholders and its type wraps responses.
func WithView(v *model.View) func(*Client) error {
	return func(c *Client) error {
		c.binding = transport.Bind(v)
		return nil
	}
}

// WithType binds the client to a view type used to wrap responses.
func WithType(t *model.Type) func(*Client) error {
	return func(c *Client) error {
		c.binding = transport.BindType(t)
		return nil
	}
}

type request struct {
	host     string
	url      string
	data     any
	header   http.Header
	params   url.Values
	expected int
	wrapper  transport.Wrapper
	codec    string
}

// RequestOption overrides a client default for one request.
type RequestOption func(*request)

// Data sends v instead of the bound view.
func Data(v any) RequestOption {
	return func(r *request) {
		r.data = v
	}
}

func Header(key, value string) RequestOption {
	return func(r *request) {
		r.header.Add(key, value)
	}
}

// Param adds a query parameter.
func Param(key, value string) RequestOption {
	return func(r *request) {
		r.params.Add(key, value)
	}
}

func Params(values url.Values) RequestOption {
	return func(r *request) {
		for key, vs := range values {
			for _, v := range vs {
				r.params.Add(key, v)
			}
		}
	}
}

// Expect fails the request with a *transport.StatusError unless the response
// has this status.
func Expect(status int) RequestOption {
	return func(r *request) {
		r.expected = status
	}
}

// Wrap replaces the wrapper applied to the decoded response, for example
// with another type's Wrap or transport.Identity.
func Wrap(wrapper transport.Wrapper) RequestOption {
	return func(r *request) {
		if wrapper != nil {
			r.wrapper = wrapper
		}
	}
}

// Codec overrides the codec for one request.
func Codec(name string) RequestOption {
	return func(r *request) {
		r.codec = name
	}
}

// Host overrides the base URL for one request.
func Host(host string) RequestOption {
	return func(r *request) {
		r.host = host
	}
}

// URL overrides the path for one request.
func URL(path string) RequestOption {
	return func(r *request) {
		r.url = path
	}
}
