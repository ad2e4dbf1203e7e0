// Package httpx is the HTTP transport: it sends a view (or explicit data)
// encoded with a codec, checks the response status and wraps the decoded
// response body in the bound view type.
package httpx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/tfkr-ae/arsenal/codec"
	"github.com/tfkr-ae/arsenal/model"
	"github.com/tfkr-ae/arsenal/rawhttp"
	"github.com/tfkr-ae/arsenal/transport"
)

var contentTypes = map[string]string{
	codec.JSON: "application/json",
	codec.YAML: "application/yaml",
	codec.XML:  "application/xml",
	codec.Auto: "application/json",
}

// Client sends requests built from its defaults and per request options.
type Client struct {
	Host   string      // Base URL paths are resolved against
	URL    string      // Default path, may hold {field} placeholders
	Codec  string      // Codec name used for request and response bodies
	Header http.Header // Headers sent with every request

	binding transport.Binding
	client  *http.Client
	codecs  *codec.Registry
	logger  *slog.Logger
}

// New creates a Client using the JSON codec and a default http.Client.
func New(options ...func(*Client) error) (*Client, error) {
	c := &Client{
		Codec:  codec.JSON,
		Header: make(http.Header),
		client: &http.Client{Timeout: 30 * time.Second},
		codecs: codec.Default,
		logger: slog.Default(),
	}
	if err := c.WithOptions(options...); err != nil {
		return nil, err
	}
	return c, nil
}

// WithOptions applies options in order and stops at the first error.
func (c *Client) WithOptions(options ...func(*Client) error) error {
	for _, option := range options {
		if err := option(c); err != nil {
			return fmt.Errorf("applying option on http client : %w", err)
		}
	}
	return nil
}

// Binding returns what the client is bound to.
func (c *Client) Binding() transport.Binding { return c.binding }

// Get sends a GET request. The other verb methods behave the same way.
func (c *Client) Get(ctx context.Context, opts ...RequestOption) (any, error) {
	return c.Do(ctx, http.MethodGet, opts...)
}

func (c *Client) Post(ctx context.Context, opts ...RequestOption) (any, error) {
	return c.Do(ctx, http.MethodPost, opts...)
}

func (c *Client) Put(ctx context.Context, opts ...RequestOption) (any, error) {
	return c.Do(ctx, http.MethodPut, opts...)
}

func (c *Client) Patch(ctx context.Context, opts ...RequestOption) (any, error) {
	return c.Do(ctx, http.MethodPatch, opts...)
}

func (c *Client) Delete(ctx context.Context, opts ...RequestOption) (any, error) {
	return c.Do(ctx, http.MethodDelete, opts...)
}

func (c *Client) Head(ctx context.Context, opts ...RequestOption) (any, error) {
	return c.Do(ctx, http.MethodHead, opts...)
}

func (c *Client) Options(ctx context.Context, opts ...RequestOption) (any, error) {
	return c.Do(ctx, http.MethodOptions, opts...)
}

// Do sends the request, checks the expected status, decodes the body and
// passes it through the wrapper: a *model.View or *model.Sequence[*model.View]
// when the client is bound to a type, the decoded raw value otherwise.
func (c *Client) Do(ctx context.Context, method string, opts ...RequestOption) (any, error) {
	r := c.newRequest(opts)
	req, data, err := c.build(ctx, method, r)
	if err != nil {
		return nil, err
	}

	res, err := c.send(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if err := transport.CheckStatus(req, res, data, r.expected); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body : %w", err)
	}

	var raw any
	if len(bytes.TrimSpace(body)) > 0 {
		raw, err = c.codecs.Unmarshal(r.codec, body)
		if err != nil {
			return nil, fmt.Errorf("decoding response of %s %s : %w", method, req.URL, err)
		}
	}

	wrapped, err := r.wrapper(raw)
	if err != nil {
		return nil, fmt.Errorf("wrapping response of %s %s : %w", method, req.URL, err)
	}
	return wrapped, nil
}

// DoRaw sends the request and returns the response untouched apart from
// decompression. Expected status and wrapper options are ignored.
// The caller closes the body.
func (c *Client) DoRaw(ctx context.Context, method string, opts ...RequestOption) (*http.Response, error) {
	req, _, err := c.build(ctx, method, c.newRequest(opts))
	if err != nil {
		return nil, err
	}
	return c.send(req)
}

// View is Do for responses holding a single mapping.
func (c *Client) View(ctx context.Context, method string, opts ...RequestOption) (*model.View, error) {
	wrapped, err := c.Do(ctx, method, opts...)
	if err != nil {
		return nil, err
	}
	v, ok := wrapped.(*model.View)
	if !ok {
		return nil, fmt.Errorf("%w: %s response wrapped as %T", model.ErrInvalidStoreShape, method, wrapped)
	}
	return v, nil
}

// List is Do for responses holding a list of mappings.
func (c *Client) List(ctx context.Context, method string, opts ...RequestOption) (*model.Sequence[*model.View], error) {
	wrapped, err := c.Do(ctx, method, opts...)
	if err != nil {
		return nil, err
	}
	seq, ok := wrapped.(*model.Sequence[*model.View])
	if !ok {
		return nil, fmt.Errorf("%w: %s response wrapped as %T", model.ErrInvalidStoreShape, method, wrapped)
	}
	return seq, nil
}

func (c *Client) newRequest(opts []RequestOption) *request {
	r := &request{
		host:    c.Host,
		url:     c.URL,
		codec:   c.Codec,
		header:  make(http.Header),
		params:  make(url.Values),
		wrapper: c.binding.Wrapper(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (c *Client) build(ctx context.Context, method string, r *request) (*http.Request, []byte, error) {
	target, err := c.binding.URL(r.host, r.url)
	if err != nil {
		return nil, nil, err
	}

	var data []byte
	if payload := c.binding.Payload(r.data); payload != nil {
		data, err = c.codecs.Marshal(r.codec, payload)
		if err != nil {
			return nil, nil, fmt.Errorf("encoding %s %s body : %w", method, target, err)
		}
	}

	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s request to %s : %w", method, target, err)
	}

	for key, values := range c.Header {
		req.Header[key] = append([]string(nil), values...)
	}
	for key, values := range r.header {
		req.Header[key] = append([]string(nil), values...)
	}
	if ct, ok := contentTypes[r.codec]; ok && data != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", ct)
	}

	if len(r.params) > 0 {
		query := req.URL.Query()
		for key, values := range r.params {
			for _, value := range values {
				query.Add(key, value)
			}
		}
		req.URL.RawQuery = query.Encode()
	}
	return req, data, nil
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	start := time.Now()
	c.logger.Debug("sending request", "method", req.Method, "url", req.URL.String())

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending %s %s : %w", req.Method, req.URL, err)
	}

	if err := rawhttp.Decompress(res); err != nil {
		res.Body.Close()
		return nil, fmt.Errorf("decompressing response of %s %s : %w", req.Method, req.URL, err)
	}

	c.logger.Debug("received response",
		"method", req.Method,
		"url", req.URL.String(),
		"status", res.StatusCode,
		"duration", time.Since(start),
	)
	return res, nil
}
