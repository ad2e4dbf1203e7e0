// Package ws is the WebSocket transport. A Conn sends views (or explicit data)
// as encoded text frames and wraps received frames in the bound view type.
package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tfkr-ae/arsenal/codec"
	"github.com/tfkr-ae/arsenal/model"
	"github.com/tfkr-ae/arsenal/transport"
)

// DefaultTimeout is how long Recv waits for a frame when no timeout is given.
const DefaultTimeout = 3 * time.Second

// ErrTimeout is returned by Recv when no frame arrives in time. The
// connection cannot be read from afterwards.
var ErrTimeout = errors.New("no message received before timeout")

// Conn is a client WebSocket connection.
type Conn struct {
	Codec   string        // Codec name used for frames
	Timeout time.Duration // Default Recv timeout

	header  http.Header
	dialer  *websocket.Dialer
	binding transport.Binding
	codecs  *codec.Registry
	logger  *slog.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn
}

// Dial connects to host joined with path. The path may hold {field}
// placeholders filled from the bound view.
func Dial(ctx context.Context, host, path string, options ...func(*Conn) error) (*Conn, error) {
	c := &Conn{
		Codec:   codec.JSON,
		Timeout: DefaultTimeout,
		header:  make(http.Header),
		dialer:  &websocket.Dialer{HandshakeTimeout: 45 * time.Second, Proxy: http.ProxyFromEnvironment},
		codecs:  codec.Default,
		logger:  slog.Default(),
	}
	for _, option := range options {
		if err := option(c); err != nil {
			return nil, fmt.Errorf("applying option on websocket : %w", err)
		}
	}

	target, err := c.binding.URL(host, path)
	if err != nil {
		return nil, err
	}

	conn, _, err := c.dialer.DialContext(ctx, target, c.header)
	if err != nil {
		return nil, fmt.Errorf("dialing %s : %w", target, err)
	}
	c.conn = conn
	c.logger.Debug("websocket connected", "url", target)
	return c, nil
}

// WithLogger sets the frame logger. A nil logger falls back to slog.Default().
func WithLogger(logger *slog.Logger) func(*Conn) error {
	return func(c *Conn) error {
		if logger == nil {
			c.logger = slog.Default()
			return nil
		}
		c.logger = logger
		return nil
	}
}

// WithCodec sets the codec frames are encoded with. The name must be
// registered.
func WithCodec(name string) func(*Conn) error {
	return func(c *Conn) error {
		if _, err := c.codecs.Lookup(name); err != nil {
			return err
		}
		c.Codec = name
		return nil
	}
}

// WithRegistry replaces the codec registry, codec.Default by default.
func WithRegistry(registry *codec.Registry) func(*Conn) error {
	return func(c *Conn) error {
		if registry == nil {
			return errors.New("codec registry is nil")
		}
		c.codecs = registry
		return nil
	}
}

// WithHeader adds a header to the opening handshake.
func WithHeader(key, value string) func(*Conn) error {
	return func(c *Conn) error {
		c.header.Add(key, value)
		return nil
	}
}

func WithTimeout(timeout time.Duration) func(*Conn) error {
	return func(c *Conn) error {
		if timeout <= 0 {
			return errors.New("timeout must be positive")
		}
		c.Timeout = timeout
		return nil
	}
}

// WithView binds the connection to a view: it is sent when Send gets nil,
// fills URL placeholders and its type wraps received frames.
func WithView(v *model.View) func(*Conn) error {
	return func(c *Conn) error {
		c.binding = transport.Bind(v)
		return nil
	}
}

// WithType binds the connection to the view type received frames are
// wrapped in.
func WithType(t *model.Type) func(*Conn) error {
	return func(c *Conn) error {
		c.binding = transport.BindType(t)
		return nil
	}
}

// Binding returns what the connection is bound to.
func (c *Conn) Binding() transport.Binding { return c.binding }

// Send encodes message, or the bound view when message is nil, and writes it
// as a text frame. The context deadline, if any, bounds the write.
func (c *Conn) Send(ctx context.Context, message any) error {
	payload := c.binding.Payload(message)
	data, err := c.codecs.Marshal(c.Codec, payload)
	if err != nil {
		return fmt.Errorf("encoding message : %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("setting write deadline : %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("sending message : %w", err)
	}
	c.logger.Debug("websocket sent", "bytes", len(data))
	return nil
}

// Recv waits up to timeout, Conn.Timeout when not positive, for a frame,
// decodes it and wraps it by the bound type.
func (c *Conn) Recv(timeout time.Duration) (any, error) {
	if timeout <= 0 {
		timeout = c.Timeout
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("setting read deadline : %w", err)
	}

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("%w: waited %s", ErrTimeout, timeout)
		}
		return nil, fmt.Errorf("receiving message : %w", err)
	}
	c.logger.Debug("websocket received", "bytes", len(data))

	raw, err := c.codecs.Unmarshal(c.Codec, data)
	if err != nil {
		return nil, fmt.Errorf("decoding message : %w", err)
	}
	wrapped, err := c.binding.Wrapper()(raw)
	if err != nil {
		return nil, fmt.Errorf("wrapping message : %w", err)
	}
	return wrapped, nil
}

// Echo sends message and returns the next frame received.
func (c *Conn) Echo(ctx context.Context, message any, timeout time.Duration) (any, error) {
	if err := c.Send(ctx, message); err != nil {
		return nil, err
	}
	return c.Recv(timeout)
}

// Close sends a normal closure frame and closes the connection.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		c.logger.Debug("sending close frame", "error", err)
	}
	c.writeMu.Unlock()

	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("closing websocket : %w", err)
	}
	return nil
}
