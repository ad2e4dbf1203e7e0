package natsq

import (
	"errors"
	"log/slog"
	"time"

	"github.com/tfkr-ae/arsenal/codec"
	"github.com/tfkr-ae/arsenal/model"
	"github.com/tfkr-ae/arsenal/transport"
)

// WithLogger sets the queue logger. A nil logger falls back to slog.Default().
func WithLogger(logger *slog.Logger) func(*Queue) error {
	return func(q *Queue) error {
		if logger == nil {
			q.logger = slog.Default()
			return nil
		}
		q.logger = logger
		return nil
	}
}

// WithCodec sets the codec message bodies use. The name must be registered.
func WithCodec(name string) func(*Queue) error {
	return func(q *Queue) error {
		if _, err := q.codecs.Lookup(name); err != nil {
			return err
		}
		q.Codec = name
		return nil
	}
}

// WithRegistry replaces the codec registry, codec.Default by default.
func WithRegistry(registry *codec.Registry) func(*Queue) error {
	return func(q *Queue) error {
		if registry == nil {
			return errors.New("codec registry is nil")
		}
		q.codecs = registry
		return nil
	}
}

func WithTimeout(timeout time.Duration) func(*Queue) error {
	return func(q *Queue) error {
		if timeout <= 0 {
			return errors.New("timeout must be positive")
		}
		q.Timeout = timeout
		return nil
	}
}

func WithPollInterval(interval time.Duration) func(*Queue) error {
	return func(q *Queue) error {
		if interval <= 0 {
			return errors.New("poll interval must be positive")
		}
		q.PollInterval = interval
		return nil
	}
}

// WithView binds the queue to a view: it is published when Publish gets nil,
// its filter fields select the message Get returns and its type wraps
// messages.
func WithView(v *model.View) func(*Queue) error {
	return func(q *Queue) error {
		q.binding = transport.Bind(v)
		return nil
	}
}

// WithType binds the queue to the view type messages are wrapped in.
func WithType(t *model.Type) func(*Queue) error {
	return func(q *Queue) error {
		q.binding = transport.BindType(t)
		return nil
	}
}
