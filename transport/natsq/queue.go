// Package natsq is the message queue transport over NATS. A Queue publishes
// views (or explicit data) to a subject and collects messages received on it,
// wrapped in the bound view type and filtered by attributes.
//
// Received messages that do not match a filter stay buffered in the Queue and
// are offered again to later calls, so several filters can pick their own
// messages out of one subject.
package natsq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/tfkr-ae/arsenal/codec"
	"github.com/tfkr-ae/arsenal/model"
	"github.com/tfkr-ae/arsenal/transport"
)

const (
	DefaultTimeout      = 3 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
)

// fetchTimeout bounds each wait for a single message while draining.
const fetchTimeout = 10 * time.Millisecond

var (
	// ErrNoMessages is returned when no message matches before the deadline.
	ErrNoMessages = errors.New("no messages matching the filter criteria")
	// ErrNotSingle is returned by Get when the filter matches several
	// messages.
	ErrNotSingle = errors.New("messages count is not 1")
)

// source is what a Queue reads messages from. *nats.Subscription implements
// it.
type source interface {
	NextMsg(timeout time.Duration) (*nats.Msg, error)
}

// Queue is a subscription to one subject plus the buffer of received
// messages not yet handed out.
type Queue struct {
	Subject      string
	Codec        string        // Codec name used for message bodies
	Timeout      time.Duration // How long All waits for a matching message
	PollInterval time.Duration // Pause between polls while waiting

	conn     *nats.Conn
	ownsConn bool
	sub      *nats.Subscription
	binding  transport.Binding
	codecs   *codec.Registry
	logger   *slog.Logger

	mu      sync.Mutex
	src     source
	pending []any
}

// Connect dials the NATS server at url and subscribes to subject. Close
// also closes the connection.
func Connect(url, subject string, options ...func(*Queue) error) (*Queue, error) {
	conn, err := nats.Connect(url,
		nats.Name("arsenal"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s : %w", url, err)
	}

	q, err := New(conn, subject, options...)
	if err != nil {
		conn.Close()
		return nil, err
	}
	q.ownsConn = true
	return q, nil
}

// New subscribes to subject on an existing connection.
func New(conn *nats.Conn, subject string, options ...func(*Queue) error) (*Queue, error) {
	if conn == nil {
		return nil, errors.New("nats connection is nil")
	}
	q, err := newQueue(subject, options)
	if err != nil {
		return nil, err
	}

	sub, err := conn.SubscribeSync(subject)
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s : %w", subject, err)
	}
	q.conn = conn
	q.sub = sub
	q.src = sub
	return q, nil
}

func newQueue(subject string, options []func(*Queue) error) (*Queue, error) {
	q := &Queue{
		Subject:      subject,
		Codec:        codec.JSON,
		Timeout:      DefaultTimeout,
		PollInterval: DefaultPollInterval,
		codecs:       codec.Default,
		logger:       slog.Default(),
	}
	for _, option := range options {
		if err := option(q); err != nil {
			return nil, fmt.Errorf("applying option on queue %s : %w", subject, err)
		}
	}
	return q, nil
}

// Binding returns what the queue is bound to.
func (q *Queue) Binding() transport.Binding { return q.binding }

// Publish encodes message, or the bound view when message is nil, publishes
// it to the queue's subject and flushes the connection.
func (q *Queue) Publish(ctx context.Context, message any) error {
	if q.conn == nil {
		return errors.New("queue has no connection")
	}
	data, err := q.codecs.Marshal(q.Codec, q.binding.Payload(message))
	if err != nil {
		return fmt.Errorf("encoding message : %w", err)
	}

	if err := q.conn.Publish(q.Subject, data); err != nil {
		return fmt.Errorf("publishing to %s : %w", q.Subject, err)
	}
	if _, ok := ctx.Deadline(); ok {
		err = q.conn.FlushWithContext(ctx)
	} else {
		err = q.conn.Flush()
	}
	if err != nil {
		return fmt.Errorf("flushing %s : %w", q.Subject, err)
	}
	q.logger.Debug("published message", "subject", q.Subject, "bytes", len(data))
	return nil
}

// All waits until at least one buffered or newly received message matches
// filter and returns every match, removed from the buffer and passed through
// the bound type's wrapper as a list. It gives up with ErrNoMessages after
// Timeout or at the context deadline, whichever comes first.
func (q *Queue) All(ctx context.Context, filter map[string]any) (any, error) {
	matched, err := q.poll(ctx, filter)
	if err != nil {
		return nil, err
	}
	wrapped, err := q.binding.Wrapper()(matched)
	if err != nil {
		return nil, fmt.Errorf("wrapping messages of %s : %w", q.Subject, err)
	}
	return wrapped, nil
}

// Get is All filtered by the bound view's filter criteria merged with filter,
// explicit criteria winning, for exactly one message. Matching messages are
// consumed even when there are several.
func (q *Queue) Get(ctx context.Context, filter map[string]any) (any, error) {
	matched, err := q.poll(ctx, q.binding.Criteria(false, filter))
	if err != nil {
		return nil, err
	}
	if len(matched) != 1 {
		return nil, fmt.Errorf("%w: %s matched %d messages", ErrNotSingle, q.Subject, len(matched))
	}
	wrapped, err := q.binding.Wrapper()(matched[0])
	if err != nil {
		return nil, fmt.Errorf("wrapping message of %s : %w", q.Subject, err)
	}
	return wrapped, nil
}

// Purge drops every buffered and waiting message and returns how many there
// were.
func (q *Queue) Purge() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.drain(); err != nil {
		return 0, err
	}
	n := len(q.pending)
	q.pending = nil
	return n, nil
}

// Close unsubscribes, and closes the connection when Connect opened it.
func (q *Queue) Close() error {
	if q.sub != nil {
		if err := q.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			return fmt.Errorf("unsubscribing from %s : %w", q.Subject, err)
		}
	}
	if q.ownsConn {
		q.conn.Close()
	}
	return nil
}

func (q *Queue) poll(ctx context.Context, criteria map[string]any) ([]any, error) {
	deadline := time.Now().Add(q.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	for {
		matched, err := q.collect(criteria)
		if err != nil {
			return nil, err
		}
		if len(matched) > 0 {
			return matched, nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s after %s", ErrNoMessages, q.Subject, q.Timeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(min(q.PollInterval, time.Until(deadline))):
		}
	}
}

// collect drains the source into the buffer and takes out the messages
// matching criteria.
func (q *Queue) collect(criteria map[string]any) ([]any, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.drain(); err != nil {
		return nil, err
	}

	wrap := q.binding.Wrapper()
	var matched []any
	kept := q.pending[:0]
	for _, raw := range q.pending {
		wrapped, err := wrap(raw)
		if err == nil && model.Matches(wrapped, criteria) {
			matched = append(matched, raw)
			continue
		}
		kept = append(kept, raw)
	}
	clear(q.pending[len(kept):])
	q.pending = kept
	return matched, nil
}

func (q *Queue) drain() error {
	for {
		msg, err := q.src.NextMsg(fetchTimeout)
		if errors.Is(err, nats.ErrTimeout) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("receiving from %s : %w", q.Subject, err)
		}

		raw, err := q.codecs.Unmarshal(q.Codec, msg.Data)
		if err != nil {
			q.logger.Warn("dropping undecodable message", "subject", q.Subject, "error", err)
			continue
		}
		q.pending = append(q.pending, raw)
	}
}
