// Package arsenal builds transports bound to views from one configuration.
//
// The typed view layer lives in package model, the transports under
// transport/. An Arsenal holds the configuration, logger and codec registry
// they share and hands out transports bound to a view instance, whose data is
// sent and whose filter fields select, or to a view type, which wraps what is
// received.
package arsenal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/tfkr-ae/arsenal/codec"
	"github.com/tfkr-ae/arsenal/model"
	"github.com/tfkr-ae/arsenal/transport/httpx"
	"github.com/tfkr-ae/arsenal/transport/natsq"
	"github.com/tfkr-ae/arsenal/transport/sqldb"
	"github.com/tfkr-ae/arsenal/transport/ws"
)

// ErrInvalidBinding is returned when a transport is bound to something other
// than a *model.View, a *model.Type or nil.
var ErrInvalidBinding = errors.New("transports bind to a *model.View or *model.Type")

type Arsenal struct {
	Config *Config
	Logger *slog.Logger
	Codecs *codec.Registry

	dbMu sync.Mutex
	db   *sqlx.DB
}

// New creates an Arsenal with the default configuration, slog.Default() and
// codec.Default, then applies options.
func New(options ...func(*Arsenal) error) (*Arsenal, error) {
	a := &Arsenal{
		Config: DefaultConfig(),
		Logger: slog.Default(),
		Codecs: codec.Default,
	}
	if err := a.WithOptions(options...); err != nil {
		return nil, err
	}
	return a, nil
}

// WithOptions applies options in order and stops at the first error.
func (a *Arsenal) WithOptions(options ...func(*Arsenal) error) error {
	for _, option := range options {
		if err := option(a); err != nil {
			return fmt.Errorf("applying option on arsenal : %w", err)
		}
	}
	return nil
}

// HTTP returns an HTTP client configured from the http section and bound to
// target. Options run after the configured ones and can override them.
func (a *Arsenal) HTTP(target any, options ...func(*httpx.Client) error) (*httpx.Client, error) {
	cfg := a.Config.HTTP
	base := []func(*httpx.Client) error{
		httpx.WithLogger(a.Logger),
		httpx.WithRegistry(a.Codecs),
		httpx.WithHost(cfg.Host),
		httpx.WithCodec(cfg.Codec),
		httpx.WithTimeout(cfg.Timeout),
	}
	for key, value := range cfg.Headers {
		base = append(base, httpx.WithHeader(key, value))
	}
	if cfg.ChromeFingerprint {
		base = append(base, httpx.WithChromeFingerprint(cfg.InsecureSkipVerify))
	}

	switch t := target.(type) {
	case nil:
	case *model.View:
		base = append(base, httpx.WithView(t))
	case *model.Type:
		base = append(base, httpx.WithType(t))
	default:
		return nil, fmt.Errorf("%w: got %T", ErrInvalidBinding, target)
	}
	return httpx.New(append(base, options...)...)
}

// DB opens the database of the db section on first use, applying the goose
// migrations found under its migrations directory when one is set.
func (a *Arsenal) DB() (*sqlx.DB, error) {
	a.dbMu.Lock()
	defer a.dbMu.Unlock()

	if a.db != nil {
		return a.db, nil
	}
	var db *sqlx.DB
	var err error
	if dir := a.Config.DB.Migrations; dir != "" {
		db, err = sqldb.Open(a.Config.DB.Path, os.DirFS(dir))
	} else {
		db, err = sqldb.Open(a.Config.DB.Path, nil)
	}
	if err != nil {
		return nil, err
	}
	a.Logger.Debug("opened database", "path", a.Config.DB.Path)
	a.db = db
	return db, nil
}

// Table returns the named table of DB bound to target.
func (a *Arsenal) Table(name string, target any, options ...func(*sqldb.Table) error) (*sqldb.Table, error) {
	base := []func(*sqldb.Table) error{sqldb.WithLogger(a.Logger)}
	switch t := target.(type) {
	case nil:
	case *model.View:
		base = append(base, sqldb.WithView(t))
	case *model.Type:
		base = append(base, sqldb.WithType(t))
	default:
		return nil, fmt.Errorf("%w: got %T", ErrInvalidBinding, target)
	}

	db, err := a.DB()
	if err != nil {
		return nil, err
	}
	return sqldb.NewTable(db, name, append(base, options...)...)
}

// WebSocket dials path on the websocket section's host, bound to target.
func (a *Arsenal) WebSocket(ctx context.Context, path string, target any, options ...func(*ws.Conn) error) (*ws.Conn, error) {
	cfg := a.Config.WebSocket
	base := []func(*ws.Conn) error{
		ws.WithLogger(a.Logger),
		ws.WithRegistry(a.Codecs),
		ws.WithCodec(cfg.Codec),
		ws.WithTimeout(cfg.Timeout),
	}
	switch t := target.(type) {
	case nil:
	case *model.View:
		base = append(base, ws.WithView(t))
	case *model.Type:
		base = append(base, ws.WithType(t))
	default:
		return nil, fmt.Errorf("%w: got %T", ErrInvalidBinding, target)
	}
	return ws.Dial(ctx, cfg.Host, path, append(base, options...)...)
}

// Queue connects to the nats section's server and subscribes to subject, the
// configured subject when empty, bound to target.
func (a *Arsenal) Queue(subject string, target any, options ...func(*natsq.Queue) error) (*natsq.Queue, error) {
	cfg := a.Config.NATS
	if subject == "" {
		subject = cfg.Subject
	}
	if subject == "" {
		return nil, errors.New("queue subject is empty")
	}

	base := []func(*natsq.Queue) error{
		natsq.WithLogger(a.Logger),
		natsq.WithRegistry(a.Codecs),
		natsq.WithCodec(cfg.Codec),
		natsq.WithTimeout(cfg.Timeout),
		natsq.WithPollInterval(cfg.PollInterval),
	}
	switch t := target.(type) {
	case nil:
	case *model.View:
		base = append(base, natsq.WithView(t))
	case *model.Type:
		base = append(base, natsq.WithType(t))
	default:
		return nil, fmt.Errorf("%w: got %T", ErrInvalidBinding, target)
	}
	return natsq.Connect(cfg.URL, subject, append(base, options...)...)
}

// Close closes the database if DB opened one.
func (a *Arsenal) Close() error {
	a.dbMu.Lock()
	defer a.dbMu.Unlock()

	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	if err != nil {
		return fmt.Errorf("closing db : %w", err)
	}
	return nil
}
