package arsenal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/tfkr-ae/arsenal/codec"
)

// WithLogger sets the logger handed to every transport. A nil logger falls
// back to slog.Default().
func WithLogger(logger *slog.Logger) func(*Arsenal) error {
	return func(a *Arsenal) error {
		if logger == nil {
			a.Logger = slog.Default()
			return nil
		}
		a.Logger = logger
		return nil
	}
}

// WithTextLogger logs as text to w at the configured log level. It reads the
// level when applied, so it goes after WithConfig or WithConfigDir.
func WithTextLogger(w io.Writer) func(*Arsenal) error {
	return func(a *Arsenal) error {
		if w == nil {
			return errors.New("log writer is nil")
		}
		a.Logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: a.Config.Level()}))
		return nil
	}
}

func WithConfig(cfg *Config) func(*Arsenal) error {
	return func(a *Arsenal) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		a.Config = cfg
		return nil
	}
}

// WithConfigDir loads the configuration from appConfigDir, creating the
// directory if it does not exist.
func WithConfigDir(appConfigDir string) func(*Arsenal) error {
	return func(a *Arsenal) error {
		_, err := os.ReadDir(appConfigDir)
		if err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("checking if directory exists %s: %w", appConfigDir, err)
			}
			if err := os.MkdirAll(appConfigDir, 0700); err != nil {
				return fmt.Errorf("creating config dir %s: %w", appConfigDir, err)
			}
		}

		cfg, err := LoadConfig(appConfigDir)
		if err != nil {
			return err
		}
		a.Config = cfg
		return nil
	}
}

// WithRegistry replaces the codec registry shared by the transports.
func WithRegistry(registry *codec.Registry) func(*Arsenal) error {
	return func(a *Arsenal) error {
		if registry == nil {
			return errors.New("codec registry is nil")
		}
		a.Codecs = registry
		return nil
	}
}
