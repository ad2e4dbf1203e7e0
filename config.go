package arsenal

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configName = "arsenal"
	envPrefix  = "ARSENAL"
)

type HTTPConfig struct {
	Host               string            `mapstructure:"host"`                 // Base URL request paths are resolved against
	Codec              string            `mapstructure:"codec"`                // Body codec name
	Timeout            time.Duration     `mapstructure:"timeout"`              // Client timeout
	Headers            map[string]string `mapstructure:"headers"`              // Headers sent with every request
	ChromeFingerprint  bool              `mapstructure:"chrome_fingerprint"`   // Use a Chrome TLS ClientHello
	InsecureSkipVerify bool              `mapstructure:"insecure_skip_verify"` // Only applies with chrome_fingerprint
}

type DBConfig struct {
	Path       string `mapstructure:"path"`       // SQLite database file
	Migrations string `mapstructure:"migrations"` // Directory holding a migrations/ directory of goose files
}

type WebSocketConfig struct {
	Host    string        `mapstructure:"host"`
	Codec   string        `mapstructure:"codec"`
	Timeout time.Duration `mapstructure:"timeout"` // Default receive timeout
}

type NATSConfig struct {
	URL          string        `mapstructure:"url"`
	Subject      string        `mapstructure:"subject"` // Default subject
	Codec        string        `mapstructure:"codec"`
	Timeout      time.Duration `mapstructure:"timeout"`       // How long to wait for matching messages
	PollInterval time.Duration `mapstructure:"poll_interval"` // Pause between polls
}

// Config holds the defaults the transports are built with.
type Config struct {
	viper     *viper.Viper
	ConfigDir string          `mapstructure:"config_dir"`
	LogLevel  string          `mapstructure:"log_level"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	DB        DBConfig        `mapstructure:"db"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	NATS      NATSConfig      `mapstructure:"nats"`
}

// LoadConfig reads arsenal.yaml from dir over the defaults, then applies
// ARSENAL_* environment variables, with dots in keys written as underscores
// (ARSENAL_HTTP_HOST sets http.host). A missing file leaves the defaults.
func LoadConfig(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	v.SetDefault("config_dir", dir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file : %w", err)
		}
	}

	cfg := &Config{viper: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config to struct : %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns the defaults LoadConfig starts from.
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)

	cfg := &Config{viper: v}
	// Unmarshalling plain defaults cannot fail.
	v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("http.host", "")
	v.SetDefault("http.codec", "json")
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.headers", map[string]string{})
	v.SetDefault("http.chrome_fingerprint", false)
	v.SetDefault("http.insecure_skip_verify", false)

	v.SetDefault("db.path", "arsenal.db")
	v.SetDefault("db.migrations", "")

	v.SetDefault("websocket.host", "")
	v.SetDefault("websocket.codec", "json")
	v.SetDefault("websocket.timeout", 3*time.Second)

	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.subject", "")
	v.SetDefault("nats.codec", "json")
	v.SetDefault("nats.timeout", 3*time.Second)
	v.SetDefault("nats.poll_interval", 100*time.Millisecond)
}

// Level parses LogLevel, falling back to info for unknown names.
func (cfg *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Set changes a key and refreshes the struct fields.
func (cfg *Config) Set(key string, value any) error {
	cfg.viper.Set(key, value)
	if err := cfg.viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unmarshalling config to struct : %w", err)
	}
	return nil
}

// Write saves the current configuration to arsenal.yaml in ConfigDir.
func (cfg *Config) Write() error {
	if cfg.ConfigDir == "" {
		return errors.New("config has no directory")
	}
	path := filepath.Join(cfg.ConfigDir, configName+".yaml")
	if err := cfg.viper.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config file %s : %w", path, err)
	}
	return nil
}
