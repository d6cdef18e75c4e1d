// Package daemon loads configuration and runs the long-lived audit service:
// the HTTP API and the real-time anomaly monitor over one store.
package daemon

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/possuite/auditguard/internal/domain"
)

// EnvHome overrides the home directory when no flag is given.
const EnvHome = "AUDITGUARD_HOME"

// ConfigFileName is the config file inside the home directory.
const ConfigFileName = "config.toml"

// Config is the daemon configuration file.
type Config struct {
	Storage StorageConfig `toml:"storage"`
	API     APIConfig     `toml:"api"`
	Monitor MonitorConfig `toml:"monitor"`
	Log     LogConfig     `toml:"log"`
	Session SessionConfig `toml:"session"`
}

// StorageConfig locates the ledger database.
type StorageConfig struct {
	Dir string `toml:"dir"` // directory holding auditguard.db
}

// APIConfig controls the HTTP API.
type APIConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Metrics bool   `toml:"metrics"` // expose /metrics
}

// MonitorConfig controls the real-time anomaly monitor.
type MonitorConfig struct {
	Enabled  bool   `toml:"enabled"`
	Interval string `toml:"interval"` // Go duration, e.g. "30s"
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // json or text
}

// SessionConfig names the session whose clock the monitor checks.
type SessionConfig struct {
	ID string `toml:"id"`
}

// DefaultConfig returns defaults for a store under home.
func DefaultConfig(home string) Config {
	return Config{
		Storage: StorageConfig{Dir: filepath.Join(home, "data")},
		API:     APIConfig{Host: "127.0.0.1", Port: 8787, Metrics: true},
		Monitor: MonitorConfig{Enabled: true, Interval: "30s"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// ResolveHome picks the home directory: flag value, then $AUDITGUARD_HOME,
// then ~/.auditguard.
func ResolveHome(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env := os.Getenv(EnvHome); env != "" {
		return env, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(userHome, ".auditguard"), nil
}

// LoadConfig reads home/config.toml over the defaults. A missing file
// yields the defaults.
func LoadConfig(home string) (Config, error) {
	cfg := DefaultConfig(home)
	path := filepath.Join(home, ConfigFileName)

	md, err := toml.DecodeFile(path, &cfg)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("%w: parse %s: %v", domain.ErrValidation, path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown config keys in %s: %v", domain.ErrValidation, path, undecoded)
	}
	if cfg.Storage.Dir != "" && !filepath.IsAbs(cfg.Storage.Dir) {
		cfg.Storage.Dir = filepath.Join(home, cfg.Storage.Dir)
	}
	return cfg, cfg.Validate()
}

// SaveConfig writes cfg to home/config.toml.
func SaveConfig(home string, cfg Config) error {
	if err := os.MkdirAll(home, 0o700); err != nil {
		return fmt.Errorf("%w: create home: %v", domain.ErrStorage, err)
	}
	f, err := os.Create(filepath.Join(home, ConfigFileName))
	if err != nil {
		return fmt.Errorf("%w: create config: %v", domain.ErrStorage, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("%w: encode config: %v", domain.ErrSerialization, err)
	}
	return nil
}

// Validate rejects unusable settings.
func (c Config) Validate() error {
	if c.Storage.Dir == "" {
		return fmt.Errorf("%w: storage.dir is required", domain.ErrValidation)
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("%w: api.port %d out of range", domain.ErrValidation, c.API.Port)
	}
	if _, err := c.MonitorInterval(); err != nil {
		return err
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q must be text or json", domain.ErrValidation, c.Log.Format)
	}
	return nil
}

// Addr is the API listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// MonitorInterval parses Monitor.Interval; empty means 30s.
func (c Config) MonitorInterval() (time.Duration, error) {
	if c.Monitor.Interval == "" {
		return 30 * time.Second, nil
	}
	d, err := time.ParseDuration(c.Monitor.Interval)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: monitor.interval %q is not a positive duration", domain.ErrValidation, c.Monitor.Interval)
	}
	return d, nil
}

// NewLogger builds the process logger from the log settings.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if c.Log.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With("service", "auditguard")
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("%w: log.level %q is not debug, info, warn or error", domain.ErrValidation, s)
}
