package daemon

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/possuite/auditguard/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/srv/pos")

	if cfg.Storage.Dir != filepath.Join("/srv/pos", "data") {
		t.Errorf("Storage.Dir = %q", cfg.Storage.Dir)
	}
	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 8787 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 8787)
	}
	if !cfg.API.Metrics || !cfg.Monitor.Enabled {
		t.Error("metrics and monitor should be on by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:8787" {
		t.Errorf("Addr() = %q", cfg.Addr())
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	home := t.TempDir()
	cfg, err := LoadConfig(home)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg != DefaultConfig(home) {
		t.Errorf("missing file should give defaults, got %+v", cfg)
	}
}

func TestLoadConfig_File(t *testing.T) {
	home := t.TempDir()
	writeConfig(t, home, `
[storage]
dir = "ledger"

[api]
port = 9000
metrics = false

[monitor]
interval = "5s"

[log]
level = "debug"
format = "json"

[session]
id = "till-1"
`)
	cfg, err := LoadConfig(home)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Storage.Dir != filepath.Join(home, "ledger") {
		t.Errorf("relative dir should resolve under home, got %q", cfg.Storage.Dir)
	}
	if cfg.API.Port != 9000 || cfg.API.Metrics {
		t.Errorf("api = %+v", cfg.API)
	}
	if cfg.API.Host != "127.0.0.1" {
		t.Error("unset keys should keep their defaults")
	}
	if d, _ := cfg.MonitorInterval(); d != 5*time.Second {
		t.Errorf("MonitorInterval() = %v, want 5s", d)
	}
	if cfg.Session.ID != "till-1" {
		t.Errorf("Session.ID = %q", cfg.Session.ID)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", "[api]\nhots = \"x\"\n"},
		{"bad toml", "[api\n"},
		{"bad interval", "[monitor]\ninterval = \"soon\"\n"},
		{"bad level", "[log]\nlevel = \"loud\"\n"},
		{"bad format", "[log]\nformat = \"xml\"\n"},
		{"bad port", "[api]\nport = 70000\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := t.TempDir()
			writeConfig(t, home, tt.body)
			if _, err := LoadConfig(home); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	home := t.TempDir()
	cfg := DefaultConfig(home)
	cfg.API.Port = 9191
	cfg.Session.ID = "till-2"
	if err := SaveConfig(home, cfg); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}
	got, err := LoadConfig(home)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if got != cfg {
		t.Errorf("round trip = %+v, want %+v", got, cfg)
	}
}

func TestResolveHome(t *testing.T) {
	t.Setenv(EnvHome, "/from/env")
	if h, _ := ResolveHome("/from/flag"); h != "/from/flag" {
		t.Errorf("flag should win, got %q", h)
	}
	if h, _ := ResolveHome(""); h != "/from/env" {
		t.Errorf("env should be used, got %q", h)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig(t.TempDir())
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"
	logger := cfg.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info should be filtered at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"service":"auditguard"`) {
		t.Errorf("log output = %s", out)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	home := t.TempDir()
	cfg := DefaultConfig(home)
	cfg.API.Port = 0
	cfg.Monitor.Interval = "10ms"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, nil) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if _, err := os.Stat(cfg.Storage.Dir); err != nil {
		t.Errorf("store dir not created: %v", err)
	}
}

func writeConfig(t *testing.T, home, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(home, ConfigFileName), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}
