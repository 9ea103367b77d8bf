package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("Storage.Driver = %q, want memory", cfg.Storage.Driver)
	}
	if cfg.Broker.PersistTimeout != 5*time.Second {
		t.Errorf("Broker.PersistTimeout = %v, want 5s", cfg.Broker.PersistTimeout)
	}
	if cfg.Auth.RevalidatePeriod != 0 {
		t.Errorf("Auth.RevalidatePeriod = %v, want 0", cfg.Auth.RevalidatePeriod)
	}
}

func TestLoadFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	yaml := `
port: 9090
mode: debug
auth:
  revalidate_period: 30s
  tokens:
    - token: AbC123xYz
      user: Alice
broker:
  persist_timeout: 250ms
storage:
  driver: bolt
  path: /tmp/x.db
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Port != 9090 || cfg.Mode != "debug" {
		t.Errorf("Port/Mode = %d/%s", cfg.Port, cfg.Mode)
	}
	if cfg.Auth.RevalidatePeriod != 30*time.Second {
		t.Errorf("RevalidatePeriod = %v", cfg.Auth.RevalidatePeriod)
	}
	if got := cfg.Auth.TokenTable(); len(got) != 1 || got["AbC123xYz"] != "Alice" {
		t.Errorf("Tokens = %v", cfg.Auth.Tokens)
	}
	if cfg.Broker.PersistTimeout != 250*time.Millisecond {
		t.Errorf("PersistTimeout = %v", cfg.Broker.PersistTimeout)
	}
	if cfg.Storage.Driver != "bolt" || cfg.Storage.Path != "/tmp/x.db" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
}

func TestLoadFileEnvOverride(t *testing.T) {
	t.Setenv("BOARD_PORT", "7070")
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Port != 7070 {
		t.Errorf("Port = %d, want 7070", cfg.Port)
	}
}

func TestLoadFileRejectsUnknownDriver(t *testing.T) {
	t.Setenv("BOARD_STORAGE_DRIVER", "sqlite")
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for unknown storage driver")
	}
}
