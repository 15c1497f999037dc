package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keeperd.yaml")
	body := "keeper_address: relay\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.NodeURL != "http://127.0.0.1:8645" {
		t.Fatalf("unexpected node url %s", cfg.NodeURL)
	}
	if cfg.KeeperAddress != "relay" {
		t.Fatalf("unexpected keeper address %s", cfg.KeeperAddress)
	}
	if cfg.interval() != time.Minute {
		t.Fatalf("unexpected interval %s", cfg.interval())
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keeperd.yaml")
	body := `node_url: http://node:8645
keeper_address: keeper
environment: prod
interval_seconds: 30
feed_id: stay-usd
validators:
  - val-1
  - val-2
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.NodeURL != "http://node:8645" {
		t.Fatalf("unexpected node url %s", cfg.NodeURL)
	}
	if cfg.interval() != 30*time.Second {
		t.Fatalf("unexpected interval %s", cfg.interval())
	}
	if len(cfg.Validators) != 2 || cfg.Validators[1] != "val-2" {
		t.Fatalf("unexpected validators %v", cfg.Validators)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
