package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultAppliesDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Transport != "pipe" || cfg.IDAllocator != "uuid" || cfg.Seed != "ledger" {
		t.Fatalf("got %#v", cfg)
	}
}

func TestLoadAppliesDefaultsForMissingFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peer.json")
	raw, err := json.Marshal(map[string]any{
		"role":      "client",
		"transport": "tcp",
		"tcp":       map[string]string{"dialAddr": "127.0.0.1:9800"},
	})
	if err != nil {
		t.Fatalf("marshal fixture: %s", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write fixture: %s", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %s", err)
	}
	if cfg.Role != "client" || cfg.Transport != "tcp" || cfg.TCP.DialAddr != "127.0.0.1:9800" {
		t.Fatalf("got %#v", cfg)
	}
	// Seed and IDAllocator were omitted from the fixture, so applyDefaults
	// must have filled them in.
	if cfg.Seed != "ledger" || cfg.IDAllocator != "uuid" {
		t.Fatalf("defaults not applied: %#v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/peer.json"); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
