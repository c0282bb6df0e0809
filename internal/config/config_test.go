package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Network.MDNSServiceName != "sdn-trust-mdns" {
		t.Errorf("MDNSServiceName = %q, want default", cfg.Network.MDNSServiceName)
	}
	if time.Duration(cfg.Overlay.QueryTimeout) != 30*time.Second {
		t.Errorf("QueryTimeout = %v, want 30s", time.Duration(cfg.Overlay.QueryTimeout))
	}
	if cfg.Network.Rendezvous != "sdn-trust" {
		t.Errorf("Rendezvous = %q, want default", cfg.Network.Rendezvous)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Network.Listen = []string{"/ip4/127.0.0.1/tcp/4101"}
	cfg.Overlay.PublishRetry = Duration(45 * time.Second)
	cfg.Identity.Deterministic = true
	cfg.Metrics.Enabled = true

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Network.Listen) != 1 || loaded.Network.Listen[0] != "/ip4/127.0.0.1/tcp/4101" {
		t.Errorf("Listen = %v", loaded.Network.Listen)
	}
	if time.Duration(loaded.Overlay.PublishRetry) != 45*time.Second {
		t.Errorf("PublishRetry = %v, want 45s", time.Duration(loaded.Overlay.PublishRetry))
	}
	if !loaded.Identity.Deterministic {
		t.Error("Deterministic was not persisted")
	}
	if !loaded.Metrics.Enabled {
		t.Error("Metrics.Enabled was not persisted")
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("overlay:\n  query_timeout: 5s\nlog:\n  level: debug\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if time.Duration(cfg.Overlay.QueryTimeout) != 5*time.Second {
		t.Errorf("QueryTimeout = %v, want 5s", time.Duration(cfg.Overlay.QueryTimeout))
	}
	if time.Duration(cfg.Overlay.RecordMaxAge) != 36*time.Hour {
		t.Errorf("RecordMaxAge = %v, want default 36h", time.Duration(cfg.Overlay.RecordMaxAge))
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("overlay:\n  query_timeout: soon\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid duration")
	}
}
