package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("Expected default port 8000, but got %d", cfg.Server.Port)
	}
	if cfg.Server.StaticDir != "public" {
		t.Errorf("Expected static files from public, but got %q", cfg.Server.StaticDir)
	}
	if cfg.Lock.Backend != "local" {
		t.Errorf("Expected local lock backend, but got %q", cfg.Lock.Backend)
	}
	if got := cfg.Data.CampaignsPath(); got != "actions.json" {
		t.Errorf("Expected actions.json, but got %q", got)
	}
	if cfg.Gemini.Timeout != 2*time.Minute {
		t.Errorf("Expected 2m gemini timeout, but got %v", cfg.Gemini.Timeout)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9090
data:
  dir: /srv/receipts
  artifacts_dir: artifacts
lock:
  backend: redis
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Setenv("GEMINI_API_KEY", "secret")
	t.Setenv("RECEIPTS_DATA_ARTIFACT_PREFIX", "rcpt")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, but got %d", cfg.Server.Port)
	}
	if cfg.Lock.Backend != "redis" {
		t.Errorf("Expected redis lock backend, but got %q", cfg.Lock.Backend)
	}
	if cfg.Gemini.APIKey != "secret" {
		t.Errorf("Expected api key from GEMINI_API_KEY, but got %q", cfg.Gemini.APIKey)
	}
	if cfg.Data.ArtifactPrefix != "rcpt" {
		t.Errorf("Expected artifact prefix from env, but got %q", cfg.Data.ArtifactPrefix)
	}
	if got := cfg.Data.ArtifactsPath(); got != filepath.Join("/srv/receipts", "artifacts") {
		t.Errorf("Unexpected artifacts path %q", got)
	}
}

func TestLoadRejectsUnknownLockBackend(t *testing.T) {
	t.Setenv("RECEIPTS_LOCK_BACKEND", "zookeeper")

	if _, err := Load(""); err == nil {
		t.Fatal("Expected an error for unknown lock backend, but got nil")
	}
}
