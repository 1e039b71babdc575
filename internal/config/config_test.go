package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("A missing config file should not be an error: %v", err)
	}

	if cfg.Server.Port != 4000 {
		t.Errorf("Expected default port 4000, got %d", cfg.Server.Port)
	}
	if cfg.Store.Path != "data/sessions.db" {
		t.Errorf("Unexpected default store path: %q", cfg.Store.Path)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("Unexpected default token TTL: %v", cfg.Auth.TokenTTL)
	}
	if cfg.Webhook.Timeout != 30*time.Second {
		t.Errorf("Unexpected default webhook timeout: %v", cfg.Webhook.Timeout)
	}
	if cfg.Addr() != "0.0.0.0:4000" {
		t.Errorf("Unexpected default address: %q", cfg.Addr())
	}
}

func TestLoadYAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 8080
  public_dir: /srv/dashboard
auth:
  username: admin
  token_ttl: 1h
bridge:
  url: http://bridge:3000
n8n:
  api_url: http://n8n:5678/api/v1
  api_key: secret-key
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.PublicDir != "/srv/dashboard" {
		t.Errorf("Unexpected public dir: %q", cfg.Server.PublicDir)
	}
	if cfg.Auth.Username != "admin" {
		t.Errorf("Unexpected username: %q", cfg.Auth.Username)
	}
	if cfg.Auth.TokenTTL != time.Hour {
		t.Errorf("Unexpected token TTL: %v", cfg.Auth.TokenTTL)
	}
	if cfg.Bridge.URL != "http://bridge:3000" {
		t.Errorf("Unexpected bridge URL: %q", cfg.Bridge.URL)
	}
	if cfg.N8N.APIKey != "secret-key" {
		t.Errorf("Unexpected n8n key: %q", cfg.N8N.APIKey)
	}
	// Untouched sections keep their defaults.
	if cfg.Store.Path != "data/sessions.db" {
		t.Errorf("Store path should keep its default, got %q", cfg.Store.Path)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	t.Setenv("DASHBOARD_PORT", "9999")
	t.Setenv("CLEVIO_USERNAME", "ops")
	t.Setenv("CLEVIO_PASSWORD", "hunter2")
	t.Setenv("SESSION_SECRET", "not keyboard cat")
	t.Setenv("DB_PATH", "/tmp/x.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Env port should win over file, got %d", cfg.Server.Port)
	}
	if cfg.Auth.Username != "ops" || cfg.Auth.Password != "hunter2" {
		t.Errorf("Env credentials not applied: %q/%q", cfg.Auth.Username, cfg.Auth.Password)
	}
	if cfg.Auth.TokenSecret != "not keyboard cat" {
		t.Errorf("Env secret not applied: %q", cfg.Auth.TokenSecret)
	}
	if cfg.Store.Path != "/tmp/x.db" {
		t.Errorf("Env db path not applied: %q", cfg.Store.Path)
	}
}

func TestInvalidPortEnvIgnored(t *testing.T) {
	t.Setenv("DASHBOARD_PORT", "not-a-number")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("Unparseable port should fall back to the default, got %d", cfg.Server.Port)
	}
}

func TestMalformedYAMLIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a mapping"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected an error for malformed yaml")
	}
}
