package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
version: 1
service:
  name: apiwatch
  listen: ":9090"
  schedule: "*/5 * * * *"
platform:
  base_url: https://api.example.dev
  bearer_key: env:PLATFORM_API_KEY
  privileged_key: env:PLATFORM_ADMIN_KEY
  timeout: 10s
  lock_stale_after: 2m
storage:
  path: apiwatch.db
checks:
  - id: platform-health
    type: health
  - id: table-lifecycle
    type: table
    options:
      name: probe_table
      allow_empty: false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Platform.BaseURL != "https://api.example.dev" {
		t.Fatalf("base url = %q", cfg.Platform.BaseURL)
	}
	if cfg.Platform.Timeout.Duration != 10*time.Second {
		t.Fatalf("timeout = %s", cfg.Platform.Timeout.Duration)
	}
	if cfg.Platform.LockStaleAfter.Duration != 2*time.Minute {
		t.Fatalf("lock staleness = %s", cfg.Platform.LockStaleAfter.Duration)
	}
	if cfg.Platform.BearerKey.Source != "env" || cfg.Platform.BearerKey.Value != "PLATFORM_API_KEY" {
		t.Fatalf("bearer key spec = %+v", cfg.Platform.BearerKey)
	}
	if len(cfg.Checks) != 2 || cfg.Checks[1].Options["name"] != "probe_table" {
		t.Fatalf("checks = %+v", cfg.Checks)
	}
}

func TestLoadRejectsMissingBaseURL(t *testing.T) {
	path := writeConfig(t, `
version: 1
platform:
  timeout: 5s
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing base_url")
	}
}

func TestLoadRejectsDuplicateCheckIDs(t *testing.T) {
	path := writeConfig(t, `
version: 1
platform:
  base_url: https://api.example.dev
checks:
  - id: health
    type: health
  - id: health
    type: health
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for duplicate check ids")
	}
}

func TestDurationRejectsGarbage(t *testing.T) {
	path := writeConfig(t, `
version: 1
platform:
  base_url: https://api.example.dev
  timeout: soonish
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for invalid duration")
	}
}

func TestSecretResolve(t *testing.T) {
	t.Setenv("APIWATCH_TEST_SECRET", "s3cret")
	spec := SecretSpec{Source: "env", Value: "APIWATCH_TEST_SECRET"}
	val, err := spec.Resolve("bearer_key")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if val != "s3cret" {
		t.Fatalf("value = %q", val)
	}

	missing := SecretSpec{Source: "env", Value: "APIWATCH_TEST_SECRET_MISSING"}
	if _, err := missing.Resolve("bearer_key"); err == nil {
		t.Fatalf("expected error for missing env var")
	}

	vault := SecretSpec{Source: "vault", Value: "whatever"}
	if _, err := vault.Resolve("bearer_key"); err == nil {
		t.Fatalf("expected error for unsupported source")
	}
}
