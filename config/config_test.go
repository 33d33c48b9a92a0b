package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/oguzhankir/ai-gateway/config"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	os.Chdir(dir)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cache.SimilarityThreshold != 0.95 {
		t.Fatalf("expected default similarity threshold 0.95, got %v", cfg.Cache.SimilarityThreshold)
	}
	if !cfg.RateLimiting.Enabled {
		t.Fatalf("expected rate limiting enabled by default")
	}
}

func TestLoadYAMLOverlayAndEnvSubstitution(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	os.Chdir(dir)

	os.Setenv("TEST_ADMIN_KEY", "sk-admin-secret")
	defer os.Unsetenv("TEST_ADMIN_KEY")

	base := `
admin_key: "${TEST_ADMIN_KEY}"
cache:
  similarity_threshold: 0.80
budget:
  default_limit: 25.5
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(base), 0o644); err != nil {
		t.Fatal(err)
	}

	os.Setenv("ENV", "staging")
	defer os.Unsetenv("ENV")
	overlay := `
cache:
  similarity_threshold: 0.90
`
	if err := os.WriteFile(filepath.Join(dir, "config.staging.yaml"), []byte(overlay), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AdminKey != "sk-admin-secret" {
		t.Fatalf("expected env substitution, got %q", cfg.AdminKey)
	}
	if cfg.Cache.SimilarityThreshold != 0.90 {
		t.Fatalf("expected overlay to win, got %v", cfg.Cache.SimilarityThreshold)
	}
	if cfg.Budget.DefaultLimitUSD != 25.5 {
		t.Fatalf("expected base value to survive overlay merge, got %v", cfg.Budget.DefaultLimitUSD)
	}
}

func TestGetDotPath(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	os.Chdir(dir)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := cfg.Get("cache.enabled", false)
	if got != true {
		t.Fatalf("expected cache.enabled true, got %v", got)
	}
	missing := cfg.Get("cache.nonexistent", "fallback")
	if missing != "fallback" {
		t.Fatalf("expected fallback for missing path, got %v", missing)
	}
}
