package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8000" {
		t.Errorf("expected port 8000, got %s", cfg.Server.Port)
	}
	if cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("expected cache TTL 24h, got %v", cfg.Cache.TTL)
	}
	if cfg.Agent.StepBudget != 8 {
		t.Errorf("expected step budget 8, got %d", cfg.Agent.StepBudget)
	}
	if cfg.Agent.HardCap != 16 {
		t.Errorf("expected hard cap 16, got %d", cfg.Agent.HardCap)
	}
	if cfg.Grounding.MaxDistance != 3 {
		t.Errorf("expected grounding distance 3, got %d", cfg.Grounding.MaxDistance)
	}
	if cfg.Blob.MaxBytes != 1<<20 {
		t.Errorf("expected blob cap 1MiB, got %d", cfg.Blob.MaxBytes)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
server:
  port: "9090"
  cors_origin: "http://example.com"
cache:
  backend: "redis"
  ttl: 1h
agent:
  step_budget: 4
logging:
  level: "debug"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Cache.Backend != "redis" {
		t.Errorf("expected redis backend, got %s", cfg.Cache.Backend)
	}
	if cfg.Cache.TTL != time.Hour {
		t.Errorf("expected TTL 1h, got %v", cfg.Cache.TTL)
	}
	if cfg.Agent.StepBudget != 4 {
		t.Errorf("expected step budget 4, got %d", cfg.Agent.StepBudget)
	}
	// Unchanged fields keep defaults
	if cfg.Bus.NATSURL != "nats://localhost:4222" {
		t.Errorf("expected default NATS URL, got %s", cfg.Bus.NATSURL)
	}
}

func TestLoadYAMLMissingFileIsNotAnError(t *testing.T) {
	cfg := Defaults()
	if err := loadYAML(&cfg, filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("missing file should not error, got %v", err)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	t.Setenv("HTTP_PORT", "7070")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")
	t.Setenv("OPENAI_API_KEYS", "key-a, key-b,")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("HARVEY_CACHE_TTL", "30m")
	t.Setenv("HARVEY_GROUNDING_FUZZY", "false")

	cfg := Defaults()
	loadEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("expected model gpt-4o-mini, got %s", cfg.LLM.Model)
	}
	if len(cfg.LLM.APIKeys) != 2 || cfg.LLM.APIKeys[0] != "key-a" || cfg.LLM.APIKeys[1] != "key-b" {
		t.Errorf("expected two keys, got %v", cfg.LLM.APIKeys)
	}
	if cfg.Cache.Backend != "redis" {
		t.Errorf("expected redis backend, got %s", cfg.Cache.Backend)
	}
	if cfg.Cache.TTL != 30*time.Minute {
		t.Errorf("expected TTL 30m, got %v", cfg.Cache.TTL)
	}
	if cfg.Grounding.Fuzzy {
		t.Error("expected fuzzy grounding disabled")
	}
}

func TestValidateRejectsBadBackends(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"cache backend", func(c *Config) { c.Cache.Backend = "memcached" }},
		{"bus backend", func(c *Config) { c.Bus.Backend = "kafka" }},
		{"blob backend", func(c *Config) { c.Blob.Backend = "s3" }},
		{"postgres without dsn", func(c *Config) { c.Blob.Backend = "postgres"; c.Postgres.DSN = "" }},
		{"zero step budget", func(c *Config) { c.Agent.StepBudget = 0 }},
		{"hard cap below budget", func(c *Config) { c.Agent.HardCap = 2; c.Agent.StepBudget = 8 }},
		{"negative grounding distance", func(c *Config) { c.Grounding.MaxDistance = -1 }},
		{"zero blob cap", func(c *Config) { c.Blob.MaxBytes = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			if err := validate(&cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFromAppliesFullHierarchy(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "harvey.yaml")
	content := `
server:
  port: "9001"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HTTP_PORT", "9002")

	cfg, err := LoadFrom(yamlPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != "9002" {
		t.Errorf("env should win over yaml, got %s", cfg.Server.Port)
	}
}
