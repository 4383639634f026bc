package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  host: 127.0.0.1\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("host = %q", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port default = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Gateway.Model != "google/gemini-2.5-flash" {
		t.Errorf("gateway model default = %q", cfg.Gateway.Model)
	}
	if cfg.Memory.EmbeddingModel != "text-embedding-3-small" {
		t.Errorf("embedding model default = %q", cfg.Memory.EmbeddingModel)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_GW_KEY", "gw-secret-key")
	path := writeConfig(t, "gateway:\n  api_key: ${TEST_GW_KEY}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.APIKey != "gw-secret-key" {
		t.Errorf("gateway.api_key = %q, want expanded env value", cfg.Gateway.APIKey)
	}
}

func TestExpandEnvDefaults(t *testing.T) {
	t.Setenv("TEST_SET_VAR", "set")
	os.Unsetenv("TEST_UNSET_VAR")

	cases := map[string]string{
		"${TEST_SET_VAR}":             "set",
		"${TEST_SET_VAR:-fallback}":   "set",
		"${TEST_UNSET_VAR:-fallback}": "fallback",
		"${TEST_UNSET_VAR}":           "",
		"plain text":                  "plain text",
	}
	for in, want := range cases {
		if got := expandEnv(in); got != want {
			t.Errorf("expandEnv(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 99999\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for out-of-range port")
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() config invalid: %v", err)
	}
	if cfg.Database.Path == "" {
		t.Error("database path default missing")
	}
}
