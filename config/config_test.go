package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"DATABASE_PATH", "AGENT_DEBUG", "TIMEZONE", "LANG",
		"EXECUTION_CONTEXT_TTL_SECONDS", "LISTEN_ADDR", "AGENT_MANIFEST_PATH",
		"ANTHROPIC_API_KEY", "ANTHROPIC_MODEL", "ANTHROPIC_MAX_TOKENS",
		"TEMPORAL_HOST_PORT", "TEMPORAL_TASK_QUEUE",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabasePath != defaultDatabasePath {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.AgentDebug {
		t.Error("AgentDebug should default false")
	}
	if cfg.ExecutionContextTTL != defaultTTLSeconds*time.Second {
		t.Errorf("ExecutionContextTTL = %v", cfg.ExecutionContextTTL)
	}
	if cfg.ListenAddr != defaultListenAddr {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.AnthropicModel != defaultAnthropicModel {
		t.Errorf("AnthropicModel = %q", cfg.AnthropicModel)
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_PATH", "/tmp/custom.db")
	t.Setenv("AGENT_DEBUG", "TRUE")
	t.Setenv("EXECUTION_CONTEXT_TTL_SECONDS", "42")
	t.Setenv("TIMEZONE", "America/New_York")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabasePath != "/tmp/custom.db" {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	if !cfg.AgentDebug {
		t.Error("AGENT_DEBUG=TRUE should be truthy regardless of case")
	}
	if cfg.ExecutionContextTTL != 42*time.Second {
		t.Errorf("ExecutionContextTTL = %v", cfg.ExecutionContextTTL)
	}
	if cfg.Timezone.String() != "America/New_York" {
		t.Errorf("Timezone = %v", cfg.Timezone)
	}
}

func TestLoadInvalidTimezoneErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("TIMEZONE", "Not/A_Real_Zone")
	if _, err := Load(); err == nil {
		t.Fatal("expected an error for an invalid IANA timezone")
	}
}

func TestLoadInvalidTTLErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("EXECUTION_CONTEXT_TTL_SECONDS", "not-a-number")
	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a non-numeric TTL")
	}
}

func TestTruthy(t *testing.T) {
	cases := map[string]bool{
		"1": true, "true": true, "TRUE": true, "yes": true, " yes ": true,
		"0": false, "false": false, "no": false, "": false,
	}
	for in, want := range cases {
		if got := truthy(in); got != want {
			t.Errorf("truthy(%q) = %v, want %v", in, got, want)
		}
	}
}
