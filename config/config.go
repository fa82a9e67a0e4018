// Package config loads the orchestrator's environment-variable
// configuration. Recognized knobs are enumerated in the system spec;
// anything else in the environment is ignored by the core.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the runtime knobs read from the process environment at
// startup. It is constructed once by the cmd/orchestrator entrypoint and
// passed explicitly into the service bundle; nothing in this package relies
// on global state.
type Config struct {
	// DatabasePath is the SQLite file backing ConversationStore/ItemStore.
	DatabasePath string
	// AgentDebug enables verbose agent/remote-call traces.
	AgentDebug bool
	// Timezone is the default IANA timezone used for daily-time schedules.
	Timezone *time.Location
	// Lang is the preferred user language forwarded to remote agents as
	// metadata.
	Lang string
	// ExecutionContextTTL bounds how long a paused planning ExecutionContext
	// remains valid before it is considered expired.
	ExecutionContextTTL time.Duration
	// ListenAddr is the address the HTTP transport listens on.
	ListenAddr string
	// AgentManifestPath points at the YAML manifest of remote specialist
	// agents the Planner/Executor may dispatch tasks to.
	AgentManifestPath string
	// AnthropicAPIKey authenticates the Triager/Planner's model backend.
	AnthropicAPIKey string
	// AnthropicModel is the Claude model identifier used for triage and
	// planning completions.
	AnthropicModel string
	// AnthropicMaxTokens bounds each model completion.
	AnthropicMaxTokens int64
	// TemporalHostPort is the Temporal frontend address. When empty, recurring
	// tasks re-invoke through the in-process scheduler engine instead of a
	// durable Temporal workflow.
	TemporalHostPort string
	// TemporalTaskQueue is the task queue the recurring-task worker polls.
	TemporalTaskQueue string
}

const (
	defaultDatabasePath       = "stockbuddy.db"
	defaultTTLSeconds         = 3600
	defaultListenAddr         = ":8080"
	defaultAgentManifestPath  = "agents.yaml"
	defaultAnthropicModel     = "claude-sonnet-4-5-20250929"
	defaultAnthropicMaxTokens = 4096
)

// Load reads configuration from the process environment, applying the
// documented defaults for any variable that is unset.
func Load() (Config, error) {
	cfg := Config{
		DatabasePath:        defaultDatabasePath,
		AgentDebug:          false,
		Timezone:            time.Local,
		Lang:                "en",
		ExecutionContextTTL: defaultTTLSeconds * time.Second,
		ListenAddr:          defaultListenAddr,
		AgentManifestPath:   defaultAgentManifestPath,
		AnthropicModel:      defaultAnthropicModel,
		AnthropicMaxTokens:  defaultAnthropicMaxTokens,
	}

	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("AGENT_DEBUG"); v != "" {
		cfg.AgentDebug = truthy(v)
	}
	if v := os.Getenv("TIMEZONE"); v != "" {
		loc, err := time.LoadLocation(v)
		if err != nil {
			return Config{}, err
		}
		cfg.Timezone = loc
	}
	if v := os.Getenv("LANG"); v != "" {
		cfg.Lang = v
	}
	if v := os.Getenv("EXECUTION_CONTEXT_TTL_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, err
		}
		cfg.ExecutionContextTTL = time.Duration(secs) * time.Second
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("AGENT_MANIFEST_PATH"); v != "" {
		cfg.AgentManifestPath = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.AnthropicAPIKey = v
	}
	if v := os.Getenv("ANTHROPIC_MODEL"); v != "" {
		cfg.AnthropicModel = v
	}
	if v := os.Getenv("ANTHROPIC_MAX_TOKENS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, err
		}
		cfg.AnthropicMaxTokens = n
	}
	if v := os.Getenv("TEMPORAL_HOST_PORT"); v != "" {
		cfg.TemporalHostPort = v
	}
	if v := os.Getenv("TEMPORAL_TASK_QUEUE"); v != "" {
		cfg.TemporalTaskQueue = v
	}

	return cfg, nil
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
