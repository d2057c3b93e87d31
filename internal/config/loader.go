package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "harvey.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Host, "HTTP_HOST")
	setString(&cfg.Server.Port, "HTTP_PORT")
	setString(&cfg.Server.CORSOrigin, "HARVEY_CORS_ORIGIN")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Service, "HARVEY_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "HARVEY_LOG_ASYNC")

	setString(&cfg.LLM.Model, "OPENAI_MODEL")
	setString(&cfg.LLM.BaseURL, "OPENAI_BASE_URL")
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.LLM.APIKeys = []string{key}
	}
	if keys := os.Getenv("OPENAI_API_KEYS"); keys != "" {
		cfg.LLM.APIKeys = splitNonEmpty(keys)
	}
	setDuration(&cfg.LLM.TurnTimeout, "HARVEY_LLM_TURN_TIMEOUT")
	setInt(&cfg.LLM.MaxRetries, "HARVEY_LLM_MAX_RETRIES")

	setString(&cfg.AMint.BaseURL, "AMINT_BASE_URL")
	setString(&cfg.AMint.Model, "HARVEY_AMINT_MODEL")
	setInt(&cfg.AMint.MaxTries, "HARVEY_AMINT_MAX_TRIES")
	setDuration(&cfg.AMint.PollInterval, "HARVEY_AMINT_POLL_INTERVAL")
	setDuration(&cfg.AMint.TransformTimeout, "HARVEY_TRANSFORM_TIMEOUT")

	setString(&cfg.Analysis.BaseURL, "ANALYSIS_BASE_URL")
	setDuration(&cfg.Analysis.PollInitial, "HARVEY_ANALYSIS_POLL_INITIAL")
	setDuration(&cfg.Analysis.PollCap, "HARVEY_ANALYSIS_POLL_CAP")
	setDuration(&cfg.Analysis.PollDeadline, "HARVEY_ANALYSIS_POLL_DEADLINE")

	setString(&cfg.Cache.Backend, "CACHE_BACKEND")
	setString(&cfg.Cache.RedisAddr, "REDIS_ADDR")
	setDuration(&cfg.Cache.TTL, "HARVEY_CACHE_TTL")
	setDuration(&cfg.Cache.ErrorCooldown, "HARVEY_CACHE_ERROR_COOLDOWN")
	setInt(&cfg.Cache.MaxEntries, "HARVEY_CACHE_MAX_ENTRIES")
	setInt64(&cfg.Cache.MaxSizeMB, "HARVEY_CACHE_MAX_SIZE_MB")
	setBool(&cfg.Cache.CancelOnAbandon, "HARVEY_CACHE_CANCEL_ON_ABANDON")

	setString(&cfg.Bus.Backend, "BUS_BACKEND")
	setString(&cfg.Bus.NATSURL, "NATS_URL")
	setInt(&cfg.Bus.QueueSize, "HARVEY_BUS_QUEUE_SIZE")

	setString(&cfg.Blob.Backend, "BLOB_BACKEND")
	setString(&cfg.Blob.Dir, "HARVEY_BLOB_DIR")
	setInt64(&cfg.Blob.MaxBytes, "HARVEY_BLOB_MAX_BYTES")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "HARVEY_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "HARVEY_PG_MIN_CONNS")

	setInt(&cfg.Agent.StepBudget, "HARVEY_AGENT_STEP_BUDGET")
	setInt(&cfg.Agent.HardCap, "HARVEY_AGENT_HARD_CAP")
	setDuration(&cfg.Agent.StepTimeout, "HARVEY_AGENT_STEP_TIMEOUT")
	setDuration(&cfg.Agent.ToolTimeout, "HARVEY_AGENT_TOOL_TIMEOUT")

	setBool(&cfg.Grounding.Fuzzy, "HARVEY_GROUNDING_FUZZY")
	setInt(&cfg.Grounding.MaxDistance, "HARVEY_GROUNDING_MAX_DISTANCE")

	setDuration(&cfg.Session.IdleTTL, "HARVEY_SESSION_IDLE_TTL")
	setDuration(&cfg.Session.GCInterval, "HARVEY_SESSION_GC_INTERVAL")

	setString(&cfg.MCP.Command, "HARVEY_MCP_COMMAND")
	setDuration(&cfg.MCP.InitializeTimeout, "HARVEY_MCP_INITIALIZE_TIMEOUT")
	setDuration(&cfg.MCP.ToolTimeout, "HARVEY_MCP_TOOL_TIMEOUT")
	setDuration(&cfg.MCP.ResourceTimeout, "HARVEY_MCP_RESOURCE_TIMEOUT")

	setInt(&cfg.Breaker.MaxFailures, "HARVEY_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "HARVEY_BREAKER_TIMEOUT")

	setBool(&cfg.Telemetry.Enabled, "HARVEY_TELEMETRY_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// validate rejects configurations the process cannot start with.
func validate(cfg *Config) error {
	switch cfg.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache backend must be \"memory\" or \"redis\", got %q", cfg.Cache.Backend)
	}
	switch cfg.Bus.Backend {
	case "memory", "nats":
	default:
		return fmt.Errorf("bus backend must be \"memory\" or \"nats\", got %q", cfg.Bus.Backend)
	}
	switch cfg.Blob.Backend {
	case "fs", "postgres":
	default:
		return fmt.Errorf("blob backend must be \"fs\" or \"postgres\", got %q", cfg.Blob.Backend)
	}
	if cfg.Blob.Backend == "postgres" && cfg.Postgres.DSN == "" {
		return errors.New("blob backend \"postgres\" requires DATABASE_URL")
	}
	if cfg.Agent.StepBudget < 1 {
		return errors.New("agent step budget must be at least 1")
	}
	if cfg.Agent.HardCap < cfg.Agent.StepBudget {
		return errors.New("agent hard cap must not be below the step budget")
	}
	if cfg.Grounding.MaxDistance < 0 {
		return errors.New("grounding max distance must not be negative")
	}
	if cfg.Blob.MaxBytes <= 0 {
		return errors.New("blob max bytes must be positive")
	}
	return nil
}

func splitNonEmpty(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(parsed)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = parsed
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
		}
	}
}
