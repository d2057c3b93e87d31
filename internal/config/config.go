// Package config provides hierarchical configuration loading for Harvey.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the Harvey agent core.
type Config struct {
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
	LLM       LLM       `yaml:"llm"`
	AMint     AMint     `yaml:"amint"`
	Analysis  Analysis  `yaml:"analysis"`
	Cache     Cache     `yaml:"cache"`
	Bus       Bus       `yaml:"bus"`
	Blob      Blob      `yaml:"blob"`
	Postgres  Postgres  `yaml:"postgres"`
	Agent     Agent     `yaml:"agent"`
	Grounding Grounding `yaml:"grounding"`
	Session   Session   `yaml:"session"`
	MCP       MCP       `yaml:"mcp"`
	Breaker   Breaker   `yaml:"breaker"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Server holds HTTP server configuration.
type Server struct {
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// LLM holds the OpenAI-compatible chat completion client configuration.
// APIKeys rotates across requests when more than one key is configured.
type LLM struct {
	Model       string        `yaml:"model"`
	APIKeys     []string      `yaml:"api_keys"`
	BaseURL     string        `yaml:"base_url"`
	TurnTimeout time.Duration `yaml:"turn_timeout"`
	MaxRetries  int           `yaml:"max_retries"`
}

// AMint holds the extractor (A-MINT) client configuration.
type AMint struct {
	BaseURL          string        `yaml:"base_url"`
	Model            string        `yaml:"model"`
	MaxTries         int           `yaml:"max_tries"`
	Temperature      float64       `yaml:"temperature"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	TransformTimeout time.Duration `yaml:"transform_timeout"`
}

// Analysis holds the pricing analysis API client configuration.
type Analysis struct {
	BaseURL      string        `yaml:"base_url"`
	PollInitial  time.Duration `yaml:"poll_initial"`
	PollCap      time.Duration `yaml:"poll_cap"`
	PollDeadline time.Duration `yaml:"poll_deadline"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"`
}

// Cache holds the pricing-context cache configuration.
type Cache struct {
	Backend         string        `yaml:"backend"` // "memory" | "redis"
	RedisAddr       string        `yaml:"redis_addr"`
	TTL             time.Duration `yaml:"ttl"`
	ErrorCooldown   time.Duration `yaml:"error_cooldown"`
	MaxEntries      int           `yaml:"max_entries"`
	MaxSizeMB       int64         `yaml:"max_size_mb"`
	CancelOnAbandon bool          `yaml:"cancel_on_abandon"`
}

// Bus holds the notification bus configuration.
type Bus struct {
	Backend     string `yaml:"backend"` // "memory" | "nats"
	NATSURL     string `yaml:"nats_url"`
	QueueSize   int    `yaml:"queue_size"`
	MaxOverflow int    `yaml:"max_overflow"`
}

// Blob holds the uploaded-YAML blob store configuration.
type Blob struct {
	Backend  string `yaml:"backend"` // "fs" | "postgres"
	Dir      string `yaml:"dir"`
	MaxBytes int64  `yaml:"max_bytes"`
}

// Postgres holds PostgreSQL connection configuration for the durable blob
// store backend.
type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	HealthCheck     time.Duration `yaml:"health_check"`
}

// Agent holds the ReAct loop configuration.
type Agent struct {
	StepBudget  int           `yaml:"step_budget"`
	HardCap     int           `yaml:"hard_cap"`
	StepTimeout time.Duration `yaml:"step_timeout"`
	ToolTimeout time.Duration `yaml:"tool_timeout"`
}

// Grounding holds the filter-name matching policy.
type Grounding struct {
	Fuzzy       bool `yaml:"fuzzy"`
	MaxDistance int  `yaml:"max_distance"`
}

// Session holds per-conversation session lifecycle configuration.
type Session struct {
	IdleTTL    time.Duration `yaml:"idle_ttl"`
	GCInterval time.Duration `yaml:"gc_interval"`
}

// MCP holds the stdio MCP host configuration. When Command is empty the
// registry is invoked in-process and no subprocess is spawned.
type MCP struct {
	Command           string            `yaml:"command"`
	Args              []string          `yaml:"args"`
	Env               map[string]string `yaml:"env"`
	InitializeTimeout time.Duration     `yaml:"initialize_timeout"`
	ToolTimeout       time.Duration     `yaml:"tool_timeout"`
	ResourceTimeout   time.Duration     `yaml:"resource_timeout"`
	ReconnectMin      time.Duration     `yaml:"reconnect_min"`
	ReconnectMax      time.Duration     `yaml:"reconnect_max"`
}

// Breaker holds circuit breaker configuration.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Telemetry holds OpenTelemetry export configuration.
type Telemetry struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Host:       "0.0.0.0",
			Port:       "8000",
			CORSOrigin: "http://localhost:3000",
		},
		Logging: Logging{
			Level:   "info",
			Service: "harvey-core",
		},
		LLM: LLM{
			Model:       "gpt-4o",
			BaseURL:     "https://api.openai.com/v1",
			TurnTimeout: 90 * time.Second,
			MaxRetries:  2,
		},
		AMint: AMint{
			BaseURL:          "http://localhost:8001",
			Model:            "gpt-4o",
			MaxTries:         50,
			Temperature:      0.7,
			PollInterval:     2 * time.Second,
			TransformTimeout: 900 * time.Second,
		},
		Analysis: Analysis{
			BaseURL:      "http://localhost:8002",
			PollInitial:  200 * time.Millisecond,
			PollCap:      5 * time.Second,
			PollDeadline: 120 * time.Second,
			HTTPTimeout:  30 * time.Second,
		},
		Cache: Cache{
			Backend:       "memory",
			RedisAddr:     "localhost:6379",
			TTL:           24 * time.Hour,
			ErrorCooldown: 5 * time.Minute,
			MaxEntries:    256,
			MaxSizeMB:     64,
		},
		Bus: Bus{
			Backend:     "memory",
			NATSURL:     "nats://localhost:4222",
			QueueSize:   64,
			MaxOverflow: 2,
		},
		Blob: Blob{
			Backend:  "fs",
			Dir:      "blob_store",
			MaxBytes: 1 << 20,
		},
		Postgres: Postgres{
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 10 * time.Minute,
			HealthCheck:     time.Minute,
		},
		Agent: Agent{
			StepBudget:  8,
			HardCap:     16,
			StepTimeout: 90 * time.Second,
			ToolTimeout: 60 * time.Second,
		},
		Grounding: Grounding{
			Fuzzy:       true,
			MaxDistance: 3,
		},
		Session: Session{
			IdleTTL:    30 * time.Minute,
			GCInterval: time.Minute,
		},
		MCP: MCP{
			InitializeTimeout: 5 * time.Second,
			ToolTimeout:       60 * time.Second,
			ResourceTimeout:   10 * time.Second,
			ReconnectMin:      500 * time.Millisecond,
			ReconnectMax:      10 * time.Second,
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Telemetry: Telemetry{
			Endpoint: "localhost:4317",
		},
	}
}
