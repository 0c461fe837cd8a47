// Package config loads service configuration: built-in defaults, then an
// optional YAML file, then environment variables, then validation.
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

// Model providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
)

// Profiles select the tool set and prompt style of a service.
const (
	ProfileGraph = "graph"
	ProfileCrew  = "crew"
)

// Config is the complete service configuration.
type Config struct {
	Profile   string          `yaml:"profile"`
	Server    ServerConfig    `yaml:"server"`
	Nabl      NablConfig      `yaml:"nabl"`
	Model     ModelConfig     `yaml:"model"`
	Agent     AgentConfig     `yaml:"agent"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the inbound HTTP server.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string { return fmt.Sprintf(":%d", s.Port) }

// NablConfig configures the workflow API client.
type NablConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// ModelConfig selects and configures the model provider.
type ModelConfig struct {
	Provider        string        `yaml:"provider"`
	Name            string        `yaml:"name"`
	Temperature     float64       `yaml:"temperature"`
	MaxTokens       int64         `yaml:"max_tokens"`
	Timeout         time.Duration `yaml:"timeout"`
	AnthropicAPIKey string        `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string        `yaml:"openai_api_key"`
	GeminiAPIKey    string        `yaml:"gemini_api_key"`
}

// APIKey returns the key of the selected provider.
func (m ModelConfig) APIKey() string {
	switch m.Provider {
	case ProviderOpenAI:
		return m.OpenAIAPIKey
	case ProviderGemini:
		return m.GeminiAPIKey
	default:
		return m.AnthropicAPIKey
	}
}

// AgentConfig bounds the agent loop.
type AgentConfig struct {
	MaxIterations    int           `yaml:"max_iterations"`
	ToolTimeout      time.Duration `yaml:"tool_timeout"`
	MaxParallelTools int           `yaml:"max_parallel_tools"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TelemetryConfig configures OTLP export. An empty endpoint disables export.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
	Insecure    bool   `yaml:"insecure"`
}

// Default returns the built-in configuration for profile.
func Default(profile string) *Config {
	return &Config{
		Profile: profile,
		Server: ServerConfig{
			Port:            8000,
			RequestTimeout:  5 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Nabl: NablConfig{
			BaseURL: "https://api.iclaw.dev",
			Timeout: 120 * time.Second,
		},
		Model: ModelConfig{
			Provider:    ProviderAnthropic,
			Temperature: 0.7,
			MaxTokens:   4096,
			Timeout:     120 * time.Second,
		},
		Agent: AgentConfig{
			MaxIterations:    10,
			ToolTimeout:      120 * time.Second,
			MaxParallelTools: 16,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "nabl-" + profile + "-agent",
		},
	}
}

// Load builds the configuration for profile from defaults, the optional YAML
// file at path and the process environment.
func Load(profile, path string) (*Config, error) {
	return LoadWithEnv(profile, path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup. ${VAR} references
// inside the YAML file are expanded through the same lookup.
func LoadWithEnv(profile, path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default(profile)

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}

		expanded := os.Expand(string(data), func(key string) string {
			v, _ := lookup(key)
			return v
		})

		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("ICLAW_API_URL", &cfg.Nabl.BaseURL)
	str("ICLAW_API_KEY", &cfg.Nabl.APIKey)
	str("ANTHROPIC_API_KEY", &cfg.Model.AnthropicAPIKey)
	str("OPENAI_API_KEY", &cfg.Model.OpenAIAPIKey)
	str("GEMINI_API_KEY", &cfg.Model.GeminiAPIKey)
	str("MODEL_PROVIDER", &cfg.Model.Provider)
	str("MODEL_NAME", &cfg.Model.Name)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Telemetry.Endpoint)
	str("OTEL_SERVICE_NAME", &cfg.Telemetry.ServiceName)

	ints := []struct {
		key string
		dst *int
	}{
		{"PORT", &cfg.Server.Port},
		{"AGENT_MAX_ITERATIONS", &cfg.Agent.MaxIterations},
	}
	for _, e := range ints {
		v, ok := lookup(e.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", e.key, v, err)
		}
		*e.dst = n
	}

	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Profile {
	case ProfileGraph, ProfileCrew:
	default:
		errs = append(errs, fmt.Errorf("profile must be %q or %q, got %q", ProfileGraph, ProfileCrew, c.Profile))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, errors.New("server.request_timeout must be positive"))
	}

	if c.Nabl.BaseURL == "" {
		errs = append(errs, errors.New("nabl.base_url is required"))
	}
	if c.Nabl.Timeout <= 0 {
		errs = append(errs, errors.New("nabl.timeout must be positive"))
	}

	switch c.Model.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderGemini:
	default:
		errs = append(errs, fmt.Errorf("model.provider must be one of anthropic, openai, gemini, got %q", c.Model.Provider))
	}
	if c.Model.Timeout <= 0 {
		errs = append(errs, errors.New("model.timeout must be positive"))
	}

	if c.Agent.MaxIterations < 1 {
		errs = append(errs, fmt.Errorf("agent.max_iterations must be at least 1, got %d", c.Agent.MaxIterations))
	}
	if c.Agent.ToolTimeout <= 0 {
		errs = append(errs, errors.New("agent.tool_timeout must be positive"))
	}
	if c.Agent.MaxParallelTools < 1 {
		errs = append(errs, errors.New("agent.max_parallel_tools must be at least 1"))
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "console", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}

	return nil
}
