// Package config loads the gateway configuration from a YAML file.
// Configuration is read once at process start; credential values are
// never stored here, only the names of environment variables that hold
// them.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30m" or "90s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("config: duration must be a string like \"30m\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Provider kinds accepted per capability.
var (
	STTKinds = []string{"vosk", "whisper", "google"}
	AIKinds  = []string{"openai", "huggingface"}
	TTSKinds = []string{"elevenlabs", "openai"}
)

// Config is the root configuration.
type Config struct {
	// Listen is the HTTP listen address for serve mode.
	Listen string `yaml:"listen"`

	// LogLevel is debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`

	Providers Providers      `yaml:"providers"`
	Session   SessionConfig  `yaml:"session"`
	Pipeline  PipelineConfig `yaml:"pipeline"`
}

// Providers lists the configured backends per capability, in fallback
// order.
type Providers struct {
	STT []ProviderConfig `yaml:"stt"`
	AI  []ProviderConfig `yaml:"ai"`
	TTS []ProviderConfig `yaml:"tts"`
}

// ProviderConfig describes one backend.
type ProviderConfig struct {
	// ID uniquely identifies this provider in logs and health snapshots.
	ID string `yaml:"id"`

	// Kind selects the adapter (e.g. vosk, whisper, openai, elevenlabs).
	Kind string `yaml:"kind"`

	// Priority is the fallback rank; lower is tried first. Entries with
	// equal priority keep their configured order.
	Priority int `yaml:"priority"`

	// Endpoint overrides the adapter's default endpoint.
	Endpoint string `yaml:"endpoint"`

	// CredentialEnv names the environment variable holding the API key
	// or credential JSON.
	CredentialEnv string `yaml:"credential_env"`

	// TimeoutMS is the per-call budget in milliseconds.
	TimeoutMS int `yaml:"timeout_ms"`

	// Model, Voice, and Language tune the adapter where applicable.
	Model    string `yaml:"model"`
	Voice    string `yaml:"voice"`
	Language string `yaml:"language"`
}

// Timeout returns the per-call budget as a duration.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

// Credential resolves the configured credential from the environment.
func (p ProviderConfig) Credential() string {
	if p.CredentialEnv == "" {
		return ""
	}
	return os.Getenv(p.CredentialEnv)
}

// SessionConfig tunes the session manager.
type SessionConfig struct {
	// MaxContextTurns bounds the AI context window.
	MaxContextTurns int `yaml:"max_context_turns"`

	// MaxContextTokens optionally bounds the window by token count.
	// Zero disables token counting.
	MaxContextTokens int `yaml:"max_context_tokens"`

	// IdleTimeout is the eviction window for inactive sessions.
	IdleTimeout Duration `yaml:"idle_timeout"`

	// SweepInterval is how often the eviction sweep runs.
	SweepInterval Duration `yaml:"sweep_interval"`

	// RedisAddr enables the Redis turn store when set (host:port).
	RedisAddr string `yaml:"redis_addr"`
}

// PipelineConfig tunes the orchestrator.
type PipelineConfig struct {
	// MaxConcurrentTurns caps turns in flight across all sessions.
	// Zero means unlimited.
	MaxConcurrentTurns int `yaml:"max_concurrent_turns"`

	// MaxTokens bounds AI reply length. Zero lets the provider decide.
	MaxTokens int `yaml:"max_tokens"`

	// SystemPrompt is prepended to every AI context.
	SystemPrompt string `yaml:"system_prompt"`
}

// Default returns the configuration used when the file omits a value.
func Default() *Config {
	return &Config{
		Listen:   ":8080",
		LogLevel: "info",
		Session: SessionConfig{
			MaxContextTurns: 10,
			IdleTimeout:     Duration(30 * time.Minute),
			SweepInterval:   Duration(time.Minute),
		},
	}
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks provider lists for missing IDs, unknown kinds, and
// duplicate IDs across capabilities.
func (c *Config) Validate() error {
	if len(c.Providers.AI) == 0 {
		return fmt.Errorf("config: at least one AI provider is required")
	}

	seen := make(map[string]bool)
	check := func(capability string, list []ProviderConfig, kinds []string) error {
		for _, p := range list {
			if p.ID == "" {
				return fmt.Errorf("config: %s provider without id", capability)
			}
			if seen[p.ID] {
				return fmt.Errorf("config: duplicate provider id %q", p.ID)
			}
			seen[p.ID] = true
			if !contains(kinds, p.Kind) {
				return fmt.Errorf("config: unknown %s provider kind %q for %q", capability, p.Kind, p.ID)
			}
		}
		return nil
	}

	if err := check("stt", c.Providers.STT, STTKinds); err != nil {
		return err
	}
	if err := check("ai", c.Providers.AI, AIKinds); err != nil {
		return err
	}
	if err := check("tts", c.Providers.TTS, TTSKinds); err != nil {
		return err
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
