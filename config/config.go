// Package config provides configuration loading and management for the
// pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/forgeline/forgeline/model"
)

// Config represents the complete pipeline configuration.
type Config struct {
	Model    ModelConfig    `yaml:"model"`
	Repo     RepoConfig     `yaml:"repo"`
	NATS     NATSConfig     `yaml:"nats"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Progress ProgressConfig `yaml:"progress"`
}

// ModelConfig configures LLM model selection and request defaults.
type ModelConfig struct {
	// Temperature controls randomness (0.0-1.0, default: 0.2).
	Temperature float64 `yaml:"temperature"`

	// Timeout is the maximum time to wait for model responses.
	Timeout time.Duration `yaml:"timeout"`

	// Registry declares capabilities and endpoints. Empty means the
	// built-in default registry is used.
	Registry *model.RegistryConfig `yaml:"registry,omitempty"`
}

// RepoConfig configures the workspace repository.
type RepoConfig struct {
	// Path is the repository root path (auto-detected from git if empty).
	Path string `yaml:"path"`
}

// NATSConfig configures the NATS connection for the event bus and KV store.
type NATSConfig struct {
	// URL is the NATS server URL.
	URL string `yaml:"url"`
}

// PipelineConfig configures orchestration behavior.
type PipelineConfig struct {
	// Namespace prefixes every routing key and durable name.
	Namespace string `yaml:"namespace"`

	// MaxCodeAttempts is how many coding attempts the rework loop allows
	// per task.
	MaxCodeAttempts int `yaml:"max_code_attempts"`

	// PhasePause is an optional pause between sequential phases, useful
	// for demos and debugging.
	PhasePause time.Duration `yaml:"phase_pause"`
}

// ProgressConfig configures the progress reporting channel.
type ProgressConfig struct {
	// BufferSize bounds the progress queue. Entries beyond the bound are
	// dropped rather than blocking agents.
	BufferSize int `yaml:"buffer_size"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Temperature: 0.2,
			Timeout:     5 * time.Minute,
		},
		Repo: RepoConfig{
			Path: "", // Auto-detect
		},
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
		Pipeline: PipelineConfig{
			Namespace:       "forgeline",
			MaxCodeAttempts: 2,
		},
		Progress: ProgressConfig{
			BufferSize: 256,
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Model.Temperature < 0 || c.Model.Temperature > 1 {
		return fmt.Errorf("model.temperature must be between 0 and 1")
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required")
	}
	if c.Pipeline.Namespace == "" {
		return fmt.Errorf("pipeline.namespace is required")
	}
	if c.Pipeline.MaxCodeAttempts < 1 {
		return fmt.Errorf("pipeline.max_code_attempts must be at least 1")
	}
	if c.Progress.BufferSize < 1 {
		return fmt.Errorf("progress.buffer_size must be at least 1")
	}
	return nil
}

// Registry builds the model registry from this configuration, falling back
// to the built-in defaults when none is declared.
func (c *Config) Registry() *model.Registry {
	if c.Model.Registry == nil {
		return model.NewDefaultRegistry()
	}
	return model.FromConfig(c.Model.Registry)
}

// LoadFromFile loads configuration from a YAML file, layered on defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one. Non-zero values in other take
// precedence.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Model.Temperature != 0 {
		c.Model.Temperature = other.Model.Temperature
	}
	if other.Model.Timeout != 0 {
		c.Model.Timeout = other.Model.Timeout
	}
	if other.Model.Registry != nil {
		c.Model.Registry = other.Model.Registry
	}

	if other.Repo.Path != "" {
		c.Repo.Path = other.Repo.Path
	}

	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}

	if other.Pipeline.Namespace != "" {
		c.Pipeline.Namespace = other.Pipeline.Namespace
	}
	if other.Pipeline.MaxCodeAttempts != 0 {
		c.Pipeline.MaxCodeAttempts = other.Pipeline.MaxCodeAttempts
	}
	if other.Pipeline.PhasePause != 0 {
		c.Pipeline.PhasePause = other.Pipeline.PhasePause
	}

	if other.Progress.BufferSize != 0 {
		c.Progress.BufferSize = other.Progress.BufferSize
	}
}
