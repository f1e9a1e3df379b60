// Package config provides configuration loading for the LeapDash CLI.
// Values are layered: built-in defaults, then the config file, then
// LEAPDASH_* environment variables, then command-line flags.
package config

import (
	"time"

	"github.com/leapstack-labs/leapdash/internal/fetcher"
	"github.com/leapstack-labs/leapdash/internal/sandbox"
	"github.com/leapstack-labs/leapdash/pkg/core"
)

// Default configuration values.
const (
	DefaultStatePath = ".leapdash/state.db"
	DefaultPort      = 8090
)

// Config is the fully resolved CLI configuration.
type Config struct {
	StatePath string `koanf:"state_path"`
	Port      int    `koanf:"port"`
	Verbose   bool   `koanf:"verbose"`

	Generator GeneratorConfig `koanf:"generator"`
	Sandbox   SandboxConfig   `koanf:"sandbox"`

	// Connections maps connection ID to provider transport details.
	Connections map[string]ConnectionConfig `koanf:"connections"`

	// Templates declares the (provider, endpoint, shape) tuples metrics
	// can reference.
	Templates []TemplateConfig `koanf:"templates"`
}

// GeneratorConfig configures the code-generation collaborator.
type GeneratorConfig struct {
	APIKey string `koanf:"api_key"`
	Model  string `koanf:"model"`
}

// SandboxConfig configures per-invocation sandbox limits.
type SandboxConfig struct {
	TimeoutMS int    `koanf:"timeout_ms"`
	MaxMemory int64  `koanf:"max_memory_bytes"`
	MaxSteps  uint64 `koanf:"max_steps"`
}

// Limits converts the config to sandbox limits; zero fields fall back
// to the sandbox defaults.
func (c SandboxConfig) Limits() sandbox.Limits {
	limits := sandbox.DefaultLimits()
	if c.TimeoutMS > 0 {
		limits.Timeout = time.Duration(c.TimeoutMS) * time.Millisecond
	}
	if c.MaxMemory > 0 {
		limits.MaxMemory = c.MaxMemory
	}
	if c.MaxSteps > 0 {
		limits.MaxSteps = c.MaxSteps
	}
	return limits
}

// ConnectionConfig describes how to reach one provider connection.
type ConnectionConfig struct {
	BaseURL string            `koanf:"base_url"`
	Headers map[string]string `koanf:"headers"`
}

// TemplateConfig declares one metric template.
type TemplateConfig struct {
	ID              string            `koanf:"id"`
	Provider        string            `koanf:"provider"`
	Connection      string            `koanf:"connection"`
	Endpoint        string            `koanf:"endpoint"`
	Method          string            `koanf:"method"`
	Params          map[string]string `koanf:"params"`
	ExtractionHint  string            `koanf:"extraction_hint"`
	ValueLabel      string            `koanf:"value_label"`
	DataDescription string            `koanf:"data_description"`
}

// CoreTemplates converts the declared templates to the core shape,
// keyed by template ID.
func (c *Config) CoreTemplates() map[string]core.Template {
	out := make(map[string]core.Template, len(c.Templates))
	for _, t := range c.Templates {
		connection := t.Connection
		if connection == "" {
			connection = t.Provider
		}
		out[t.ID] = core.Template{
			ID:              t.ID,
			ProviderID:      t.Provider,
			ConnectionID:    connection,
			EndpointPath:    t.Endpoint,
			Method:          t.Method,
			Params:          t.Params,
			ExtractionHint:  t.ExtractionHint,
			ValueLabel:      t.ValueLabel,
			DataDescription: t.DataDescription,
		}
	}
	return out
}

// FetcherConnections converts connection configs to the fetcher shape.
func (c *Config) FetcherConnections() map[string]fetcher.Connection {
	out := make(map[string]fetcher.Connection, len(c.Connections))
	for id, conn := range c.Connections {
		out[id] = fetcher.Connection{BaseURL: conn.BaseURL, Headers: conn.Headers}
	}
	return out
}
