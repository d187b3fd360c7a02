// Package config loads taskmill configuration and exposes the read-only
// credential source used by the LLM providers.
//
// Configuration is merged from three layers, lowest priority first:
// built-in defaults, ~/.taskmill/taskmill.toml, ./taskmill.toml.
// Environment variables override config-file credentials at lookup time.
package config

import (
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"

	"github.com/taskmill/taskmill/internal/logging"
)

// Config represents the merged taskmill configuration
type Config struct {
	NumTasks int             `toml:"numTasks"` // Default task count for parse
	Output   string          `toml:"output"`   // Default output path
	Format   string          `toml:"format"`   // "json" or "yaml"
	History  HistoryConfig   `toml:"history"`
	Provider ProvidersConfig `toml:"provider"`
}

// HistoryConfig configures the run-history store
type HistoryConfig struct {
	Path    string `toml:"path"`    // sqlite database path
	Enabled *bool  `toml:"enabled"` // nil = enabled
}

// RecordingEnabled reports whether run history should be written
func (h HistoryConfig) RecordingEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

// ProvidersConfig holds per-vendor provider settings
type ProvidersConfig struct {
	Anthropic  ProviderConfig `toml:"anthropic"`
	OpenAI     ProviderConfig `toml:"openai"`
	Perplexity ProviderConfig `toml:"perplexity"`
	Grok       ProviderConfig `toml:"grok"`
	Ollama     ProviderConfig `toml:"ollama"`
}

// ProviderConfig is the configuration for a single provider
type ProviderConfig struct {
	APIKey         string  `toml:"apiKey"`         // For cloud providers
	Model          string  `toml:"model"`          // Model override
	BaseURL        string  `toml:"baseURL"`        // For OpenAI-compatible endpoints
	Host           string  `toml:"host"`           // For Ollama
	MaxTokens      int     `toml:"maxTokens"`      // Output limit override
	Temperature    float64 `toml:"temperature"`    // Sampling temperature override
	TimeoutSeconds int     `toml:"timeoutSeconds"` // Request timeout
	Disabled       bool    `toml:"disabled"`       // Skip registration entirely
}

// Default returns the built-in configuration
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		NumTasks: 10,
		Output:   "tasks.json",
		Format:   "json",
		History: HistoryConfig{
			Path: filepath.Join(home, ".taskmill", "history.db"),
		},
	}
}

// Load reads configuration, merging file layers over the defaults.
// A missing config file is not an error.
func Load() (*Config, error) {
	cfg := Default()

	home, _ := os.UserHomeDir()
	paths := []string{
		filepath.Join(home, ".taskmill", "taskmill.toml"),
		"taskmill.toml",
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		var layer Config
		if _, err := toml.DecodeFile(path, &layer); err != nil {
			return nil, err
		}
		if err := mergo.Merge(cfg, &layer, mergo.WithOverride); err != nil {
			return nil, err
		}
		logging.L_debug("config: loaded layer", "path", path)
	}

	return cfg, nil
}

// Credentials is a read-only key-value lookup for provider secrets and
// overrides. Environment variables win over config-file values. The core
// never writes to this source.
type Credentials struct {
	fromConfig map[string]string
	lookupEnv  func(string) (string, bool)
}

// NewCredentials builds the credential source from the loaded config,
// backed by the process environment.
func NewCredentials(cfg *Config) *Credentials {
	values := map[string]string{
		"ANTHROPIC_API_KEY":  cfg.Provider.Anthropic.APIKey,
		"OPENAI_API_KEY":     cfg.Provider.OpenAI.APIKey,
		"PERPLEXITY_API_KEY": cfg.Provider.Perplexity.APIKey,
		"XAI_API_KEY":        cfg.Provider.Grok.APIKey,
		"OLLAMA_HOST":        cfg.Provider.Ollama.Host,
	}
	for k, v := range values {
		if v == "" {
			delete(values, k)
		}
	}
	return &Credentials{
		fromConfig: values,
		lookupEnv:  os.LookupEnv,
	}
}

// StaticCredentials builds a credential source from a fixed map, with no
// environment access. Used by tests.
func StaticCredentials(values map[string]string) *Credentials {
	return &Credentials{
		fromConfig: values,
		lookupEnv:  func(string) (string, bool) { return "", false },
	}
}

// Get returns the value for a key, or "" when absent
func (c *Credentials) Get(key string) string {
	if c == nil {
		return ""
	}
	if v, ok := c.lookupEnv(key); ok && v != "" {
		return v
	}
	return c.fromConfig[key]
}

// Has reports whether a non-empty value exists for the key
func (c *Credentials) Has(key string) bool {
	return c.Get(key) != ""
}
