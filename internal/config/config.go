// Package config handles llmbot configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/llmbot/config.yaml, /etc/llmbot/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "llmbot", "config.yaml"))
	}

	paths = append(paths, "/etc/llmbot/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all llmbot configuration.
type Config struct {
	Backend  BackendConfig `yaml:"backend"`
	Discord  DiscordConfig `yaml:"discord"`
	Context  ContextConfig `yaml:"context"`
	Tools    ToolsConfig   `yaml:"tools"`
	LogLevel string        `yaml:"log_level"`
}

// BackendConfig defines the inference backend connection.
type BackendConfig struct {
	// URL is the base URL of an OpenAI-compatible chat completions
	// endpoint (e.g. an OpenWebUI instance).
	URL string `yaml:"url"`
	// APIKey authenticates against the backend. The OPENWEBUI_API_KEY
	// environment variable overrides this value.
	APIKey string `yaml:"api_key"`
	// DefaultModel is used when a channel has no active override.
	DefaultModel string `yaml:"default_model"`
	// RequestTimeoutSec bounds a single completion call (default 15).
	RequestTimeoutSec int `yaml:"request_timeout_sec"`
}

// DiscordConfig defines the Discord transport settings.
type DiscordConfig struct {
	// Token is the bot token. The DISCORD_BOT_TOKEN environment
	// variable overrides this value.
	Token string `yaml:"token"`
	// FragmentLimit is the maximum outbound message length in
	// characters (default 2000, the platform limit).
	FragmentLimit int `yaml:"fragment_limit"`
}

// ContextConfig defines the rolling conversation context.
type ContextConfig struct {
	// Limit is the maximum number of turns kept per channel (default 10).
	// Human and assistant turns count against the same bound.
	Limit int `yaml:"limit"`
	// SystemSuffix is appended to the built-in system instruction.
	SystemSuffix string `yaml:"system_suffix"`
}

// ToolsConfig defines the tool layer settings.
type ToolsConfig struct {
	// SearxngURL is the SearXNG search endpoint used by the websearch
	// tool (default http://localhost:8080/search).
	SearxngURL string `yaml:"searxng_url"`
	// Disabled turns off tool calling entirely.
	Disabled bool `yaml:"disabled"`
}

// Load reads configuration from a YAML file, applies defaults, and
// overlays secrets from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			DefaultModel:      "llama3.1:8b",
			RequestTimeoutSec: 15,
		},
		Discord: DiscordConfig{
			FragmentLimit: 2000,
		},
		Context: ContextConfig{
			Limit: 10,
		},
		Tools: ToolsConfig{
			SearxngURL: "http://localhost:8080/search",
		},
	}
}

// applyEnv overlays secrets from environment variables. Environment
// values win over file values so tokens never need to live on disk.
func (c *Config) applyEnv() {
	if v := os.Getenv("DISCORD_BOT_TOKEN"); v != "" {
		c.Discord.Token = v
	}
	if v := os.Getenv("OPENWEBUI_API_KEY"); v != "" {
		c.Backend.APIKey = v
	}
}

// Validate checks invariants that must hold before any event
// processing begins. A validation failure is fatal at startup.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	if c.Backend.DefaultModel == "" {
		return fmt.Errorf("backend.default_model is required")
	}
	if c.Backend.RequestTimeoutSec <= 0 {
		return fmt.Errorf("backend.request_timeout_sec must be positive, got %d", c.Backend.RequestTimeoutSec)
	}
	if c.Context.Limit < 1 {
		return fmt.Errorf("context.limit must be at least 1, got %d", c.Context.Limit)
	}
	if c.Discord.FragmentLimit < 1 {
		return fmt.Errorf("discord.fragment_limit must be at least 1, got %d", c.Discord.FragmentLimit)
	}
	return nil
}

// RequestTimeout returns the backend timeout as a [time.Duration].
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Backend.RequestTimeoutSec) * time.Second
}
