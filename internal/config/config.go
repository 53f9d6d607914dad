// Package config handles application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/orderlabs/order/internal/capability"
)

// ConfigFileName is the per-workspace configuration document, relative to
// the workspace root.
const ConfigFileName = ".order/config.yaml"

// Config holds all application configuration. Environment variables cover
// runtime knobs; connection definitions and capability overrides come from
// the workspace YAML document.
type Config struct {
	// Workspace settings
	WorkspaceRoot string

	// Negotiation settings
	CapabilityTTL time.Duration
	MaxRetries    int

	// Logging
	LogLevel  string
	LogFormat string

	// Connections declared in the workspace document, in file order.
	Connections []Connection
}

// Connection describes one provider endpoint the agent can talk to.
type Connection struct {
	Name         string              `yaml:"name"`
	Provider     capability.Provider `yaml:"provider"`
	BaseURL      string              `yaml:"base_url,omitempty"`
	APIKey       string              `yaml:"api_key,omitempty"`
	APIKeyEnv    string              `yaml:"api_key_env,omitempty"`
	Model        string              `yaml:"model"`
	Capabilities capability.Override `yaml:"capabilities,omitempty"`
}

type configDocument struct {
	Connections []Connection `yaml:"connections"`
}

// Load reads configuration from environment variables and, when present,
// the workspace YAML document. A missing document is not an error; a
// malformed one is.
func Load() (*Config, error) {
	root := getEnv("ORDER_WORKSPACE", "")
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving workspace root: %w", err)
		}
		root = cwd
	}

	cfg := &Config{
		WorkspaceRoot: root,
		CapabilityTTL: getEnvDuration("ORDER_CAPABILITY_TTL", capability.DefaultTTL),
		MaxRetries:    getEnvInt("ORDER_MAX_RETRIES", capability.DefaultMaxRetries),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "text"),
	}

	path := filepath.Join(root, ConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading %s: %w", ConfigFileName, err)
	}

	var doc configDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ConfigFileName, err)
	}

	for i := range doc.Connections {
		conn := &doc.Connections[i]
		if conn.Name == "" {
			conn.Name = string(conn.Provider)
		}
		if !capability.IsValidProvider(conn.Provider) {
			return nil, fmt.Errorf("%s: connection %q: unknown provider %q", ConfigFileName, conn.Name, conn.Provider)
		}
		if conn.Model == "" {
			return nil, fmt.Errorf("%s: connection %q: model is required", ConfigFileName, conn.Name)
		}
		conn.BaseURL = capability.NormalizeBaseURL(conn.BaseURL)
		if conn.APIKey == "" {
			conn.APIKey = resolveAPIKey(conn.APIKeyEnv, conn.Provider)
		}
	}
	cfg.Connections = doc.Connections

	return cfg, nil
}

// Connection returns the named connection, or the first one when name is
// empty.
func (c *Config) Connection(name string) (Connection, bool) {
	if name == "" {
		if len(c.Connections) == 0 {
			return Connection{}, false
		}
		return c.Connections[0], true
	}
	for _, conn := range c.Connections {
		if conn.Name == name {
			return conn, true
		}
	}
	return Connection{}, false
}

// resolveAPIKey picks up credentials from the environment: an explicit
// api_key_env wins, otherwise the provider's conventional variable.
func resolveAPIKey(envName string, provider capability.Provider) string {
	if envName != "" {
		return os.Getenv(envName)
	}
	switch provider {
	case capability.ProviderOpenAI, capability.ProviderOpenAICompatible, capability.ProviderCodex:
		return os.Getenv("OPENAI_API_KEY")
	case capability.ProviderClaude:
		return os.Getenv("ANTHROPIC_API_KEY")
	case capability.ProviderGemini:
		return os.Getenv("GEMINI_API_KEY")
	}
	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}
