package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Agent configuration, loaded from a YAML file. api_key is a pointer so
// a key that is present but blank can be rejected instead of silently
// disabling auth.
type Config struct {
	Agent      AgentConfig      `yaml:"agent"`
	API        APIConfig        `yaml:"api"`
	Collection CollectionConfig `yaml:"collection"`
}

type AgentConfig struct {
	ID       string `yaml:"id"`
	Hostname string `yaml:"hostname"`
}

type APIConfig struct {
	Endpoint       string       `yaml:"endpoint"`
	TimeoutSeconds int          `yaml:"timeout_seconds"`
	APIKey         *string      `yaml:"api_key"`
	OAuth          *OAuthConfig `yaml:"oauth"`
}

// OAuthConfig enables the client credentials flow. When set it takes
// precedence over api_key.
type OAuthConfig struct {
	ClientID      string `yaml:"client_id"`
	ClientSecret  string `yaml:"client_secret"`
	TokenEndpoint string `yaml:"token_endpoint"`
	Scope         string `yaml:"scope"`
}

type CollectionConfig struct {
	IntervalSeconds      int        `yaml:"interval_seconds"`
	BatchSize            int        `yaml:"batch_size"`
	FlushIntervalSeconds int        `yaml:"flush_interval_seconds"`
	Disk                 DiskConfig `yaml:"disk"`
}

// DiskConfig controls which mount points get collected. A nil include
// list means everything; an empty one matches nothing.
type DiskConfig struct {
	Enabled            bool     `yaml:"enabled"`
	IncludeMountPoints []string `yaml:"include_mount_points"`
	ExcludeMountPoints []string `yaml:"exclude_mount_points"`
}

const (
	defaultTimeoutSeconds       = 30
	defaultBatchSize            = 100
	defaultFlushIntervalSeconds = 10
)

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates raw YAML configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Agent.ID) == "" {
		return fmt.Errorf("agent.id cannot be empty")
	}
	if strings.TrimSpace(c.API.Endpoint) == "" {
		return fmt.Errorf("api.endpoint cannot be empty")
	}
	if c.API.APIKey != nil && strings.TrimSpace(*c.API.APIKey) == "" {
		return fmt.Errorf("api.api_key cannot be blank when set")
	}
	if oauth := c.API.OAuth; oauth != nil {
		if strings.TrimSpace(oauth.ClientID) == "" {
			return fmt.Errorf("api.oauth.client_id cannot be empty")
		}
		if strings.TrimSpace(oauth.ClientSecret) == "" {
			return fmt.Errorf("api.oauth.client_secret cannot be empty")
		}
		if strings.TrimSpace(oauth.TokenEndpoint) == "" {
			return fmt.Errorf("api.oauth.token_endpoint cannot be empty")
		}
	}
	if c.Collection.IntervalSeconds <= 0 {
		return fmt.Errorf("collection.interval_seconds must be greater than 0")
	}
	return nil
}

// Hostname returns the configured hostname, falling back to the OS one.
func (c *Config) Hostname() string {
	if c.Agent.Hostname != "" {
		return c.Agent.Hostname
	}
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}

// APIKey returns the configured key, or "" when auth is disabled.
func (c *Config) APIKey() string {
	if c.API.APIKey == nil {
		return ""
	}
	return *c.API.APIKey
}

func (c *Config) APITimeout() time.Duration {
	if c.API.TimeoutSeconds <= 0 {
		return defaultTimeoutSeconds * time.Second
	}
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

func (c *Config) BatchSize() int {
	if c.Collection.BatchSize <= 0 {
		return defaultBatchSize
	}
	return c.Collection.BatchSize
}

func (c *Config) CollectionInterval() time.Duration {
	return time.Duration(c.Collection.IntervalSeconds) * time.Second
}

func (c *Config) FlushInterval() time.Duration {
	if c.Collection.FlushIntervalSeconds <= 0 {
		return defaultFlushIntervalSeconds * time.Second
	}
	return time.Duration(c.Collection.FlushIntervalSeconds) * time.Second
}
