// Package config handles repodigest daemon configuration: a YAML file with
// environment variable overrides for the secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roasbeef/repodigest/internal/db"
)

// Default values.
const (
	DefaultListenAddr        = "127.0.0.1:8418"
	DefaultOpenAIModel       = "gpt-4o-mini"
	DefaultGenerationTimeout = 5 * time.Minute
	DefaultMaxItems          = 10
	DefaultMaxPeople         = 5
)

// GitHubConfig contains GitHub API settings.
type GitHubConfig struct {
	// Token is the API token. Overridden by GITHUB_TOKEN; empty falls
	// back to gh CLI ambient auth.
	Token string `yaml:"token,omitempty"`

	// MaxItems is how many items each section keeps after ranking.
	MaxItems int `yaml:"max_items,omitempty"`
}

// OpenAIConfig contains summarization model settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI key. Overridden by OPENAI_API_KEY.
	APIKey string `yaml:"api_key,omitempty"`

	// Model is the chat model used for all summaries.
	Model string `yaml:"model,omitempty"`
}

// ReportConfig tunes the report engine.
type ReportConfig struct {
	// GenerationTimeout bounds one section generation, e.g. "5m".
	GenerationTimeout time.Duration `yaml:"generation_timeout,omitempty"`

	// SummaryTTL is how long a stored summary stays valid. Zero keeps
	// the summary always regenerated.
	SummaryTTL time.Duration `yaml:"summary_ttl,omitempty"`

	// MaxPeople caps the contributor section size.
	MaxPeople int `yaml:"max_people,omitempty"`
}

// Config is the daemon configuration file.
type Config struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string `yaml:"listen_addr,omitempty"`

	// DBPath is the SQLite database path.
	DBPath string `yaml:"db_path,omitempty"`

	GitHub GitHubConfig `yaml:"github,omitempty"`
	OpenAI OpenAIConfig `yaml:"openai,omitempty"`
	Report ReportConfig `yaml:"report,omitempty"`
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "repodigest.yaml"
	}

	return filepath.Join(home, ".repodigest", "config.yaml")
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnv()

	return cfg
}

// Load reads config from the default location. A missing file yields the
// defaults rather than an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigPath())
}

// LoadFrom reads config from a specific path, applying defaults and env
// overrides.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.DBPath == "" {
		if path, err := db.DefaultDBPath(); err == nil {
			c.DBPath = path
		} else {
			c.DBPath = "repodigest.db"
		}
	}
	if c.GitHub.MaxItems <= 0 {
		c.GitHub.MaxItems = DefaultMaxItems
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = DefaultOpenAIModel
	}
	if c.Report.GenerationTimeout <= 0 {
		c.Report.GenerationTimeout = DefaultGenerationTimeout
	}
	if c.Report.MaxPeople <= 0 {
		c.Report.MaxPeople = DefaultMaxPeople
	}
}

// applyEnv lets the secrets come from the environment, which wins over the
// file.
func (c *Config) applyEnv() {
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		c.GitHub.Token = token
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.OpenAI.APIKey = key
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		c.OpenAI.Model = model
	}
}
