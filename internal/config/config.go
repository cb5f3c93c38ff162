// Package config loads taskline settings from .taskline/config.yaml, an
// optional .env file and TASKLINE_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

const (
	Dir                 = ".taskline"
	DefaultPath         = Dir + "/config.yaml"
	DefaultDBPath       = Dir + "/taskline.db"
	DefaultSnapshotPath = Dir + "/tasks.jsonl"
	DefaultModel        = "opencode/gemini-3-flash"

	ProviderCommand   = "command"
	ProviderAnthropic = "anthropic"
)

type Config struct {
	DBPath       string `yaml:"db_path"`
	SnapshotPath string `yaml:"snapshot_path"`
	LogLevel     string `yaml:"log_level"`
	Oracle       Oracle `yaml:"oracle"`
	Web          Web    `yaml:"web"`
}

// Oracle selects how instructions are interpreted. Provider "command" runs
// Command with Args; "anthropic" calls the Messages API with APIKey, which
// falls back to ANTHROPIC_API_KEY.
type Oracle struct {
	Provider string        `yaml:"provider"`
	APIKey   string        `yaml:"api_key,omitempty"`
	Command  string        `yaml:"command"`
	Args     []string      `yaml:"args,omitempty"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

type Web struct {
	Port string `yaml:"port"`
}

func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

func (c *Config) ApplyDefaults() {
	if c.DBPath == "" {
		c.DBPath = DefaultDBPath
	}
	if c.SnapshotPath == "" {
		c.SnapshotPath = DefaultSnapshotPath
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Oracle.Provider == "" {
		c.Oracle.Provider = ProviderCommand
	}
	if c.Oracle.Command == "" {
		c.Oracle.Command = "opencode"
	}
	if c.Oracle.Model == "" && c.Oracle.Provider == ProviderCommand {
		c.Oracle.Model = DefaultModel
	}
	if c.Oracle.Timeout == 0 {
		c.Oracle.Timeout = 2 * time.Minute
	}
	if c.Web.Port == "" {
		c.Web.Port = "8000"
	}
}

// Load reads the YAML file at path. A missing file yields the defaults.
// Environment overrides are applied on top.
func Load(path string) (*Config, error) {
	c := &Config{}

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	c.ApplyDefaults()
	return c, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are skipped and variables that are already
// set are kept.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from TASKLINE_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("TASKLINE_DB_PATH", &c.DBPath)
	str("TASKLINE_SNAPSHOT_PATH", &c.SnapshotPath)
	str("TASKLINE_LOG_LEVEL", &c.LogLevel)
	str("TASKLINE_ORACLE_PROVIDER", &c.Oracle.Provider)
	str("TASKLINE_ORACLE_COMMAND", &c.Oracle.Command)
	str("TASKLINE_ORACLE_MODEL", &c.Oracle.Model)
	str("TASKLINE_WEB_PORT", &c.Web.Port)

	if v, ok := lookup("TASKLINE_ORACLE_TIMEOUT"); ok && v != "" {
		d, err := cast.ToDurationE(v)
		if err != nil {
			return fmt.Errorf("invalid TASKLINE_ORACLE_TIMEOUT %q: %w", v, err)
		}
		c.Oracle.Timeout = d
	}
	return nil
}

// Level maps LogLevel onto slog. Unknown values mean info.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Save writes c as YAML, creating the parent directory.
func (c *Config) Save(path string) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
