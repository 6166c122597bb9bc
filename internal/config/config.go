package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
)

const DefaultFile = "cuecode.yaml"

type Config struct {
	Spec            string           `koanf:"spec"`
	ConfigurationID string           `koanf:"configuration-id"`
	BaseURL         string           `koanf:"base-url"`
	Database        DatabaseConfig   `koanf:"database"`
	Embedding       EmbeddingConfig  `koanf:"embedding"`
	Chat            ChatConfig       `koanf:"chat"`
	Cache           CacheConfig      `koanf:"cache"`
	Retrieval       RetrievalConfig  `koanf:"retrieval"`
	Validation      ValidationConfig `koanf:"validation"`
	Templates       TemplateConfig   `koanf:"templates"`
	Log             LogConfig        `koanf:"log"`
	Metrics         MetricsConfig    `koanf:"metrics"`
}

type DatabaseConfig struct {
	URL            string `koanf:"url"`
	MaxConnections int32  `koanf:"max-connections"`
}

type EmbeddingConfig struct {
	Endpoint   string `koanf:"endpoint"`
	Model      string `koanf:"model"`
	APIKey     string `koanf:"api-key"`
	Dimensions int    `koanf:"dimensions"`
}

type ChatConfig struct {
	Endpoint string `koanf:"endpoint"`
	Model    string `koanf:"model"`
	APIKey   string `koanf:"api-key"`
}

type CacheConfig struct {
	RedisAddr string        `koanf:"redis-addr"`
	TTL       time.Duration `koanf:"ttl"`
}

type RetrievalConfig struct {
	TopK int `koanf:"top-k"`
}

type ValidationConfig struct {
	OpenAPISchema bool `koanf:"openapi-schema"`
}

type TemplateConfig struct {
	Dir string `koanf:"dir"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type MetricsConfig struct {
	Textfile string `koanf:"textfile"`
}

var defaults = map[string]any{
	"database.max-connections":  10,
	"embedding.dimensions":      384,
	"cache.ttl":                 "24h",
	"retrieval.top-k":           10,
	"validation.openapi-schema": true,
	"log.level":                 "info",
	"log.format":                "console",
}

// BindCommonFlags binds the flags every command accepts.
func BindCommonFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()

	flags.StringP("config", "c", "", "Config file path (default: cuecode.yaml)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-format", "", "Log format: console, json")
}

// Load layers defaults, the config file and command-line flags, in that
// order, and validates the result.
func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	configFile, _ := changedFlag(cmd, "config")
	if configFile == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			configFile = DefaultFile
		}
	}

	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	flagsMap := buildFlagsMap(cmd)
	if len(flagsMap) > 0 {
		if err := k.Load(confmap.Provider(flagsMap, "."), nil); err != nil {
			return nil, fmt.Errorf("loading flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"spec":             "spec",
	"configuration-id": "configuration-id",
	"base-url":         "base-url",
	"database-url":     "database.url",
	"templates":        "templates.dir",
	"log-level":        "log.level",
	"log-format":       "log.format",
	"metrics-textfile": "metrics.textfile",
}

func buildFlagsMap(cmd *cobra.Command) map[string]any {
	m := make(map[string]any)

	for flag, key := range flagKeys {
		if v, ok := changedFlag(cmd, flag); ok {
			m[key] = v
		}
	}

	if v, ok := changedFlag(cmd, "top-k"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			m["retrieval.top-k"] = n
		}
	}
	if v, ok := changedFlag(cmd, "skip-openapi-schema"); ok {
		m["validation.openapi-schema"] = v != "true"
	}

	return m
}

// changedFlag returns the value of a flag set on the command line, looking
// at local flags before persistent ones.
func changedFlag(cmd *cobra.Command, name string) (string, bool) {
	f := cmd.Flags().Lookup(name)
	if f == nil {
		f = cmd.PersistentFlags().Lookup(name)
	}
	if f == nil || !f.Changed {
		return "", false
	}
	return f.Value.String(), true
}

func (c *Config) Validate() error {
	if c.ConfigurationID != "" {
		if _, err := uuid.Parse(c.ConfigurationID); err != nil {
			return fmt.Errorf("invalid configuration-id %q: must be a UUID", c.ConfigurationID)
		}
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || !u.IsAbs() {
			return fmt.Errorf("invalid base-url %q: must be an absolute URL", c.BaseURL)
		}
	}
	if c.Database.MaxConnections < 0 {
		return fmt.Errorf("database.max-connections must not be negative")
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top-k must be positive")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Log.Level)
	}

	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s (valid: console, json)", c.Log.Format)
	}

	return nil
}

// ConfigurationUUID parses the configuration id, which commands that read or
// write a configuration require.
func (c *Config) ConfigurationUUID() (uuid.UUID, error) {
	if c.ConfigurationID == "" {
		return uuid.Nil, fmt.Errorf("configuration-id is required")
	}
	return uuid.Parse(c.ConfigurationID)
}

func (c *Config) RequireSpec() error {
	if c.Spec == "" {
		return fmt.Errorf("spec file is required")
	}
	return nil
}

func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	return nil
}

func (c *Config) RequireEmbedding() error {
	if c.Embedding.Endpoint == "" {
		return fmt.Errorf("embedding.endpoint is required")
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	return nil
}

func (c *Config) RequireChat() error {
	if c.Chat.Endpoint == "" {
		return fmt.Errorf("chat.endpoint is required")
	}
	if c.Chat.Model == "" {
		return fmt.Errorf("chat.model is required")
	}
	return nil
}
