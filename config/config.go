// Package config loads the bridge configuration from YAML or TOML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. BRIDGE_SERVER_ADDR.
const EnvPrefix = "BRIDGE_"

type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Runtime RuntimeConfig `yaml:"runtime" toml:"runtime"`
	Workers WorkersConfig `yaml:"workers" toml:"workers"`
	Marshal MarshalConfig `yaml:"marshal" toml:"marshal"`
	Log     LogConfig     `yaml:"log" toml:"log"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

type RuntimeConfig struct {
	MemoryLimitPages uint32 `yaml:"memory_limit_pages" toml:"memory_limit_pages"`
	MaxMessageBytes  uint32 `yaml:"max_message_bytes" toml:"max_message_bytes"`
	// Services replace the built-in incident service when non-empty.
	Services []ServiceConfig `yaml:"services" toml:"services"`
}

type ServiceConfig struct {
	Name string `yaml:"name" toml:"name"`
	Path string `yaml:"path" toml:"path"`
}

type WorkersConfig struct {
	Count     int `yaml:"count" toml:"count"`
	QueueSize int `yaml:"queue_size" toml:"queue_size"`
}

type MarshalConfig struct {
	MaxStringBytes uint32 `yaml:"max_string_bytes" toml:"max_string_bytes"`
}

type LogConfig struct {
	Level       string `yaml:"level" toml:"level"`
	Development bool   `yaml:"development" toml:"development"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Workers: WorkersConfig{
			Count:     4,
			QueueSize: 64,
		},
		Marshal: MarshalConfig{MaxStringBytes: 1 << 20},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults, picking the decoder by extension, then
// applies environment overrides. An empty path yields defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse yaml config: %w", err)
			}
		case ".toml":
			if _, err := toml.Decode(string(data), cfg); err != nil {
				return nil, fmt.Errorf("parse toml config: %w", err)
			}
		default:
			return nil, fmt.Errorf("unsupported config format %q", ext)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPrefix + "SERVER_ADDR"); ok {
		c.Server.Addr = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvPrefix + "LOG_LEVEL"); ok {
		c.Log.Level = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvPrefix + "WORKERS_COUNT"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %sWORKERS_COUNT: %w", EnvPrefix, err)
		}
		c.Workers.Count = n
	}
	return nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Workers.Count < 1 {
		return fmt.Errorf("workers.count must be positive, got %d", c.Workers.Count)
	}
	if c.Workers.QueueSize < 0 {
		return fmt.Errorf("workers.queue_size must not be negative, got %d", c.Workers.QueueSize)
	}
	if c.Runtime.MemoryLimitPages > 65536 {
		return fmt.Errorf("runtime.memory_limit_pages exceeds 65536")
	}

	seen := make(map[string]bool, len(c.Runtime.Services))
	for i, s := range c.Runtime.Services {
		if s.Name == "" || s.Path == "" {
			return fmt.Errorf("runtime.services[%d]: name and path are required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("runtime.services[%d]: duplicate service %q", i, s.Name)
		}
		seen[s.Name] = true
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// BuildLogger builds the process logger described by the log section.
func (l LogConfig) BuildLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
