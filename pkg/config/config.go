// Package config loads and defaults the configuration for an lsmkv
// engine instance: when it flushes, how many SSTables it is configured
// for, and how it logs. The data directory is not part of it; callers
// pass it to engine.New separately.
package config

import (
	"log/slog"
	"os"

	"github.com/goccy/go-yaml"
)

// Config is the root configuration for an engine instance.
type Config struct {
	Logger LoggerConfig `yaml:"logger"`
	Engine EngineConfig `yaml:"engine"`
}

// LoggerConfig controls the slog handler installed by cmd/ entry points.
type LoggerConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// EngineConfig is the engine's single configuration record: both
// fields are optional, and the zero value of each field below is
// replaced by its documented default in Normalize.
type EngineConfig struct {
	// MemtableSizeLimit is the approximate byte threshold at which a
	// MemTable is flushed to a new SSTable. Default: 4 MiB.
	MemtableSizeLimit uint64 `yaml:"memtable_size_limit"`
	// MaxSSTables is recognized but not acted upon: no compaction is
	// implemented in this core. Default: 10.
	MaxSSTables int `yaml:"max_sstables"`
}

const (
	defaultMemtableSizeLimit = 4 * 1024 * 1024
	defaultMaxSSTables       = 10
)

// Normalize fills zero-valued fields with their documented defaults.
// Safe to call repeatedly.
func (c EngineConfig) Normalize() EngineConfig {
	if c.MemtableSizeLimit == 0 {
		c.MemtableSizeLimit = defaultMemtableSizeLimit
	}
	if c.MaxSSTables == 0 {
		c.MaxSSTables = defaultMaxSSTables
	}
	return c
}

// Default returns a baseline configuration suitable for local
// development and for any caller that does not supply a config file.
func Default() Config {
	return Config{
		Logger: LoggerConfig{
			Level: "INFO",
			JSON:  false,
		},
		Engine: EngineConfig{
			MemtableSizeLimit: defaultMemtableSizeLimit,
			MaxSSTables:       defaultMaxSSTables,
		},
	}
}

// Load reads a YAML config file at path. A missing file is not an
// error: it yields Default().
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("config file not found, using default config", "path", path)
			return Default(), nil
		}
		return Config{}, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	cfg.Engine = cfg.Engine.Normalize()

	return cfg, nil
}

// InitLogger installs a global slog.Logger per cfg.Logger.
func InitLogger(cfg LoggerConfig) {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.JSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
