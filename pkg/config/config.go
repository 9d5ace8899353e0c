// Package config provides configuration management for rootscan.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	GC       GCConfig       `mapstructure:"gc"`
	Heap     HeapConfig     `mapstructure:"heap"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Log      LogConfig      `mapstructure:"log"`
}

// GCConfig controls the root phase itself.
type GCConfig struct {
	Workers     int    `mapstructure:"workers"`
	StringDedup bool   `mapstructure:"string_dedup"`
	Mode        string `mapstructure:"mode"`     // update, all or strong
	Liveness    string `mapstructure:"liveness"` // marked, forwarded, evacuated or always
	Phases      int    `mapstructure:"phases"`
}

// HeapConfig describes the synthetic heap a run scans.
type HeapConfig struct {
	Objects       int     `mapstructure:"objects"`
	GlobalHandles int     `mapstructure:"global_handles"`
	WeakHandles   int     `mapstructure:"weak_handles"`
	ClassLoaders  int     `mapstructure:"class_loaders"`
	CodeBlobs     int     `mapstructure:"code_blobs"`
	Threads       int     `mapstructure:"threads"`
	StackDepth    int     `mapstructure:"stack_depth"`
	DedupStrings  int     `mapstructure:"dedup_strings"`
	LiveRatio     float64 `mapstructure:"live_ratio"`
	EvacRatio     float64 `mapstructure:"evac_ratio"`
	Seed          uint64  `mapstructure:"seed"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Type     string `mapstructure:"type"` // postgres, mysql or sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"` // file path for sqlite
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
}

// StorageConfig holds report upload configuration.
type StorageConfig struct {
	Type        string `mapstructure:"type"` // none, local or cos
	Bucket      string `mapstructure:"bucket"`
	Region      string `mapstructure:"region"`
	SecretID    string `mapstructure:"secret_id"`
	SecretKey   string `mapstructure:"secret_key"`
	Domain      string `mapstructure:"domain"` // e.g., "myqcloud.com"
	Scheme      string `mapstructure:"scheme"` // e.g., "https" or "http"
	LocalPath   string `mapstructure:"local_path"`
	Prefix      string `mapstructure:"prefix"`
	Compression string `mapstructure:"compression"` // none, gzip or zstd
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"` // empty means stdout
}

// Load reads configuration from the specified file path. A missing file
// falls back to defaults; ROOTSCAN_* environment variables override both.
func Load(configPath string) (*Config, error) {
	v := newViper()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("rootscan")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/rootscan")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Fprintln(os.Stderr, "Config file not found, using defaults")
		} else if os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Config file %s not found, using defaults\n", configPath)
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return decode(v)
}

// LoadFromReader loads configuration from a byte slice (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := newViper()

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("ROOTSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// GC defaults
	v.SetDefault("gc.workers", 4)
	v.SetDefault("gc.string_dedup", true)
	v.SetDefault("gc.mode", "update")
	v.SetDefault("gc.liveness", "forwarded")
	v.SetDefault("gc.phases", 1)

	// Heap defaults
	v.SetDefault("heap.objects", 10000)
	v.SetDefault("heap.global_handles", 256)
	v.SetDefault("heap.weak_handles", 512)
	v.SetDefault("heap.class_loaders", 16)
	v.SetDefault("heap.code_blobs", 128)
	v.SetDefault("heap.threads", 32)
	v.SetDefault("heap.stack_depth", 24)
	v.SetDefault("heap.dedup_strings", 1024)
	v.SetDefault("heap.live_ratio", 0.7)
	v.SetDefault("heap.evac_ratio", 0.1)
	v.SetDefault("heap.seed", 1)

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "rootscan.db")
	v.SetDefault("database.max_conns", 10)

	// Storage defaults
	v.SetDefault("storage.type", "none")
	v.SetDefault("storage.local_path", "./reports")
	v.SetDefault("storage.prefix", "rootscan")
	v.SetDefault("storage.compression", "none")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output_path", "")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.GC.Workers < 1 {
		return fmt.Errorf("gc workers must be at least 1")
	}
	if c.GC.Phases < 1 {
		return fmt.Errorf("gc phases must be at least 1")
	}
	if !oneOf(c.GC.Mode, "update", "all", "strong") {
		return fmt.Errorf("unsupported gc mode: %s", c.GC.Mode)
	}
	if !oneOf(c.GC.Liveness, "marked", "forwarded", "evacuated", "always") {
		return fmt.Errorf("unsupported liveness filter: %s", c.GC.Liveness)
	}

	if c.Heap.Objects < 1 {
		return fmt.Errorf("heap objects must be at least 1")
	}
	if c.Heap.LiveRatio < 0 || c.Heap.LiveRatio > 1 || c.Heap.EvacRatio < 0 || c.Heap.EvacRatio > 1 {
		return fmt.Errorf("heap ratios must be within [0,1]")
	}

	if c.Database.Enabled {
		if !oneOf(c.Database.Type, "postgres", "mysql", "sqlite") {
			return fmt.Errorf("unsupported database type: %s", c.Database.Type)
		}
		if c.Database.Type != "sqlite" && c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
	}

	// Storage credentials are validated by the storage package.
	if !oneOf(c.Storage.Type, "none", "local", "cos") {
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
	if !oneOf(c.Storage.Compression, "", "none", "gzip", "zstd") {
		return fmt.Errorf("unsupported compression: %s", c.Storage.Compression)
	}

	return nil
}

func oneOf(s string, allowed ...string) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}
