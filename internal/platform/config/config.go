package config

import (
	"time"
)

// Config is the full service configuration, loaded from .config.yaml with
// environment overrides applied on top.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Limits LimitsConfig `yaml:"limits"`
	Raw    RawConfig    `yaml:"raw"`
	Cache  CacheConfig  `yaml:"cache"`
}

type ServerConfig struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

// LimitsConfig bounds what the service accepts before any decode work.
type LimitsConfig struct {
	MaxFileSize    int64 `yaml:"max_file_size"`
	MaxPixels      int64 `yaml:"max_pixels"`
	MaxWidth       int   `yaml:"max_width"`
	MaxHeight      int   `yaml:"max_height"`
	EnableDeepScan bool  `yaml:"enable_deep_scan"`
}

// RawConfig controls the optional RAW decode capability and the slot pool
// bounding concurrent demosaic work.
type RawConfig struct {
	Enabled        bool          `yaml:"enabled"`
	PoolSize       int           `yaml:"pool_size"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

// CacheConfig configures the optional Redis-backed record cache.
type CacheConfig struct {
	Enabled bool             `yaml:"enabled"`
	TTL     time.Duration    `yaml:"ttl"`
	Redis   RedisCacheConfig `yaml:"redis"`
}

type RedisCacheConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}
