package config

import "time"

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:   "0.0.0.0",
			Port: 8765,
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "data/logs",
			File:  "server.log",
		},
		Limits: LimitsConfig{
			MaxFileSize:    256 * 1024 * 1024,
			MaxPixels:      320_000_000,
			MaxWidth:       32768,
			MaxHeight:      32768,
			EnableDeepScan: true,
		},
		Raw: RawConfig{
			Enabled:        true,
			PoolSize:       2,
			AcquireTimeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			Enabled: false,
			TTL:     24 * time.Hour,
			Redis: RedisCacheConfig{
				Addr:   "127.0.0.1:6379",
				Prefix: "imalink:egg:",
			},
		},
	}
}
