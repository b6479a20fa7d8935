package config

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config represents the entire application configuration
type Config struct {
	Assets   AssetsConfig   `mapstructure:"assets"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Network  NetworkConfig  `mapstructure:"network"`
	Playback PlaybackConfig `mapstructure:"playback"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
}

// AssetsConfig describes where sound files are fetched from
type AssetsConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Catalog []SoundConfig `mapstructure:"catalog"` // Overrides the built-in catalog when non-empty
}

// SoundConfig is a single catalog entry
type SoundConfig struct {
	ID            string `mapstructure:"id"`
	Name          string `mapstructure:"name"`
	Category      string `mapstructure:"category"`
	FileName      string `mapstructure:"file_name"`
	DefaultVolume int    `mapstructure:"default_volume"`
}

// CacheConfig contains cache settings
type CacheConfig struct {
	RootDir            string `mapstructure:"root_dir"`
	MaxSizeMB          int    `mapstructure:"max_size_mb"`
	StaleAfter         string `mapstructure:"stale_after"`
	CompressionLevel   int    `mapstructure:"compression_level"`
	MemoryEntries      int    `mapstructure:"memory_entries"`
	PreloadConcurrency int    `mapstructure:"preload_concurrency"`
	CleanupInterval    string `mapstructure:"cleanup_interval"`
	IdleUnloadInterval string `mapstructure:"idle_unload_interval"`
}

// NetworkConfig contains fetch and connectivity probe settings
type NetworkConfig struct {
	FetchTimeout  string `mapstructure:"fetch_timeout"`
	ProbeURL      string `mapstructure:"probe_url"`
	ProbeInterval string `mapstructure:"probe_interval"`
	ProbeTimeout  string `mapstructure:"probe_timeout"`
}

// PlaybackConfig contains audio output settings
type PlaybackConfig struct {
	Backend      string `mapstructure:"backend"` // "oto" or "null"
	SampleRate   int    `mapstructure:"sample_rate"`
	BufferSizeMs int    `mapstructure:"buffer_size_ms"`
	DefaultFade  string `mapstructure:"default_fade"`
}

// HTTPConfig contains HTTP server configuration
type HTTPConfig struct {
	BindAddr      string `mapstructure:"bind_addr"`
	AdminUsername string `mapstructure:"admin_username"`
	AdminPassword string `mapstructure:"admin_password"`
	ReadTimeout   string `mapstructure:"read_timeout"`
	WriteTimeout  string `mapstructure:"write_timeout"`
	IdleTimeout   string `mapstructure:"idle_timeout"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path          string `mapstructure:"path"`
	CacheSizeMB   int    `mapstructure:"cache_size_mb"`
	BusyTimeoutMs int    `mapstructure:"busy_timeout_ms"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("assets.base_url", "http://localhost:5173/src/assets/sounds")
	v.SetDefault("cache.root_dir", "/var/lib/ambientmix")
	v.SetDefault("cache.max_size_mb", 30)
	v.SetDefault("cache.stale_after", "168h")
	v.SetDefault("cache.compression_level", 1)
	v.SetDefault("cache.memory_entries", 8)
	v.SetDefault("cache.preload_concurrency", 4)
	v.SetDefault("cache.cleanup_interval", "1h")
	v.SetDefault("cache.idle_unload_interval", "5m")
	v.SetDefault("network.fetch_timeout", "30s")
	v.SetDefault("network.probe_url", "")
	v.SetDefault("network.probe_interval", "15s")
	v.SetDefault("network.probe_timeout", "3s")
	v.SetDefault("playback.backend", "oto")
	v.SetDefault("playback.sample_rate", 44100)
	v.SetDefault("playback.buffer_size_ms", 100)
	v.SetDefault("playback.default_fade", "1s")
	v.SetDefault("http.bind_addr", "127.0.0.1:8080")
	v.SetDefault("http.admin_username", "admin")
	v.SetDefault("http.admin_password", "")
	v.SetDefault("http.read_timeout", "30s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "")
	v.SetDefault("database.cache_size_mb", 16)
	v.SetDefault("database.busy_timeout_ms", 5000)
}

// Default returns the configuration with every default applied and no file read
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	// Defaults alone always decode.
	_ = v.Unmarshal(&config)
	return &config
}

// Load loads configuration from the specified file path
func Load(configPath string) (*Config, error) {
	_, config, err := load(configPath)
	return config, err
}

func load(configPath string) (*viper.Viper, *Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("AMBIENTMIX")
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config validation failed: %w", err)
	}

	return v, &config, nil
}

// Watch loads the config and calls onChange with every subsequent valid
// revision of the file. Invalid revisions are reported through onError and
// otherwise ignored.
func Watch(configPath string, onChange func(*Config), onError func(error)) (*Config, error) {
	v, config, err := load(configPath)
	if err != nil {
		return nil, err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		var next Config
		if err := v.Unmarshal(&next); err != nil {
			if onError != nil {
				onError(fmt.Errorf("failed to unmarshal %s: %w", e.Name, err))
			}
			return
		}
		if err := next.Validate(); err != nil {
			if onError != nil {
				onError(fmt.Errorf("config validation failed for %s: %w", e.Name, err))
			}
			return
		}
		onChange(&next)
	})
	v.WatchConfig()

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Assets.BaseURL == "" {
		return fmt.Errorf("assets.base_url is required")
	}
	for i, s := range c.Assets.Catalog {
		if s.ID == "" || s.FileName == "" {
			return fmt.Errorf("assets.catalog[%d]: id and file_name are required", i)
		}
		if s.DefaultVolume < 0 || s.DefaultVolume > 100 {
			return fmt.Errorf("assets.catalog[%d]: default_volume must be between 0 and 100", i)
		}
	}

	// Validate cache config
	if c.Cache.RootDir == "" {
		return fmt.Errorf("cache.root_dir is required")
	}
	if c.Cache.MaxSizeMB <= 0 {
		return fmt.Errorf("cache.max_size_mb must be positive")
	}
	if c.Cache.PreloadConcurrency < 1 || c.Cache.PreloadConcurrency > 16 {
		return fmt.Errorf("cache.preload_concurrency must be between 1 and 16")
	}
	if c.Cache.CompressionLevel < 1 || c.Cache.CompressionLevel > 4 {
		return fmt.Errorf("cache.compression_level must be between 1 and 4")
	}

	durations := map[string]string{
		"cache.stale_after":          c.Cache.StaleAfter,
		"cache.cleanup_interval":     c.Cache.CleanupInterval,
		"cache.idle_unload_interval": c.Cache.IdleUnloadInterval,
		"network.fetch_timeout":      c.Network.FetchTimeout,
		"network.probe_interval":     c.Network.ProbeInterval,
		"network.probe_timeout":      c.Network.ProbeTimeout,
		"playback.default_fade":      c.Playback.DefaultFade,
	}
	for key, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	switch c.Playback.Backend {
	case "oto", "null":
		// Valid backends
	default:
		return fmt.Errorf("invalid playback.backend: %s", c.Playback.Backend)
	}
	switch c.Playback.SampleRate {
	case 44100, 48000:
	default:
		return fmt.Errorf("playback.sample_rate must be 44100 or 48000")
	}

	// Validate logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// GetMaxSizeBytes returns the cache budget in bytes
func (c *CacheConfig) GetMaxSizeBytes() int64 {
	return int64(c.MaxSizeMB) * 1024 * 1024
}

// GetStaleAfter returns the age after which low-priority entries are stale
func (c *CacheConfig) GetStaleAfter() time.Duration {
	d, _ := time.ParseDuration(c.StaleAfter)
	if d == 0 {
		return 7 * 24 * time.Hour
	}
	return d
}

// GetCleanupInterval returns the stale cleanup interval as time.Duration
func (c *CacheConfig) GetCleanupInterval() time.Duration {
	d, _ := time.ParseDuration(c.CleanupInterval)
	if d == 0 {
		return time.Hour
	}
	return d
}

// GetIdleUnloadInterval returns the idle unload interval as time.Duration
func (c *CacheConfig) GetIdleUnloadInterval() time.Duration {
	d, _ := time.ParseDuration(c.IdleUnloadInterval)
	if d == 0 {
		return 5 * time.Minute
	}
	return d
}

// GetFetchTimeout returns the per-asset fetch timeout
func (c *NetworkConfig) GetFetchTimeout() time.Duration {
	d, _ := time.ParseDuration(c.FetchTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetProbeInterval returns the connectivity probe interval
func (c *NetworkConfig) GetProbeInterval() time.Duration {
	d, _ := time.ParseDuration(c.ProbeInterval)
	if d == 0 {
		return 15 * time.Second
	}
	return d
}

// GetProbeTimeout returns the connectivity probe timeout
func (c *NetworkConfig) GetProbeTimeout() time.Duration {
	d, _ := time.ParseDuration(c.ProbeTimeout)
	if d == 0 {
		return 3 * time.Second
	}
	return d
}

// GetDefaultFade returns the fade duration used when callers pass none
func (c *PlaybackConfig) GetDefaultFade() time.Duration {
	d, _ := time.ParseDuration(c.DefaultFade)
	if d == 0 {
		return time.Second
	}
	return d
}

// GetBufferSize returns the output buffer length as time.Duration
func (c *PlaybackConfig) GetBufferSize() time.Duration {
	if c.BufferSizeMs <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(c.BufferSizeMs) * time.Millisecond
}

// GetReadTimeout returns the read timeout as time.Duration
func (c *HTTPConfig) GetReadTimeout() time.Duration {
	d, _ := time.ParseDuration(c.ReadTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetWriteTimeout returns the write timeout as time.Duration
func (c *HTTPConfig) GetWriteTimeout() time.Duration {
	d, _ := time.ParseDuration(c.WriteTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetIdleTimeout returns the idle timeout as time.Duration
func (c *HTTPConfig) GetIdleTimeout() time.Duration {
	d, _ := time.ParseDuration(c.IdleTimeout)
	if d == 0 {
		return 60 * time.Second
	}
	return d
}
