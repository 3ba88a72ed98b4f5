package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alecthomas/units"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. MEDIA_CACHE_CACHE_ROOT_DIR
const EnvPrefix = "MEDIA_CACHE"

// Config represents the entire application configuration
type Config struct {
	Cache       CacheConfig       `mapstructure:"cache"`
	Transport   TransportConfig   `mapstructure:"transport"`
	Prefetch    PrefetchConfig    `mapstructure:"prefetch"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
}

// CacheConfig contains cache settings. Sizes are human readable byte
// strings such as "200KiB" or "10GB"; "0" disables a limit.
type CacheConfig struct {
	RootDir             string `mapstructure:"root_dir"`
	ChunkSize           string `mapstructure:"chunk_size"`
	ReadBufferSize      string `mapstructure:"read_buffer_size"`
	MaxSize             string `mapstructure:"max_size"`
	MaxAge              string `mapstructure:"max_age"`
	MaxDiskUsagePercent int    `mapstructure:"max_disk_usage_percent"`
	NotifyInterval      string `mapstructure:"notify_interval"`
	PersistInterval     string `mapstructure:"persist_interval"`
	EvictionInterval    string `mapstructure:"eviction_interval"`
}

// TransportConfig contains origin HTTP client settings
type TransportConfig struct {
	UserAgent             string `mapstructure:"user_agent"`
	ResponseHeaderTimeout string `mapstructure:"response_header_timeout"`
	IdleConnTimeout       string `mapstructure:"idle_conn_timeout"`
	MaxIdleConnsPerHost   int    `mapstructure:"max_idle_conns_per_host"`
	SkipTLSVerify         bool   `mapstructure:"skip_tls_verify"`
}

// PrefetchConfig contains background download settings
type PrefetchConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

// MaintenanceConfig contains janitor settings
type MaintenanceConfig struct {
	SweepInterval   string `mapstructure:"sweep_interval"`
	FlushInterval   string `mapstructure:"flush_interval"`
	IdleTimeout     string `mapstructure:"idle_timeout"`
	CleanupInterval string `mapstructure:"cleanup_interval"`
	StaleFileMaxAge string `mapstructure:"stale_file_max_age"`
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

// DatabaseConfig contains catalog database settings
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache.root_dir", "/var/lib/media-cache")
	v.SetDefault("cache.chunk_size", "200KiB")
	v.SetDefault("cache.read_buffer_size", "64KiB")
	v.SetDefault("cache.max_size", "0")
	v.SetDefault("cache.max_age", "168h")
	v.SetDefault("cache.max_disk_usage_percent", 90)
	v.SetDefault("cache.notify_interval", "1s")
	v.SetDefault("cache.persist_interval", "2s")
	v.SetDefault("cache.eviction_interval", "30s")
	v.SetDefault("transport.user_agent", "media-cache/1.0")
	v.SetDefault("transport.response_header_timeout", "30s")
	v.SetDefault("transport.idle_conn_timeout", "120s")
	v.SetDefault("transport.max_idle_conns_per_host", 16)
	v.SetDefault("transport.skip_tls_verify", false)
	v.SetDefault("prefetch.workers", 2)
	v.SetDefault("prefetch.queue_size", 64)
	v.SetDefault("maintenance.sweep_interval", "5m")
	v.SetDefault("maintenance.flush_interval", "30s")
	v.SetDefault("maintenance.idle_timeout", "5m")
	v.SetDefault("maintenance.cleanup_interval", "1h")
	v.SetDefault("maintenance.stale_file_max_age", "24h")
	v.SetDefault("http.bind_addr", "127.0.0.1:8089")
	v.SetDefault("http.admin_username", "admin")
	v.SetDefault("http.admin_password", "")
	v.SetDefault("http.read_timeout", "30s")
	v.SetDefault("http.write_timeout", "0s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "")
}

// Load loads configuration from the specified file path. An empty path
// uses defaults and environment overrides only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Cache.RootDir == "" {
		return fmt.Errorf("cache.root_dir is required")
	}

	chunk, err := units.ParseStrictBytes(c.Cache.ChunkSize)
	if err != nil {
		return fmt.Errorf("invalid cache.chunk_size: %w", err)
	}
	if chunk <= 0 {
		return fmt.Errorf("cache.chunk_size must be positive")
	}
	if _, err := units.ParseStrictBytes(c.Cache.ReadBufferSize); err != nil {
		return fmt.Errorf("invalid cache.read_buffer_size: %w", err)
	}
	if size, err := units.ParseStrictBytes(c.Cache.MaxSize); err != nil {
		return fmt.Errorf("invalid cache.max_size: %w", err)
	} else if size < 0 {
		return fmt.Errorf("cache.max_size must not be negative")
	}
	if c.Cache.MaxDiskUsagePercent <= 0 || c.Cache.MaxDiskUsagePercent > 100 {
		return fmt.Errorf("cache.max_disk_usage_percent must be between 1 and 100")
	}

	durations := map[string]string{
		"cache.max_age":                     c.Cache.MaxAge,
		"cache.notify_interval":             c.Cache.NotifyInterval,
		"cache.persist_interval":            c.Cache.PersistInterval,
		"cache.eviction_interval":           c.Cache.EvictionInterval,
		"transport.response_header_timeout": c.Transport.ResponseHeaderTimeout,
		"transport.idle_conn_timeout":       c.Transport.IdleConnTimeout,
		"maintenance.sweep_interval":        c.Maintenance.SweepInterval,
		"maintenance.flush_interval":        c.Maintenance.FlushInterval,
		"maintenance.idle_timeout":          c.Maintenance.IdleTimeout,
		"maintenance.cleanup_interval":      c.Maintenance.CleanupInterval,
		"maintenance.stale_file_max_age":    c.Maintenance.StaleFileMaxAge,
		"http.read_timeout":                 c.HTTP.ReadTimeout,
		"http.write_timeout":                c.HTTP.WriteTimeout,
		"http.idle_timeout":                 c.HTTP.IdleTimeout,
	}
	for key, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	if c.Prefetch.Workers < 1 || c.Prefetch.Workers > 16 {
		return fmt.Errorf("prefetch.workers must be between 1 and 16")
	}
	if c.Prefetch.QueueSize < 1 {
		return fmt.Errorf("prefetch.queue_size must be positive")
	}

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

func parseBytes(s string, fallback uint64) uint64 {
	n, err := units.ParseStrictBytes(s)
	if err != nil || n < 0 {
		return fallback
	}
	return uint64(n)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// GetChunkSize returns the local read chunk size in bytes
func (c *CacheConfig) GetChunkSize() uint64 {
	return parseBytes(c.ChunkSize, 200*1024)
}

// GetReadBufferSize returns the network read buffer size in bytes
func (c *CacheConfig) GetReadBufferSize() int {
	return int(parseBytes(c.ReadBufferSize, 64*1024))
}

// GetMaxSize returns the cache size limit in bytes, 0 for unlimited
func (c *CacheConfig) GetMaxSize() uint64 {
	return parseBytes(c.MaxSize, 0)
}

// GetMaxAge returns the maximum time since last access, 0 for unlimited
func (c *CacheConfig) GetMaxAge() time.Duration {
	return parseDuration(c.MaxAge, 7*24*time.Hour)
}

// GetNotifyInterval returns the progress notification interval
func (c *CacheConfig) GetNotifyInterval() time.Duration {
	return parseDuration(c.NotifyInterval, time.Second)
}

// GetPersistInterval returns the metadata persistence interval during writes
func (c *CacheConfig) GetPersistInterval() time.Duration {
	return parseDuration(c.PersistInterval, 2*time.Second)
}

// GetEvictionInterval returns the minimum time between size-driven evictions
func (c *CacheConfig) GetEvictionInterval() time.Duration {
	return parseDuration(c.EvictionInterval, 30*time.Second)
}

// GetResponseHeaderTimeout returns the origin response header timeout
func (c *TransportConfig) GetResponseHeaderTimeout() time.Duration {
	return parseDuration(c.ResponseHeaderTimeout, 30*time.Second)
}

// GetIdleConnTimeout returns the origin idle connection timeout
func (c *TransportConfig) GetIdleConnTimeout() time.Duration {
	return parseDuration(c.IdleConnTimeout, 120*time.Second)
}

// GetSweepInterval returns the janitor sweep interval
func (c *MaintenanceConfig) GetSweepInterval() time.Duration {
	return parseDuration(c.SweepInterval, 5*time.Minute)
}

// GetFlushInterval returns the session flush interval
func (c *MaintenanceConfig) GetFlushInterval() time.Duration {
	return parseDuration(c.FlushInterval, 30*time.Second)
}

// GetIdleTimeout returns how long an unused session stays open
func (c *MaintenanceConfig) GetIdleTimeout() time.Duration {
	return parseDuration(c.IdleTimeout, 5*time.Minute)
}

// GetCleanupInterval returns the stale file cleanup interval
func (c *MaintenanceConfig) GetCleanupInterval() time.Duration {
	return parseDuration(c.CleanupInterval, time.Hour)
}

// GetStaleFileMaxAge returns the age after which orphaned files are removed
func (c *MaintenanceConfig) GetStaleFileMaxAge() time.Duration {
	return parseDuration(c.StaleFileMaxAge, 24*time.Hour)
}

// GetReadTimeout returns the read timeout as time.Duration
func (c *HTTPConfig) GetReadTimeout() time.Duration {
	return parseDuration(c.ReadTimeout, 30*time.Second)
}

// GetWriteTimeout returns the write timeout as time.Duration
func (c *HTTPConfig) GetWriteTimeout() time.Duration {
	return parseDuration(c.WriteTimeout, 0)
}

// GetIdleTimeout returns the idle timeout as time.Duration
func (c *HTTPConfig) GetIdleTimeout() time.Duration {
	return parseDuration(c.IdleTimeout, 60*time.Second)
}
