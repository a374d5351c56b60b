package config

import "time"

// Config is the full runtime configuration, grouped by concern. Every
// field can be overridden through MNEMORA_-prefixed environment
// variables, e.g. MNEMORA_REDIS_HOST or MNEMORA_TIER_WARM_TIER_MAX_AGE.
type Config struct {
	Log      LogConfig      `koanf:"log"`
	Redis    RedisConfig    `koanf:"redis"`
	Database DatabaseConfig `koanf:"database"`
	Cache    CacheConfig    `koanf:"cache"`
	Tier     TierConfig     `koanf:"tier"`
}

// LogConfig controls the process-wide logger.
type LogConfig struct {
	Level  string `koanf:"level"  validate:"oneof=debug info warn error"`
	JSON   bool   `koanf:"json"`
	Source bool   `koanf:"source"`
}

// RedisConfig describes the hot-tier connection. URL, when set, wins
// over the discrete host/port fields.
type RedisConfig struct {
	URL          string        `koanf:"url"`
	Host         string        `koanf:"host"`
	Port         string        `koanf:"port"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"              validate:"gte=0"`
	PoolSize     int           `koanf:"pool_size"       validate:"gte=0"`
	DialTimeout  time.Duration `koanf:"dial_timeout"    validate:"gt=0"`
	ReadTimeout  time.Duration `koanf:"read_timeout"    validate:"gt=0"`
	WriteTimeout time.Duration `koanf:"write_timeout"   validate:"gt=0"`

	OpTimeout       time.Duration `koanf:"op_timeout"        validate:"gt=0"`
	DefaultTTL      time.Duration `koanf:"default_ttl"       validate:"gte=0"`
	MaxMemory       string        `koanf:"max_memory"`
	MaxMemoryPolicy string        `koanf:"max_memory_policy"`
}

// DatabaseConfig describes the warm/cold document store connection.
type DatabaseConfig struct {
	ConnString  string        `koanf:"conn_string"`
	Host        string        `koanf:"host"`
	Port        string        `koanf:"port"`
	User        string        `koanf:"user"`
	Password    string        `koanf:"password"`
	Name        string        `koanf:"name"`
	SSLMode     string        `koanf:"ssl_mode"`
	ConnTimeout time.Duration `koanf:"conn_timeout" validate:"gt=0"`
}

// CacheConfig bounds the in-process cache in front of the hot tier.
type CacheConfig struct {
	MaxSize         int           `koanf:"max_size"         validate:"gt=0"`
	EvictionPolicy  string        `koanf:"eviction_policy"  validate:"oneof=lru lfu ttl"`
	DefaultTTL      time.Duration `koanf:"default_ttl"      validate:"gte=0"`
	CleanupInterval time.Duration `koanf:"cleanup_interval" validate:"gte=0"`
}

// TierConfig drives placement and migration across hot, warm and cold.
type TierConfig struct {
	Namespace            string        `koanf:"namespace"             validate:"required"`
	HotTierMaxAge        time.Duration `koanf:"hot_tier_max_age"      validate:"gt=0"`
	WarmTierMaxAge       time.Duration `koanf:"warm_tier_max_age"     validate:"gt=0"`
	MinAccessCountHot    int64         `koanf:"min_access_count_hot"  validate:"gt=0"`
	MinAccessCountWarm   int64         `koanf:"min_access_count_warm" validate:"gt=0"`
	EnableCompression    bool          `koanf:"enable_compression"`
	CompressionThreshold int           `koanf:"compression_threshold" validate:"gte=0"`
	MigrationInterval    time.Duration `koanf:"migration_interval"    validate:"gte=0"`
	WarmPageSize         int           `koanf:"warm_page_size"        validate:"gt=0"`
	MigrationConcurrency int           `koanf:"migration_concurrency" validate:"gt=0"`
}

// Default returns the built-in configuration. Every loader starts from
// these values before applying environment overrides.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Redis: RedisConfig{
			Host:            "localhost",
			Port:            "6379",
			PoolSize:        10,
			DialTimeout:     5 * time.Second,
			ReadTimeout:     3 * time.Second,
			WriteTimeout:    3 * time.Second,
			OpTimeout:       5 * time.Second,
			DefaultTTL:      time.Hour,
			MaxMemoryPolicy: "allkeys-lru",
		},
		Database: DatabaseConfig{
			Host:        "localhost",
			Port:        "5432",
			User:        "mnemora",
			Name:        "mnemora",
			SSLMode:     "disable",
			ConnTimeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			MaxSize:         1000,
			EvictionPolicy:  "lru",
			DefaultTTL:      time.Hour,
			CleanupInterval: 5 * time.Minute,
		},
		Tier: TierConfig{
			Namespace:            "mnemora",
			HotTierMaxAge:        7 * 24 * time.Hour,
			WarmTierMaxAge:       30 * 24 * time.Hour,
			MinAccessCountHot:    5,
			MinAccessCountWarm:   2,
			EnableCompression:    true,
			CompressionThreshold: 500,
			MigrationInterval:    time.Hour,
			WarmPageSize:         100,
			MigrationConcurrency: 4,
		},
	}
}

// RedisURL assembles the effective Redis URL, preferring an explicit
// one over the discrete fields.
func (c *RedisConfig) RedisURL() string {
	if c.URL != "" {
		return c.URL
	}
	u := "redis://"
	if c.Password != "" {
		u += ":" + c.Password + "@"
	}
	return u + c.Host + ":" + c.Port
}

// DSN assembles the effective Postgres connection string, preferring an
// explicit one over the discrete fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnString != "" {
		return c.ConnString
	}
	u := "postgres://" + c.User
	if c.Password != "" {
		u += ":" + c.Password
	}
	return u + "@" + c.Host + ":" + c.Port + "/" + c.Name + "?sslmode=" + c.SSLMode
}
