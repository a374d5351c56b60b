// Package tier implements the tiered storage coordinator: it composes
// the in-process bounded cache, the Redis hot-tier adapter and the
// document database into a hot/warm/cold lifecycle with access tracking
// and periodic background migration.
package tier

import (
	"fmt"
	"time"

	"github.com/mnemora/mnemora/engine/cache"
)

// Config holds tier-placement thresholds and migration cadence.
type Config struct {
	// Namespace prefixes document collections; hot-tier key namespacing
	// is configured on the adapter itself.
	Namespace string

	MaxCacheSize    int
	EvictionPolicy  cache.PolicyKind
	DefaultTTL      time.Duration
	CleanupInterval time.Duration

	// HotTierMaxAge is the longest an item may go unaccessed and stay
	// hot; WarmTierMaxAge the same for warm.
	HotTierMaxAge  time.Duration
	WarmTierMaxAge time.Duration
	// MinAccessCountHot is the access count needed for hot residency;
	// MinAccessCountWarm for warm.
	MinAccessCountHot  int64
	MinAccessCountWarm int64

	EnableCompression    bool
	CompressionThreshold int

	MigrationInterval    time.Duration
	WarmPageSize         int
	MigrationConcurrency int
}

// DefaultConfig mirrors the documented defaults.
func DefaultConfig() Config {
	return Config{
		Namespace:            "mnemora",
		MaxCacheSize:         1000,
		EvictionPolicy:       cache.LRU,
		DefaultTTL:           time.Hour,
		CleanupInterval:      5 * time.Minute,
		HotTierMaxAge:        7 * 24 * time.Hour,
		WarmTierMaxAge:       30 * 24 * time.Hour,
		MinAccessCountHot:    5,
		MinAccessCountWarm:   2,
		EnableCompression:    true,
		CompressionThreshold: 500,
		MigrationInterval:    time.Hour,
		WarmPageSize:         100,
		MigrationConcurrency: 4,
	}
}

func (c *Config) validate() error {
	if c.MaxCacheSize <= 0 {
		return fmt.Errorf("max cache size must be positive")
	}
	if c.WarmPageSize <= 0 {
		c.WarmPageSize = 100
	}
	if c.MigrationConcurrency <= 0 {
		c.MigrationConcurrency = 4
	}
	if c.CompressionThreshold <= 0 {
		c.CompressionThreshold = 500
	}
	return nil
}

func (c *Config) warmCollection() string { return c.Namespace + "_warm_tier" }

func (c *Config) coldCollection() string { return c.Namespace + "_cold_tier" }

func (c *Config) trackingCollection() string { return c.Namespace + "_access_tracking" }
