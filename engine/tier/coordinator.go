package tier

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/mnemora/mnemora/engine/cache"
	"github.com/mnemora/mnemora/engine/docstore"
	"github.com/mnemora/mnemora/engine/hotstore"
	"github.com/mnemora/mnemora/engine/memcore"
	"github.com/mnemora/mnemora/pkg/logger"
)

// Deps are the collaborators a coordinator composes. Each coordinator
// owns its own cache; hot store, document store and base store are
// shared resources constructed by the caller.
type Deps struct {
	Hot  *hotstore.Store
	Docs docstore.Store
	Base memcore.BaseStore
}

// baseDeleter is implemented by base stores that support explicit
// deletes; the coordinator uses it opportunistically.
type baseDeleter interface {
	DeleteMemoryItem(ctx context.Context, id string) error
}

// Coordinator gives every item exactly one authoritative current tier,
// inferred from which store holds it. Reads walk cache → hot → warm →
// cold → base; writes always reach the base store first.
type Coordinator struct {
	cfg     Config
	cache   *cache.Cache[*memcore.Item]
	hot     *hotstore.Store
	docs    docstore.Store
	base    memcore.BaseStore
	tracker *accessTracker

	mu            sync.Mutex // guards lastMigration and closed
	lastMigration time.Time
	closed        bool

	migrating atomic.Bool
	bgCtx     context.Context
	bg        sync.WaitGroup
	stop      chan struct{}
	stopOnce  sync.Once

	now func() time.Time
}

// New builds a coordinator, restores persisted access tracking and, when
// a migration interval is configured, starts the background migration
// ticker.
func New(ctx context.Context, cfg Config, deps Deps) (*Coordinator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if deps.Docs == nil {
		return nil, memcore.NewValidationError("docs", nil, "document store is required")
	}
	if deps.Base == nil {
		return nil, memcore.NewValidationError("base", nil, "base store is required")
	}
	engine, err := cache.New[*memcore.Item](cache.Config{
		MaxSize:         cfg.MaxCacheSize,
		Policy:          cfg.EvictionPolicy,
		DefaultTTL:      cfg.DefaultTTL,
		CleanupInterval: cfg.CleanupInterval,
	})
	if err != nil {
		return nil, err
	}
	c := &Coordinator{
		cfg:     cfg,
		cache:   engine,
		hot:     deps.Hot,
		docs:    deps.Docs,
		base:    deps.Base,
		tracker: newAccessTracker(),
		bgCtx:   ctx,
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	log := logger.FromContext(ctx).With("component", "tier_coordinator")
	if err := c.tracker.load(ctx, c.docs, cfg.trackingCollection()); err != nil {
		log.Warn("could not restore access tracking", "error", err)
	} else {
		log.Debug("access tracking restored", "records", c.tracker.Len())
	}
	c.mu.Lock()
	c.lastMigration = c.now()
	c.mu.Unlock()
	if cfg.MigrationInterval > 0 {
		c.bg.Add(1)
		go c.migrationLoop()
	}
	return c, nil
}

// Close stops background migration, persists access tracking and waits
// for in-flight work.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.stopOnce.Do(func() { close(c.stop) })
	c.bg.Wait()
	c.tracker.persist(ctx, c.docs, c.cfg.trackingCollection())
	return nil
}

// AddMemoryItem durably stores a new item and places it in the warm
// tier. New items never start hot so bulk imports cannot thrash the
// cache. Only a base-store failure fails the call.
func (c *Coordinator) AddMemoryItem(ctx context.Context, item *memcore.Item) (string, error) {
	log := logger.FromContext(ctx).With("component", "tier_coordinator")
	// A caller-provided id may already occupy other tiers; a minted one
	// cannot.
	update := item != nil && item.ID != ""
	id, err := c.base.AddMemoryItem(ctx, item)
	if err != nil {
		return "", c.baseError("add_item", "", err)
	}
	if err := c.retryTransient(ctx, func(ctx context.Context) error {
		return c.docs.SetDocument(ctx, c.cfg.warmCollection(), id, item.ToDocument(), false)
	}); err != nil {
		// The base store already holds the durable copy.
		log.Warn("warm-tier write failed", "item_id", id, "error", err)
	}
	if update {
		c.invalidateStaleCopies(ctx, id)
	}
	if _, tracked := c.tracker.Get(id); tracked {
		// An update keeps the item's placement history; the write counts
		// as one access.
		c.tracker.Record(id, c.now())
	} else {
		c.tracker.Init(id, c.now())
	}
	c.maybeMigrate(ctx)
	return id, nil
}

// invalidateStaleCopies removes the cache, remote hot and cold copies of
// an updated id so the caller's next read cannot see superseded content.
// The warm copy was just overwritten with the new payload.
func (c *Coordinator) invalidateStaleCopies(ctx context.Context, id string) {
	log := logger.FromContext(ctx).With("component", "tier_coordinator", "item_id", id)
	c.cache.Remove(id)
	if c.hot != nil {
		if err := c.hot.DeleteItem(ctx, id); err != nil {
			log.Warn("stale hot copy removal failed", "error", err)
		}
	}
	if err := c.docs.DeleteDocument(ctx, c.cfg.coldCollection(), id); err != nil {
		log.Warn("stale cold copy removal failed", "error", err)
	}
}

// GetMemoryItem walks the tiers fastest first and returns nil when the
// item exists nowhere. Every hit records an access and may promote the
// item toward a faster tier.
func (c *Coordinator) GetMemoryItem(ctx context.Context, id string) (*memcore.Item, error) {
	log := logger.FromContext(ctx).With("component", "tier_coordinator", "item_id", id)
	defer c.maybeMigrate(ctx)

	if item, ok := c.cache.Get(id); ok {
		c.tracker.Record(id, c.now())
		return item, nil
	}
	if item, err := c.hotItem(ctx, id); err != nil {
		log.Warn("hot-tier read failed, falling through", "error", err)
	} else if item != nil {
		c.cache.Put(id, item)
		c.tracker.Record(id, c.now())
		return item, nil
	}
	if item, found, err := c.warmItem(ctx, id); err != nil {
		log.Warn("warm-tier read failed, falling through", "error", err)
	} else if found {
		rec := c.tracker.Record(id, c.now())
		if c.hotEligible(rec) {
			c.promoteWarmToHot(ctx, item)
		}
		return item, nil
	}
	if item, found, err := c.coldItem(ctx, id); err != nil {
		log.Warn("cold-tier read failed, falling through", "error", err)
	} else if found {
		c.tracker.Record(id, c.now())
		c.promoteColdToWarm(ctx, item)
		return item, nil
	}
	item, err := c.base.GetMemoryItem(ctx, id)
	if err != nil {
		return nil, c.baseError("get_item", id, err)
	}
	if item == nil {
		return nil, nil
	}
	// Seed the warm tier so the next read skips the base store.
	if err := c.retryTransient(ctx, func(ctx context.Context) error {
		return c.docs.SetDocument(ctx, c.cfg.warmCollection(), id, item.ToDocument(), false)
	}); err != nil {
		log.Warn("warm-tier seed failed", "error", err)
	}
	c.tracker.Record(id, c.now())
	return item, nil
}

// DeleteMemoryItem removes the item from every tier it occupies plus its
// access record.
func (c *Coordinator) DeleteMemoryItem(ctx context.Context, id string) error {
	log := logger.FromContext(ctx).With("component", "tier_coordinator", "item_id", id)
	c.cache.Remove(id)
	if c.hot != nil {
		if err := c.hot.DeleteItem(ctx, id); err != nil {
			log.Warn("hot-tier delete failed", "error", err)
		}
	}
	if err := c.docs.DeleteDocument(ctx, c.cfg.warmCollection(), id); err != nil {
		log.Warn("warm-tier delete failed", "error", err)
	}
	if err := c.docs.DeleteDocument(ctx, c.cfg.coldCollection(), id); err != nil {
		log.Warn("cold-tier delete failed", "error", err)
	}
	c.tracker.Delete(id)
	if err := c.docs.DeleteDocument(ctx, c.cfg.trackingCollection(), id); err != nil {
		log.Warn("access-record delete failed", "error", err)
	}
	if deleter, ok := c.base.(baseDeleter); ok {
		if err := deleter.DeleteMemoryItem(ctx, id); err != nil {
			return c.baseError("delete_item", id, err)
		}
	}
	return nil
}

// CleanupExpiredItems drops expired cache entries and forces a full
// migration pass, returning the number of expired entries removed.
func (c *Coordinator) CleanupExpiredItems(ctx context.Context) (int, error) {
	removed := c.cache.Cleanup()
	if err := c.RunMigration(ctx); err != nil {
		return removed, err
	}
	return removed, nil
}

// HealthCheck reports a best-effort structured status. It never fails;
// failing sub-checks carry their error detail inline.
func (c *Coordinator) HealthCheck(ctx context.Context) map[string]any {
	status := "healthy"
	baseCheck := map[string]any{"healthy": true}
	if err := c.base.HealthCheck(ctx); err != nil {
		status = "degraded"
		baseCheck = map[string]any{"healthy": false, "error": err.Error()}
	}
	hotCheck := map[string]any{"connected": false}
	if c.hot != nil {
		if err := c.hot.Ping(ctx); err != nil {
			status = "degraded"
			hotCheck = map[string]any{"connected": false, "error": err.Error()}
		} else {
			hotCheck = map[string]any{"connected": true}
		}
	}
	stats := c.cache.Stats()
	c.mu.Lock()
	last := c.lastMigration
	c.mu.Unlock()
	return map[string]any{
		"status":     status,
		"base_store": baseCheck,
		"hot_store":  hotCheck,
		"cache": map[string]any{
			"size":      stats.Size,
			"max_size":  stats.MaxSize,
			"policy":    stats.Policy,
			"hits":      stats.Hits,
			"misses":    stats.Misses,
			"evictions": stats.Evictions,
			"hit_rate":  stats.HitRate(),
		},
		"last_migration": last.UTC().Format(time.RFC3339),
		"tracked_items":  c.tracker.Len(),
	}
}

// CacheStats exposes the bounded cache counters for profiling.
func (c *Coordinator) CacheStats() cache.Stats {
	return c.cache.Stats()
}

// hotItem reads from the remote accelerator; nil means absent.
func (c *Coordinator) hotItem(ctx context.Context, id string) (*memcore.Item, error) {
	if c.hot == nil {
		return nil, nil
	}
	return c.hot.GetItem(ctx, id)
}

// warmItem reads the warm-tier document; found=false means absent.
func (c *Coordinator) warmItem(ctx context.Context, id string) (*memcore.Item, bool, error) {
	doc, err := c.docs.GetDocument(ctx, c.cfg.warmCollection(), id)
	if memcore.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return memcore.ItemFromDocument(doc), true, nil
}

// coldItem reads and, when flagged, decompresses the cold-tier document.
// A decompression failure is surfaced as an error so the caller falls
// back to the base store instead of serving corrupt content.
func (c *Coordinator) coldItem(ctx context.Context, id string) (*memcore.Item, bool, error) {
	doc, err := c.docs.GetDocument(ctx, c.cfg.coldCollection(), id)
	if memcore.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if compressed, _ := doc["compressed"].(bool); compressed {
		content, err := decompressContent(asDocString(doc["content"]))
		if err != nil {
			return nil, false, memcore.NewOperationError("docstore", "decompress", err)
		}
		doc["content"] = content
		doc["compressed"] = false
	}
	return memcore.ItemFromDocument(doc), true, nil
}

// promoteWarmToHot copies the item into both hot stores and removes the
// warm copy only once the hot write succeeded.
func (c *Coordinator) promoteWarmToHot(ctx context.Context, item *memcore.Item) {
	log := logger.FromContext(ctx).With("component", "tier_coordinator", "item_id", item.ID)
	if c.hot != nil {
		if err := c.hot.StoreItem(ctx, item); err != nil {
			log.Warn("hot promotion failed, item stays warm", "error", err)
			return
		}
	}
	c.cache.Put(item.ID, item)
	if err := c.docs.DeleteDocument(ctx, c.cfg.warmCollection(), item.ID); err != nil {
		log.Warn("warm copy removal failed after promotion", "error", err)
	}
	log.Debug("promoted to hot tier")
}

// promoteColdToWarm moves a cold hit back to warm; any read of a cold
// item justifies the promotion.
func (c *Coordinator) promoteColdToWarm(ctx context.Context, item *memcore.Item) {
	log := logger.FromContext(ctx).With("component", "tier_coordinator", "item_id", item.ID)
	if err := c.retryTransient(ctx, func(ctx context.Context) error {
		return c.docs.SetDocument(ctx, c.cfg.warmCollection(), item.ID, item.ToDocument(), false)
	}); err != nil {
		log.Warn("warm promotion failed, item stays cold", "error", err)
		return
	}
	if err := c.docs.DeleteDocument(ctx, c.cfg.coldCollection(), item.ID); err != nil {
		log.Warn("cold copy removal failed after promotion", "error", err)
	}
	log.Debug("promoted to warm tier")
}

// hotEligible reports whether the record qualifies for hot residency.
func (c *Coordinator) hotEligible(rec memcore.AccessRecord) bool {
	return rec.Count >= c.cfg.MinAccessCountHot &&
		c.now().Sub(rec.LastAccess) <= c.cfg.HotTierMaxAge
}

// warmEligible reports whether the record justifies staying warm.
func (c *Coordinator) warmEligible(rec memcore.AccessRecord) bool {
	return rec.Count >= c.cfg.MinAccessCountWarm &&
		c.now().Sub(rec.LastAccess) <= c.cfg.WarmTierMaxAge
}

// baseError wraps base-store failures into the tiering-specific
// taxonomy; these are the only errors that surface to callers.
func (c *Coordinator) baseError(op, id string, err error) error {
	if memcore.IsConnectionError(err) {
		return memcore.NewMemoryConnectionError(op, err)
	}
	return memcore.NewMemoryOperationError(op, id, err)
}

// retryTransient retries an operation with bounded exponential backoff,
// but only when the failure is transport-level.
func (c *Coordinator) retryTransient(ctx context.Context, op func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(50*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if err != nil && memcore.IsConnectionError(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func asDocString(v any) string {
	s, _ := v.(string)
	return s
}
