package tier

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mnemora/mnemora/engine/docstore"
	"github.com/mnemora/mnemora/engine/memcore"
	"github.com/mnemora/mnemora/pkg/logger"
)

// migrationLoop drives periodic migration until Close.
func (c *Coordinator) migrationLoop() {
	defer c.bg.Done()
	ticker := time.NewTicker(c.cfg.MigrationInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if err := c.RunMigration(c.bgCtx); err != nil {
				logger.FromContext(c.bgCtx).Warn("scheduled migration failed", "error", err)
			}
		}
	}
}

// maybeMigrate is the time-gated check run inline on the read/write hot
// paths. The migration body itself always runs on a background
// goroutine so foreground calls never block on a full pass.
func (c *Coordinator) maybeMigrate(ctx context.Context) {
	if c.cfg.MigrationInterval <= 0 || c.migrating.Load() {
		return
	}
	c.mu.Lock()
	if c.closed || c.now().Sub(c.lastMigration) < c.cfg.MigrationInterval {
		c.mu.Unlock()
		return
	}
	// Registered under the lock so Close cannot start waiting between
	// the check and the spawn.
	c.bg.Add(1)
	c.mu.Unlock()
	go func() {
		defer c.bg.Done()
		if err := c.RunMigration(c.bgCtx); err != nil {
			logger.FromContext(ctx).Warn("opportunistic migration failed", "error", err)
		}
	}()
}

// RunMigration executes one full migration pass synchronously:
//
//  1. persist access tracking, so placement decisions survive restarts
//  2. demote stale items out of the hot union (cache ∪ remote adapter)
//  3. evaluate one warm-tier page for promotion or cold demotion
//  4. stamp the last-migration time
//
// Per-item failures are logged and skipped, never aborting the pass.
// Concurrent invocations coalesce: a pass that finds another one
// running returns immediately.
func (c *Coordinator) RunMigration(ctx context.Context) error {
	if !c.migrating.CompareAndSwap(false, true) {
		return nil
	}
	defer c.migrating.Store(false)
	log := logger.FromContext(ctx).With("component", "tier_migration")
	started := c.now()

	c.tracker.persist(ctx, c.docs, c.cfg.trackingCollection())
	c.demoteHotUnion(ctx)
	c.processWarmPage(ctx)

	c.mu.Lock()
	c.lastMigration = c.now()
	c.mu.Unlock()
	log.Debug("migration pass complete", "elapsed", c.now().Sub(started))
	return ctx.Err()
}

// demoteHotUnion walks every key currently hot (in-process cache or
// remote adapter) and demotes the ones that no longer qualify.
// Demotions are independent and run concurrently, bounded by the
// configured parallelism; cancellation is honored between item moves.
func (c *Coordinator) demoteHotUnion(ctx context.Context) {
	log := logger.FromContext(ctx).With("component", "tier_migration")
	union := make(map[string]struct{})
	for _, id := range c.cache.Keys() {
		union[id] = struct{}{}
	}
	if c.hot != nil {
		ids, err := c.hot.ItemIDs(ctx)
		if err != nil {
			log.Warn("could not list remote hot items", "error", err)
		}
		for _, id := range ids {
			union[id] = struct{}{}
		}
	}
	var g errgroup.Group
	g.SetLimit(c.cfg.MigrationConcurrency)
	for id := range union {
		if ctx.Err() != nil {
			break
		}
		rec, _ := c.tracker.Get(id)
		if c.hotEligible(rec) {
			continue
		}
		g.Go(func() error {
			c.demoteHotItem(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
}

// demoteHotItem moves one item hot→warm. The hot copies are removed
// only after the warm write succeeds, so a concurrent read always finds
// the item somewhere.
func (c *Coordinator) demoteHotItem(ctx context.Context, id string) {
	log := logger.FromContext(ctx).With("component", "tier_migration", "item_id", id)
	var item *memcore.Item
	if meta, ok := c.cache.GetWithMetadata(id); ok {
		item = meta.Value
	} else if c.hot != nil {
		hotItem, err := c.hot.GetItem(ctx, id)
		if err != nil {
			log.Warn("hot demotion read failed, skipping", "error", err)
			return
		}
		item = hotItem
	}
	if item == nil {
		// Entry expired between listing and load; drop the cache slot.
		c.cache.RemoveBulk([]string{id})
		return
	}
	if err := c.retryTransient(ctx, func(ctx context.Context) error {
		return c.docs.SetDocument(ctx, c.cfg.warmCollection(), id, item.ToDocument(), false)
	}); err != nil {
		log.Warn("hot demotion write failed, skipping", "error", err)
		return
	}
	c.cache.RemoveBulk([]string{id})
	if c.hot != nil {
		if err := c.hot.DeleteItem(ctx, id); err != nil {
			log.Warn("hot copy removal failed after demotion", "error", err)
		}
	}
	log.Debug("demoted to warm tier")
}

// processWarmPage evaluates one bounded page of warm documents for
// promotion to hot or demotion to cold, applying moves concurrently
// within the page.
func (c *Coordinator) processWarmPage(ctx context.Context) {
	log := logger.FromContext(ctx).With("component", "tier_migration")
	page, err := c.docs.QueryDocuments(ctx, c.cfg.warmCollection(), docstore.Query{
		OrderBy: "timestamp",
		Limit:   c.cfg.WarmPageSize,
	})
	if err != nil {
		log.Warn("could not scan warm tier", "error", err)
		return
	}
	var g errgroup.Group
	g.SetLimit(c.cfg.MigrationConcurrency)
	for _, doc := range page {
		if ctx.Err() != nil {
			break
		}
		rec, _ := c.tracker.Get(doc.ID)
		switch {
		case c.hotEligible(rec):
			g.Go(func() error {
				c.promoteWarmToHot(ctx, memcore.ItemFromDocument(doc.Data))
				return nil
			})
		case !c.warmEligible(rec):
			g.Go(func() error {
				c.demoteWarmItem(ctx, doc)
				return nil
			})
		}
	}
	_ = g.Wait()
}

// demoteWarmItem moves one document warm→cold, compressing oversized
// content when compression is enabled. The warm copy is removed only
// after the cold write succeeds.
func (c *Coordinator) demoteWarmItem(ctx context.Context, doc docstore.Document) {
	log := logger.FromContext(ctx).With("component", "tier_migration", "item_id", doc.ID)
	coldDoc := make(map[string]any, len(doc.Data)+1)
	for k, v := range doc.Data {
		coldDoc[k] = v
	}
	coldDoc["compressed"] = false
	content := asDocString(doc.Data["content"])
	if c.cfg.EnableCompression && len(content) > c.cfg.CompressionThreshold {
		encoded, err := compressContent(content)
		if err != nil {
			log.Warn("compression failed, storing cold copy raw", "error", err)
		} else {
			coldDoc["content"] = encoded
			coldDoc["compressed"] = true
		}
	}
	if err := c.retryTransient(ctx, func(ctx context.Context) error {
		return c.docs.SetDocument(ctx, c.cfg.coldCollection(), doc.ID, coldDoc, false)
	}); err != nil {
		log.Warn("cold demotion write failed, skipping", "error", err)
		return
	}
	if err := c.docs.DeleteDocument(ctx, c.cfg.warmCollection(), doc.ID); err != nil {
		log.Warn("warm copy removal failed after demotion", "error", err)
	}
	log.Debug("demoted to cold tier")
}
