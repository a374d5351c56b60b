package tier

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemora/mnemora/engine/basestore"
	"github.com/mnemora/mnemora/engine/cache"
	"github.com/mnemora/mnemora/engine/docstore"
	"github.com/mnemora/mnemora/engine/hotstore"
	"github.com/mnemora/mnemora/engine/memcore"
	"github.com/mnemora/mnemora/pkg/logger"
)

type testEnv struct {
	ctx  context.Context
	docs *docstore.MemoryStore
	hot  *hotstore.Store
	mr   *miniredis.Miniredis
	base *basestore.Store
}

func testConfig() Config {
	return Config{
		Namespace:            "test",
		MaxCacheSize:         100,
		EvictionPolicy:       cache.LRU,
		HotTierMaxAge:        7 * 24 * time.Hour,
		WarmTierMaxAge:       30 * 24 * time.Hour,
		MinAccessCountHot:    5,
		MinAccessCountWarm:   2,
		EnableCompression:    true,
		CompressionThreshold: 100,
		WarmPageSize:         100,
		MigrationConcurrency: 2,
		// Background migration stays off; tests force passes directly.
		MigrationInterval: 0,
	}
}

func newTestCoordinator(t *testing.T, cfg Config) (*Coordinator, *testEnv) {
	t.Helper()
	ctx := logger.ContextWithLogger(t.Context(), logger.NewForTests())
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	hot, err := hotstore.NewStore(client, hotstore.Options{Namespace: "test", DefaultTTL: time.Hour})
	require.NoError(t, err)
	require.NoError(t, hot.Connect(ctx))
	docs := docstore.NewMemoryStore()
	base := basestore.New(docs, "memory_items")
	coord, err := New(ctx, cfg, Deps{Hot: hot, Docs: docs, Base: base})
	require.NoError(t, err)
	t.Cleanup(func() { _ = coord.Close(ctx) })
	return coord, &testEnv{ctx: ctx, docs: docs, hot: hot, mr: mr, base: base}
}

func (e *testEnv) inWarm(t *testing.T, cfg Config, id string) bool {
	t.Helper()
	_, err := e.docs.GetDocument(e.ctx, cfg.warmCollection(), id)
	if memcore.IsNotFound(err) {
		return false
	}
	require.NoError(t, err)
	return true
}

func (e *testEnv) inCold(t *testing.T, cfg Config, id string) bool {
	t.Helper()
	_, err := e.docs.GetDocument(e.ctx, cfg.coldCollection(), id)
	if memcore.IsNotFound(err) {
		return false
	}
	require.NoError(t, err)
	return true
}

func (e *testEnv) inHot(t *testing.T, id string) bool {
	t.Helper()
	item, err := e.hot.GetItem(e.ctx, id)
	require.NoError(t, err)
	return item != nil
}

func (c *Coordinator) setRecord(id string, count int64, lastAccess time.Time) {
	c.tracker.mu.Lock()
	defer c.tracker.mu.Unlock()
	c.tracker.records[id] = memcore.AccessRecord{Count: count, LastAccess: lastAccess}
}

func TestAddMemoryItem(t *testing.T) {
	t.Run("Should store new items warm with the base copy first", func(t *testing.T) {
		cfg := testConfig()
		coord, env := newTestCoordinator(t, cfg)
		id, err := coord.AddMemoryItem(env.ctx, &memcore.Item{UserID: "u1", Content: "hello"})
		require.NoError(t, err)
		require.NotEmpty(t, id)
		assert.True(t, env.inWarm(t, cfg, id))
		assert.False(t, env.inHot(t, id))
		baseCopy, err := env.base.GetMemoryItem(env.ctx, id)
		require.NoError(t, err)
		require.NotNil(t, baseCopy)
		assert.Equal(t, "hello", baseCopy.Content)
	})

	t.Run("Should initialize access tracking to one access", func(t *testing.T) {
		cfg := testConfig()
		coord, env := newTestCoordinator(t, cfg)
		id, err := coord.AddMemoryItem(env.ctx, &memcore.Item{UserID: "u1", Content: "x"})
		require.NoError(t, err)
		rec, ok := coord.tracker.Get(id)
		require.True(t, ok)
		assert.Equal(t, int64(1), rec.Count)
	})

	t.Run("Should serve the new content right after re-adding a hot item", func(t *testing.T) {
		cfg := testConfig()
		coord, env := newTestCoordinator(t, cfg)
		id, err := coord.AddMemoryItem(env.ctx, &memcore.Item{UserID: "u1", Content: "v1"})
		require.NoError(t, err)
		for range 4 {
			_, err := coord.GetMemoryItem(env.ctx, id)
			require.NoError(t, err)
		}
		require.True(t, env.inHot(t, id))

		_, err = coord.AddMemoryItem(env.ctx, &memcore.Item{ID: id, UserID: "u1", Content: "v2"})
		require.NoError(t, err)
		// The stale hot copies are gone and warm holds the new payload.
		assert.False(t, coord.cache.Contains(id))
		assert.False(t, env.inHot(t, id))
		doc, err := env.docs.GetDocument(env.ctx, cfg.warmCollection(), id)
		require.NoError(t, err)
		assert.Equal(t, "v2", doc["content"])
		got, err := coord.GetMemoryItem(env.ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "v2", got.Content)
	})

	t.Run("Should drop the cold copy when re-adding a cold item", func(t *testing.T) {
		cfg := testConfig()
		coord, env := newTestCoordinator(t, cfg)
		id, err := coord.AddMemoryItem(env.ctx, &memcore.Item{UserID: "u1", Content: "v1"})
		require.NoError(t, err)
		require.NoError(t, coord.RunMigration(env.ctx))
		require.True(t, env.inCold(t, cfg, id))

		_, err = coord.AddMemoryItem(env.ctx, &memcore.Item{ID: id, UserID: "u1", Content: "v2"})
		require.NoError(t, err)
		assert.False(t, env.inCold(t, cfg, id))
		got, err := coord.GetMemoryItem(env.ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "v2", got.Content)
	})

	t.Run("Should keep placement history when re-adding a tracked item", func(t *testing.T) {
		cfg := testConfig()
		coord, env := newTestCoordinator(t, cfg)
		id, err := coord.AddMemoryItem(env.ctx, &memcore.Item{UserID: "u1", Content: "v1"})
		require.NoError(t, err)
		for range 2 {
			_, err := coord.GetMemoryItem(env.ctx, id)
			require.NoError(t, err)
		}
		_, err = coord.AddMemoryItem(env.ctx, &memcore.Item{ID: id, UserID: "u1", Content: "v2"})
		require.NoError(t, err)
		rec, ok := coord.tracker.Get(id)
		require.True(t, ok)
		// 1 add + 2 reads + 1 update, not reset to 1.
		assert.Equal(t, int64(4), rec.Count)
	})

	t.Run("Should surface base-store validation failures", func(t *testing.T) {
		cfg := testConfig()
		coord, env := newTestCoordinator(t, cfg)
		_, err := coord.AddMemoryItem(env.ctx, &memcore.Item{Content: "no owner"})
		var opErr *memcore.MemoryOperationError
		assert.ErrorAs(t, err, &opErr)
	})
}

func TestGetMemoryItem(t *testing.T) {
	t.Run("Should round-trip an item before any migration", func(t *testing.T) {
		cfg := testConfig()
		coord, env := newTestCoordinator(t, cfg)
		id, err := coord.AddMemoryItem(env.ctx, &memcore.Item{UserID: "u1", Content: "hello"})
		require.NoError(t, err)
		got, err := coord.GetMemoryItem(env.ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "hello", got.Content)
	})

	t.Run("Should return nil for an unknown id", func(t *testing.T) {
		cfg := testConfig()
		coord, env := newTestCoordinator(t, cfg)
		got, err := coord.GetMemoryItem(env.ctx, "ghost")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Should seed the warm tier from a base-store hit", func(t *testing.T) {
		cfg := testConfig()
		coord, env := newTestCoordinator(t, cfg)
		// Item written behind the coordinator's back, base copy only.
		id, err := env.base.AddMemoryItem(env.ctx, &memcore.Item{UserID: "u1", Content: "base only"})
		require.NoError(t, err)
		require.False(t, env.inWarm(t, cfg, id))
		got, err := coord.GetMemoryItem(env.ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "base only", got.Content)
		assert.True(t, env.inWarm(t, cfg, id))
	})

	t.Run("Should promote a frequently read warm item to hot", func(t *testing.T) {
		cfg := testConfig()
		coord, env := newTestCoordinator(t, cfg)
		id, err := coord.AddMemoryItem(env.ctx, &memcore.Item{UserID: "u1", Content: "popular"})
		require.NoError(t, err)
		// Reads 2..5 push the count past MinAccessCountHot.
		for range 4 {
			_, err := coord.GetMemoryItem(env.ctx, id)
			require.NoError(t, err)
		}
		assert.True(t, env.inHot(t, id))
		assert.False(t, env.inWarm(t, cfg, id))
		// Served from the hot path afterwards.
		got, err := coord.GetMemoryItem(env.ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "popular", got.Content)
	})

	t.Run("Should promote a cold hit back to warm", func(t *testing.T) {
		cfg := testConfig()
		coord, env := newTestCoordinator(t, cfg)
		id, err := coord.AddMemoryItem(env.ctx, &memcore.Item{UserID: "u1", Content: "rarely read"})
		require.NoError(t, err)
		// Fresh items have a single access, below MinAccessCountWarm,
		// so the first pass sends them cold.
		require.NoError(t, coord.RunMigration(env.ctx))
		require.True(t, env.inCold(t, cfg, id))
		require.False(t, env.inWarm(t, cfg, id))
		got, err := coord.GetMemoryItem(env.ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "rarely read", got.Content)
		assert.True(t, env.inWarm(t, cfg, id))
		assert.False(t, env.inCold(t, cfg, id))
	})

	t.Run("Should fall back to the base store on corrupt cold data", func(t *testing.T) {
		cfg := testConfig()
		coord, env := newTestCoordinator(t, cfg)
		id, err := env.base.AddMemoryItem(env.ctx, &memcore.Item{UserID: "u1", Content: "pristine"})
		require.NoError(t, err)
		require.NoError(t, env.docs.SetDocument(env.ctx, cfg.coldCollection(), id, map[string]any{
			"id": id, "user_id": "u1", "content": "!!not base64!!", "compressed": true,
		}, false))
		got, err := coord.GetMemoryItem(env.ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "pristine", got.Content)
	})
}

func TestDeleteMemoryItem(t *testing.T) {
	t.Run("Should remove the item from every tier and its access record", func(t *testing.T) {
		cfg := testConfig()
		coord, env := newTestCoordinator(t, cfg)
		id, err := coord.AddMemoryItem(env.ctx, &memcore.Item{UserID: "u1", SessionID: "s1", Content: "gone"})
		require.NoError(t, err)
		for range 4 {
			_, err := coord.GetMemoryItem(env.ctx, id)
			require.NoError(t, err)
		}
		require.True(t, env.inHot(t, id))
		require.NoError(t, coord.DeleteMemoryItem(env.ctx, id))
		assert.False(t, env.inHot(t, id))
		assert.False(t, env.inWarm(t, cfg, id))
		assert.False(t, env.inCold(t, cfg, id))
		_, tracked := coord.tracker.Get(id)
		assert.False(t, tracked)
		got, err := coord.GetMemoryItem(env.ctx, id)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestHealthCheck(t *testing.T) {
	t.Run("Should report healthy when every sub-check passes", func(t *testing.T) {
		cfg := testConfig()
		coord, env := newTestCoordinator(t, cfg)
		report := coord.HealthCheck(env.ctx)
		assert.Equal(t, "healthy", report["status"])
		base := report["base_store"].(map[string]any)
		assert.Equal(t, true, base["healthy"])
		hot := report["hot_store"].(map[string]any)
		assert.Equal(t, true, hot["connected"])
		assert.NotEmpty(t, report["last_migration"])
	})

	t.Run("Should degrade with error detail when the hot store is down", func(t *testing.T) {
		cfg := testConfig()
		coord, env := newTestCoordinator(t, cfg)
		env.mr.Close()
		report := coord.HealthCheck(env.ctx)
		assert.Equal(t, "degraded", report["status"])
		hot := report["hot_store"].(map[string]any)
		assert.Equal(t, false, hot["connected"])
		assert.NotEmpty(t, hot["error"])
	})

	t.Run("Should count tracked items", func(t *testing.T) {
		cfg := testConfig()
		coord, env := newTestCoordinator(t, cfg)
		_, err := coord.AddMemoryItem(env.ctx, &memcore.Item{UserID: "u1", Content: "x"})
		require.NoError(t, err)
		report := coord.HealthCheck(env.ctx)
		assert.Equal(t, 1, report["tracked_items"])
	})
}

func TestAccessTrackingPersistence(t *testing.T) {
	t.Run("Should restore persisted access records on startup", func(t *testing.T) {
		cfg := testConfig()
		coord, env := newTestCoordinator(t, cfg)
		id, err := coord.AddMemoryItem(env.ctx, &memcore.Item{UserID: "u1", Content: "x"})
		require.NoError(t, err)
		_, err = coord.GetMemoryItem(env.ctx, id)
		require.NoError(t, err)
		require.NoError(t, coord.Close(env.ctx))

		revived, err := New(env.ctx, cfg, Deps{Hot: env.hot, Docs: env.docs, Base: env.base})
		require.NoError(t, err)
		t.Cleanup(func() { _ = revived.Close(env.ctx) })
		rec, ok := revived.tracker.Get(id)
		require.True(t, ok)
		assert.Equal(t, int64(2), rec.Count)
	})
}

func TestCleanupExpiredItems(t *testing.T) {
	t.Run("Should force a migration pass", func(t *testing.T) {
		cfg := testConfig()
		coord, env := newTestCoordinator(t, cfg)
		id, err := coord.AddMemoryItem(env.ctx, &memcore.Item{UserID: "u1", Content: "x"})
		require.NoError(t, err)
		removed, err := coord.CleanupExpiredItems(env.ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, removed)
		// The forced pass demoted the single-access item to cold.
		assert.True(t, env.inCold(t, cfg, id))
	})
}
