package tier

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemora/mnemora/engine/memcore"
)

func TestRunMigration(t *testing.T) {
	t.Run("Should demote an aged-out hot item back to warm", func(t *testing.T) {
		cfg := testConfig()
		coord, env := newTestCoordinator(t, cfg)
		id, err := coord.AddMemoryItem(env.ctx, &memcore.Item{UserID: "u1", Content: "was hot"})
		require.NoError(t, err)
		for range 4 {
			_, err := coord.GetMemoryItem(env.ctx, id)
			require.NoError(t, err)
		}
		require.True(t, env.inHot(t, id))
		// Well past the hot-tier age limit, still recently enough for warm.
		coord.setRecord(id, 6, time.Now().Add(-8*24*time.Hour))
		require.NoError(t, coord.RunMigration(env.ctx))
		assert.False(t, env.inHot(t, id))
		assert.True(t, env.inWarm(t, cfg, id))
		assert.False(t, coord.cache.Contains(id))
	})

	t.Run("Should demote an untouched warm item straight to cold", func(t *testing.T) {
		cfg := testConfig()
		coord, env := newTestCoordinator(t, cfg)
		id, err := coord.AddMemoryItem(env.ctx, &memcore.Item{UserID: "u1", Content: "dusty"})
		require.NoError(t, err)
		coord.setRecord(id, 5, time.Now().Add(-31*24*time.Hour))
		require.NoError(t, coord.RunMigration(env.ctx))
		assert.False(t, env.inWarm(t, cfg, id))
		assert.True(t, env.inCold(t, cfg, id))
	})

	t.Run("Should compress oversized cold content and read it back intact", func(t *testing.T) {
		cfg := testConfig()
		coord, env := newTestCoordinator(t, cfg)
		content := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 20)
		require.Greater(t, len(content), cfg.CompressionThreshold)
		id, err := coord.AddMemoryItem(env.ctx, &memcore.Item{UserID: "u1", Content: content})
		require.NoError(t, err)
		require.NoError(t, coord.RunMigration(env.ctx))

		doc, err := env.docs.GetDocument(env.ctx, cfg.coldCollection(), id)
		require.NoError(t, err)
		assert.Equal(t, true, doc["compressed"])
		stored := doc["content"].(string)
		assert.NotEqual(t, content, stored)
		assert.Less(t, len(stored), len(content))

		got, err := coord.GetMemoryItem(env.ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, content, got.Content)
	})

	t.Run("Should store small cold content uncompressed", func(t *testing.T) {
		cfg := testConfig()
		coord, env := newTestCoordinator(t, cfg)
		id, err := coord.AddMemoryItem(env.ctx, &memcore.Item{UserID: "u1", Content: "tiny"})
		require.NoError(t, err)
		require.NoError(t, coord.RunMigration(env.ctx))
		doc, err := env.docs.GetDocument(env.ctx, cfg.coldCollection(), id)
		require.NoError(t, err)
		assert.Equal(t, false, doc["compressed"])
		assert.Equal(t, "tiny", doc["content"])
	})

	t.Run("Should respect the compression switch", func(t *testing.T) {
		cfg := testConfig()
		cfg.EnableCompression = false
		coord, env := newTestCoordinator(t, cfg)
		content := strings.Repeat("x", cfg.CompressionThreshold*4)
		id, err := coord.AddMemoryItem(env.ctx, &memcore.Item{UserID: "u1", Content: content})
		require.NoError(t, err)
		require.NoError(t, coord.RunMigration(env.ctx))
		doc, err := env.docs.GetDocument(env.ctx, cfg.coldCollection(), id)
		require.NoError(t, err)
		assert.Equal(t, false, doc["compressed"])
		assert.Equal(t, content, doc["content"])
	})

	t.Run("Should leave placements unchanged when run twice without new accesses", func(t *testing.T) {
		cfg := testConfig()
		coord, env := newTestCoordinator(t, cfg)
		coldID, err := coord.AddMemoryItem(env.ctx, &memcore.Item{UserID: "u1", Content: "cold bound"})
		require.NoError(t, err)
		warmID, err := coord.AddMemoryItem(env.ctx, &memcore.Item{UserID: "u1", Content: "warm bound"})
		require.NoError(t, err)
		// Two recent accesses keep warmID warm but below the hot bar.
		coord.setRecord(warmID, 2, time.Now())
		require.NoError(t, coord.RunMigration(env.ctx))
		require.NoError(t, coord.RunMigration(env.ctx))
		assert.True(t, env.inCold(t, cfg, coldID))
		assert.False(t, env.inWarm(t, cfg, coldID))
		assert.True(t, env.inWarm(t, cfg, warmID))
		assert.False(t, env.inCold(t, cfg, warmID))
	})

	t.Run("Should promote a qualifying warm item during the pass", func(t *testing.T) {
		cfg := testConfig()
		coord, env := newTestCoordinator(t, cfg)
		id, err := coord.AddMemoryItem(env.ctx, &memcore.Item{UserID: "u1", Content: "rising star"})
		require.NoError(t, err)
		coord.setRecord(id, 10, time.Now())
		require.NoError(t, coord.RunMigration(env.ctx))
		assert.True(t, env.inHot(t, id))
		assert.False(t, env.inWarm(t, cfg, id))
	})

	t.Run("Should persist access records during the pass", func(t *testing.T) {
		cfg := testConfig()
		coord, env := newTestCoordinator(t, cfg)
		id, err := coord.AddMemoryItem(env.ctx, &memcore.Item{UserID: "u1", Content: "x"})
		require.NoError(t, err)
		require.NoError(t, coord.RunMigration(env.ctx))
		doc, err := env.docs.GetDocument(env.ctx, cfg.trackingCollection(), id)
		require.NoError(t, err)
		assert.EqualValues(t, 1, doc["access_count"])
		assert.NotEmpty(t, doc["last_access"])
	})

	t.Run("Should advance the last-migration stamp", func(t *testing.T) {
		cfg := testConfig()
		coord, env := newTestCoordinator(t, cfg)
		coord.mu.Lock()
		before := coord.lastMigration
		coord.mu.Unlock()
		require.NoError(t, coord.RunMigration(env.ctx))
		coord.mu.Lock()
		after := coord.lastMigration
		coord.mu.Unlock()
		assert.False(t, after.Before(before))
	})

	t.Run("Should keep the item readable throughout demotion", func(t *testing.T) {
		cfg := testConfig()
		coord, env := newTestCoordinator(t, cfg)
		id, err := coord.AddMemoryItem(env.ctx, &memcore.Item{UserID: "u1", Content: "survivor"})
		require.NoError(t, err)
		require.NoError(t, coord.RunMigration(env.ctx))
		got, err := coord.GetMemoryItem(env.ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "survivor", got.Content)
	})
}

func TestCompressContent(t *testing.T) {
	t.Run("Should round-trip arbitrary content", func(t *testing.T) {
		original := strings.Repeat("memory is the residue of thought. ", 50)
		encoded, err := compressContent(original)
		require.NoError(t, err)
		assert.NotEqual(t, original, encoded)
		decoded, err := decompressContent(encoded)
		require.NoError(t, err)
		assert.Equal(t, original, decoded)
	})

	t.Run("Should round-trip empty content", func(t *testing.T) {
		encoded, err := compressContent("")
		require.NoError(t, err)
		decoded, err := decompressContent(encoded)
		require.NoError(t, err)
		assert.Equal(t, "", decoded)
	})

	t.Run("Should reject content that is not base64", func(t *testing.T) {
		_, err := decompressContent("!!definitely not base64!!")
		assert.Error(t, err)
	})

	t.Run("Should reject base64 content that is not gzip", func(t *testing.T) {
		_, err := decompressContent("aGVsbG8gd29ybGQ=")
		assert.Error(t, err)
	})
}
