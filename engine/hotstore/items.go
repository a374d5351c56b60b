package hotstore

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/mnemora/mnemora/engine/memcore"
	"github.com/mnemora/mnemora/pkg/logger"
)

// Key layout under the namespace:
//
//	<ns>:item:<id>                 JSON item, TTL-bounded
//	<ns>:user:<owner>              ZSET of item ids, scored by insertion time
//	<ns>:session:<owner>:<sid>     ZSET of item ids, scored by insertion time
func (s *Store) itemKey(id string) string {
	return s.key("item:" + id)
}

func (s *Store) userIndexKey(owner string) string {
	return s.key("user:" + owner)
}

func (s *Store) sessionIndexKey(owner, session string) string {
	return s.key("session:" + owner + ":" + session)
}

// StoreItem writes the item plus its secondary index members in one
// transaction. Index scores carry the insertion time so listings come
// back newest first.
func (s *Store) StoreItem(ctx context.Context, item *memcore.Item) error {
	if item == nil || item.ID == "" {
		return memcore.NewValidationError("id", "", "must not be empty")
	}
	payload, err := item.MarshalJSONString()
	if err != nil {
		return memcore.NewOperationError("redis", "store_item", err)
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	score := float64(s.now().UnixNano())
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.itemKey(item.ID), payload, s.opts.DefaultTTL)
	if item.UserID != "" {
		pipe.ZAdd(ctx, s.userIndexKey(item.UserID), redis.Z{Score: score, Member: item.ID})
		if item.SessionID != "" {
			pipe.ZAdd(ctx, s.sessionIndexKey(item.UserID, item.SessionID), redis.Z{Score: score, Member: item.ID})
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return classify("store_item", err)
	}
	return nil
}

// GetItem returns the item by id, refreshing its TTL, or nil when absent.
func (s *Store) GetItem(ctx context.Context, id string) (*memcore.Item, error) {
	raw, ok, err := s.Get(ctx, "item:"+id)
	if err != nil || !ok {
		return nil, err
	}
	item, err := memcore.UnmarshalItem(raw)
	if err != nil {
		return nil, memcore.NewOperationError("redis", "get_item", err)
	}
	return item, nil
}

// ItemIDs returns every item id currently held in the hot tier. The
// migration pass uses it to build the hot-key union.
func (s *Store) ItemIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	prefix := s.key("item:")
	var ids []string
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, prefix+"*", scanBatch).Result()
		if err != nil {
			return nil, classify("item_ids", err)
		}
		for _, k := range keys {
			ids = append(ids, k[len(prefix):])
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return ids, nil
}

// UserItems returns up to limit of the owner's most recently stored items.
func (s *Store) UserItems(ctx context.Context, owner string, limit int) ([]*memcore.Item, error) {
	return s.indexItems(ctx, s.userIndexKey(owner), limit)
}

// SessionItems returns up to limit of the most recently stored items in
// one owner session.
func (s *Store) SessionItems(ctx context.Context, owner, session string, limit int) ([]*memcore.Item, error) {
	return s.indexItems(ctx, s.sessionIndexKey(owner, session), limit)
}

func (s *Store) indexItems(ctx context.Context, indexKey string, limit int) ([]*memcore.Item, error) {
	if limit <= 0 {
		limit = 10
	}
	scanCtx, cancel := s.opCtx(ctx)
	ids, err := s.client.ZRevRange(scanCtx, indexKey, 0, int64(limit-1)).Result()
	cancel()
	if err != nil {
		return nil, classify("index_range", err)
	}
	log := logger.FromContext(ctx)
	items := make([]*memcore.Item, 0, len(ids))
	for _, id := range ids {
		item, err := s.GetItem(ctx, id)
		if err != nil {
			return nil, err
		}
		if item == nil {
			// Index member outlived its item TTL; leave pruning to the
			// next DeleteItem or FlushAll.
			log.Debug("stale hot-tier index member", "item_id", id)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// DeleteItem removes the item and its members in both secondary indices.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	item, err := s.GetItem(ctx, id)
	if err != nil {
		return err
	}
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	pipe := s.client.TxPipeline()
	pipe.Del(opCtx, s.itemKey(id))
	if item != nil && item.UserID != "" {
		pipe.ZRem(opCtx, s.userIndexKey(item.UserID), id)
		if item.SessionID != "" {
			pipe.ZRem(opCtx, s.sessionIndexKey(item.UserID, item.SessionID), id)
		}
	}
	if _, err := pipe.Exec(opCtx); err != nil {
		return classify("delete_item", err)
	}
	return nil
}
