package hotstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mnemora/mnemora/engine/memcore"
	"github.com/mnemora/mnemora/pkg/logger"
)

const (
	defaultItemTTL   = time.Hour
	defaultOpTimeout = 5 * time.Second
	scanBatch        = 100
)

// Options tunes the hot-tier adapter.
type Options struct {
	// Namespace prefixes every key this adapter writes; FlushAll only
	// touches keys under it.
	Namespace string
	// DefaultTTL is applied on writes and refreshed on reads.
	DefaultTTL time.Duration
	// OpTimeout bounds every remote call.
	OpTimeout time.Duration
	// MaxMemory and MaxMemoryPolicy are applied to the server on Connect
	// when non-empty (best effort; managed instances often reject CONFIG).
	MaxMemory       string
	MaxMemoryPolicy string
}

// Stats is the adapter's local view of its own traffic.
type Stats struct {
	Hits   int64
	Misses int64
}

// HitRate returns hits/(hits+misses), 0 when no lookups occurred.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// MemoryStats reports remote memory pressure plus local traffic counters.
type MemoryStats struct {
	UsedMemory         int64   `json:"used_memory"`
	MaxMemory          int64   `json:"max_memory"`
	UsagePct           float64 `json:"usage_pct"`
	HitRate            float64 `json:"hit_rate"`
	EvictionRate       float64 `json:"eviction_rate"`
	KeyCount           int64   `json:"key_count"`
	FragmentationRatio float64 `json:"fragmentation_ratio"`
}

// Store is the hot-tier remote accelerator adapter.
type Store struct {
	client Client
	opts   Options

	mu          sync.Mutex
	stats       Stats
	lastEvicted int64
	lastSample  time.Time
	connected   bool

	now func() time.Time
}

// NewStore wraps an existing client. Connect must be called before use.
func NewStore(client Client, opts Options) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if opts.Namespace == "" {
		opts.Namespace = "mnemora"
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = defaultItemTTL
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = defaultOpTimeout
	}
	return &Store{client: client, opts: opts, now: time.Now}, nil
}

// Connect verifies connectivity, applies the remote memory policy and
// resets local counters.
func (s *Store) Connect(ctx context.Context) error {
	log := logger.FromContext(ctx).With("component", "hotstore")
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return memcore.NewConnectionError("redis", "connect", err)
	}
	if s.opts.MaxMemory != "" {
		if err := s.client.ConfigSet(ctx, "maxmemory", s.opts.MaxMemory).Err(); err != nil {
			log.Warn("could not set maxmemory", "error", err)
		}
	}
	if s.opts.MaxMemoryPolicy != "" {
		if err := s.client.ConfigSet(ctx, "maxmemory-policy", s.opts.MaxMemoryPolicy).Err(); err != nil {
			log.Warn("could not set maxmemory-policy", "error", err)
		}
	}
	s.mu.Lock()
	s.stats = Stats{}
	s.lastEvicted = 0
	s.lastSample = s.now()
	s.connected = true
	s.mu.Unlock()
	log.Debug("hot tier connected", "namespace", s.opts.Namespace)
	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	return s.client.Close()
}

// Connected reports whether Connect succeeded and Close was not called.
func (s *Store) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Ping checks remote reachability.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return memcore.NewConnectionError("redis", "ping", err)
	}
	return nil
}

// Get returns the namespaced value for key and refreshes its TTL on hit.
// Absence is (_, false, nil), never an error.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	val, err := s.client.GetEx(ctx, s.key(key), s.opts.DefaultTTL).Result()
	if errors.Is(err, redis.Nil) {
		s.countMiss()
		return "", false, nil
	}
	if err != nil {
		return "", false, classify("get", err)
	}
	s.countHit()
	return val, true, nil
}

// Set stores a namespaced key with the given TTL (default TTL when ttl<=0).
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if ttl <= 0 {
		ttl = s.opts.DefaultTTL
	}
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return classify("set", err)
	}
	return nil
}

// Delete removes a namespaced key and reports whether it existed.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	n, err := s.client.Del(ctx, s.key(key)).Result()
	if err != nil {
		return false, classify("delete", err)
	}
	return n > 0, nil
}

// Exists reports whether a namespaced key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, classify("exists", err)
	}
	return n > 0, nil
}

// FlushAll deletes every key under this adapter's namespace and resets
// local counters. Keys of other tenants are untouched.
func (s *Store) FlushAll(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	var cursor uint64
	pattern := s.opts.Namespace + ":*"
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return classify("flush", err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return classify("flush", err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	s.mu.Lock()
	s.stats = Stats{}
	s.lastEvicted = 0
	s.lastSample = s.now()
	s.mu.Unlock()
	return nil
}

// Stats returns the local hit/miss snapshot.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// MemoryUsage reports remote memory pressure, key count, fragmentation,
// the local hit rate and the eviction rate since the previous sample.
func (s *Store) MemoryUsage(ctx context.Context) (*MemoryStats, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	memInfo, err := s.client.Info(ctx, "memory").Result()
	if err != nil {
		return nil, classify("info", err)
	}
	statsInfo, err := s.client.Info(ctx, "stats").Result()
	if err != nil {
		return nil, classify("info", err)
	}
	keyCount, err := s.client.DBSize(ctx).Result()
	if err != nil {
		return nil, classify("dbsize", err)
	}
	mem := parseInfo(memInfo)
	srv := parseInfo(statsInfo)
	out := &MemoryStats{
		UsedMemory:         parseInfoInt(mem, "used_memory"),
		MaxMemory:          parseInfoInt(mem, "maxmemory"),
		FragmentationRatio: parseInfoFloat(mem, "mem_fragmentation_ratio"),
		KeyCount:           keyCount,
	}
	if out.MaxMemory > 0 {
		out.UsagePct = float64(out.UsedMemory) / float64(out.MaxMemory) * 100
	}
	evicted := parseInfoInt(srv, "evicted_keys")
	s.mu.Lock()
	out.HitRate = s.stats.HitRate()
	now := s.now()
	if elapsed := now.Sub(s.lastSample).Seconds(); elapsed > 0 {
		out.EvictionRate = float64(evicted-s.lastEvicted) / elapsed
	}
	s.lastEvicted = evicted
	s.lastSample = now
	s.mu.Unlock()
	return out, nil
}

func (s *Store) key(k string) string {
	return s.opts.Namespace + ":" + k
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.OpTimeout)
}

func (s *Store) countHit() {
	s.mu.Lock()
	s.stats.Hits++
	s.mu.Unlock()
}

func (s *Store) countMiss() {
	s.mu.Lock()
	s.stats.Misses++
	s.mu.Unlock()
}

// classify splits remote failures into transport errors (retryable) and
// remote rejections.
func classify(op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, redis.ErrClosed) {
		return memcore.NewConnectionError("redis", op, err)
	}
	return memcore.NewOperationError("redis", op, err)
}

func parseInfo(raw string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, ":"); ok {
			out[k] = v
		}
	}
	return out
}

func parseInfoInt(info map[string]string, key string) int64 {
	n, _ := strconv.ParseInt(info[key], 10, 64)
	return n
}

func parseInfoFloat(info map[string]string, key string) float64 {
	f, _ := strconv.ParseFloat(info[key], 64)
	return f
}
