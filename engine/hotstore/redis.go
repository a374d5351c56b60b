// Package hotstore adapts a Redis-compatible server as the shared hot
// tier: namespaced item storage with TTL refresh on read, ordered
// secondary indices by owner and by session, and memory diagnostics.
package hotstore

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mnemora/mnemora/pkg/logger"
)

// Client is the slice of the go-redis API the hot tier depends on. Both
// *redis.Client and test doubles satisfy it.
type Client interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	GetEx(ctx context.Context, key string, expiration time.Duration) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	ZRem(ctx context.Context, key string, members ...any) *redis.IntCmd
	ZRevRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Info(ctx context.Context, section ...string) *redis.StringCmd
	ConfigSet(ctx context.Context, parameter, value string) *redis.StatusCmd
	DBSize(ctx context.Context) *redis.IntCmd
	TxPipeline() redis.Pipeliner
	Close() error
}

// ConnConfig holds connection settings for the remote accelerator.
type ConnConfig struct {
	URL          string
	Host         string
	Port         string
	Password     string
	DB           int
	PoolSize     int
	PingTimeout  time.Duration
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

const fallbackPingTimeout = 10 * time.Second

// NewClient builds and pings a go-redis client from the connection config.
func NewClient(ctx context.Context, cfg *ConnConfig) (Client, error) {
	log := logger.FromContext(ctx).With("component", "hotstore")
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}
	client, err := buildClient(cfg)
	if err != nil {
		return nil, err
	}
	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = fallbackPingTimeout
	}
	if err := pingClient(ctx, client, timeout); err != nil {
		client.Close()
		return nil, err
	}
	log.Info("redis connection established", "host", cfg.Host, "port", cfg.Port, "db", cfg.DB)
	return client, nil
}

func buildClient(cfg *ConnConfig) (*redis.Client, error) {
	if cfg.URL != "" {
		opt, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing Redis URL: %w", err)
		}
		applyOptions(opt, cfg)
		return redis.NewClient(opt), nil
	}
	opt := &redis.Options{
		Addr:     net.JoinHostPort(cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	applyOptions(opt, cfg)
	return redis.NewClient(opt), nil
}

func pingClient(ctx context.Context, client *redis.Client, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("pinging Redis server (timeout=%s): %w", timeout, err)
	}
	return nil
}

func applyOptions(opt *redis.Options, cfg *ConnConfig) {
	if cfg.PoolSize > 0 {
		opt.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opt.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opt.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opt.WriteTimeout = cfg.WriteTimeout
	}
}
