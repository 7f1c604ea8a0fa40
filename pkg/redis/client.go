package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/canopy-network/tokenbound/pkg/retry"
	"github.com/canopy-network/tokenbound/pkg/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultStreamMaxLen bounds each event stream unless REDIS_STREAM_MAXLEN says otherwise.
const DefaultStreamMaxLen = 10000

// StreamName is the stream ledger events of a chain are appended to.
func StreamName(chainID uint64) string {
	return fmt.Sprintf("tokenbound:%d:events", chainID)
}

// ChannelName is the Pub/Sub channel mirroring StreamName.
func ChannelName(chainID uint64) string {
	return fmt.Sprintf("tokenbound:%d:live", chainID)
}

// Config holds connection settings.
type Config struct {
	Addr         string
	Password     string
	DB           int
	StreamMaxLen int64
	Retry        retry.Config
}

// ConfigFromEnv reads:
//   - REDIS_HOST: Redis host (default: "localhost")
//   - REDIS_PORT: Redis port (default: "6379")
//   - REDIS_PASSWORD: Redis password (default: "")
//   - REDIS_DB: Redis database number (default: "0")
//   - REDIS_STREAM_MAXLEN: Max entries per stream (default: 10000, 0 = unlimited)
//   - REDIS_CONNECT_RETRIES: connection attempts at startup (default: 6)
func ConfigFromEnv() Config {
	rc := retry.DefaultConfig()
	rc.Attempts = utils.EnvInt("REDIS_CONNECT_RETRIES", rc.Attempts)
	return Config{
		Addr:         fmt.Sprintf("%s:%s", utils.Env("REDIS_HOST", "localhost"), utils.Env("REDIS_PORT", "6379")),
		Password:     utils.Env("REDIS_PASSWORD", ""),
		DB:           utils.EnvInt("REDIS_DB", 0),
		StreamMaxLen: utils.EnvInt64("REDIS_STREAM_MAXLEN", DefaultStreamMaxLen),
		Retry:        rc,
	}
}

// Client is the devnet's handle on Redis: live fan-out over Pub/Sub and a
// durable, capped event log over Streams.
type Client struct {
	rdb    *redis.Client
	logger *zap.Logger
	maxLen int64 // 0 keeps every entry
}

// NewClient connects and pings, retrying with backoff so the devnet may start
// before Redis does.
func NewClient(ctx context.Context, logger *zap.Logger, cfg Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     8,
		MinIdleConns: 1,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	err := retry.WithBackoff(ctx, cfg.Retry, logger, "redis ping", func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		err := rdb.Ping(pingCtx).Err()
		if err != nil && strings.Contains(err.Error(), "WRONGPASS") {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
	}

	logger.Info("Connected to Redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB), zap.Int64("maxLen", cfg.StreamMaxLen))
	return &Client{rdb: rdb, logger: logger, maxLen: cfg.StreamMaxLen}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Publish sends payload to a Pub/Sub channel. Delivery is best effort, so a
// failure is only logged.
func (c *Client) Publish(ctx context.Context, channel string, payload any) {
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		c.logger.Warn("Publish failed", zap.String("channel", channel), zap.Error(err))
	}
}

func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// XAdd appends values to stream, trimming it to roughly maxLen entries. It
// returns the new entry id, or "" when the append failed.
func (c *Client) XAdd(ctx context.Context, stream string, values map[string]any) string {
	args := &redis.XAddArgs{Stream: stream, Values: values}
	if c.maxLen > 0 {
		args.MaxLen, args.Approx = c.maxLen, true
	}
	id, err := c.rdb.XAdd(ctx, args).Result()
	if err != nil {
		c.logger.Warn("Stream append failed", zap.String("stream", stream), zap.Error(err))
		return ""
	}
	return id
}

// XRead returns up to count entries of stream after lastID, blocking up to
// block for new ones.
func (c *Client) XRead(ctx context.Context, stream, lastID string, count int64, block time.Duration) ([]redis.XStream, error) {
	return c.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   count,
		Block:   block,
	}).Result()
}

func (c *Client) XReadGroup(ctx context.Context, group, consumer, stream string, count int64, block time.Duration) ([]redis.XStream, error) {
	return c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
}

func (c *Client) XAck(ctx context.Context, stream, group string, ids ...string) (int64, error) {
	return c.rdb.XAck(ctx, stream, group, ids...).Result()
}

// XGroupCreateMkStream creates group on stream, and the stream itself when
// missing. BUSYGROUP counts as success.
func (c *Client) XGroupCreateMkStream(ctx context.Context, stream, group, start string) error {
	err := c.rdb.XGroupCreateMkStream(ctx, stream, group, start).Err()
	if err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

func (c *Client) XLen(ctx context.Context, stream string) (int64, error) {
	return c.rdb.XLen(ctx, stream).Result()
}
