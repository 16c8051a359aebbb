// Package redis wraps the go-redis client with the stream operations the
// ingestion queue needs: durable publish, consumer-group reads with
// explicit acks, pending-message claims and a dead-letter stream.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds all configuration for the Redis client.
type Config struct {
	Addr     string
	Username string
	Password string
	DB       int
	UseTLS   bool
}

// QueueClient is a wrapper around the go-redis client providing the
// audit ingestion stream operations.
type QueueClient struct {
	client *redis.Client
	config *Config
}

// NewClient creates and connects a new QueueClient.
func NewClient(cfg *Config) (*QueueClient, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.Username != "" {
		opts.Username = cfg.Username
	}
	if cfg.UseTLS {
		opts.TLSConfig = &tls.Config{}
	}

	rdb := redis.NewClient(opts)

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &QueueClient{
		client: rdb,
		config: cfg,
	}, nil
}

// Close gracefully closes the Redis connection.
func (c *QueueClient) Close() error {
	return c.client.Close()
}

// PublishAuditEvent adds an event to the audit stream using XADD.
// Using '*' as the ID tells Redis to auto-generate a timestamp-based ID.
func (c *QueueClient) PublishAuditEvent(ctx context.Context, streamName string, values map[string]interface{}) (string, error) {
	msgID, err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamName,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to XADD to stream %s: %w", streamName, err)
	}
	return msgID, nil
}

// EnsureStreamGroupExists creates the consumer group (idempotent).
// Call this on consumer startup. '$' means the group only reads new
// messages; MKSTREAM creates the stream if it doesn't exist yet.
func (c *QueueClient) EnsureStreamGroupExists(ctx context.Context, streamName, groupName string) error {
	err := c.client.XGroupCreateMkStream(ctx, streamName, groupName, "$").Err()
	if err != nil {
		// "BUSYGROUP" means the group already exists, which is fine.
		if !isBusyGroupError(err) {
			return fmt.Errorf("failed to create consumer group: %w", err)
		}
	}
	return nil
}

// ReadFromStreamGroup blocks and reads new messages from the stream.
// Returns (nil, nil) on a read timeout.
func (c *QueueClient) ReadFromStreamGroup(ctx context.Context, streamName, groupName, consumerName string, count int64, block time.Duration) ([]redis.XMessage, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    groupName,
		Consumer: consumerName,
		Streams:  []string{streamName, ">"},
		Count:    count,
		Block:    block,
	}).Result()

	if err != nil {
		// redis.Nil indicates a timeout, which is normal
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to XReadGroup: %w", err)
	}

	// We only read from one stream, so the first element is ours.
	if len(streams) > 0 {
		return streams[0].Messages, nil
	}
	return nil, nil
}

// GetPendingMessages checks for messages delivered to a consumer but not
// yet acknowledged.
func (c *QueueClient) GetPendingMessages(ctx context.Context, streamName, groupName, consumerName string, count int64) ([]redis.XPendingExt, error) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   streamName,
		Group:    groupName,
		Start:    "-",
		End:      "+",
		Count:    count,
		Consumer: consumerName,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check XPending: %w", err)
	}
	return pending, nil
}

// ClaimMessages allows a consumer to take over pending messages that have
// been idle for too long (stuck after a crash mid-processing).
func (c *QueueClient) ClaimMessages(ctx context.Context, streamName, groupName, consumerName string, minIdle time.Duration, msgIDs []string) ([]redis.XMessage, error) {
	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   streamName,
		Group:    groupName,
		Consumer: consumerName,
		MinIdle:  minIdle,
		Messages: msgIDs,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to XClaim messages: %w", err)
	}
	return claimed, nil
}

// AckMessage acknowledges a message as successfully processed.
func (c *QueueClient) AckMessage(ctx context.Context, streamName, groupName, msgID string) error {
	if err := c.client.XAck(ctx, streamName, groupName, msgID).Err(); err != nil {
		return fmt.Errorf("failed to XAck message %s: %w", msgID, err)
	}
	return nil
}

// isBusyGroupError checks if the error is a BUSYGROUP error indicating
// the consumer group already exists.
func isBusyGroupError(err error) bool {
	if err == nil {
		return false
	}
	if redisErr, ok := err.(redis.Error); ok {
		return strings.Contains(strings.ToUpper(redisErr.Error()), "BUSYGROUP")
	}
	return strings.Contains(strings.ToUpper(err.Error()), "BUSYGROUP")
}
