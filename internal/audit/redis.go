package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultStream = "identity-broker:audit"

var errMissingRedisClient = errors.New("audit: redis client required")

// RedisPublisherConfig configures a RedisPublisher.
type RedisPublisherConfig struct {
	Client *redis.Client
	Stream string
	Logger *zap.Logger
}

// RedisPublisher appends audit events to a redis stream.
type RedisPublisher struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

// NewRedisPublisher constructs a publisher writing to cfg.Stream.
func NewRedisPublisher(cfg RedisPublisherConfig) (*RedisPublisher, error) {
	if cfg.Client == nil {
		return nil, errMissingRedisClient
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = defaultStream
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{
		client: cfg.Client,
		stream: stream,
		logger: logger,
	}, nil
}

// Publish appends event to the stream.
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: encode event: %w", err)
	}
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"type":    EventTypeUserLoggedIn,
			"payload": string(payload),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("audit: publish event: %w", err)
	}
	p.logger.Debug("audit event published", zap.String("stream", p.stream), zap.String("entry_id", id))
	return nil
}

// Close releases the underlying redis connection pool.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
