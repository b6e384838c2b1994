package streams

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Publisher appends shield events to a Redis Stream.
type Publisher struct {
	rdb *redis.Client
}

// NewPublisher creates a new Publisher instance
func NewPublisher(redisURL string) (*Publisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return &Publisher{rdb: redis.NewClient(opts)}, nil
}

// NewPublisherWithClient wraps an existing client.
func NewPublisherWithClient(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

// PublishShieldEvent publishes event and returns the stream message ID.
func (p *Publisher) PublishShieldEvent(ctx context.Context, event ShieldEvent) (string, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}

	result := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamShieldEvents,
		MaxLen: 100000,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"payload":        string(payload),
			"kind":           event.Kind,
			"published_at":   time.Now().Unix(),
			"schema_version": SchemaVersionV1,
		},
	})
	if result.Err() != nil {
		return "", fmt.Errorf("failed to publish to stream: %w", result.Err())
	}
	return result.Val(), nil
}

// Close closes the Redis client connection
func (p *Publisher) Close() error {
	return p.rdb.Close()
}
