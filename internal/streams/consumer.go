package streams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ActivityConsumer reads user activity events from a consumer group.
type ActivityConsumer struct {
	rdb          *redis.Client
	groupName    string
	consumerName string
}

// NewActivityConsumer connects and ensures the consumer group exists.
func NewActivityConsumer(redisURL, consumerName string) (*ActivityConsumer, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	// Read timeout must exceed the XReadGroup Block duration (5s)
	// to avoid spurious i/o timeout errors on idle streams.
	opts.ReadTimeout = 10 * time.Second
	client := redis.NewClient(opts)

	// "$" skips history: activity older than the group is already reflected
	// in last_sign_in_at by the identity provider sync.
	err = client.XGroupCreateMkStream(context.Background(), StreamUserActivity, GroupActivityWorkers, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		client.Close()
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &ActivityConsumer{
		rdb:          client,
		groupName:    GroupActivityWorkers,
		consumerName: consumerName,
	}, nil
}

// Consume runs a blocking loop until ctx is cancelled. Messages whose
// handler fails stay pending for redelivery.
func (c *ActivityConsumer) Consume(ctx context.Context, handler func(context.Context, ActivityEvent) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.groupName,
			Consumer: c.consumerName,
			Streams:  []string{StreamUserActivity, ">"},
			Count:    50,
			Block:    5 * time.Second,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			slog.Error("Failed to read activity stream", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range res {
			for _, message := range stream.Messages {
				c.handleMessage(ctx, message, handler)
			}
		}
	}
}

func (c *ActivityConsumer) handleMessage(ctx context.Context, message redis.XMessage, handler func(context.Context, ActivityEvent) error) {
	payload, ok := message.Values["payload"].(string)
	if !ok {
		slog.Error("Invalid activity message payload", "message_id", message.ID)
		c.ack(ctx, message.ID)
		return
	}

	var event ActivityEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		slog.Error("Failed to unmarshal activity event", "error", err, "message_id", message.ID)
		c.ack(ctx, message.ID)
		return
	}

	if err := handler(ctx, event); err != nil {
		slog.Error("Activity handler failed", "error", err, "message_id", message.ID)
		return
	}
	c.ack(ctx, message.ID)
}

func (c *ActivityConsumer) ack(ctx context.Context, id string) {
	if err := c.rdb.XAck(ctx, StreamUserActivity, c.groupName, id).Err(); err != nil {
		slog.Error("Failed to ACK message", "error", err, "message_id", id)
	}
}

// Close closes the Redis client connection
func (c *ActivityConsumer) Close() error {
	return c.rdb.Close()
}

// StartActivityConsumer runs the consumer in a background goroutine and
// returns a stop function.
func StartActivityConsumer(redisURL string, db *gorm.DB) (stop func(), err error) {
	consumer, err := NewActivityConsumer(redisURL, "shield-"+uuid.NewString()[:8])
	if err != nil {
		return nil, fmt.Errorf("failed to create activity consumer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := consumer.Consume(ctx, HandleActivityEvent(db)); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Activity consumer stopped with error", "error", err)
		}
	}()

	slog.Info("Activity consumer started", "stream", StreamUserActivity, "group", GroupActivityWorkers)

	return func() {
		cancel()
		consumer.Close()
	}, nil
}
