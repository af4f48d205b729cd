// Package messaging provides Redis Streams adapters for build audit events.
package messaging

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"complaint_server/core/domain"
	"complaint_server/core/port/out"
)

// Stream names
const (
	StreamComplaintAudit = "complaints:audit"
)

// auditMaxLen caps the stream; trimming is approximate.
const auditMaxLen = 100000

// RedisProducer publishes build events to a Redis stream.
type RedisProducer struct {
	client *redis.Client
	stream string
}

// NewRedisProducer creates a producer writing to StreamComplaintAudit.
func NewRedisProducer(client *redis.Client) *RedisProducer {
	return &RedisProducer{client: client, stream: StreamComplaintAudit}
}

// PublishBuild appends one build event.
func (p *RedisProducer) PublishBuild(ctx context.Context, event *domain.BuildEvent) error {
	return p.publish(ctx, p.stream, event)
}

// publish publishes a payload to a stream using go-redis.
func (p *RedisProducer) publish(ctx context.Context, stream string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: auditMaxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", stream, err)
	}

	return nil
}

// Ensure RedisProducer implements out.AuditPublisher
var _ out.AuditPublisher = (*RedisProducer)(nil)
