package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"complaint_server/core/domain"
	"complaint_server/core/port/out"
)

// EventHandler receives decoded build events.
type EventHandler interface {
	HandleBuild(ctx context.Context, event *domain.BuildEvent) error
}

// ArchiveRelay forwards stream events into the case history archive.
type ArchiveRelay struct {
	archive out.ComplaintArchive
}

func NewArchiveRelay(archive out.ComplaintArchive) *ArchiveRelay {
	return &ArchiveRelay{archive: archive}
}

func (r *ArchiveRelay) HandleBuild(ctx context.Context, event *domain.BuildEvent) error {
	return r.archive.AppendEvent(ctx, event)
}

// Consumer reads the audit stream with a consumer group. Entries that keep
// failing are moved to a dead letter stream.
type Consumer struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	handler  EventHandler
	log      zerolog.Logger

	pendingCheckInterval time.Duration
	pendingIdleTime      time.Duration // reclaim after this much idle time
	maxRetries           int
}

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Stream   string
	Group    string
	Consumer string
	Handler  EventHandler
	Logger   zerolog.Logger

	// Optional; zero values use defaults.
	PendingCheckInterval time.Duration
	PendingIdleTime      time.Duration
	MaxRetries           int
}

// NewConsumer creates a new Consumer.
func NewConsumer(client *redis.Client, cfg *ConsumerConfig) *Consumer {
	c := &Consumer{
		client:               client,
		stream:               cfg.Stream,
		group:                cfg.Group,
		consumer:             cfg.Consumer,
		handler:              cfg.Handler,
		log:                  cfg.Logger,
		pendingCheckInterval: cfg.PendingCheckInterval,
		pendingIdleTime:      cfg.PendingIdleTime,
		maxRetries:           cfg.MaxRetries,
	}
	if c.stream == "" {
		c.stream = StreamComplaintAudit
	}
	if c.pendingCheckInterval == 0 {
		c.pendingCheckInterval = 30 * time.Second
	}
	if c.pendingIdleTime == 0 {
		c.pendingIdleTime = 2 * time.Minute
	}
	if c.maxRetries == 0 {
		c.maxRetries = 3
	}
	return c
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info().
		Str("stream", c.stream).
		Str("group", c.group).
		Str("consumer", c.consumer).
		Msg("starting audit consumer")

	if err := c.ensureGroup(ctx); err != nil {
		return err
	}

	go c.reclaimLoop(ctx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumer,
			Streams:  []string{c.stream, ">"},
			Count:    50,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			c.log.Error().Err(err).Msg("error reading audit stream")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				c.handle(ctx, msg)
			}
		}
	}
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// handle acks on success; failures stay pending for the reclaim loop.
func (c *Consumer) handle(ctx context.Context, msg redis.XMessage) {
	event, err := decodeEvent(msg)
	if err == nil {
		err = c.handler.HandleBuild(ctx, event)
	}
	if err != nil {
		c.log.Error().Err(err).Str("id", msg.ID).Msg("error handling audit event")
		return
	}
	if err := c.client.XAck(ctx, c.stream, c.group, msg.ID).Err(); err != nil {
		c.log.Error().Err(err).Str("id", msg.ID).Msg("error acknowledging audit event")
	}
}

func (c *Consumer) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(c.pendingCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.reclaim(ctx)
		}
	}
}

// reclaim retries idle pending entries, dead-lettering those past maxRetries.
func (c *Consumer) reclaim(ctx context.Context) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.stream,
		Group:  c.group,
		Idle:   c.pendingIdleTime,
		Start:  "-",
		End:    "+",
		Count:  100,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Error().Err(err).Msg("error listing pending audit events")
		}
		return
	}

	for _, p := range pending {
		if int(p.RetryCount) >= c.maxRetries {
			if err := c.deadLetter(ctx, p.ID); err != nil {
				c.log.Error().Err(err).Str("id", p.ID).Msg("error dead-lettering audit event")
				continue
			}
			c.client.XAck(ctx, c.stream, c.group, p.ID)
			continue
		}

		claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   c.stream,
			Group:    c.group,
			Consumer: c.consumer,
			MinIdle:  c.pendingIdleTime,
			Messages: []string{p.ID},
		}).Result()
		if err != nil {
			c.log.Error().Err(err).Str("id", p.ID).Msg("error claiming audit event")
			continue
		}
		for _, msg := range claimed {
			c.handle(ctx, msg)
		}
	}
}

// deadLetter copies an entry to dlq:<stream>.
func (c *Consumer) deadLetter(ctx context.Context, id string) error {
	msgs, err := c.client.XRange(ctx, c.stream, id, id).Result()
	if err != nil {
		return fmt.Errorf("failed to read entry: %w", err)
	}
	if len(msgs) == 0 {
		return nil
	}

	values := map[string]interface{}{
		"original_stream": c.stream,
		"original_id":     id,
		"failed_at":       time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range msgs[0].Values {
		values["original_"+k] = v
	}

	if err := c.client.XAdd(ctx, &redis.XAddArgs{Stream: "dlq:" + c.stream, Values: values}).Err(); err != nil {
		return fmt.Errorf("failed to write dead letter: %w", err)
	}
	c.log.Warn().Str("id", id).Msg("audit event moved to dead letter stream")
	return nil
}

func decodeEvent(msg redis.XMessage) (*domain.BuildEvent, error) {
	raw, ok := msg.Values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid message format: missing data field")
	}
	var event domain.BuildEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return nil, fmt.Errorf("invalid audit payload: %w", err)
	}
	return &event, nil
}
