package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	goredis "github.com/go-redis/redis/v8"

	"trendsignal/internal/model"
)

// ConsumerConfig names the consumer group used to read bar streams.
type ConsumerConfig struct {
	ConsumerGroup string // e.g. "signald"
	ConsumerName  string // unique consumer name, e.g. hostname
}

// Consumer reads closed bars from Redis Streams via a consumer group.
// It implements model.BarSource.
type Consumer struct {
	client   *goredis.Client
	group    string
	consumer string
	log      *slog.Logger
}

// NewConsumer wraps a connected client.
func NewConsumer(client *goredis.Client, cfg ConsumerConfig, log *slog.Logger) *Consumer {
	group := cfg.ConsumerGroup
	if group == "" {
		group = "signald"
	}
	consumer := cfg.ConsumerName
	if consumer == "" {
		consumer = "worker-1"
	}
	return &Consumer{
		client:   client,
		group:    group,
		consumer: consumer,
		log:      log.With("component", "redis-consumer", "group", group, "consumer", consumer),
	}
}

// EnsureConsumerGroup creates the group on stream if it doesn't exist.
// Uses "$" as start ID (only new messages) for fresh groups.
func (c *Consumer) EnsureConsumerGroup(ctx context.Context, stream string) error {
	err := c.client.XGroupCreateMkStream(ctx, stream, c.group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("xgroup create %s: %w", stream, err)
	}
	return nil
}

// Consume delivers bars for symbol/tf to out, first any messages left
// pending by a previous run, then new ones. Messages are ACKed after they
// are handed off. Returns when ctx is cancelled.
func (c *Consumer) Consume(ctx context.Context, symbol string, tf model.Timeframe, out chan<- model.Bar) error {
	stream := BarStream(symbol, tf)
	if err := c.EnsureConsumerGroup(ctx, stream); err != nil {
		return err
	}
	if err := c.recoverPending(ctx, stream, out); err != nil {
		c.log.Warn("pending recovery failed", "stream", stream, "error", err)
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		results, err := c.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumer,
			Streams:  []string{stream, ">"},
			Count:    100,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) || ctx.Err() != nil {
				continue
			}
			c.log.Error("xreadgroup failed", "stream", stream, "error", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, res := range results {
			if err := c.deliver(ctx, res.Stream, res.Messages, out); err != nil {
				return err
			}
		}
	}
}

// recoverPending re-delivers messages that were read but never ACKed. The
// pending list is walked once with an exclusive cursor, so entries that stay
// pending (failed ACKs, or IDs trimmed from the stream) cannot loop it.
func (c *Consumer) recoverPending(ctx context.Context, stream string, out chan<- model.Bar) error {
	start := "-"
	for {
		pending, err := c.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
			Stream: stream,
			Group:  c.group,
			Start:  start,
			End:    "+",
			Count:  100,
		}).Result()
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}

		ids := make([]string, len(pending))
		for i, p := range pending {
			ids[i] = p.ID
		}
		start = after(ids[len(ids)-1])

		claimed, err := c.client.XClaim(ctx, &goredis.XClaimArgs{
			Stream:   stream,
			Group:    c.group,
			Consumer: c.consumer,
			MinIdle:  0,
			Messages: ids,
		}).Result()
		if err != nil {
			return fmt.Errorf("xclaim %s: %w", stream, err)
		}
		if gone := unclaimed(ids, claimed); len(gone) > 0 {
			// Trimmed from the stream; nothing left to deliver.
			c.log.Warn("acking pending ids missing from stream", "stream", stream, "count", len(gone))
			c.ack(ctx, stream, gone...)
		}
		if err := c.deliver(ctx, stream, claimed, out); err != nil {
			return err
		}
		c.log.Info("recovered pending bars", "stream", stream, "count", len(claimed))
	}
}

func (c *Consumer) deliver(ctx context.Context, stream string, msgs []goredis.XMessage, out chan<- model.Bar) error {
	for _, msg := range msgs {
		bar, err := DecodeBar(msg.Values)
		if err != nil {
			// ACK poison messages so they are not redelivered forever.
			c.log.Warn("dropping undecodable bar", "stream", stream, "id", msg.ID, "error", err)
			c.ack(ctx, stream, msg.ID)
			continue
		}

		select {
		case out <- bar:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.ack(ctx, stream, msg.ID)
	}
	return nil
}

func (c *Consumer) ack(ctx context.Context, stream string, ids ...string) {
	if err := c.client.XAck(ctx, stream, c.group, ids...).Err(); err != nil {
		c.log.Error("xack failed", "stream", stream, "ids", ids, "error", err)
	}
}

// after returns an exclusive XPENDING range start just past id.
func after(id string) string { return "(" + id }

// unclaimed returns the ids XCLAIM did not return, in order.
func unclaimed(ids []string, claimed []goredis.XMessage) []string {
	got := make(map[string]struct{}, len(claimed))
	for _, m := range claimed {
		got[m.ID] = struct{}{}
	}
	var missing []string
	for _, id := range ids {
		if _, ok := got[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// DecodeBar parses the "data" field of a stream message.
func DecodeBar(values map[string]interface{}) (model.Bar, error) {
	var bar model.Bar
	data, ok := values["data"].(string)
	if !ok {
		return bar, errors.New("missing data field")
	}
	if err := sonic.UnmarshalString(data, &bar); err != nil {
		return bar, fmt.Errorf("decode bar: %w", err)
	}
	if err := bar.Validate(); err != nil {
		return bar, err
	}
	return bar, nil
}
