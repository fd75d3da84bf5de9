package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mark47B/erp-portal/app/domain/repository"
)

const DefaultChannel = "erp:invalidations"

var errEmptyChannel = errors.New("redis bus channel is empty")

// RedisInvalidationBus broadcasts invalidations over a pub/sub channel.
type RedisInvalidationBus struct {
	client  *redis.Client
	channel string
	log     *zap.Logger
}

func NewRedisInvalidationBus(c *redis.Client, channel string, log *zap.Logger) (repository.InvalidationBus, error) {
	if channel == "" {
		return nil, errEmptyChannel
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisInvalidationBus{client: c, channel: channel, log: log.Named("redis-bus")}, nil
}

func (b *RedisInvalidationBus) Publish(ctx context.Context, inv repository.Invalidation) error {
	payload, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("encode invalidation: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe confirms the subscription, then delivers messages until ctx is
// done. go-redis resubscribes on its own after a dropped connection; anything
// published meanwhile is lost, so each resubscription is reported as a full
// invalidation.
func (b *RedisInvalidationBus) Subscribe(ctx context.Context, handle func(repository.Invalidation)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	// wait for the subscription to be confirmed
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", b.channel, err)
	}

	ch := sub.ChannelWithSubscriptions()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis subscription %s closed", b.channel)
			}
			b.dispatch(msg, handle)
		}
	}
}

func (b *RedisInvalidationBus) dispatch(msg any, handle func(repository.Invalidation)) {
	switch m := msg.(type) {
	case *redis.Subscription:
		if m.Kind != "subscribe" {
			return
		}
		b.log.Warn("invalidation channel resubscribed, invalidating everything", zap.String("channel", m.Channel))
		handle(repository.Invalidation{Prefix: repository.FullInvalidation})
	case *redis.Message:
		inv, err := decodeInvalidation([]byte(m.Payload))
		if err != nil {
			b.log.Warn("dropping malformed invalidation", zap.Error(err))
			return
		}
		handle(inv)
	}
}

func decodeInvalidation(payload []byte) (repository.Invalidation, error) {
	var inv repository.Invalidation
	if err := json.Unmarshal(payload, &inv); err != nil {
		return inv, fmt.Errorf("decode invalidation: %w", err)
	}
	if inv.Prefix == "" {
		return inv, fmt.Errorf("decode invalidation: empty prefix")
	}
	return inv, nil
}
