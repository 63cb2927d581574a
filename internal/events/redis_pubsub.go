package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPublisher fans events out over Redis pub/sub. Delivery is at-most-once:
// subscribers that are down when an event is published never see it.
type RedisPublisher struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisPublisher(client *redis.Client, log *zap.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, log: log.Named("events")}
}

func (p *RedisPublisher) Publish(ctx context.Context, stream string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event.Type, err)
	}
	receivers, err := p.client.Publish(ctx, stream, data).Result()
	if err != nil {
		p.log.Warn("publish failed", zap.String("stream", stream), zap.String("type", event.Type), zap.Error(err))
		return fmt.Errorf("publish %s on %s: %w", event.Type, stream, err)
	}
	if receivers == 0 {
		p.log.Debug("event had no subscribers", zap.String("stream", stream), zap.String("type", event.Type))
	}
	return nil
}

type RedisSubscriber struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisSubscriber(client *redis.Client, log *zap.Logger) *RedisSubscriber {
	return &RedisSubscriber{client: client, log: log.Named("events")}
}

// Subscribe returns once Redis confirms the subscription. Events are handed to
// handler one at a time on a dedicated goroutine until ctx is cancelled.
func (s *RedisSubscriber) Subscribe(ctx context.Context, stream string, handler func(Event)) error {
	sub := s.client.Subscribe(ctx, stream)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", stream, err)
	}

	go s.consume(ctx, sub, stream, handler)
	return nil
}

func (s *RedisSubscriber) consume(ctx context.Context, sub *redis.PubSub, stream string, handler func(Event)) {
	defer sub.Close()
	msgs := sub.Channel()
	log := s.log.With(zap.String("stream", stream))
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				log.Warn("subscription channel closed")
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error("undecodable event", zap.Error(err))
				continue
			}
			deliver(log, handler, event)
		}
	}
}

// deliver keeps one misbehaving handler from taking the subscription down.
func deliver(log *zap.Logger, handler func(Event), event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("event handler panicked", zap.String("type", event.Type), zap.Any("panic", r))
		}
	}()
	handler(event)
}
