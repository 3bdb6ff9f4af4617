package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mirrorx/vault/internal/models"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus relays change events between server instances over a Redis
// pub/sub channel.
type RedisBus struct {
	log     *zap.Logger
	rdb     *goredis.Client
	channel string
}

// NewRedisBus connects to addr and verifies the connection.
func NewRedisBus(ctx context.Context, addr, channel string, log *zap.Logger) (*RedisBus, error) {
	if addr == "" {
		return nil, errors.New("redis address required")
	}
	if channel == "" {
		channel = "vault-changes"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisBus{
		log:     log.With(zap.String("component", "redis-bus")),
		rdb:     rdb,
		channel: channel,
	}, nil
}

// Publish sends ev to every instance, including this one.
func (b *RedisBus) Publish(ctx context.Context, ev models.ChangeEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// StartForwarder subscribes to the channel and broadcasts every received
// event on hub until ctx is cancelled.
func (b *RedisBus) StartForwarder(ctx context.Context, hub *Hub) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer func() { _ = sub.Close() }()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				ev, err := decodeEvent(m.Payload)
				if err != nil {
					b.log.Warn("bad change event payload", zap.Error(err))
					continue
				}
				hub.Broadcast(ev)
			}
		}
	}()
	return nil
}

// Close releases the Redis connection.
func (b *RedisBus) Close() error {
	return b.rdb.Close()
}

func decodeEvent(payload string) (models.ChangeEvent, error) {
	var ev models.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return models.ChangeEvent{}, fmt.Errorf("decode change event: %w", err)
	}
	if ev.VaultID == "" || ev.Table == "" {
		return models.ChangeEvent{}, errors.New("change event missing vault or table")
	}
	return ev, nil
}
