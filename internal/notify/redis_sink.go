package notify

import (
	"context"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"margin_bot/internal/models"
)

// RedisSink — XADD в stream (история) и PUBLISH в канал (живые подписчики).
type RedisSink struct {
	rdb     *redis.Client
	stream  string
	channel string
}

func NewRedisSink(rdb *redis.Client, stream, channel string) *RedisSink {
	if strings.TrimSpace(stream) == "" {
		stream = "margin_bot:events"
	}
	if strings.TrimSpace(channel) == "" {
		channel = stream + ":pub"
	}
	return &RedisSink{rdb: rdb, stream: stream, channel: channel}
}

func (r *RedisSink) Name() string { return "redis" }

func (r *RedisSink) Handle(ctx context.Context, e models.Event) error {
	payload, err := sonic.Marshal(e)
	if err != nil {
		return err
	}

	_, err = r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: 10000,
		Approx: true,
		Values: map[string]any{
			"ts_ms":   e.At.UnixMilli(),
			"kind":    string(e.Kind),
			"symbol":  e.Symbol,
			"payload": string(payload),
		},
	}).Result()
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.channel, payload).Err()
}
