// Package redisstream appends export completion notices to a Redis stream.
package redisstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client is the subset of redis.Client used for publishing.
type Client interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// Config describes the target stream.
type Config struct {
	Addr     string
	Password string
	DB       int
	// MaxLen caps the stream length (approximate trimming); zero disables it.
	MaxLen int64
}

// Publisher writes one stream entry per Publish call.
type Publisher struct {
	client Client
	maxLen int64
	now    func() time.Time
}

// Open dials the configured Redis server.
func Open(cfg Config) (*Publisher, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return New(client, cfg.MaxLen), nil
}

// New wraps an existing client.
func New(client Client, maxLen int64) *Publisher {
	return &Publisher{client: client, maxLen: maxLen, now: time.Now}
}

// Publish appends payload as JSON to the stream named by topic and returns the
// entry ID assigned by Redis.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if strings.TrimSpace(topic) == "" {
		return "", errors.New("stream name is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: topic,
		Values: map[string]any{
			"data":      string(data),
			"type":      "export.completed",
			"timestamp": p.now().UTC().Format(time.RFC3339Nano),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", topic, err)
	}
	return id, nil
}

// Close closes the underlying client.
func (p *Publisher) Close() error {
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
