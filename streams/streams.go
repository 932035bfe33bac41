// Package streams fans records out to a Redis stream for live consumers.
package streams

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	simulator "github.com/talaria-02/smart-factory-pipeline"
)

// DefaultStream is the stream records go to when none is configured.
const DefaultStream = "factory:records"

// Publisher appends every record to a capped stream. The stream is trimmed
// approximately, so it holds roughly the last maxLen records.
type Publisher struct {
	client *redis.Client
	stream string
	maxLen int64
	now    func() time.Time
}

// Returns a Publisher writing to stream, capped at maxLen entries when maxLen > 0.
func NewPublisher(client *redis.Client, stream string, maxLen int64) *Publisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &Publisher{client: client, stream: stream, maxLen: maxLen, now: time.Now}
}

// Connect opens a client for addr and checks it with a PING.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func (p *Publisher) Name() string { return "redis" }

// Publish adds rec as {"data": <record JSON>, "timestamp": <unix seconds>}.
func (p *Publisher) Publish(ctx context.Context, rec simulator.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: []interface{}{
			"data", string(data),
			"timestamp", p.now().Unix(),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}
