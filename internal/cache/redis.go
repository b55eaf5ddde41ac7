// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jason-s-yu/popsauce/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list (queue) name for game action logs.
const DefaultQueueName = "popsauce_actions"

// ConnectRedis opens a client on addr and checks that the server answers.
func ConnectRedis(addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// pusher is the part of the Redis client the publisher needs.
type pusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// Publisher pushes game actions onto a Redis list for the historian. It
// satisfies game.ActionRecorder.
type Publisher struct {
	client pusher
	queue  string
}

// NewPublisher returns a publisher writing to queue, or DefaultQueueName
// when queue is empty.
func NewPublisher(client *redis.Client, queue string) *Publisher {
	return newPublisher(client, queue)
}

func newPublisher(client pusher, queue string) *Publisher {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &Publisher{client: client, queue: queue}
}

// RecordAction serializes the action to JSON, then pushes it to the Redis queue.
// This does not block the calling logic (other than a quick network send).
func (p *Publisher) RecordAction(ctx context.Context, action models.GameAction) error {
	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("failed to marshal GameAction: %w", err)
	}
	if err := p.client.RPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", p.queue, err)
	}
	return nil
}
