// Package queue carries the attendance event feed: every sign-in,
// sign-out, and forgotten-entry remediation is published here so
// downstream reporting can consume the ledger as a stream.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mesbahamin/timebook/internal/attendance"
)

// DefaultKey is the Redis list the feed lives on.
const DefaultKey = "timebook:events"

// Feed is the abstraction over different backends.
type Feed interface {
	PublishEvent(ctx context.Context, evt attendance.Event) error
	Consume(ctx context.Context) (<-chan attendance.Event, error)
}

// InMemory is a minimal channel-backed feed for dev/testing.
type InMemory struct {
	ch chan attendance.Event
}

// NewInMemory creates a bounded in-memory feed.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan attendance.Event, size)}
}

// PublishEvent enqueues an event.
func (q *InMemory) PublishEvent(ctx context.Context, evt attendance.Event) error {
	select {
	case q.ch <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel for consumers.
func (q *InMemory) Consume(ctx context.Context) (<-chan attendance.Event, error) {
	out := make(chan attendance.Event)
	go func() {
		defer close(out)
		for {
			select {
			case evt := <-q.ch:
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisFeed implements the feed on a Redis list with LPUSH/BRPOP
// semantics and JSON envelopes.
type RedisFeed struct {
	client *redis.Client
	key    string
}

// NewRedisFeed builds a feed on the given list key.
func NewRedisFeed(client *redis.Client, key string) *RedisFeed {
	if key == "" {
		key = DefaultKey
	}
	return &RedisFeed{client: client, key: key}
}

// PublishEvent enqueues an event.
func (q *RedisFeed) PublishEvent(ctx context.Context, evt attendance.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, payload).Err()
}

// Consume streams events using BRPOP.
func (q *RedisFeed) Consume(ctx context.Context) (<-chan attendance.Event, error) {
	out := make(chan attendance.Event)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if len(res) == 2 {
				var evt attendance.Event
				if err := json.Unmarshal([]byte(res[1]), &evt); err == nil {
					select {
					case out <- evt:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out, nil
}
