// Package mirror republishes every applied canvas change on a Redis pub/sub
// channel so that processes outside the server can follow the board.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/redis/go-redis/v9"

	"collabcanvas/internal/logging"
	"collabcanvas/internal/session"
)

// Publisher is the part of *redis.Client the mirror needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Event is the JSON document published for each change.
type Event struct {
	Board  string         `json:"board"`
	Change session.Change `json:"change"`
}

type Mirror struct {
	pub     Publisher
	board   string
	channel string
	queue   chan []byte
	log     logging.Logger
	dropped atomic.Uint64
}

// New creates a mirror; nothing is published until Run is started.
func New(pub Publisher, board, channel string, buffer int, log logging.Logger) *Mirror {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Mirror{
		pub:     pub,
		board:   board,
		channel: channel,
		queue:   make(chan []byte, buffer),
		log:     log,
	}
}

// Connect dials Redis and retries the first ping with exponential backoff.
func Connect(ctx context.Context, addr string, maxWait time.Duration) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxWait
	err := backoff.Retry(func() error {
		return rdb.Ping(ctx).Err()
	}, backoff.WithContext(b, ctx))
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return rdb, nil
}

// Record queues c for publishing. It never blocks; when the queue is full
// the change is dropped and counted.
func (m *Mirror) Record(c session.Change) {
	data, err := json.Marshal(Event{Board: m.board, Change: c})
	if err != nil {
		m.log.Error("mirror encode failed", "err", err)
		return
	}
	select {
	case m.queue <- data:
	default:
		m.dropped.Add(1)
	}
}

// Dropped is the number of changes discarded because the queue was full.
func (m *Mirror) Dropped() uint64 {
	return m.dropped.Load()
}

// Run publishes queued changes until ctx is cancelled.
func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-m.queue:
			if err := m.pub.Publish(ctx, m.channel, data).Err(); err != nil {
				m.log.Warn("mirror publish failed", "channel", m.channel, "err", err)
			}
		}
	}
}
