// Package archive appends every applied change to a Postgres audit table.
//
// The journal is write-only. The server never reads it back, so canvas
// history still starts empty on every restart.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"collabcanvas/internal/logging"
	"collabcanvas/internal/session"
)

const schema = `
CREATE TABLE IF NOT EXISTS canvas_journal (
	id             BIGSERIAL PRIMARY KEY,
	board          TEXT        NOT NULL,
	kind           TEXT        NOT NULL,
	participant_id TEXT        NOT NULL,
	operation_id   TEXT,
	operation      JSONB,
	history_len    INTEGER     NOT NULL,
	recorded_at    TIMESTAMPTZ NOT NULL
)`

const insertEntry = `
INSERT INTO canvas_journal (board, kind, participant_id, operation_id, operation, history_len, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// Execer is the part of *pgxpool.Pool the journal uses.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type Journal struct {
	db      Execer
	board   string
	queue   chan session.Change
	log     logging.Logger
	dropped atomic.Uint64
}

func New(db Execer, board string, buffer int, log logging.Logger) *Journal {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Journal{
		db:    db,
		board: board,
		queue: make(chan session.Change, buffer),
		log:   log,
	}
}

// Connect opens a pool and waits, with exponential backoff, until the
// database answers a ping.
func Connect(ctx context.Context, url string, maxWait time.Duration) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxWait
	if err := backoff.Retry(func() error { return pool.Ping(ctx) }, backoff.WithContext(b, ctx)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Migrate creates the journal table if it does not exist.
func (j *Journal) Migrate(ctx context.Context) error {
	if _, err := j.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate journal: %w", err)
	}
	return nil
}

// Record queues c without blocking. Changes are dropped when the queue is
// full.
func (j *Journal) Record(c session.Change) {
	select {
	case j.queue <- c:
	default:
		j.dropped.Add(1)
	}
}

func (j *Journal) Dropped() uint64 {
	return j.dropped.Load()
}

// Run writes queued changes until ctx is cancelled.
func (j *Journal) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-j.queue:
			if err := j.write(ctx, c); err != nil {
				j.log.Warn("journal write failed", "kind", c.Kind, "err", err)
			}
		}
	}
}

func (j *Journal) write(ctx context.Context, c session.Change) error {
	var opID *string
	var opJSON []byte
	if c.Operation != nil {
		opID = &c.Operation.ID
		data, err := json.Marshal(c.Operation)
		if err != nil {
			return err
		}
		opJSON = data
	}
	_, err := j.db.Exec(ctx, insertEntry,
		j.board, string(c.Kind), c.ParticipantID, opID, opJSON, c.Stats.History, c.At)
	return err
}
