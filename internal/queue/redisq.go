// Package queue carries the advisory ready-signal in Redis. Postgres stays
// the source of truth for job state; the list here only mirrors enqueues so
// dashboards and the scheduler can read queue depth without touching the DB.
package queue

import (
	"context"

	r "github.com/redis/go-redis/v9"
)

const readyList = "generation:ready"

type RedisQ struct{ rdb *r.Client }

func New(rdb *r.Client) *RedisQ { return &RedisQ{rdb} }

// Signal records that jobID was enqueued.
func (q *RedisQ) Signal(ctx context.Context, jobID string) error {
	return q.rdb.LPush(ctx, readyList, jobID).Err()
}

// Pop drops one signal after a job has been handed to the processor.
func (q *RedisQ) Pop(ctx context.Context) (string, error) {
	id, err := q.rdb.RPop(ctx, readyList).Result()
	if err == r.Nil {
		return "", nil
	}
	return id, err
}

// Depth reports how many signals are outstanding.
func (q *RedisQ) Depth(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, readyList).Result()
}

// Flush clears stale signals, used when the DB reports no pending work but
// signals linger (a crashed enqueue, an operator fix-up).
func (q *RedisQ) Flush(ctx context.Context) error {
	return q.rdb.Del(ctx, readyList).Err()
}
