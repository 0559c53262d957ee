// Package queue implements the Queue Dispatcher & Worker (spec §4.10):
// enqueues Run Jobs to a redis-backed list, falls back to inline execution
// when the queue is unreachable, and runs a worker pool that consumes Jobs
// and drives them through the Flow Engine.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// redisClient is the subset of *redis.Client the Dispatcher and Worker use,
// narrowed to an interface so tests can substitute a fake without a live
// redis server — the same "accept an interface, not a concrete client"
// shape the teacher uses for its plugin Task signatures.
type redisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
}

// NewRedisClient dials a redis server per the given address. Callers (the
// CLI's serve/worker subcommands) pass the result to NewDispatcher/NewWorker.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// InlineExecutor runs a Job synchronously in the calling process — the
// fallback path described in §4.10 ("If enqueue fails, the dispatcher falls
// back to inline execution in the submitting process so that a broken
// queue never loses a run").
type InlineExecutor interface {
	RunInline(ctx context.Context, job Job) error
}

// Dispatcher enqueues Jobs onto the redis-backed queue, with bounded
// retention of completed/failed job records and inline fallback on enqueue
// failure.
type Dispatcher struct {
	client         redisClient
	streamKey      string
	retentionLimit int64
	inline         InlineExecutor
	log            zerolog.Logger
	metrics        *Metrics
}

// NewDispatcher builds a Dispatcher. retentionLimit bounds how many
// completed/failed job records the "<streamKey>:done" list retains (§4.10
// "bounded retention (last N completed/failed jobs)").
func NewDispatcher(client redisClient, streamKey string, retentionLimit int64, inline InlineExecutor, log zerolog.Logger, metrics *Metrics) *Dispatcher {
	if retentionLimit <= 0 {
		retentionLimit = 500
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Dispatcher{client: client, streamKey: streamKey, retentionLimit: retentionLimit, inline: inline, log: log, metrics: metrics}
}

// Enqueue pushes job onto the queue. On any redis error it logs the
// fall-back decision (§4.10 "visible in logs") and runs the job inline in
// the calling goroutine instead of losing it.
func (d *Dispatcher) Enqueue(ctx context.Context, job Job) error {
	data, err := job.Marshal()
	if err != nil {
		return fmt.Errorf("queue: marshal job: %w", err)
	}

	if err := d.client.LPush(ctx, d.streamKey, data).Err(); err != nil {
		d.log.Warn().Err(err).Str("run_id", job.RunID).Msg("queue unreachable, falling back to inline execution")
		d.metrics.InlineFallbacks.Inc()
		if d.inline == nil {
			return fmt.Errorf("queue: enqueue failed and no inline executor configured: %w", err)
		}
		return d.inline.RunInline(ctx, job)
	}
	d.metrics.QueueDepth.Inc()
	return nil
}

// Depth reports the current queue length, for operational dashboards.
func (d *Dispatcher) Depth(ctx context.Context) (int64, error) {
	return d.client.LLen(ctx, d.streamKey).Result()
}

// recordOutcome pushes the finished job id onto a bounded "done" list, so
// an operator can inspect the last N completed/failed jobs without
// unbounded memory growth (§4.10 retention).
func (d *Dispatcher) recordOutcome(ctx context.Context, runID string, ok bool) {
	doneKey := d.streamKey + ":done"
	status := "failed"
	if ok {
		status = "completed"
	}
	_ = d.client.LPush(ctx, doneKey, fmt.Sprintf("%s:%s:%d", runID, status, time.Now().Unix())).Err()
	_ = d.client.LTrim(ctx, doneKey, 0, d.retentionLimit-1).Err()
}
