// queue.go
//
// Redis-backed login event queue. QueuedRecorder implements the storage port
// by enqueuing events instead of writing them synchronously; StartWorker
// drains the queue in a background goroutine into the inner Recorder
// (normally the Postgres store).
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MGallo-Code/voiceauth/internal/store"
	"github.com/redis/go-redis/v9"
)

// QueueKey is the Redis list holding pending login events.
const QueueKey = "voiceauth:events:login"

// DefaultMaxQueueSize caps the queue when Postgres is down. 0 = unlimited.
const DefaultMaxQueueSize int64 = 1000

// dispatchTimeout bounds one inner RecordLogin call.
const dispatchTimeout = 5 * time.Second

// ErrQueueFull is returned by RecordLogin when the queue has reached its size cap.
var ErrQueueFull = errors.New("login event queue full")

// Recorder persists login events.
type Recorder interface {
	RecordLogin(ctx context.Context, ev store.LoginEvent) error
}

// QueuedRecorder enqueues login events to Redis so the callback never waits
// on Postgres. Callers are unaware of the async dispatch.
type QueuedRecorder struct {
	inner        Recorder
	rdb          *redis.Client
	maxQueueSize int64
}

// NewQueuedRecorder wraps inner with a Redis-backed queue.
// maxSize caps the queue length (0 = unlimited).
func NewQueuedRecorder(inner Recorder, rdb *redis.Client, maxSize int64) *QueuedRecorder {
	return &QueuedRecorder{inner: inner, rdb: rdb, maxQueueSize: maxSize}
}

// enqueueScript atomically checks the queue length and pushes only if under the cap.
// KEYS[1] = queue key, ARGV[1] = max size (0 = skip check), ARGV[2] = payload.
// Returns 1 if enqueued, 0 if rejected.
var enqueueScript = redis.NewScript(`
local max = tonumber(ARGV[1])
if max > 0 and redis.call('LLEN', KEYS[1]) >= max then
    return 0
end
redis.call('RPUSH', KEYS[1], ARGV[2])
return 1
`)

// RecordLogin serializes ev and appends it to the queue.
func (q *QueuedRecorder) RecordLogin(ctx context.Context, ev store.LoginEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling login event: %w", err)
	}
	ok, err := enqueueScript.Run(ctx, q.rdb, []string{QueueKey}, q.maxQueueSize, data).Int64()
	if err != nil {
		return fmt.Errorf("enqueuing login event: %w", err)
	}
	if ok == 0 {
		return ErrQueueFull
	}
	return nil
}

// StartWorker drains the queue until ctx is cancelled. Call in a goroutine.
func (q *QueuedRecorder) StartWorker(ctx context.Context) {
	for {
		// BLPop blocks up to 2s then returns redis.Nil, keeping the loop
		// responsive to ctx cancellation without busy-spinning.
		res, err := q.rdb.BLPop(ctx, 2*time.Second, QueueKey).Result()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			slog.Error("event worker: queue pop failed", "error", err)
			// Back off so a Redis outage doesn't spin the loop.
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		// res[0] = key name, res[1] = payload
		var ev store.LoginEvent
		if err := json.Unmarshal([]byte(res[1]), &ev); err != nil {
			slog.Error("event worker: bad payload", "error", err)
			continue
		}
		q.dispatch(ctx, ev)
	}
}

// dispatch hands one event to inner. Failures are logged and dropped;
// the next login for the same identity rewrites the row anyway.
func (q *QueuedRecorder) dispatch(ctx context.Context, ev store.LoginEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
	defer cancel()
	if err := q.inner.RecordLogin(ctx, ev); err != nil {
		slog.Error("event worker: record failed", "event_id", ev.ID, "provider", ev.Provider, "error", err)
	}
}
