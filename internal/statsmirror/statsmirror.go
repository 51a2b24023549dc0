// Package statsmirror publishes a best-effort, non-authoritative snapshot
// of pool observability state to Redis (spec.md §4.I). It never gates pool
// behavior: every pool operation remains usable even if Redis is
// unreachable, and a failed publish is logged and counted, never retried
// synchronously.
package statsmirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/corepool/dbpool/internal/config"
	"github.com/corepool/dbpool/internal/connpool"
	"github.com/corepool/dbpool/internal/metrics"
)

// Event is a structured acquire/release/evict notification published on
// the event stream, for cross-process dashboards. It carries no
// information the pool manager itself depends on.
type Event struct {
	Pool string `json:"pool"`
	Kind string `json:"kind"` // acquired, released, discarded, evicted
	At   string `json:"at"`
}

// snapshot is the JSON shape written under the per-pool stats key.
type snapshot struct {
	Pool      string `json:"pool"`
	Size      int    `json:"size"`
	Idle      int    `json:"idle"`
	InUse     int    `json:"in_use"`
	Max       int    `json:"max"`
	Peak      int    `json:"peak"`
	Waiters   int    `json:"waiters"`
	UpdatedAt string `json:"updated_at"`
}

// Mirror owns the Redis client and the publish loop.
type Mirror struct {
	client   *redis.Client
	interval time.Duration
	keyPrefix string

	pools map[string]*connpool.Pool

	events chan Event

	stop chan struct{}
	done chan struct{}
}

// New builds a Mirror from cfg.Process.StatsMirror. Returns nil if the
// stats mirror is disabled.
func New(cfg *config.Config, pools map[string]*connpool.Pool) *Mirror {
	sm := cfg.Process.StatsMirror
	if !sm.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:        sm.Addr,
		Password:    sm.Password,
		DB:          sm.DB,
		DialTimeout: sm.DialTimeout,
	})
	return &Mirror{
		client:    client,
		interval:  sm.PublishInterval,
		keyPrefix: "dbpool:stats:",
		pools:     pools,
		events:    make(chan Event, 256),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Ping checks Redis reachability, used by the health surface.
func (m *Mirror) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Notify enqueues an event for the background publisher. It never blocks
// the caller's pool operation: if the internal buffer is full, the event
// is dropped and counted, never synchronously retried.
func (m *Mirror) Notify(pool, kind string) {
	ev := Event{Pool: pool, Kind: kind, At: time.Now().UTC().Format(time.RFC3339Nano)}
	select {
	case m.events <- ev:
	default:
		metrics.StatsMirrorOperationsTotal.WithLabelValues("event_dropped", "overflow").Inc()
	}
}

// Start runs the publish loop until ctx is cancelled or Stop is called.
// It blocks; call it in its own goroutine.
func (m *Mirror) Start(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case ev := <-m.events:
			m.publishEvent(ctx, ev)
		case <-ticker.C:
			m.publishSnapshots(ctx)
		}
	}
}

// Stop signals Start to return and waits for it to finish, then closes
// the Redis client.
func (m *Mirror) Stop() {
	close(m.stop)
	<-m.done
	if err := m.client.Close(); err != nil {
		log.Printf("[statsmirror] error closing redis client: %v", err)
	}
}

func (m *Mirror) publishEvent(ctx context.Context, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		metrics.StatsMirrorOperationsTotal.WithLabelValues("publish_event", "marshal_error").Inc()
		return
	}
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := m.client.Publish(pctx, "dbpool:events", data).Err(); err != nil {
		log.Printf("[statsmirror] publish event failed: %v", err)
		metrics.StatsMirrorOperationsTotal.WithLabelValues("publish_event", "error").Inc()
		return
	}
	metrics.StatsMirrorOperationsTotal.WithLabelValues("publish_event", "ok").Inc()
}

func (m *Mirror) publishSnapshots(ctx context.Context) {
	sctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	for name, pool := range m.pools {
		stats := pool.Stats()
		snap := snapshot{
			Pool:      name,
			Size:      stats.Size,
			Idle:      stats.Idle,
			InUse:     stats.InUse,
			Max:       stats.Max,
			Peak:      stats.Peak,
			Waiters:   stats.Waiters,
			UpdatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		data, err := json.Marshal(snap)
		if err != nil {
			metrics.StatsMirrorOperationsTotal.WithLabelValues("set_snapshot", "marshal_error").Inc()
			continue
		}
		key := fmt.Sprintf("%s%s", m.keyPrefix, name)
		if err := m.client.Set(sctx, key, data, 0).Err(); err != nil {
			log.Printf("[statsmirror] set snapshot for pool %s failed: %v", name, err)
			metrics.StatsMirrorOperationsTotal.WithLabelValues("set_snapshot", "error").Inc()
			continue
		}
		metrics.StatsMirrorOperationsTotal.WithLabelValues("set_snapshot", "ok").Inc()
	}
}
