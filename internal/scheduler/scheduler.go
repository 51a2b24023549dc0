// Package scheduler implements the single process-wide maintenance worker
// (spec §4.D): one goroutine that periodically shrinks every registered
// pool's idle chain down to its core size and keepalive-probes the
// longest-idle proxies, rather than one ticker per pool.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/corepool/dbpool/internal/connpool"
)

// Scheduler runs one maintenance loop over every registered pool on a
// fixed interval.
type Scheduler struct {
	interval        time.Duration
	keepaliveSample int

	mu    sync.Mutex
	pools []*connpool.Pool

	stop chan struct{}
	done chan struct{}
}

// New creates a Scheduler that sweeps every registered pool every interval,
// keepalive-probing up to keepaliveSample of the oldest idle proxies per
// pool on each sweep.
func New(interval time.Duration, keepaliveSample int) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if keepaliveSample < 0 {
		keepaliveSample = 0
	}
	return &Scheduler{
		interval:        interval,
		keepaliveSample: keepaliveSample,
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
}

// Register adds a pool to the maintenance rotation.
func (s *Scheduler) Register(p *connpool.Pool) {
	s.mu.Lock()
	s.pools = append(s.pools, p)
	s.mu.Unlock()
}

// Start runs the maintenance loop until ctx is cancelled or Stop is
// called. It blocks; call it in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Stop signals Start to return and waits for it to finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) sweep(ctx context.Context) {
	s.mu.Lock()
	pools := make([]*connpool.Pool, len(s.pools))
	copy(pools, s.pools)
	s.mu.Unlock()

	now := time.Now()
	for _, p := range pools {
		if n := p.Shrink(now); n > 0 {
			log.Printf("[scheduler] pool %s: evicted %d idle connection(s)", p.Name(), n)
		}
		s.keepalive(ctx, p)
	}
}

// keepalive probes the oldest idle proxies in p so that a dead connection
// is discovered during maintenance rather than handed out on the next
// Acquire. A proxy that fails the probe is removed; it is not replaced
// here — the pool grows again only when a later Acquire finds no idle
// proxy, by AcquireIncrement, so the pool may stay below its core size.
func (s *Scheduler) keepalive(ctx context.Context, p *connpool.Pool) {
	if s.keepaliveSample <= 0 {
		return
	}
	for _, proxy := range p.SampleOldestIdle(s.keepaliveSample) {
		if err := p.Validate(ctx, proxy); err != nil {
			log.Printf("[scheduler] pool %s: proxy %d failed keepalive probe, removing: %v",
				p.Name(), proxy.ID(), err)
			p.RemoveUnhealthy(proxy)
		}
	}
}
