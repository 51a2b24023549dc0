package connpool

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corepool/dbpool/internal/chain"
	"github.com/corepool/dbpool/internal/metrics"
	"github.com/corepool/dbpool/internal/poolerr"
	"github.com/corepool/dbpool/pkg/poolcfg"
)

// Stats is a point-in-time snapshot of a Pool's observable state (spec §6
// Observability: pool_size, peak_pool_size, idle_count, closed).
type Stats struct {
	Name     string
	Size     int
	Idle     int
	InUse    int
	Max      int
	Peak     int
	Waiters  int
	Closed   bool
}

// Notifier receives best-effort acquire/release/evict events for a named
// pool. It is satisfied by *statsmirror.Mirror; Pool depends only on this
// narrow interface to avoid an import cycle (statsmirror already imports
// connpool to read Stats()).
type Notifier interface {
	Notify(pool, kind string)
}

// Pool is the pool manager (spec §4.C): it owns the priority chain and the
// full set of live proxies, and implements acquire/release, growth,
// shrink, validation and shutdown.
type Pool struct {
	cfg *poolcfg.PoolConfig
	ds  DataSource

	mu       sync.Mutex
	chain    *chain.Chain[*Proxy]
	active   map[uint64]*Proxy
	all      map[uint64]*Proxy // complete live set (idle + in use); len(all) is the pool size
	waiters  []chan *Proxy
	closed   bool
	notifier Notifier

	poolSize     atomic.Int64 // mirrors len(all); the pool itself never reads it, and most sites store it after releasing mu
	peakPoolSize atomic.Int64

	testTableEnsured bool
}

// SetNotifier registers n to receive acquire/release/evict events. Passing
// nil disables notification (the default). Safe to call once before the
// pool is placed under load; not synchronized against concurrent Acquire/
// Release, matching the teacher's one-time wiring-at-startup convention.
func (p *Pool) SetNotifier(n Notifier) {
	p.notifier = n
}

// notify forwards kind to the registered Notifier, if any. Never blocks or
// fails the caller's pool operation (spec.md §4.I).
func (p *Pool) notify(kind string) {
	if p.notifier != nil {
		p.notifier.Notify(p.cfg.Name, kind)
	}
}

// New creates a Pool for cfg backed by ds, without opening any connections
// yet. Call Init to pre-populate CorePoolSize connections.
func New(cfg *poolcfg.PoolConfig, ds DataSource) *Pool {
	return &Pool{
		cfg:    cfg,
		ds:     ds,
		chain:  chain.New[*Proxy](cfg.MaxPoolSize),
		active: make(map[uint64]*Proxy, cfg.MaxPoolSize),
		all:    make(map[uint64]*Proxy, cfg.MaxPoolSize),
	}
	// metrics.PoolMaxSize is set by Init, once cfg is known to be valid.
}

// Init pre-populates CorePoolSize proxies and ensures the optional test
// table exists (spec §4.C init()). Connection failures during warm-up are
// logged and skipped rather than failing the whole pool, matching the
// teacher's warm-pool-is-best-effort behavior; callers that need a hard
// guarantee should check Stats().Size afterwards.
func (p *Pool) Init(ctx context.Context) error {
	metrics.PoolMaxSize.WithLabelValues(p.cfg.Name).Set(float64(p.cfg.MaxPoolSize))

	if p.cfg.TestTableName != "" && p.cfg.TestCreateSQL != "" {
		if err := p.ensureTestTable(ctx); err != nil {
			log.Printf("[connpool] pool %s: failed to ensure test table %s: %v",
				p.cfg.Name, p.cfg.TestTableName, err)
		}
	}

	for i := 0; i < p.cfg.CorePoolSize; i++ {
		proxy, err := p.tryGetConnection(ctx, p.cfg.AcquireRetryTimes)
		if err != nil {
			log.Printf("[connpool] pool %s: warm connection %d/%d failed: %v",
				p.cfg.Name, i+1, p.cfg.CorePoolSize, err)
			continue
		}
		p.mu.Lock()
		p.chain.Add(proxy, time.Now())
		p.all[proxy.ID()] = proxy
		proxy.markIdle(time.Now())
		p.mu.Unlock()
	}

	p.mu.Lock()
	size := int64(len(p.all))
	p.mu.Unlock()
	p.poolSize.Store(size)
	p.bumpPeak(size)
	p.updateGauges()

	log.Printf("[connpool] pool %s initialized: %d idle, max=%d",
		p.cfg.Name, size, p.cfg.MaxPoolSize)
	return nil
}

func (p *Pool) ensureTestTable(ctx context.Context) error {
	if p.testTableEnsured {
		return nil
	}
	proxy, err := p.tryGetConnection(ctx, p.cfg.AcquireRetryTimes)
	if err != nil {
		return err
	}
	defer proxy.destroy()

	if _, err := proxy.DB().ExecContext(ctx, p.cfg.TestCreateSQL); err != nil {
		return fmt.Errorf("creating test table: %w", err)
	}
	p.testTableEnsured = true
	return nil
}

// Acquire obtains a connection proxy (spec §4.C). It pops an idle entry,
// grows the pool on demand, fails fast or blocks on exhaustion per
// FailFastOnExhaustion, and — if TestBeforeUse is set — validates the
// proxy before handing it back, destroying and replacing it on failure.
func (p *Pool) Acquire(ctx context.Context) (*Proxy, error) {
	start := time.Now()
	for {
		if p.isClosed() {
			return nil, poolerr.ErrPoolClosed
		}

		proxy, err := p.acquireOnce(ctx)
		if err != nil {
			return nil, err
		}

		if p.cfg.TestBeforeUse {
			if verr := p.Validate(ctx, proxy); verr != nil {
				metrics.ValidationTotal.WithLabelValues(p.cfg.Name, "failed").Inc()
				log.Printf("[connpool] pool %s: proxy %d failed validation on acquire, replacing: %v",
					p.cfg.Name, proxy.ID(), verr)
				p.discard(proxy)
				p.scheduleReplacement(ctx)
				continue
			}
			metrics.ValidationTotal.WithLabelValues(p.cfg.Name, "ok").Inc()
		}

		metrics.AcquireWaitSeconds.WithLabelValues(p.cfg.Name).Observe(time.Since(start).Seconds())
		metrics.PoolOperationsTotal.WithLabelValues(p.cfg.Name, "acquired").Inc()
		p.notify("acquired")
		return proxy, nil
	}
}

// acquireOnce performs exactly one pop-or-grow-or-wait iteration; it does
// not perform validation.
func (p *Pool) acquireOnce(ctx context.Context) (*Proxy, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, poolerr.ErrPoolClosed
	}

	if proxy, ok := p.chain.PopMostRecent(); ok {
		p.active[proxy.ID()] = proxy
		p.mu.Unlock()
		proxy.markInUse()
		return proxy, nil
	}

	total := len(p.all)
	if total < p.cfg.MaxPoolSize {
		n := p.cfg.AcquireIncrement
		if n > p.cfg.MaxPoolSize-total {
			n = p.cfg.MaxPoolSize - total
		}
		p.mu.Unlock()

		if err := p.fillPool(ctx, n); err != nil {
			return nil, err
		}

		p.mu.Lock()
		if proxy, ok := p.chain.PopMostRecent(); ok {
			p.active[proxy.ID()] = proxy
			p.mu.Unlock()
			proxy.markInUse()
			return proxy, nil
		}
		p.mu.Unlock()
		// Someone else raced us to the newly grown connections; run the whole
		// pop-or-grow-or-wait step again.
		return p.acquireOnce(ctx)
	}

	if p.cfg.FailFastOnExhaustion {
		p.mu.Unlock()
		metrics.PoolOperationsTotal.WithLabelValues(p.cfg.Name, "exhausted").Inc()
		return nil, poolerr.ErrExhausted
	}

	waiterCh := make(chan *Proxy, 1)
	p.waiters = append(p.waiters, waiterCh)
	p.mu.Unlock()

	timeout := p.cfg.QueueTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case proxy, ok := <-waiterCh:
		if !ok || proxy == nil {
			metrics.PoolOperationsTotal.WithLabelValues(p.cfg.Name, "closed_while_waiting").Inc()
			return nil, poolerr.ErrPoolClosed
		}
		return proxy, nil

	case <-timer.C:
		p.removeWaiter(waiterCh)
		metrics.PoolOperationsTotal.WithLabelValues(p.cfg.Name, "timeout").Inc()
		return nil, poolerr.Wrap(poolerr.ErrTimeout,
			fmt.Sprintf("acquire timeout (%v) for pool %s", timeout, p.cfg.Name), nil)

	case <-ctx.Done():
		p.removeWaiter(waiterCh)
		metrics.PoolOperationsTotal.WithLabelValues(p.cfg.Name, "cancelled").Inc()
		return nil, poolerr.Wrap(poolerr.ErrInterrupted, "acquire interrupted", ctx.Err())
	}
}

// Release returns proxy to the pool (spec §4.C release()). It adds the
// proxy back to the chain and signals exactly one waiter if any are queued
// (signal-one, not strict FIFO — spec §5/§9). Releasing a proxy this pool
// does not currently consider active (either it was never acquired from
// here, or it has already been released once) is a documented no-op,
// unless the proxy has since been destroyed, in which case ErrProxyClosed
// is returned (see DESIGN.md Open Question 2).
func (p *Pool) Release(proxy *Proxy) error {
	if proxy == nil {
		return nil
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = proxy.destroy()
		return nil
	}
	if _, ok := p.active[proxy.ID()]; !ok {
		p.mu.Unlock()
		if proxy.State() == StateClosed {
			return poolerr.ErrProxyClosed
		}
		log.Printf("[connpool] pool %s: ignoring duplicate release of proxy %d", p.cfg.Name, proxy.ID())
		return nil
	}
	delete(p.active, proxy.ID())
	p.mu.Unlock()

	now := time.Now()
	proxy.markIdle(now)

	p.mu.Lock()
	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.active[proxy.ID()] = proxy
		p.mu.Unlock()
		proxy.markInUse()
		w <- proxy
		metrics.PoolOperationsTotal.WithLabelValues(p.cfg.Name, "released").Inc()
		p.notify("released")
		return nil
	}
	p.chain.Add(proxy, now)
	p.mu.Unlock()
	p.updateGauges()
	metrics.PoolOperationsTotal.WithLabelValues(p.cfg.Name, "released").Inc()
	p.notify("released")
	return nil
}

// Discard permanently removes proxy from the pool (spec: used on
// validation failure or an unrecoverable caller-observed error).
func (p *Pool) Discard(proxy *Proxy) {
	if proxy == nil {
		return
	}
	p.discard(proxy)
	metrics.PoolOperationsTotal.WithLabelValues(p.cfg.Name, "discarded").Inc()
}

func (p *Pool) discard(proxy *Proxy) {
	p.mu.Lock()
	delete(p.active, proxy.ID())
	delete(p.all, proxy.ID())
	p.poolSize.Store(int64(len(p.all)))
	p.mu.Unlock()
	if err := proxy.destroy(); err != nil {
		log.Printf("[connpool] pool %s: error closing discarded proxy %d: %v", p.cfg.Name, proxy.ID(), err)
	}
	p.updateGauges()
	p.notify("discarded")
}

// scheduleReplacement opportunistically tops the pool back up to
// CorePoolSize after a validation-triggered discard. Failure is logged,
// not surfaced — a later validation-triggered discard tries again, and an
// Acquire that finds no idle proxy grows the pool; the maintenance
// scheduler does not top pools up.
func (p *Pool) scheduleReplacement(ctx context.Context) {
	p.mu.Lock()
	deficit := p.cfg.CorePoolSize - len(p.all)
	p.mu.Unlock()
	if deficit <= 0 {
		return
	}
	if err := p.fillPool(ctx, deficit); err != nil {
		log.Printf("[connpool] pool %s: replacement fill failed: %v", p.cfg.Name, err)
	}
}

// fillPool opens n new physical connections and adds them to the chain,
// updating pool_size and peak_pool_size exactly once at the end (spec
// §4.C). If the pool closes mid-fill, it tears down whatever was opened
// and aborts.
func (p *Pool) fillPool(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}

	opened := make([]*Proxy, 0, n)
	for i := 0; i < n; i++ {
		if p.isClosed() {
			break
		}
		proxy, err := p.tryGetConnection(ctx, p.cfg.AcquireRetryTimes)
		if err != nil {
			for _, o := range opened {
				_ = o.destroy()
			}
			return err
		}
		opened = append(opened, proxy)
	}

	if p.isClosed() {
		for _, o := range opened {
			_ = o.destroy()
		}
		return poolerr.ErrPoolClosed
	}

	now := time.Now()
	p.mu.Lock()
	for _, proxy := range opened {
		p.all[proxy.ID()] = proxy
		p.chain.Add(proxy, now)
	}
	size := int64(len(p.all))
	p.mu.Unlock()
	for _, proxy := range opened {
		proxy.markIdle(now)
	}

	p.poolSize.Store(size)
	p.bumpPeak(size)
	p.updateGauges()
	return nil
}

// tryGetConnection loops the data source's GetConnection until success or
// retryTimes+1 failures (spec §4.C try_get_connection).
func (p *Pool) tryGetConnection(ctx context.Context, retryTimes int) (*Proxy, error) {
	var lastErr error
	attempts := retryTimes + 1
	for i := 0; i < attempts; i++ {
		db, err := p.ds.GetConnection(ctx)
		if err == nil {
			return newProxy(p.cfg.Name, db), nil
		}
		lastErr = err
		metrics.PoolOperationsTotal.WithLabelValues(p.cfg.Name, "connect_failed").Inc()
	}
	return nil, poolerr.Wrap(poolerr.ErrConnectFailed,
		fmt.Sprintf("pool %s: connect failed after %d attempts", p.cfg.Name, attempts), lastErr)
}

// Shrink evicts idle proxies that have been idle longer than
// LimitIdleTime, never going below CorePoolSize (spec
// §4.C/§4.D). It is invoked by the maintenance scheduler. I/O (closing the
// evicted connections) happens outside the pool lock.
func (p *Pool) Shrink(now time.Time) int {
	if p.cfg.LimitIdleTime <= 0 {
		return 0
	}

	p.mu.Lock()
	total := len(p.all)
	floor := p.cfg.CorePoolSize
	maxRemovable := total - floor
	if maxRemovable <= 0 {
		p.mu.Unlock()
		return 0
	}
	cutoff := now.Add(-p.cfg.LimitIdleTime)
	stale := p.chain.CountIdleLongerThan(cutoff)
	n := stale
	if n > maxRemovable {
		n = maxRemovable
	}
	removed := p.chain.RemovePrefix(n)
	for _, proxy := range removed {
		delete(p.all, proxy.ID())
	}
	size := int64(len(p.all))
	p.mu.Unlock()

	p.poolSize.Store(size)
	for _, proxy := range removed {
		if err := proxy.destroy(); err != nil {
			log.Printf("[connpool] pool %s: error closing evicted proxy %d: %v", p.cfg.Name, proxy.ID(), err)
		}
	}
	if len(removed) > 0 {
		metrics.EvictionTotal.WithLabelValues(p.cfg.Name, "idle_timeout").Add(float64(len(removed)))
		p.updateGauges()
		p.notify("evicted")
	}
	return len(removed)
}

// SampleOldestIdle returns up to n of the longest-idle proxies currently in
// the chain, without removing them. Used by the maintenance scheduler's
// keepalive pass.
func (p *Pool) SampleOldestIdle(n int) []*Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chain.Oldest(n)
}

// RemoveUnhealthy destroys proxy and removes it from the pool's live set,
// used by the maintenance scheduler after a failed keepalive probe on an
// idle proxy (which is not reachable through Discard, since it is not in
// the active map).
func (p *Pool) RemoveUnhealthy(proxy *Proxy) {
	p.mu.Lock()
	// The proxy may already have been popped by a concurrent acquirer; only
	// remove it from the idle chain if it is still there.
	remaining := p.chain.Snapshot()
	stillIdle := false
	for _, c := range remaining {
		if c.ID() == proxy.ID() {
			stillIdle = true
			break
		}
	}
	if stillIdle {
		filtered := p.chain.Clear()
		now := time.Now()
		for _, c := range filtered {
			if c.ID() != proxy.ID() {
				p.chain.Add(c, now)
			}
		}
		delete(p.all, proxy.ID())
	}
	size := int64(len(p.all))
	p.mu.Unlock()

	if !stillIdle {
		return
	}
	p.poolSize.Store(size)
	_ = proxy.destroy()
	metrics.EvictionTotal.WithLabelValues(p.cfg.Name, "keepalive_failed").Inc()
	p.updateGauges()
	p.notify("evicted")
}

// Shutdown closes every idle proxy the pool knows about and marks the pool
// closed; further Acquire calls fail with ErrPoolClosed. In-use proxies
// are closed on their next Release (spec §4.C shutdown()).
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true

	waiters := p.waiters
	p.waiters = nil
	snapshot := make([]*Proxy, 0, len(p.all))
	for id, proxy := range p.all {
		if _, inUse := p.active[id]; inUse {
			continue // destroyed by Release once its holder returns it
		}
		snapshot = append(snapshot, proxy)
	}
	p.all = make(map[uint64]*Proxy)
	p.active = make(map[uint64]*Proxy)
	p.chain = chain.New[*Proxy](0)
	p.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}

	var firstErr error
	for _, proxy := range snapshot {
		if err := proxy.destroy(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing proxy %d: %w", proxy.ID(), err)
		}
	}

	p.poolSize.Store(0)
	p.updateGauges()
	log.Printf("[connpool] pool %s closed", p.cfg.Name)
	return firstErr
}

// Stats returns the pool's current observable state.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Name:    p.cfg.Name,
		Size:    len(p.all),
		Idle:    p.chain.Len(),
		InUse:   len(p.active),
		Max:     p.cfg.MaxPoolSize,
		Peak:    int(p.peakPoolSize.Load()),
		Waiters: len(p.waiters),
		Closed:  p.closed,
	}
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Pool) removeWaiter(ch chan *Proxy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.waiters {
		if w == ch {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			break
		}
	}
}

func (p *Pool) bumpPeak(size int64) {
	for {
		cur := p.peakPoolSize.Load()
		if size <= cur {
			return
		}
		if p.peakPoolSize.CompareAndSwap(cur, size) {
			return
		}
	}
}

func (p *Pool) updateGauges() {
	stats := p.Stats()
	metrics.PoolSize.WithLabelValues(p.cfg.Name).Set(float64(stats.Size))
	metrics.PoolIdle.WithLabelValues(p.cfg.Name).Set(float64(stats.Idle))
	metrics.PoolPeakSize.WithLabelValues(p.cfg.Name).Set(float64(stats.Peak))
}

// Name returns the pool's configured name.
func (p *Pool) Name() string { return p.cfg.Name }

// Config returns the pool's configuration.
func (p *Pool) Config() *poolcfg.PoolConfig { return p.cfg }
