// Package connpool implements the connection-proxy state machine (spec
// §4.B) and the pool manager (spec §4.C) that owns it.
//
// With TestBeforeUse false, Acquire does not validate a proxy at all; a
// connection that went bad while idle is found only by the maintenance
// scheduler's keepalive probe (Pool.Validate + Pool.RemoveUnhealthy), when
// that probe is enabled.
package connpool

import (
	"database/sql"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// State is a connection proxy's lifecycle state (spec §3 ConnectionProxy).
type State int

const (
	// StateFresh is assigned at creation, before the proxy has ever been
	// placed in the owning pool's chain.
	StateFresh State = iota
	// StateIdle means the proxy is present in the chain and available.
	StateIdle
	// StateInUse means exactly one caller holds the proxy.
	StateInUse
	// StateClosed is terminal: the physical handle is closed and the
	// proxy has been removed from the pool's live set.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateIdle:
		return "idle"
	case StateInUse:
		return "in_use"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PinReason records why a proxy is currently tied to ongoing transactional
// or prepared-statement work. It is bookkeeping set by the transaction
// coordinator (internal/txn) and readable through Proxy.PinReason; it never
// changes the proxy's release contract — Pool.Release always returns the
// proxy to its pool (spec §4.B), pinned or not. Neither the maintenance
// scheduler nor the metrics read it.
type PinReason string

const (
	PinNone        PinReason = ""
	PinTransaction PinReason = "transaction"
	PinPrepared    PinReason = "prepared"
)

var nextProxyID atomic.Uint64

// Proxy wraps one physical connection (a *sql.DB configured for exactly one
// open connection) with the pool-management metadata spec §3 requires:
// lifecycle state, the set of open dependent statements, and an idle
// timestamp. It is the "ConnectionProxy" of the data model.
type Proxy struct {
	mu sync.Mutex

	id       uint64
	poolName string
	db       *sql.DB

	state State

	// stmts tracks dependent statement handles opened against this proxy
	// (spec §3: "drained on IN_USE -> IDLE"). Keyed by an opaque handle id
	// assigned by the statement invocation layer.
	stmts map[uint64]io.Closer

	pinReason PinReason

	createdAt  time.Time
	idleSince  time.Time
	lastUsedAt time.Time
	useCount   uint64
}

// NewForTesting exposes proxy construction to other packages' tests (e.g.
// internal/stmt), which need a *Proxy without running a real pool.
func NewForTesting(poolName string, db *sql.DB) *Proxy {
	return newProxy(poolName, db)
}

// CloseForTesting transitions a proxy built via NewForTesting straight to
// StateClosed, for tests that need to exercise closed-proxy behavior (e.g.
// internal/stmt's statement invocation layer) without a real pool's
// shutdown path.
func (p *Proxy) CloseForTesting() {
	_ = p.destroy()
}

// newProxy wraps db as a fresh proxy belonging to poolName.
func newProxy(poolName string, db *sql.DB) *Proxy {
	now := time.Now()
	return &Proxy{
		id:        nextProxyID.Add(1),
		poolName:  poolName,
		db:        db,
		state:     StateFresh,
		stmts:     make(map[uint64]io.Closer),
		createdAt: now,
	}
}

// ID returns the proxy's process-unique identifier, used for logging,
// metrics correlation and chain/active-set keys.
func (p *Proxy) ID() uint64 { return p.id }

// PoolName returns the name of the owning pool.
func (p *Proxy) PoolName() string { return p.poolName }

// DB returns the underlying *sql.DB. Statement creation (internal/stmt)
// goes through this handle; callers must not call Close on it directly —
// a proxy goes back to its pool through Pool.Release. Proxy has no Close
// method of its own, so closing it is not a way to release it.
func (p *Proxy) DB() *sql.DB { return p.db }

// State returns the current lifecycle state.
func (p *Proxy) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Pin marks the proxy as tied to in-flight transactional work.
func (p *Proxy) Pin(reason PinReason) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pinReason = reason
}

// Unpin clears any pin reason.
func (p *Proxy) Unpin() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pinReason = PinNone
}

// PinReason returns the current pin reason, or PinNone.
func (p *Proxy) PinReason() PinReason {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pinReason
}

// TrackStatement registers a dependent statement handle under handleID, so
// it can be drained on release. Called by internal/stmt when it opens a
// new prepared statement against this proxy.
func (p *Proxy) TrackStatement(handleID uint64, stmt io.Closer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stmts[handleID] = stmt
}

// UntrackStatement removes a dependent statement handle, e.g. when the
// caller explicitly closes it before release.
func (p *Proxy) UntrackStatement(handleID uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.stmts, handleID)
}

// IdleDuration reports how long the proxy has been idle. Only meaningful
// while State() == StateIdle.
func (p *Proxy) IdleDuration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.idleSince.IsZero() {
		return 0
	}
	return time.Since(p.idleSince)
}

// markInUse transitions IDLE/FRESH -> IN_USE. Dependent statements are
// guaranteed empty on entry (spec §3 invariant).
func (p *Proxy) markInUse() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateInUse
	p.lastUsedAt = time.Now()
	p.useCount++
}

// markIdle transitions IN_USE -> IDLE: drains dependent statements best
// effort, clears the pin reason, and stamps idle_since.
func (p *Proxy) markIdle(now time.Time) {
	p.mu.Lock()
	stmts := p.stmts
	p.stmts = make(map[uint64]io.Closer)
	p.pinReason = PinNone
	p.state = StateIdle
	p.idleSince = now
	p.mu.Unlock()

	for _, s := range stmts {
		_ = s.Close()
	}
}

// markClosed transitions to CLOSED. Idempotent.
func (p *Proxy) markClosed() {
	p.mu.Lock()
	p.state = StateClosed
	p.mu.Unlock()
}

// destroy drains any dependent statements, marks the proxy CLOSED and
// best-effort closes the physical handle. It returns the error from
// closing the physical handle and leaves handling to the caller: pool code
// logs or ignores it, and Shutdown keeps closing the rest before reporting
// the first one.
func (p *Proxy) destroy() error {
	p.mu.Lock()
	stmts := p.stmts
	p.stmts = make(map[uint64]io.Closer)
	p.state = StateClosed
	p.mu.Unlock()

	for _, s := range stmts {
		_ = s.Close()
	}
	return p.db.Close()
}

func (p *Proxy) String() string {
	return fmt.Sprintf("connpool.Proxy{id=%d pool=%s state=%s}", p.id, p.poolName, p.State())
}
