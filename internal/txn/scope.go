// Package txn implements the global-transaction coordinator (spec.md §4.F):
// a per-task Scope that enlists XA-style resources around a logical unit
// of work, instead of an ambient thread-local transaction context. A
// caller creates one Scope per unit of work and threads it explicitly
// through its own call graph — the re-architecture spec.md §9 Design
// Notes prescribes in place of the original's thread-bound transaction
// manager.
package txn

import (
	"context"
	"fmt"
	"sync"

	"github.com/corepool/dbpool/internal/connpool"
	"github.com/corepool/dbpool/internal/metrics"
	"github.com/corepool/dbpool/internal/poolerr"
	"github.com/corepool/dbpool/pkg/xaresource"
)

// scopeState is the Scope's own lifecycle, distinct from a ConnectionProxy's
// State — a Scope outlives any single connection it enlists.
type scopeState int

const (
	scopeActive scopeState = iota
	scopeSuspended
	scopeCommitted
	scopeRolledBack
)

// enlisted pairs a resource with the proxy it was obtained from, so Delist
// can unpin the proxy.
type enlisted struct {
	name     string
	resource xaresource.Resource
	proxy    *connpool.Proxy
}

// Scope is one logical global transaction. It is not safe for concurrent
// use by multiple goroutines — like the original's thread-bound context,
// it is meant to be owned by the single task that began it.
type Scope struct {
	mu    sync.Mutex
	state scopeState

	resources []*enlisted
	byName    map[string]*enlisted
}

// Begin starts a new, empty Scope with no resources enlisted yet.
func Begin() *Scope {
	metrics.TxnOperationsTotal.WithLabelValues("begin", "ok").Inc()
	return &Scope{
		state:  scopeActive,
		byName: make(map[string]*enlisted),
	}
}

// Enlist associates resource (obtained from proxy) with the scope and
// calls its Start. Re-enlisting a name already enlisted in this scope is
// idempotent: it returns nil without re-running Start or replacing the
// already-enlisted resource (spec.md §4.F enlist/delist).
func (s *Scope) Enlist(ctx context.Context, proxy *connpool.Proxy, resource xaresource.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != scopeActive {
		metrics.TxnOperationsTotal.WithLabelValues("enlist", "rejected").Inc()
		return poolerr.Wrap(poolerr.ErrTransactionError, "enlist on inactive scope", nil)
	}
	name := resource.Name()
	if _, ok := s.byName[name]; ok {
		metrics.TxnOperationsTotal.WithLabelValues("enlist", "duplicate").Inc()
		return nil
	}

	if err := resource.Start(ctx); err != nil {
		metrics.TxnOperationsTotal.WithLabelValues("enlist", "failed").Inc()
		return poolerr.Wrap(poolerr.ErrTransactionError, "enlist start failed", err)
	}

	e := &enlisted{name: name, resource: resource, proxy: proxy}
	s.resources = append(s.resources, e)
	s.byName[name] = e
	if proxy != nil {
		proxy.Pin(connpool.PinTransaction)
	}
	metrics.TxnOperationsTotal.WithLabelValues("enlist", "ok").Inc()
	return nil
}

// Delist ends a single resource's participation without finalizing the
// whole scope (spec.md §4.F delist). It is advisory bookkeeping on the
// proxy's pin reason only — the proxy can still be released independently
// per §4.B; Delist does not release it.
func (s *Scope) Delist(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.byName[name]
	s.mu.Unlock()
	if !ok {
		return poolerr.Wrap(poolerr.ErrTransactionError,
			fmt.Sprintf("resource %s not enlisted", name), nil)
	}
	if err := e.resource.End(ctx); err != nil {
		metrics.TxnOperationsTotal.WithLabelValues("delist", "failed").Inc()
		return poolerr.Wrap(poolerr.ErrTransactionError, "delist end failed", err)
	}
	if e.proxy != nil {
		e.proxy.Unpin()
	}
	metrics.TxnOperationsTotal.WithLabelValues("delist", "ok").Inc()
	return nil
}

// Resource returns the resource enlisted under name, or false if none.
func (s *Scope) Resource(name string) (xaresource.Resource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return e.resource, true
}

// Suspend ends every enlisted resource's active association without
// finalizing them, so the scope's proxies can be safely parked while the
// calling task does unrelated work, and later resumed via Resume. While
// suspended, Enlist, Suspend and Commit are rejected; Resume re-activates
// the scope, Rollback still aborts it, and Delist still ends a resource.
func (s *Scope) Suspend(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != scopeActive {
		return poolerr.Wrap(poolerr.ErrTransactionError, "suspend on non-active scope", nil)
	}
	for _, e := range s.resources {
		if err := e.resource.End(ctx); err != nil {
			metrics.TxnOperationsTotal.WithLabelValues("suspend", "failed").Inc()
			return poolerr.Wrap(poolerr.ErrTransactionError, "suspend end failed", err)
		}
	}
	s.state = scopeSuspended
	metrics.TxnOperationsTotal.WithLabelValues("suspend", "ok").Inc()
	return nil
}

// Resume re-associates every enlisted resource after a Suspend, by calling
// Start again (the one-phase SQL adapter keeps its transaction open across
// Suspend and treats this Start as re-association with it; a resource that
// cannot be resumed should return an error).
func (s *Scope) Resume(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != scopeSuspended {
		return poolerr.Wrap(poolerr.ErrTransactionError, "resume on non-suspended scope", nil)
	}
	for _, e := range s.resources {
		if err := e.resource.Start(ctx); err != nil {
			metrics.TxnOperationsTotal.WithLabelValues("resume", "failed").Inc()
			return poolerr.Wrap(poolerr.ErrTransactionError, "resume start failed", err)
		}
	}
	s.state = scopeActive
	metrics.TxnOperationsTotal.WithLabelValues("resume", "ok").Inc()
	return nil
}

// Commit finalizes every enlisted resource in enlistment order. If any
// resource fails to commit, the remaining ones are still attempted (each
// resource's own durability is its responsibility — there is no two-phase
// prepare to make this atomic across resources, per the one-phase XA
// adapter's documented scope) and the first error is returned.
func (s *Scope) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != scopeActive {
		return poolerr.Wrap(poolerr.ErrTransactionError, "commit on non-active scope", nil)
	}
	var firstErr error
	for _, e := range s.resources {
		if err := e.resource.Commit(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		if e.proxy != nil {
			e.proxy.Unpin()
		}
	}
	s.state = scopeCommitted
	if firstErr != nil {
		metrics.TxnOperationsTotal.WithLabelValues("commit", "failed").Inc()
		return poolerr.Wrap(poolerr.ErrTransactionError, "commit failed", firstErr)
	}
	metrics.TxnOperationsTotal.WithLabelValues("commit", "ok").Inc()
	return nil
}

// Rollback aborts every enlisted resource, best effort, and returns the
// first error encountered (if any) after attempting all of them.
func (s *Scope) Rollback(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != scopeActive && s.state != scopeSuspended {
		return nil
	}
	var firstErr error
	for _, e := range s.resources {
		if err := e.resource.Rollback(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		if e.proxy != nil {
			e.proxy.Unpin()
		}
	}
	s.state = scopeRolledBack
	if firstErr != nil {
		metrics.TxnOperationsTotal.WithLabelValues("rollback", "failed").Inc()
		return poolerr.Wrap(poolerr.ErrTransactionError, "rollback failed", firstErr)
	}
	metrics.TxnOperationsTotal.WithLabelValues("rollback", "ok").Inc()
	return nil
}

// Done reports whether the scope has reached a terminal state (committed
// or rolled back).
func (s *Scope) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == scopeCommitted || s.state == scopeRolledBack
}
