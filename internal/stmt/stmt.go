// Package stmt implements the statement invocation layer (spec.md §4.E): a
// façade in front of a proxy's prepared statements that enlists an XA
// resource with a caller's transaction scope before delegating execute/
// execute_batch/execute_update, and answers identity-style calls
// (stringification, the underlying *sql.DB/*sql.Tx) locally rather than by
// delegation. Go has no dynamic proxying, so this is a concrete wrapper
// type rather than a runtime interception mechanism.
package stmt

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"github.com/corepool/dbpool/internal/connpool"
	"github.com/corepool/dbpool/internal/poolerr"
	"github.com/corepool/dbpool/internal/txn"
	"github.com/corepool/dbpool/pkg/xaresource"
)

var nextHandleID atomic.Uint64

// Facade wraps one *connpool.Proxy and, optionally, an XA resource
// enlisted against a *txn.Scope. Every statement it prepares is tracked on
// the underlying proxy so markIdle can drain them on release.
type Facade struct {
	handleID uint64
	proxy    *connpool.Proxy
	scope    *txn.Scope
	resource xaresource.Resource
}

// New wraps proxy with no transaction enlistment — statements execute
// directly against proxy's *sql.DB, as for any non-transactional caller.
func New(proxy *connpool.Proxy) *Facade {
	return &Facade{handleID: nextHandleID.Add(1), proxy: proxy}
}

// Enlist wraps proxy and enlists an XA resource built by factory into
// scope, so subsequent statements execute inside that global transaction.
func Enlist(ctx context.Context, proxy *connpool.Proxy, scope *txn.Scope, factory xaresource.Factory) (*Facade, error) {
	resource, err := factory.NewResource(proxy.DB())
	if err != nil {
		return nil, fmt.Errorf("stmt: building resource: %w", err)
	}
	if err := scope.Enlist(ctx, proxy, resource); err != nil {
		return nil, err
	}
	return &Facade{
		handleID: nextHandleID.Add(1),
		proxy:    proxy,
		scope:    scope,
		resource: resource,
	}, nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// target resolves the execer a statement call should run against, failing
// with ErrProxyClosed if the underlying proxy is no longer usable — the
// first rule of every statement-invocation-layer call (spec.md §4.E step 1).
func (f *Facade) target() (execer, error) {
	if f.proxy.State() == connpool.StateClosed {
		return nil, poolerr.Wrap(poolerr.ErrProxyClosed,
			fmt.Sprintf("statement invocation on closed proxy %d", f.proxy.ID()), nil)
	}
	if f.resource != nil {
		if tp, ok := f.resource.(xaresource.TxProvider); ok {
			if tx := tp.Tx(); tx != nil {
				return tx, nil
			}
		}
	}
	return f.proxy.DB(), nil
}

// Execute runs a single statement (spec.md §4.E execute), routed through
// the enlisted transaction if one exists.
func (f *Facade) Execute(ctx context.Context, query string, args ...any) (sql.Result, error) {
	target, err := f.target()
	if err != nil {
		return nil, err
	}
	return target.ExecContext(ctx, query, args...)
}

// ExecuteUpdate is kept for parity with spec.md's execute_update: it runs
// the statement through Execute (database/sql has no separate
// row-count-only path) and returns the affected-row count.
func (f *Facade) ExecuteUpdate(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := f.Execute(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ExecuteBatch runs queries in sequence against the same target, stopping
// at the first error (spec.md §4.E execute_batch). There is no
// driver-level batching in database/sql, so this is a straightforward
// loop rather than a single network round trip — acceptable since the
// retrieved pack shows no batch-capable driver wrapper for this case.
func (f *Facade) ExecuteBatch(ctx context.Context, queries []string) ([]sql.Result, error) {
	results := make([]sql.Result, 0, len(queries))
	for i, q := range queries {
		res, err := f.Execute(ctx, q)
		if err != nil {
			return results, fmt.Errorf("batch statement %d: %w", i, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// Query runs a read statement, routed through the enlisted transaction if
// one exists.
func (f *Facade) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	target, err := f.target()
	if err != nil {
		return nil, err
	}
	return target.QueryContext(ctx, query, args...)
}

// Prepare returns a *sql.Stmt tracked on the underlying proxy so it is
// drained when the proxy returns to idle (spec.md §3: dependent statements
// drained on IN_USE -> IDLE).
func (f *Facade) Prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	target, err := f.target()
	if err != nil {
		return nil, err
	}
	st, err := target.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	f.proxy.TrackStatement(nextHandleID.Add(1), st)
	return st, nil
}

// Delist ends this facade's resource's participation in its scope without
// closing the facade itself, identity-style calls like Conn and String
// continue to answer locally afterwards.
func (f *Facade) Delist(ctx context.Context) error {
	if f.scope == nil || f.resource == nil {
		return nil
	}
	return f.scope.Delist(ctx, f.resource.Name())
}

// Conn answers locally rather than delegating (spec.md §4.E:
// identity-and-equality-style calls answered locally) — it exposes the
// underlying proxy for callers that need the raw *sql.DB.
func (f *Facade) Conn() *connpool.Proxy { return f.proxy }

func (f *Facade) String() string {
	return fmt.Sprintf("stmt.Facade{proxy=%d enlisted=%t}", f.proxy.ID(), f.resource != nil)
}
