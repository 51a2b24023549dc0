// Package xaresource defines the opaque distributed-transaction resource
// interface consumed by internal/txn (spec.md §6 Glossary: XA resource),
// along with a SQL-backed adapter and an in-memory fake for tests.
package xaresource

import (
	"context"
	"database/sql"
)

// Resource is the minimal XA-style contract a transaction coordinator
// enlists: Start begins the resource's participation, End marks it
// finished associating with the current unit of work, Commit/Rollback
// finalize it. There is no two-phase Prepare: the SQL adapter commits in
// one phase.
type Resource interface {
	// Start associates the resource with a new global transaction branch.
	Start(ctx context.Context) error
	// End disassociates the resource from the current branch without
	// finalizing it (used on Suspend).
	End(ctx context.Context) error
	// Commit finalizes the branch.
	Commit(ctx context.Context) error
	// Rollback aborts the branch.
	Rollback(ctx context.Context) error
	// Name identifies the resource for logging and enlistment bookkeeping.
	Name() string
}

// TxProvider is implemented by resources that can hand back the
// underlying *sql.Tx once started, so the statement invocation layer can
// execute against it. Not every Resource needs to support this (the
// in-memory fake used by tests does not).
type TxProvider interface {
	Tx() *sql.Tx
}

// Factory produces a Resource bound to a particular connection. Kept as an
// interface (rather than a concrete constructor) so internal/txn and
// internal/stmt never import a specific driver adapter.
type Factory interface {
	NewResource(db *sql.DB) (Resource, error)
}
