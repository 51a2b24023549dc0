package xaresource

import (
	"context"
	"database/sql"
	"fmt"
)

// sqlResource adapts a *sql.Tx to the Resource contract using one-phase
// commit: Start opens the transaction, End is a no-op (the driver gives us
// no branch-suspend primitive), Commit/Rollback delegate directly. Real
// two-phase XA prepare/recover is out of scope — see the Resource
// interface doc and DESIGN.md.
type sqlResource struct {
	name string
	db   *sql.DB
	opts *sql.TxOptions

	tx *sql.Tx
}

// NewSQLFactory returns a Factory producing one-phase sqlResource values
// for any *sql.DB, using opts for each Start (nil for driver defaults).
func NewSQLFactory(name string, opts *sql.TxOptions) Factory {
	return &sqlFactory{name: name, opts: opts}
}

type sqlFactory struct {
	name string
	opts *sql.TxOptions
}

func (f *sqlFactory) NewResource(db *sql.DB) (Resource, error) {
	if db == nil {
		return nil, fmt.Errorf("xaresource: nil *sql.DB")
	}
	return &sqlResource{name: f.name, db: db, opts: f.opts}, nil
}

func (r *sqlResource) Name() string { return r.name }

func (r *sqlResource) Start(ctx context.Context) error {
	if r.tx != nil {
		// Still open after End (txn.Scope.Resume): re-associate with it.
		return nil
	}
	tx, err := r.db.BeginTx(ctx, r.opts)
	if err != nil {
		return fmt.Errorf("xaresource %s: begin: %w", r.name, err)
	}
	r.tx = tx
	return nil
}

// End is a no-op for the one-phase adapter: there is no branch-suspend
// primitive in database/sql, so the transaction stays open while a
// *txn.Scope is suspended and Tx keeps returning it; statements are still
// routed through it until Commit or Rollback.
func (r *sqlResource) End(ctx context.Context) error {
	return nil
}

func (r *sqlResource) Commit(ctx context.Context) error {
	if r.tx == nil {
		return fmt.Errorf("xaresource %s: commit without start", r.name)
	}
	err := r.tx.Commit()
	r.tx = nil
	if err != nil {
		return fmt.Errorf("xaresource %s: commit: %w", r.name, err)
	}
	return nil
}

func (r *sqlResource) Rollback(ctx context.Context) error {
	if r.tx == nil {
		return nil
	}
	err := r.tx.Rollback()
	r.tx = nil
	if err != nil {
		return fmt.Errorf("xaresource %s: rollback: %w", r.name, err)
	}
	return nil
}

// Tx exposes the underlying transaction for the statement invocation layer
// to execute against once Start has been called.
func (r *sqlResource) Tx() *sql.Tx { return r.tx }
