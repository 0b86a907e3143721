package db

import (
	"context"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// TxOptions selects the transaction semantics for one request.
type TxOptions struct {
	// ReadOnly routes the transaction through BEGIN READ ONLY.
	ReadOnly bool

	// IsoLevel defaults to read committed when empty.
	IsoLevel pgx.TxIsoLevel

	// NoPrepare forces the simple query protocol, bypassing the
	// prepared-statement cache. Used for authenticated roles so statements
	// prepared under one role are never executed under another.
	NoPrepare bool
}

// Tx is the transaction handle passed through the request pipeline. Besides
// statement execution it carries the annulment flag: any integrity enforcer
// may mark the transaction "do not commit", and the commit path consults the
// flag even when the handler succeeded.
type Tx struct {
	tx        pgx.Tx
	noPrepare bool
	annulled  atomic.Bool
}

// NewTx wraps a pgx transaction. Exposed for tests that drive the engine
// with fake executors and never touch the wire.
func NewTx(tx pgx.Tx, noPrepare bool) *Tx {
	return &Tx{tx: tx, noPrepare: noPrepare}
}

// DoNotCommit marks the transaction for rollback regardless of outcome.
// Idempotent.
func (t *Tx) DoNotCommit() { t.annulled.Store(true) }

// Annulled reports whether the transaction was marked do-not-commit.
func (t *Tx) Annulled() bool { return t.annulled.Load() }

// Query runs a query inside the transaction, honoring the protocol choice.
func (t *Tx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return t.tx.Query(ctx, sql, t.execArgs(args)...)
}

// QueryRow runs a single-row query inside the transaction.
func (t *Tx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return t.tx.QueryRow(ctx, sql, t.execArgs(args)...)
}

// Exec runs a statement inside the transaction.
func (t *Tx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.tx.Exec(ctx, sql, t.execArgs(args)...)
}

// execArgs prepends the simple-protocol exec mode when prepared statements
// are disabled for this transaction.
func (t *Tx) execArgs(args []any) []any {
	if !t.noPrepare {
		return args
	}
	out := make([]any, 0, len(args)+1)
	out = append(out, pgx.QueryExecModeSimpleProtocol)
	return append(out, args...)
}

// WithTransaction runs fn inside a transaction with the requested options.
// The transaction commits only when fn returned nil AND the handle was not
// annulled; every other combination rolls back. fn's error is returned
// unchanged so the caller can classify it.
func (p *Pool) WithTransaction(ctx context.Context, opts TxOptions, fn func(tx *Tx) error) error {
	accessMode := pgx.ReadWrite
	if opts.ReadOnly {
		accessMode = pgx.ReadOnly
	}

	pgxTx, err := p.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   opts.IsoLevel,
		AccessMode: accessMode,
	})
	if err != nil {
		return err
	}

	return runTx(ctx, pgxTx, opts.NoPrepare, fn)
}

// runTx drives fn and settles the transaction. Commit happens only on the
// fully clean path; the annulment flag is consulted last so enforcers can
// annul after the statement already succeeded.
func runTx(ctx context.Context, pgxTx pgx.Tx, noPrepare bool, fn func(tx *Tx) error) error {
	t := &Tx{tx: pgxTx, noPrepare: noPrepare}

	defer func() {
		// No-op after a successful commit; settles panics and early returns.
		_ = pgxTx.Rollback(ctx)
	}()

	if err := fn(t); err != nil {
		return err
	}

	if t.Annulled() {
		return pgxTx.Rollback(ctx)
	}

	return pgxTx.Commit(ctx)
}
