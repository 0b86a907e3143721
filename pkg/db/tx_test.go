package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeTx records commit/rollback calls; statement methods are never reached
// in these tests.
type fakeTx struct {
	commits   int
	rollbacks int
}

func (f *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) { return f, nil }
func (f *fakeTx) Commit(ctx context.Context) error {
	f.commits++
	return nil
}
func (f *fakeTx) Rollback(ctx context.Context) error {
	f.rollbacks++
	return nil
}
func (f *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (f *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (f *fakeTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (f *fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (f *fakeTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (f *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (f *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (f *fakeTx) Conn() *pgx.Conn                                               { return nil }

func TestRunTxCommitsOnSuccess(t *testing.T) {
	fake := &fakeTx{}
	err := runTx(context.Background(), fake, false, func(tx *Tx) error { return nil })
	if err != nil {
		t.Fatalf("runTx() error: %v", err)
	}
	if fake.commits != 1 {
		t.Errorf("commits = %d, want 1", fake.commits)
	}
}

func TestRunTxRollsBackOnError(t *testing.T) {
	fake := &fakeTx{}
	boom := errors.New("boom")
	err := runTx(context.Background(), fake, false, func(tx *Tx) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("runTx() error = %v, want boom", err)
	}
	if fake.commits != 0 {
		t.Errorf("commits = %d, want 0", fake.commits)
	}
	if fake.rollbacks == 0 {
		t.Error("expected a rollback")
	}
}

func TestRunTxAnnulmentBlocksCommit(t *testing.T) {
	fake := &fakeTx{}
	err := runTx(context.Background(), fake, false, func(tx *Tx) error {
		tx.DoNotCommit()
		return nil // the statement itself "succeeded"
	})
	if err != nil {
		t.Fatalf("runTx() error: %v", err)
	}
	if fake.commits != 0 {
		t.Errorf("commits = %d, want 0 after annulment", fake.commits)
	}
	if fake.rollbacks == 0 {
		t.Error("expected a rollback after annulment")
	}
}

func TestDoNotCommitIdempotent(t *testing.T) {
	tx := NewTx(nil, false)
	if tx.Annulled() {
		t.Fatal("fresh handle should not be annulled")
	}
	tx.DoNotCommit()
	tx.DoNotCommit()
	if !tx.Annulled() {
		t.Error("Annulled() = false after DoNotCommit")
	}
}

func TestExecArgsSimpleProtocol(t *testing.T) {
	prepared := NewTx(nil, false)
	if got := prepared.execArgs([]any{1, "x"}); len(got) != 2 {
		t.Errorf("prepared execArgs len = %d, want 2", len(got))
	}

	unprepared := NewTx(nil, true)
	got := unprepared.execArgs([]any{1})
	if len(got) != 2 {
		t.Fatalf("unprepared execArgs len = %d, want 2", len(got))
	}
	if got[0] != pgx.QueryExecModeSimpleProtocol {
		t.Errorf("first arg = %v, want simple protocol mode", got[0])
	}
}
