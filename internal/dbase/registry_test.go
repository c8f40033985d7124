package dbase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeEngine is an in-memory stand-in used to test Registry's id
// bookkeeping without touching a real SQLite connection.
type fakeEngine struct {
	nextDB, nextStmt int
	calls            []string
}

func (f *fakeEngine) Open(ctx context.Context, name string, flags OpenFlags, vfs string) (DBHandle, error) {
	f.nextDB++
	return f.nextDB, nil
}

func (f *fakeEngine) Prepare(ctx context.Context, db DBHandle, sql string) (StmtHandle, error) {
	f.nextStmt++
	return f.nextStmt, nil
}

func (f *fakeEngine) Exec(ctx context.Context, stmt StmtHandle, params []Param) (ExecResult, error) {
	return ExecResult{LastInsertID: 1, RowsAffected: 1}, nil
}

func (f *fakeEngine) Query(ctx context.Context, stmt StmtHandle, params []Param) (Rows, error) {
	return Rows{}, nil
}

func (f *fakeEngine) Finalize(ctx context.Context, stmt StmtHandle) error {
	f.calls = append(f.calls, "finalize")
	return nil
}

func (f *fakeEngine) Close(ctx context.Context, db DBHandle) error {
	f.calls = append(f.calls, "close")
	return nil
}

func TestOpenAssignsDenseSequentialIds(t *testing.T) {
	r := NewRegistry(&fakeEngine{})
	id0, err := r.Open(context.Background(), "a.db", OpenReadWrite|OpenCreate, "volatile")
	require.NoError(t, err)
	require.Equal(t, 0, id0)

	id1, err := r.Open(context.Background(), "b.db", OpenReadWrite|OpenCreate, "volatile")
	require.NoError(t, err)
	require.Equal(t, 1, id1)
}

func TestOpenRejectsCreateWithoutReadFlag(t *testing.T) {
	r := NewRegistry(&fakeEngine{})
	_, err := r.Open(context.Background(), "a.db", OpenCreate, "volatile")
	require.Error(t, err)

	var dbErr *Error
	require.True(t, errors.As(err, &dbErr))
	require.Equal(t, "bad parameter or other API misuse", dbErr.Description)
}

// TestUnknownDBIDReturnsNotFoundWithMessage reproduces scenario S7's
// PREPARE-with-unknown-db_id case.
func TestUnknownDBIDReturnsNotFoundWithMessage(t *testing.T) {
	r := NewRegistry(&fakeEngine{})
	_, err := r.Prepare(context.Background(), 123, "SELECT 1")
	require.ErrorIs(t, err, ErrNotFound)
	require.Contains(t, err.Error(), "no db with id 123")
}

// TestUnknownStmtIDReturnsNotFoundWithMessage reproduces scenario S7's
// EXEC-with-unknown-stmt_id case.
func TestUnknownStmtIDReturnsNotFoundWithMessage(t *testing.T) {
	r := NewRegistry(&fakeEngine{})
	dbID, err := r.Open(context.Background(), "a.db", OpenReadWrite|OpenCreate, "volatile")
	require.NoError(t, err)

	_, err = r.Exec(context.Background(), dbID, 666, nil)
	require.ErrorIs(t, err, ErrNotFound)
	require.Contains(t, err.Error(), "no stmt with id 666")
}

func TestFinalizeVacatesSlotAndRejectsReuse(t *testing.T) {
	r := NewRegistry(&fakeEngine{})
	dbID, err := r.Open(context.Background(), "a.db", OpenReadWrite|OpenCreate, "volatile")
	require.NoError(t, err)
	stmtID, err := r.Prepare(context.Background(), dbID, "SELECT 1")
	require.NoError(t, err)

	require.NoError(t, r.Finalize(context.Background(), dbID, stmtID))

	_, err = r.Exec(context.Background(), dbID, stmtID, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCloseFinalizesStatementsBeforeDatabase(t *testing.T) {
	fe := &fakeEngine{}
	r := NewRegistry(fe)
	dbID, err := r.Open(context.Background(), "a.db", OpenReadWrite|OpenCreate, "volatile")
	require.NoError(t, err)
	_, err = r.Prepare(context.Background(), dbID, "SELECT 1")
	require.NoError(t, err)

	require.NoError(t, r.Close(context.Background(), dbID))
	require.Equal(t, []string{"finalize", "close"}, fe.calls)

	_, err = r.Prepare(context.Background(), dbID, "SELECT 1")
	require.ErrorIs(t, err, ErrNotFound)
}
