package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

// execRecorder captures statements so tests can assert on the SQL a method
// issues without a live database.
type execRecorder struct {
	sql  []string
	args [][]any
}

func (r *execRecorder) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql = append(r.sql, sql)
	r.args = append(r.args, args)
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (r *execRecorder) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, pgx.ErrNoRows
}

func (r *execRecorder) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func TestAssignCardActivates(t *testing.T) {
	rec := &execRecorder{}
	q := New(rec)

	cardID, userID := uuid.New(), uuid.New()
	require.NoError(t, q.AssignCard(context.Background(), cardID, userID))

	require.Len(t, rec.sql, 1)
	require.Contains(t, rec.sql[0], "user_id = $2")
	require.Contains(t, rec.sql[0], "is_active = TRUE")
	require.Equal(t, []any{cardID, userID}, rec.args[0])
}

func TestReleaseCardDeactivates(t *testing.T) {
	rec := &execRecorder{}
	q := New(rec)

	cardID := uuid.New()
	require.NoError(t, q.ReleaseCard(context.Background(), cardID))

	require.Len(t, rec.sql, 1)
	require.Contains(t, rec.sql[0], "user_id = NULL")
	require.Contains(t, rec.sql[0], "is_active = FALSE")
	require.Equal(t, []any{cardID}, rec.args[0])
}
