package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyralabs/evidence-runtime/internal/errors"
)

func TestQuerySQLRejectsMultipleStatements(t *testing.T) {
	s := openTestStore(t)
	_, err := s.QuerySQL(context.Background(), "SELECT 1 FROM claims; SELECT 1 FROM pages", 10)
	require.Error(t, err)
	assert.Equal(t, errors.InvalidArgument, errors.GetType(err))
}

func TestQuerySQLAllowsSingleTrailingSemicolon(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	task, err := s.CreateTask(ctx, "test hypothesis", 200)
	require.NoError(t, err)

	rows, err := s.QuerySQL(ctx, "SELECT task_id FROM tasks WHERE task_id = '"+task.TaskID+"';", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestQuerySQLRejectsNonSelectStatement(t *testing.T) {
	s := openTestStore(t)
	_, err := s.QuerySQL(context.Background(), "UPDATE claims SET adoption_status = 'adopted'", 10)
	require.Error(t, err)
	assert.Equal(t, errors.InvalidArgument, errors.GetType(err))
}

func TestQuerySQLRejectsForbiddenKeywordInsideSubquery(t *testing.T) {
	s := openTestStore(t)
	_, err := s.QuerySQL(context.Background(), "SELECT * FROM claims WHERE claim_id IN (SELECT claim_id FROM claims WHERE text = 'DROP this claim')", 10)
	require.Error(t, err, "the forbidden-keyword scan has no SQL-string-literal awareness, so even a quoted DROP is rejected")
	assert.Equal(t, errors.InvalidArgument, errors.GetType(err))
}

func TestQuerySQLRejectsTableNotOnWhitelist(t *testing.T) {
	s := openTestStore(t)
	_, err := s.QuerySQL(context.Background(), "SELECT * FROM sqlite_master", 10)
	require.Error(t, err)
	assert.Equal(t, errors.InvalidArgument, errors.GetType(err))
}

func TestQuerySQLRejectsNonPositiveLimit(t *testing.T) {
	s := openTestStore(t)
	_, err := s.QuerySQL(context.Background(), "SELECT * FROM claims", 0)
	require.Error(t, err)
	assert.Equal(t, errors.InvalidArgument, errors.GetType(err))
}

func TestQuerySQLHappyPathRespectsLimitAndReturnsAllowedView(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	task, err := s.CreateTask(ctx, "test hypothesis", 200)
	require.NoError(t, err)

	pageID := insertTestPage(t, s, "doi:10.1/origin")
	fragID := insertTestFragment(t, s, pageID, "origin fragment")
	_, _, err = s.InsertClaim(ctx, task.TaskID, "claim one", fragID)
	require.NoError(t, err)
	_, _, err = s.InsertClaim(ctx, task.TaskID, "claim two", fragID)
	require.NoError(t, err)

	rows, err := s.QuerySQL(ctx, "SELECT claim_id, text FROM claims WHERE task_id = '"+task.TaskID+"' ORDER BY claim_id", 1)
	require.NoError(t, err)
	require.Len(t, rows, 1, "limit must cap the returned row count")
	assert.Contains(t, rows[0], "claim_id")
	assert.Contains(t, rows[0], "text")
}
