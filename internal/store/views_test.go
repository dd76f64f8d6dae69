package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyralabs/evidence-runtime/internal/model"
)

func TestQueryViewRejectsUnknownViewName(t *testing.T) {
	s := openTestStore(t)
	_, err := s.QueryView(context.Background(), "v_does_not_exist", "task-1", 10, 0)
	require.Error(t, err)
}

func TestQueryViewRejectsNonPositiveLimit(t *testing.T) {
	s := openTestStore(t)
	_, err := s.QueryView(context.Background(), ViewClaimEvidenceSummary, "task-1", 0, 0)
	require.Error(t, err)
}

func TestQueryViewClaimEvidenceSummaryCountsEdgesByRelation(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	task, err := s.CreateTask(ctx, "hypothesis", 200)
	require.NoError(t, err)

	originPageID := insertTestPage(t, s, "doi:10.1/origin")
	originFragID := insertTestFragment(t, s, originPageID, "origin fragment")
	claimID, _, err := s.InsertClaim(ctx, task.TaskID, "the sky is blue", originFragID)
	require.NoError(t, err)

	supportPageID := insertTestPage(t, s, "doi:10.1/support")
	supportFragID := insertTestFragment(t, s, supportPageID, "supporting fragment")
	conf := 0.9
	_, err = s.InsertEdge(ctx, &model.Edge{
		SourceType: model.EndpointFragment, SourceID: supportFragID,
		TargetType: model.EndpointClaim, TargetID: claimID,
		Relation: model.RelationSupports, NLIEdgeConfidence: &conf,
	})
	require.NoError(t, err)

	rows, err := s.QueryView(ctx, ViewClaimEvidenceSummary, task.TaskID, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, claimID, rows[0]["claim_id"])
	assert.EqualValues(t, 1, rows[0]["supports_count"])
}

func TestQueryViewPaginatesWithLimitAndOffset(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	task, err := s.CreateTask(ctx, "hypothesis", 200)
	require.NoError(t, err)
	pageID := insertTestPage(t, s, "doi:10.1/origin")
	fragID := insertTestFragment(t, s, pageID, "origin fragment")
	_, _, err = s.InsertClaim(ctx, task.TaskID, "claim one", fragID)
	require.NoError(t, err)
	_, _, err = s.InsertClaim(ctx, task.TaskID, "claim two", fragID)
	require.NoError(t, err)

	page1, err := s.QueryView(ctx, ViewClaimEvidenceSummary, task.TaskID, 1, 0)
	require.NoError(t, err)
	require.Len(t, page1, 1)

	page2, err := s.QueryView(ctx, ViewClaimEvidenceSummary, task.TaskID, 1, 1)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.NotEqual(t, page1[0]["claim_id"], page2[0]["claim_id"])
}
