package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyralabs/evidence-runtime/internal/model"
)

func TestTaskMetricsZeroValuesOnFreshTask(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	task, err := s.CreateTask(ctx, "hypothesis", 200)
	require.NoError(t, err)

	m, err := s.TaskMetrics(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, m.HarvestRate)
	assert.Equal(t, 0.0, m.SatisfactionScore)
	assert.False(t, m.HasPrimarySource)
}

func TestTaskMetricsHarvestRateReflectsCompletedVsFailedExplorationJobs(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	task, err := s.CreateTask(ctx, "hypothesis", 200)
	require.NoError(t, err)

	ok, err := s.EnqueueJob(ctx, task.TaskID, model.PhaseExploration, model.JobFetchURL, "{}")
	require.NoError(t, err)
	claimed, err := s.ClaimNextJob(ctx, model.PhaseExploration)
	require.NoError(t, err)
	require.Equal(t, ok.JobID, claimed.JobID)
	require.NoError(t, s.CompleteJob(ctx, ok.JobID))

	failing, err := s.EnqueueJob(ctx, task.TaskID, model.PhaseExploration, model.JobFetchURL, "{}")
	require.NoError(t, err)
	claimed2, err := s.ClaimNextJob(ctx, model.PhaseExploration)
	require.NoError(t, err)
	require.Equal(t, failing.JobID, claimed2.JobID)
	require.NoError(t, s.FailJob(ctx, failing.JobID, "boom"))

	m, err := s.TaskMetrics(ctx, task.TaskID)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, m.HarvestRate, 0.001)
}

func TestTaskMetricsHasPrimarySourceTrueForGovernmentOriginDomain(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	task, err := s.CreateTask(ctx, "hypothesis", 200)
	require.NoError(t, err)

	pageID, err := s.UpsertPage(ctx, &model.Page{
		URL: "https://data.census.gov/report", CanonicalID: "https://data.census.gov/report", Domain: "data.census.gov",
	})
	require.NoError(t, err)
	fragID := insertTestFragment(t, s, pageID, "origin fragment")
	_, _, err = s.InsertClaim(ctx, task.TaskID, "population grew", fragID)
	require.NoError(t, err)

	m, err := s.TaskMetrics(ctx, task.TaskID)
	require.NoError(t, err)
	assert.True(t, m.HasPrimarySource)
}

func TestTaskMetricsSatisfactionScoreAveragesAdoptedClaims(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	task, err := s.CreateTask(ctx, "hypothesis", 200)
	require.NoError(t, err)

	pageID := insertTestPage(t, s, "doi:10.1/origin")
	fragID := insertTestFragment(t, s, pageID, "origin fragment")
	claimID, _, err := s.InsertClaim(ctx, task.TaskID, "the sky is blue", fragID)
	require.NoError(t, err)

	supportPageID := insertTestPage(t, s, "doi:10.1/support")
	supportFragID := insertTestFragment(t, s, supportPageID, "supporting fragment")
	primary := model.TrustPrimary
	conf := 0.9
	_, err = s.InsertEdge(ctx, &model.Edge{
		SourceType: model.EndpointFragment, SourceID: supportFragID,
		TargetType: model.EndpointClaim, TargetID: claimID,
		Relation: model.RelationSupports, NLIEdgeConfidence: &conf,
		SourceTrustLevel: &primary,
	})
	require.NoError(t, err)
	require.NoError(t, s.RecomputeClaimConfidence(ctx, claimID))

	m, err := s.TaskMetrics(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Greater(t, m.SatisfactionScore, 0.0)
}
