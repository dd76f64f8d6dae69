package scheduler

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/lyralabs/evidence-runtime/internal/model"
	"github.com/lyralabs/evidence-runtime/internal/store"
)

func newTestScheduler(t *testing.T) (*Scheduler, *store.Store) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s, err := store.Open(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, 1, 1), s
}

func TestMilestonesAllClearOnFreshTask(t *testing.T) {
	ctx := context.Background()
	sc, s := newTestScheduler(t)

	task, err := s.CreateTask(ctx, "hypothesis", 200)
	require.NoError(t, err)

	m, err := sc.ComputeMilestones(ctx, task.TaskID)
	require.NoError(t, err)
	require.True(t, m.TargetQueueDrained)
	require.True(t, m.NLIVerificationDone)
	require.True(t, m.CitationChaseReady)
	require.Empty(t, m.WaitingFor)
}

func TestTargetQueueDrainedFalseWhileExplorationJobsQueued(t *testing.T) {
	ctx := context.Background()
	sc, s := newTestScheduler(t)

	task, err := s.CreateTask(ctx, "hypothesis", 200)
	require.NoError(t, err)
	_, err = s.EnqueueJob(ctx, task.TaskID, model.PhaseExploration, model.JobFetchURL, "{}")
	require.NoError(t, err)

	m, err := sc.ComputeMilestones(ctx, task.TaskID)
	require.NoError(t, err)
	require.False(t, m.TargetQueueDrained)
	require.Contains(t, m.WaitingFor, "exploration")
	// citation_chase_ready depends on exploration having drained first.
	require.False(t, m.CitationChaseReady)
}

func TestCitationChaseReadyFalseWhileAuthBlockPending(t *testing.T) {
	ctx := context.Background()
	sc, s := newTestScheduler(t)

	task, err := s.CreateTask(ctx, "hypothesis", 200)
	require.NoError(t, err)
	require.NoError(t, s.EnqueueAuthBlock(ctx, "paywalled.example.com"))

	m, err := sc.ComputeMilestones(ctx, task.TaskID)
	require.NoError(t, err)
	require.True(t, m.TargetQueueDrained)
	require.False(t, m.CitationChaseReady)
	require.Contains(t, m.WaitingFor, "auth_resolution")
}

func TestNLIVerificationDoneFalseWhileClaimUnverified(t *testing.T) {
	ctx := context.Background()
	sc, s := newTestScheduler(t)

	task, err := s.CreateTask(ctx, "hypothesis", 200)
	require.NoError(t, err)

	pageID, err := s.UpsertPage(ctx, &model.Page{
		URL: "https://example.com/a", CanonicalID: "https://example.com/a", Domain: "example.com",
	})
	require.NoError(t, err)
	frag := &model.Fragment{PageID: pageID, Text: "origin fragment"}
	require.NoError(t, s.InsertFragments(ctx, pageID, []*model.Fragment{frag}))

	_, _, err = s.InsertClaim(ctx, task.TaskID, "the sky is blue", frag.FragmentID)
	require.NoError(t, err)

	m, err := sc.ComputeMilestones(ctx, task.TaskID)
	require.NoError(t, err)
	require.False(t, m.NLIVerificationDone)
	require.Contains(t, m.WaitingFor, "verification")
}
