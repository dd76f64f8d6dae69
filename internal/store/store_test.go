package store

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/lyralabs/evidence-runtime/internal/model"
)

// openTestStore opens a fresh in-memory sqlite Evidence Store per test, same
// schema and WAL setup as production (spec §6: "a single on-disk relational
// store"). Real sqlite, not a mock, so the independence invariant and the
// confidence-recomputation SQL are exercised exactly as they run in
// production.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s, err := Open(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestPage(t *testing.T, s *Store, canonicalID string) string {
	t.Helper()
	pageID, err := s.UpsertPage(context.Background(), &model.Page{
		URL:         "https://example.com/" + canonicalID,
		CanonicalID: canonicalID,
		Domain:      "example.com",
		FetchedAt:   time.Now(),
		ContentHash: "hash-" + canonicalID,
	})
	require.NoError(t, err)
	return pageID
}

func insertTestFragment(t *testing.T, s *Store, pageID, text string) string {
	t.Helper()
	frag := &model.Fragment{PageID: pageID, Text: text}
	err := s.InsertFragments(context.Background(), pageID, []*model.Fragment{frag})
	require.NoError(t, err)
	return frag.FragmentID
}

func TestInsertEdgeRejectsSelfSupportAcrossSameCanonicalPage(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	task, err := s.CreateTask(ctx, "test hypothesis", 200)
	require.NoError(t, err)

	originPageID := insertTestPage(t, s, "doi:10.1/same")
	originFragID := insertTestFragment(t, s, originPageID, "origin fragment")

	claimID, _, err := s.InsertClaim(ctx, task.TaskID, "the sky is blue", originFragID)
	require.NoError(t, err)

	// Re-fetching the same canonical_id produces a distinct page row (a new
	// content_hash), but it is still the same logical source. A SUPPORTS
	// edge from a fragment on that re-fetched page must be rejected.
	rePage := &model.Page{
		URL: "https://example.com/doi:10.1/same", CanonicalID: "doi:10.1/same",
		Domain: "example.com", FetchedAt: time.Now(), ContentHash: "different-hash",
	}
	rePageID, err := s.UpsertPage(ctx, rePage)
	require.NoError(t, err)
	sameSourceFragID := insertTestFragment(t, s, rePageID, "a reworded version of the origin text")

	confidence := 0.9
	_, err = s.InsertEdge(ctx, &model.Edge{
		SourceType:        model.EndpointFragment,
		SourceID:          sameSourceFragID,
		TargetType:        model.EndpointClaim,
		TargetID:          claimID,
		Relation:          model.RelationSupports,
		NLIEdgeConfidence: &confidence,
	})
	require.Error(t, err, "independence invariant: a fragment from the same canonical source as the claim's origin must not count as corroboration")
}

func TestInsertEdgeAcceptsIndependentSource(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	task, err := s.CreateTask(ctx, "test hypothesis", 200)
	require.NoError(t, err)

	originPageID := insertTestPage(t, s, "doi:10.1/origin")
	originFragID := insertTestFragment(t, s, originPageID, "origin fragment")
	claimID, _, err := s.InsertClaim(ctx, task.TaskID, "the sky is blue", originFragID)
	require.NoError(t, err)

	independentPageID := insertTestPage(t, s, "doi:10.1/independent")
	independentFragID := insertTestFragment(t, s, independentPageID, "corroborating fragment")

	confidence := 0.85
	edgeID, err := s.InsertEdge(ctx, &model.Edge{
		SourceType:        model.EndpointFragment,
		SourceID:          independentFragID,
		TargetType:        model.EndpointClaim,
		TargetID:          claimID,
		Relation:          model.RelationSupports,
		NLIEdgeConfidence: &confidence,
	})
	require.NoError(t, err)
	require.NotEmpty(t, edgeID)
}

func TestRecomputeClaimConfidenceWeightsByTrustLevel(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	task, err := s.CreateTask(ctx, "test hypothesis", 200)
	require.NoError(t, err)

	originPageID := insertTestPage(t, s, "doi:10.1/origin")
	originFragID := insertTestFragment(t, s, originPageID, "origin fragment")
	claimID, _, err := s.InsertClaim(ctx, task.TaskID, "the sky is blue", originFragID)
	require.NoError(t, err)

	supportPageID := insertTestPage(t, s, "doi:10.1/support")
	supportFragID := insertTestFragment(t, s, supportPageID, "supporting fragment")

	primary := model.TrustPrimary
	confidence := 0.9
	_, err = s.InsertEdge(ctx, &model.Edge{
		SourceType: model.EndpointFragment, SourceID: supportFragID,
		TargetType: model.EndpointClaim, TargetID: claimID,
		Relation: model.RelationSupports, NLIEdgeConfidence: &confidence,
		SourceTrustLevel: &primary,
	})
	require.NoError(t, err)

	require.NoError(t, s.RecomputeClaimConfidence(ctx, claimID))

	claim, err := s.GetClaim(ctx, claimID)
	require.NoError(t, err)
	// S = 1.0 * 0.9 = 0.9, alpha = 1.0 -> (0.9 + 0.5) / (0.9 + 1.0) = 0.7368...
	require.InDelta(t, 0.7368, claim.BayesianTruthConfidence, 0.001)
}

func TestRecomputeClaimConfidenceFlagsContradiction(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	task, err := s.CreateTask(ctx, "test hypothesis", 200)
	require.NoError(t, err)

	originPageID := insertTestPage(t, s, "doi:10.1/origin")
	originFragID := insertTestFragment(t, s, originPageID, "origin fragment")
	claimID, _, err := s.InsertClaim(ctx, task.TaskID, "the sky is blue", originFragID)
	require.NoError(t, err)

	supportPageID := insertTestPage(t, s, "doi:10.1/support")
	supportFragID := insertTestFragment(t, s, supportPageID, "supporting fragment")
	refutePageID := insertTestPage(t, s, "doi:10.1/refute")
	refuteFragID := insertTestFragment(t, s, refutePageID, "refuting fragment")

	trusted := model.TrustTrusted
	supportConf, refuteConf := 0.8, 0.8
	_, err = s.InsertEdge(ctx, &model.Edge{
		SourceType: model.EndpointFragment, SourceID: supportFragID,
		TargetType: model.EndpointClaim, TargetID: claimID,
		Relation: model.RelationSupports, NLIEdgeConfidence: &supportConf,
		SourceTrustLevel: &trusted,
	})
	require.NoError(t, err)
	_, err = s.InsertEdge(ctx, &model.Edge{
		SourceType: model.EndpointFragment, SourceID: refuteFragID,
		TargetType: model.EndpointClaim, TargetID: claimID,
		Relation: model.RelationRefutes, NLIEdgeConfidence: &refuteConf,
		SourceTrustLevel: &trusted,
	})
	require.NoError(t, err)

	require.NoError(t, s.RecomputeClaimConfidence(ctx, claimID))

	edges, err := s.EdgesForClaim(ctx, claimID)
	require.NoError(t, err)
	for _, e := range edges {
		require.True(t, e.IsContradiction, "both edges should be flagged once support and refute coexist")
	}
}

func TestInsertClaimDedupesNormalizedTextWithinTask(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	task, err := s.CreateTask(ctx, "test hypothesis", 200)
	require.NoError(t, err)

	pageID := insertTestPage(t, s, "doi:10.1/origin")
	fragID := insertTestFragment(t, s, pageID, "origin fragment")

	id1, wasNew1, err := s.InsertClaim(ctx, task.TaskID, "The Sky Is Blue", fragID)
	require.NoError(t, err)
	require.True(t, wasNew1)

	id2, wasNew2, err := s.InsertClaim(ctx, task.TaskID, "the   sky is blue", fragID)
	require.NoError(t, err)
	require.False(t, wasNew2, "case/whitespace-equivalent claim text must dedupe within a task")
	require.Equal(t, id1, id2)
}

func TestJobLifecycleQueueClaimComplete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	task, err := s.CreateTask(ctx, "test hypothesis", 200)
	require.NoError(t, err)

	job, err := s.EnqueueJob(ctx, task.TaskID, model.PhaseExploration, model.JobFetchURL, `{"url":"https://example.com"}`)
	require.NoError(t, err)
	require.NotEmpty(t, job.JobID)

	counts, err := s.JobCounts(ctx, task.TaskID, model.PhaseExploration)
	require.NoError(t, err)
	require.Equal(t, 1, counts.Queued)

	claimed, err := s.ClaimNextJob(ctx, model.PhaseExploration)
	require.NoError(t, err)
	require.Equal(t, job.JobID, claimed.JobID)

	counts, err = s.JobCounts(ctx, task.TaskID, model.PhaseExploration)
	require.NoError(t, err)
	require.Equal(t, 1, counts.Running)

	require.NoError(t, s.CompleteJob(ctx, job.JobID))

	counts, err = s.JobCounts(ctx, task.TaskID, model.PhaseExploration)
	require.NoError(t, err)
	require.Equal(t, 0, counts.Queued)
	require.Equal(t, 0, counts.Running)
}

func TestDecrementBudgetFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	task, err := s.CreateTask(ctx, "test hypothesis", 3)
	require.NoError(t, err)

	remaining, err := s.DecrementBudget(ctx, task.TaskID, 2)
	require.NoError(t, err)
	require.Equal(t, 1, remaining)

	remaining, err = s.DecrementBudget(ctx, task.TaskID, 5)
	require.NoError(t, err)
	require.Equal(t, 0, remaining, "budget must floor at zero, not go negative")
}

func TestReverifyOnNewOriginInvalidatesEdgeFromCollidingCanonicalSource(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	task, err := s.CreateTask(ctx, "test hypothesis", 200)
	require.NoError(t, err)

	originPageID := insertTestPage(t, s, "doi:10.1/origin")
	originFragID := insertTestFragment(t, s, originPageID, "origin fragment")
	claimID, _, err := s.InsertClaim(ctx, task.TaskID, "the sky is blue", originFragID)
	require.NoError(t, err)

	supportPageID := insertTestPage(t, s, "doi:10.1/support")
	supportFragID := insertTestFragment(t, s, supportPageID, "supporting fragment")

	confidence := 0.9
	edgeID, err := s.InsertEdge(ctx, &model.Edge{
		SourceType: model.EndpointFragment, SourceID: supportFragID,
		TargetType: model.EndpointClaim, TargetID: claimID,
		Relation: model.RelationSupports, NLIEdgeConfidence: &confidence,
	})
	require.NoError(t, err)

	// The same canonical source is rediscovered later and now supplies the
	// claim's origin fragment -- the earlier "independent" SUPPORTS edge is
	// no longer independent and must be invalidated.
	require.NoError(t, s.ReverifyOnNewOrigin(ctx, claimID, "doi:10.1/support"))

	var invalidated bool
	require.NoError(t, s.db.GetContext(ctx, &invalidated, `SELECT invalidated FROM edges WHERE edge_id = ?`, edgeID))
	require.True(t, invalidated, "edge sharing the new origin's canonical_id must be invalidated")

	edges, err := s.EdgesForClaim(ctx, claimID)
	require.NoError(t, err)
	for _, e := range edges {
		require.NotEqual(t, edgeID, e.EdgeID, "invalidated edges must be excluded from the active edge set")
	}
}

func TestReverifyOnNewOriginIsNoOpWhenNoEdgesCollide(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	task, err := s.CreateTask(ctx, "test hypothesis", 200)
	require.NoError(t, err)

	originPageID := insertTestPage(t, s, "doi:10.1/origin")
	originFragID := insertTestFragment(t, s, originPageID, "origin fragment")
	claimID, _, err := s.InsertClaim(ctx, task.TaskID, "the sky is blue", originFragID)
	require.NoError(t, err)

	supportPageID := insertTestPage(t, s, "doi:10.1/independent")
	supportFragID := insertTestFragment(t, s, supportPageID, "supporting fragment")
	confidence := 0.9
	edgeID, err := s.InsertEdge(ctx, &model.Edge{
		SourceType: model.EndpointFragment, SourceID: supportFragID,
		TargetType: model.EndpointClaim, TargetID: claimID,
		Relation: model.RelationSupports, NLIEdgeConfidence: &confidence,
	})
	require.NoError(t, err)

	require.NoError(t, s.ReverifyOnNewOrigin(ctx, claimID, "doi:10.1/some-other-source"))

	edges, err := s.EdgesForClaim(ctx, claimID)
	require.NoError(t, err)
	for _, e := range edges {
		if e.EdgeID == edgeID {
			require.False(t, e.Invalidated)
		}
	}
}

func TestStopTaskDiscardsQueuedJobs(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	task, err := s.CreateTask(ctx, "test hypothesis", 200)
	require.NoError(t, err)

	_, err = s.EnqueueJob(ctx, task.TaskID, model.PhaseExploration, model.JobFetchURL, `{"url":"https://example.com"}`)
	require.NoError(t, err)

	require.NoError(t, s.StopTask(ctx, task.TaskID))
	discarded, err := s.DiscardQueuedJobs(ctx, task.TaskID)
	require.NoError(t, err)
	require.Equal(t, 1, discarded)

	counts, err := s.JobCounts(ctx, task.TaskID, model.PhaseExploration)
	require.NoError(t, err)
	require.Equal(t, 0, counts.Queued)
}
