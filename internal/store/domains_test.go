package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyralabs/evidence-runtime/internal/model"
)

func TestGetOrCreateDomainSeedsWellKnownTrustLevels(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	gov, err := s.GetOrCreateDomain(ctx, "data.census.gov")
	require.NoError(t, err)
	assert.Equal(t, model.TrustGovernment, gov.TrustLevel)

	edu, err := s.GetOrCreateDomain(ctx, "cs.stanford.edu")
	require.NoError(t, err)
	assert.Equal(t, model.TrustAcademic, edu.TrustLevel)

	arxiv, err := s.GetOrCreateDomain(ctx, "arxiv.org")
	require.NoError(t, err)
	assert.Equal(t, model.TrustAcademic, arxiv.TrustLevel)

	unknown, err := s.GetOrCreateDomain(ctx, "some-blog.example")
	require.NoError(t, err)
	assert.Equal(t, model.TrustUnverified, unknown.TrustLevel)
}

func TestGetOrCreateDomainIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	first, err := s.GetOrCreateDomain(ctx, "example.com")
	require.NoError(t, err)
	second, err := s.GetOrCreateDomain(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, first.TrustLevel, second.TrustLevel)
}

func TestMarkAuthBlockedDemotesTrustAfterConsecutiveBlocks(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.MarkAuthBlocked(ctx, "paywalled.example"))
	mid, err := s.GetOrCreateDomain(ctx, "paywalled.example")
	require.NoError(t, err)
	assert.NotEqual(t, model.TrustLow, mid.TrustLevel, "a single block must not yet demote")

	require.NoError(t, s.MarkAuthBlocked(ctx, "paywalled.example"))
	demoted, err := s.GetOrCreateDomain(ctx, "paywalled.example")
	require.NoError(t, err)
	assert.Equal(t, model.TrustLow, demoted.TrustLevel, "two consecutive blocks must demote to LOW")

	blocked, err := s.IsDomainBlocked(ctx, "paywalled.example")
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestMarkFetchSuccessPromotesAfterFiveConsecutiveSuccesses(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for i := 0; i < 4; i++ {
		require.NoError(t, s.MarkFetchSuccess(ctx, "unverified.example"))
	}
	mid, err := s.GetOrCreateDomain(ctx, "unverified.example")
	require.NoError(t, err)
	assert.Equal(t, model.TrustUnverified, mid.TrustLevel, "promotion requires 5 consecutive successes, not 4")

	require.NoError(t, s.MarkFetchSuccess(ctx, "unverified.example"))
	promoted, err := s.GetOrCreateDomain(ctx, "unverified.example")
	require.NoError(t, err)
	assert.Equal(t, model.TrustTrusted, promoted.TrustLevel)
}

func TestMarkFetchSuccessResetsConsecutiveBlocks(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.MarkAuthBlocked(ctx, "flaky.example"))
	require.NoError(t, s.MarkFetchSuccess(ctx, "flaky.example"))
	require.NoError(t, s.MarkAuthBlocked(ctx, "flaky.example"))

	d, err := s.GetOrCreateDomain(ctx, "flaky.example")
	require.NoError(t, err)
	assert.NotEqual(t, model.TrustLow, d.TrustLevel, "a reset consecutive-blocks count must not immediately re-demote")
}

func TestResolveAuthClearsBlockAndDrainsQueue(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	task, err := s.CreateTask(ctx, "hypothesis", 200)
	require.NoError(t, err)
	require.NoError(t, s.MarkAuthBlocked(ctx, "paywalled.example"))

	entries, err := s.GetAuthQueue(ctx, task.TaskID)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, s.ResolveAuth(ctx, "paywalled.example"))

	blocked, err := s.IsDomainBlocked(ctx, "paywalled.example")
	require.NoError(t, err)
	assert.False(t, blocked)

	entries, err = s.GetAuthQueue(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEnqueueAuthBlockFansOutToAllActiveTasks(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	taskA, err := s.CreateTask(ctx, "hypothesis a", 200)
	require.NoError(t, err)
	taskB, err := s.CreateTask(ctx, "hypothesis b", 200)
	require.NoError(t, err)

	require.NoError(t, s.EnqueueAuthBlock(ctx, "shared.example"))

	countA, err := s.PendingAuthCount(ctx, taskA.TaskID)
	require.NoError(t, err)
	countB, err := s.PendingAuthCount(ctx, taskB.TaskID)
	require.NoError(t, err)
	assert.Equal(t, 1, countA)
	assert.Equal(t, 1, countB)
}
