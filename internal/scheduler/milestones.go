package scheduler

import "context"

// Milestones summarizes phase-queue state for get_status (spec §4.6).
type Milestones struct {
	TargetQueueDrained   bool
	NLIVerificationDone  bool
	CitationChaseReady   bool
	WaitingFor           []string
}

// ComputeMilestones derives the three named milestones for a task
// (spec §4.6's exact boolean definitions).
func (sc *Scheduler) ComputeMilestones(ctx context.Context, taskID string) (*Milestones, error) {
	exploration, err := sc.store.JobCounts(ctx, taskID, "exploration")
	if err != nil {
		return nil, err
	}
	verification, err := sc.store.JobCounts(ctx, taskID, "verification")
	if err != nil {
		return nil, err
	}
	citationCounts, err := sc.store.JobCounts(ctx, taskID, "citation")
	if err != nil {
		return nil, err
	}
	pendingAuth, err := sc.store.PendingAuthCount(ctx, taskID)
	if err != nil {
		return nil, err
	}
	unverified, err := sc.store.ClaimsWithoutAnyVerificationEdge(ctx, taskID)
	if err != nil {
		return nil, err
	}

	m := &Milestones{}
	m.TargetQueueDrained = exploration.Queued == 0 && exploration.Running == 0
	m.NLIVerificationDone = verification.Queued == 0 && verification.Running == 0 && len(unverified) == 0
	m.CitationChaseReady = m.TargetQueueDrained && citationCounts.Queued == 0 && citationCounts.Running == 0 && pendingAuth == 0

	if !m.TargetQueueDrained {
		m.WaitingFor = append(m.WaitingFor, "exploration")
	}
	if !m.NLIVerificationDone {
		m.WaitingFor = append(m.WaitingFor, "verification")
	}
	if !m.CitationChaseReady {
		m.WaitingFor = append(m.WaitingFor, "citation")
	}
	if pendingAuth > 0 {
		m.WaitingFor = append(m.WaitingFor, "auth_resolution")
	}

	return m, nil
}
