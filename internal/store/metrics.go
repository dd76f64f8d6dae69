package store

import (
	"context"

	"github.com/lyralabs/evidence-runtime/internal/model"
)

// TaskMetrics is the full-detail get_status payload (spec §4.7: "in full
// mode per-query metrics {harvest_rate, satisfaction_score,
// has_primary_source}"). The runtime does not track per-query lineage
// separately from the rest of the exploration queue, so these are computed
// task-wide rather than per originating query target.
type TaskMetrics struct {
	HarvestRate      float64 `db:"harvest_rate"`
	SatisfactionScore float64 `db:"satisfaction_score"`
	HasPrimarySource bool    `db:"has_primary_source"`
}

// TaskMetrics reports harvest_rate (fraction of completed exploration jobs
// against all terminal exploration jobs), satisfaction_score (mean
// bayesian_truth_confidence across adopted claims), and has_primary_source
// (whether any page supplying an ORIGIN fragment for one of the task's
// claims has a domain with PRIMARY/GOVERNMENT/ACADEMIC trust).
func (s *Store) TaskMetrics(ctx context.Context, taskID string) (*TaskMetrics, error) {
	var completed, failed int
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN state = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = 'failed' THEN 1 ELSE 0 END), 0)
		FROM jobs WHERE task_id = ? AND phase = 'exploration'`, taskID).Scan(&completed, &failed)
	if err != nil {
		return nil, err
	}

	m := &TaskMetrics{}
	if total := completed + failed; total > 0 {
		m.HarvestRate = float64(completed) / float64(total)
	}

	var avgConf sql64
	err = s.db.QueryRowContext(ctx, `
		SELECT AVG(bayesian_truth_confidence) FROM claims
		WHERE task_id = ? AND adoption_status != 'not_adopted'`, taskID).Scan(&avgConf)
	if err != nil {
		return nil, err
	}
	m.SatisfactionScore = float64(avgConf)

	var primaryCount int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT p.page_id) FROM pages p
		JOIN fragments f ON f.page_id = p.page_id
		JOIN edges e ON e.source_type = 'fragment' AND e.source_id = f.fragment_id AND e.relation = 'ORIGIN'
		JOIN claims c ON c.claim_id = e.target_id
		JOIN domains d ON d.domain = p.domain
		WHERE c.task_id = ? AND d.trust_level IN (?, ?, ?)`,
		taskID, model.TrustPrimary, model.TrustGovernment, model.TrustAcademic).Scan(&primaryCount)
	if err != nil {
		return nil, err
	}
	m.HasPrimarySource = primaryCount > 0

	return m, nil
}

// sql64 scans a nullable AVG() result as 0 instead of erroring on NULL.
type sql64 float64

func (f *sql64) Scan(src interface{}) error {
	if src == nil {
		*f = 0
		return nil
	}
	switch v := src.(type) {
	case float64:
		*f = sql64(v)
	case int64:
		*f = sql64(v)
	}
	return nil
}
