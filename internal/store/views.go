package store

import (
	"context"

	"github.com/lyralabs/evidence-runtime/internal/errors"
)

// View names recognized by QueryView, matching the minimum set required by
// spec.md §4.1. They are Go-side queries (viewQueries), not SQL views in
// the schema: query_sql's whitelist admits the names, but a query_sql
// statement that reads one fails with sqlite's "no such table" error.
const (
	ViewClaimEvidenceSummary = "v_claim_evidence_summary"
	ViewContradictions       = "v_contradictions"
	ViewUnsupportedClaims    = "v_unsupported_claims"
	ViewSourceImpact         = "v_source_impact"
	ViewEvidenceChain        = "v_evidence_chain"
	ViewReferenceCandidates  = "v_reference_candidates"
	ViewEvidenceTimeline     = "v_evidence_timeline"
	ViewClaimOrigins         = "v_claim_origins"
)

// viewQueries holds the read-only SQL projection behind each named view.
// Every query accepts task_id and limit/offset as the final two bind
// parameters so callers can paginate (spec §4.1: "all views carry an
// explicit row-limit parameter and are paginated").
var viewQueries = map[string]string{
	ViewClaimEvidenceSummary: `
		SELECT c.claim_id, c.text, c.adoption_status, c.bayesian_truth_confidence, c.exploration_score,
		       COUNT(DISTINCT CASE WHEN e.relation = 'SUPPORTS' THEN e.edge_id END) AS supports_count,
		       COUNT(DISTINCT CASE WHEN e.relation = 'REFUTES' THEN e.edge_id END) AS refutes_count,
		       COUNT(DISTINCT CASE WHEN e.relation = 'NEUTRAL' THEN e.edge_id END) AS neutral_count
		FROM claims c
		LEFT JOIN edges e ON e.target_type = 'claim' AND e.target_id = c.claim_id AND e.invalidated = 0
		WHERE c.task_id = ?
		GROUP BY c.claim_id
		ORDER BY c.claim_id
		LIMIT ? OFFSET ?`,

	ViewContradictions: `
		SELECT c.claim_id, c.text, c.bayesian_truth_confidence
		FROM claims c
		WHERE c.task_id = ?
		AND EXISTS (SELECT 1 FROM edges e WHERE e.target_type='claim' AND e.target_id=c.claim_id AND e.relation='SUPPORTS' AND e.invalidated=0)
		AND EXISTS (SELECT 1 FROM edges e WHERE e.target_type='claim' AND e.target_id=c.claim_id AND e.relation='REFUTES' AND e.invalidated=0)
		ORDER BY c.claim_id
		LIMIT ? OFFSET ?`,

	ViewUnsupportedClaims: `
		SELECT c.claim_id, c.text, c.adoption_status
		FROM claims c
		WHERE c.task_id = ?
		AND NOT EXISTS (SELECT 1 FROM edges e WHERE e.target_type='claim' AND e.target_id=c.claim_id AND e.relation='SUPPORTS' AND e.invalidated=0)
		ORDER BY c.claim_id
		LIMIT ? OFFSET ?`,

	ViewSourceImpact: `
		SELECT p.domain, COUNT(DISTINCT e.edge_id) AS edge_count,
		       SUM(CASE WHEN e.relation = 'SUPPORTS' THEN 1 ELSE 0 END) AS supports_count,
		       SUM(CASE WHEN e.relation = 'REFUTES' THEN 1 ELSE 0 END) AS refutes_count
		FROM edges e
		JOIN fragments f ON f.fragment_id = e.source_id AND e.source_type = 'fragment'
		JOIN pages p ON p.page_id = f.page_id
		JOIN claims c ON c.claim_id = e.target_id AND e.target_type = 'claim'
		WHERE c.task_id = ? AND e.invalidated = 0
		GROUP BY p.domain
		ORDER BY edge_count DESC
		LIMIT ? OFFSET ?`,

	ViewEvidenceChain: `
		SELECT e.edge_id, e.relation, e.source_type, e.source_id, e.target_type, e.target_id,
		       e.nli_edge_confidence, e.is_contradiction
		FROM edges e
		JOIN claims c ON c.claim_id = e.target_id AND e.target_type = 'claim'
		WHERE c.task_id = ? AND e.invalidated = 0
		ORDER BY e.created_at
		LIMIT ? OFFSET ?`,

	ViewReferenceCandidates: `
		SELECT edge_id AS citation_edge_id, candidate_url, candidate_doi, citing_page_id, citation_context
		FROM citation_candidates
		WHERE task_id = ? AND resolved = 0
		ORDER BY edge_id
		LIMIT ? OFFSET ?`,

	ViewEvidenceTimeline: `
		SELECT p.page_id, p.url, p.domain, p.fetched_at, p.canonical_id
		FROM pages p
		JOIN fragments f ON f.page_id = p.page_id
		JOIN edges e ON e.source_id = f.fragment_id AND e.source_type = 'fragment'
		JOIN claims c ON c.claim_id = e.target_id AND e.target_type = 'claim'
		WHERE c.task_id = ?
		GROUP BY p.page_id
		ORDER BY p.fetched_at
		LIMIT ? OFFSET ?`,

	ViewClaimOrigins: `
		SELECT c.claim_id, f.fragment_id, f.page_id, p.canonical_id, p.url
		FROM claims c
		JOIN edges e ON e.target_id = c.claim_id AND e.target_type = 'claim' AND e.relation = 'ORIGIN' AND e.invalidated = 0
		JOIN fragments f ON f.fragment_id = e.source_id AND e.source_type = 'fragment'
		JOIN pages p ON p.page_id = f.page_id
		WHERE c.task_id = ?
		ORDER BY c.claim_id
		LIMIT ? OFFSET ?`,
}

// AllowedTables is the query_sql whitelist: the named views plus the base
// tables of spec.md §3 (SPEC_FULL.md §12).
var AllowedTables = map[string]bool{
	ViewClaimEvidenceSummary: true,
	ViewContradictions:       true,
	ViewUnsupportedClaims:    true,
	ViewSourceImpact:         true,
	ViewEvidenceChain:        true,
	ViewReferenceCandidates:  true,
	ViewEvidenceTimeline:     true,
	ViewClaimOrigins:         true,
	"tasks":                  true,
	"pages":                   true,
	"fragments":               true,
	"claims":                  true,
	"edges":                   true,
	"works":                   true,
	"authors":                 true,
	"domains":                 true,
	"jobs":                    true,
	"citation_candidates":     true,
}

// QueryView reads a named view with pagination (spec §4.1).
func (s *Store) QueryView(ctx context.Context, name, taskID string, limit, offset int) ([]map[string]interface{}, error) {
	query, ok := viewQueries[name]
	if !ok {
		return nil, errors.InvalidArgumentErrorf("unsupported view: %s", name)
	}
	if limit <= 0 {
		return nil, errors.InvalidArgumentError("limit is required and must be > 0")
	}

	rows, err := s.db.QueryxContext(ctx, query, taskID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []map[string]interface{}
	for rows.Next() {
		row := make(map[string]interface{})
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		results = append(results, row)
	}
	return results, rows.Err()
}
