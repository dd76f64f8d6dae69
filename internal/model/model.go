// Package model defines the evidence-graph data model: tasks, pages,
// fragments, claims, works, authors, edges, domains, and jobs, along with
// the invariants their constructors enforce (spec §3).
package model

import "time"

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskActive  TaskStatus = "active"
	TaskStopped TaskStatus = "stopped"
)

// Task is the root of a research session. Hypothesis is immutable after creation.
type Task struct {
	TaskID          string     `db:"task_id"`
	Hypothesis      string     `db:"hypothesis"`
	CreatedAt       time.Time  `db:"created_at"`
	Status          TaskStatus `db:"status"`
	BudgetRemaining int        `db:"budget_remaining"` // absolute fetch-count budget; percent derived at read time
	BudgetTotal     int        `db:"budget_total"`
}

// BudgetRemainingPercent derives the percent-remaining view required by spec §3.
func (t *Task) BudgetRemainingPercent() float64 {
	if t.BudgetTotal <= 0 {
		return 0
	}
	pct := float64(t.BudgetRemaining) / float64(t.BudgetTotal) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// Page is a fetched document, globally deduplicated by canonical_id.
// A Page is never rewritten (invariant 5); re-fetching produces a new row
// only when content_hash differs.
type Page struct {
	PageID      string    `db:"page_id"`
	URL         string    `db:"url"`
	CanonicalID string    `db:"canonical_id"`
	Domain      string    `db:"domain"`
	Title       string    `db:"title"`
	FetchedAt   time.Time `db:"fetched_at"`
	ContentHash string    `db:"content_hash"`
	WorkRef     *string   `db:"work_ref"`
	Failed      bool      `db:"failed"`
	FailureKind string    `db:"failure_kind"`
}

// FragmentMaxLen is the hard cap on Fragment.Text (spec §3, boundary behavior
// in §8: "Fragment text truncated at 500 characters").
const FragmentMaxLen = 500

// Fragment is a contiguous span of page text; belongs to exactly one page.
type Fragment struct {
	FragmentID     string `db:"fragment_id"`
	PageID         string `db:"page_id"`
	HeadingContext string `db:"heading_context"`
	Text           string `db:"text"`
	Position       int    `db:"position"`
}

// AdoptionStatus tracks user curation of a claim (spec §3, §4.7 feedback()).
type AdoptionStatus string

const (
	AdoptionPending    AdoptionStatus = "pending"
	AdoptionAdopted    AdoptionStatus = "adopted"
	AdoptionNotAdopted AdoptionStatus = "not_adopted"
)

// DefaultPriorAlpha is the smoothing constant α in the Bayesian confidence
// formula (spec §4.4): bayesian_truth_confidence = (S + α·0.5) / (S + R + α).
const DefaultPriorAlpha = 1.0

// Claim is an extracted assertion, scoped to a task.
type Claim struct {
	ClaimID                 string         `db:"claim_id"`
	TaskID                  string         `db:"task_id"`
	Text                    string         `db:"text"`
	AdoptionStatus          AdoptionStatus `db:"adoption_status"`
	BayesianTruthConfidence float64        `db:"bayesian_truth_confidence"`
	ExplorationScore        float64        `db:"exploration_score"`
}

// NormalizedText applies the case-folded, whitespace-collapsed form used for
// within-task claim deduplication (spec §4.1: insert_claim).
func NormalizedText(text string) string {
	return normalizeClaimText(text)
}

// Work is a bibliographic record.
type Work struct {
	CanonicalID string  `db:"canonical_id"`
	DOI         *string `db:"doi"`
	Year        *int    `db:"year"`
	Venue       *string `db:"venue"`
}

// Author belongs to a Work's ordered author list.
type Author struct {
	CanonicalID string  `db:"canonical_id"` // Work.CanonicalID this author belongs to
	Position    int     `db:"position"`
	Name        string  `db:"name"`
	ORCID       *string `db:"orcid"`
}

// EdgeEndpointType discriminates which table an edge endpoint references.
type EdgeEndpointType string

const (
	EndpointFragment          EdgeEndpointType = "fragment"
	EndpointClaim             EdgeEndpointType = "claim"
	EndpointPage              EdgeEndpointType = "page"
	EndpointCitationCandidate EdgeEndpointType = "citation_candidate"
)

// Relation is the kind of edge in the evidence graph.
type Relation string

const (
	RelationOrigin   Relation = "ORIGIN"   // fragment -> claim, from extractor
	RelationSupports Relation = "SUPPORTS" // fragment -> claim, from NLI
	RelationRefutes  Relation = "REFUTES"  // fragment -> claim, from NLI
	RelationNeutral  Relation = "NEUTRAL"  // fragment -> claim, from NLI
	RelationCites    Relation = "CITES"    // page -> page|citation_candidate
)

// TrustLevel classifies a Domain's reliability for confidence weighting.
type TrustLevel string

const (
	TrustPrimary    TrustLevel = "PRIMARY"
	TrustGovernment TrustLevel = "GOVERNMENT"
	TrustAcademic   TrustLevel = "ACADEMIC"
	TrustTrusted    TrustLevel = "TRUSTED"
	TrustLow        TrustLevel = "LOW"
	TrustUnverified TrustLevel = "UNVERIFIED"
	TrustBlocked    TrustLevel = "BLOCKED"
)

// TrustWeight maps a trust level to its contribution weight w_trust in the
// Bayesian confidence formula (spec §4.4: "Let S = Σ supports_edges of
// (w_trust · nli_edge_confidence)"). The concrete values below are this
// module's own policy choice and are recorded only here, since spec.md
// names the factor but not its values.
var TrustWeight = map[TrustLevel]float64{
	TrustPrimary:    1.0,
	TrustGovernment: 1.0,
	TrustAcademic:   0.9,
	TrustTrusted:    0.75,
	TrustLow:        0.4,
	TrustUnverified: 0.6,
	TrustBlocked:    0.0,
}

// Edge connects two graph entities with a typed relation.
type Edge struct {
	EdgeID              string           `db:"edge_id"`
	SourceType          EdgeEndpointType `db:"source_type"`
	SourceID            string           `db:"source_id"`
	TargetType          EdgeEndpointType `db:"target_type"`
	TargetID            string           `db:"target_id"`
	Relation            Relation         `db:"relation"`
	NLIEdgeConfidence   *float64         `db:"nli_edge_confidence"`
	SourceTrustLevel    *TrustLevel      `db:"source_trust_level"`
	TargetTrustLevel    *TrustLevel      `db:"target_trust_level"`
	IsContradiction     bool             `db:"is_contradiction"`
	IsAcademic          bool             `db:"is_academic"`
	IsInfluential       bool             `db:"is_influential"`
	CitationContext     *string          `db:"citation_context"`
	CreatedAt           time.Time        `db:"created_at"`
	Invalidated         bool             `db:"invalidated"` // soft-delete, spec.md §9 Open Question resolution
}

// AuthState is the current authentication status of a Domain.
type AuthState string

const (
	AuthOK      AuthState = "ok"
	AuthBlocked AuthState = "blocked"
)

// Domain tracks per-domain fetch policy state.
type Domain struct {
	Domain               string     `db:"domain"`
	TrustLevel           TrustLevel `db:"trust_level"`
	WaybackSuccessCount  int        `db:"wayback_success_count"`
	WaybackFailureCount  int        `db:"wayback_failure_count"`
	AuthState            AuthState  `db:"auth_state"`
	ConsecutiveBlocks     int       `db:"consecutive_blocks"`
	ConsecutiveSuccesses  int       `db:"consecutive_successes"`
}

// JobPhase is one of the three scheduler phases (spec §4.6).
type JobPhase string

const (
	PhaseExploration JobPhase = "exploration"
	PhaseVerification JobPhase = "verification"
	PhaseCitation    JobPhase = "citation"
)

// JobKind names the concrete unit of work within a phase.
type JobKind string

const (
	JobFetchSERP      JobKind = "fetch_serp"
	JobFetchURL       JobKind = "fetch_url"
	JobFetchDOI       JobKind = "fetch_doi"
	JobExtract        JobKind = "extract"
	JobVerifyClaim    JobKind = "verify_claim"
	JobParseCitations JobKind = "parse_citations"
)

// JobState is the lifecycle state of a Job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Job is one unit of scheduled work.
type Job struct {
	JobID     string   `db:"job_id"`
	TaskID    string   `db:"task_id"`
	Phase     JobPhase `db:"phase"`
	Kind      JobKind  `db:"kind"`
	Payload   string   `db:"payload"` // JSON-encoded, kind-specific
	Attempts  int      `db:"attempts"`
	State     JobState `db:"state"`
	Error     *string  `db:"error"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// TargetKind discriminates the tagged sum type Target = {Query, Url, Doi}
// (spec §4.2, §9: "target is a tagged sum type").
type TargetKind string

const (
	TargetQuery TargetKind = "query"
	TargetURL   TargetKind = "url"
	TargetDOI   TargetKind = "doi"
)

// TargetReason records why a URL/DOI target was queued.
type TargetReason string

const (
	ReasonManual        TargetReason = "manual"
	ReasonCitationChase TargetReason = "citation_chase"
)

// Target is one item accepted by queue_targets; exactly one of Text/URL/DOI
// is populated according to Kind.
type Target struct {
	Kind   TargetKind   `json:"kind"`
	Text   string       `json:"text,omitempty"`
	URL    string       `json:"url,omitempty"`
	DOI    string       `json:"doi,omitempty"`
	Reason TargetReason `json:"reason,omitempty"`
}

// CitationCandidate is a reference an ingestor could not resolve to an
// already-fetched page (spec §4.5).
type CitationCandidate struct {
	EdgeID          string  `db:"edge_id"`
	TaskID          string  `db:"task_id"`
	CandidateURL    *string `db:"candidate_url"`
	CandidateDOI    *string `db:"candidate_doi"`
	CitingPageID    string  `db:"citing_page_id"`
	CitationContext *string `db:"citation_context"`
	Resolved        bool    `db:"resolved"`
}
