package store

// schema is applied at startup; every statement is idempotent and additive,
// matching the migration ordering rule of spec.md §6 ("each is idempotent
// and additive; downgrade is not supported"). Indexes follow spec.md §6
// exactly: edges(relation), edges(is_contradiction) partial,
// edges(relation, source_trust_level, target_trust_level), claims(task_id),
// pages(canonical_id).
const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	task_id TEXT PRIMARY KEY,
	hypothesis TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	budget_remaining INTEGER NOT NULL,
	budget_total INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS domains (
	domain TEXT PRIMARY KEY,
	trust_level TEXT NOT NULL DEFAULT 'UNVERIFIED',
	wayback_success_count INTEGER NOT NULL DEFAULT 0,
	wayback_failure_count INTEGER NOT NULL DEFAULT 0,
	auth_state TEXT NOT NULL DEFAULT 'ok',
	consecutive_blocks INTEGER NOT NULL DEFAULT 0,
	consecutive_successes INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS works (
	canonical_id TEXT PRIMARY KEY,
	doi TEXT,
	year INTEGER,
	venue TEXT
);

CREATE TABLE IF NOT EXISTS authors (
	canonical_id TEXT NOT NULL REFERENCES works(canonical_id),
	position INTEGER NOT NULL,
	name TEXT NOT NULL,
	orcid TEXT,
	PRIMARY KEY (canonical_id, position)
);

CREATE TABLE IF NOT EXISTS pages (
	page_id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	canonical_id TEXT NOT NULL,
	domain TEXT NOT NULL,
	title TEXT,
	fetched_at DATETIME NOT NULL,
	content_hash TEXT NOT NULL,
	work_ref TEXT,
	failed INTEGER NOT NULL DEFAULT 0,
	failure_kind TEXT NOT NULL DEFAULT '',
	UNIQUE (canonical_id, content_hash)
);

CREATE INDEX IF NOT EXISTS idx_pages_canonical_id ON pages(canonical_id);

CREATE TABLE IF NOT EXISTS fragments (
	fragment_id TEXT PRIMARY KEY,
	page_id TEXT NOT NULL REFERENCES pages(page_id),
	heading_context TEXT NOT NULL DEFAULT '',
	text TEXT NOT NULL,
	position INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fragments_page ON fragments(page_id);

CREATE TABLE IF NOT EXISTS claims (
	claim_id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL REFERENCES tasks(task_id),
	text TEXT NOT NULL,
	normalized_text TEXT NOT NULL,
	adoption_status TEXT NOT NULL DEFAULT 'pending',
	bayesian_truth_confidence REAL NOT NULL DEFAULT 0.5,
	exploration_score REAL NOT NULL DEFAULT 0.5,
	UNIQUE (task_id, normalized_text)
);

CREATE INDEX IF NOT EXISTS idx_claims_task_id ON claims(task_id);

CREATE TABLE IF NOT EXISTS edges (
	edge_id TEXT PRIMARY KEY,
	source_type TEXT NOT NULL,
	source_id TEXT NOT NULL,
	target_type TEXT NOT NULL,
	target_id TEXT NOT NULL,
	relation TEXT NOT NULL,
	nli_edge_confidence REAL,
	source_trust_level TEXT,
	target_trust_level TEXT,
	is_contradiction INTEGER NOT NULL DEFAULT 0,
	is_academic INTEGER NOT NULL DEFAULT 0,
	is_influential INTEGER NOT NULL DEFAULT 0,
	citation_context TEXT,
	created_at DATETIME NOT NULL,
	invalidated INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_edges_relation ON edges(relation);
CREATE INDEX IF NOT EXISTS idx_edges_contradiction ON edges(is_contradiction) WHERE is_contradiction = 1;
CREATE INDEX IF NOT EXISTS idx_edges_relation_trust ON edges(relation, source_trust_level, target_trust_level);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_type, target_id);
CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_type, source_id);

CREATE TABLE IF NOT EXISTS citation_candidates (
	edge_id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	candidate_url TEXT,
	candidate_doi TEXT,
	citing_page_id TEXT NOT NULL,
	citation_context TEXT,
	resolved INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_citation_candidates_task ON citation_candidates(task_id);

CREATE TABLE IF NOT EXISTS jobs (
	job_id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL REFERENCES tasks(task_id),
	phase TEXT NOT NULL,
	kind TEXT NOT NULL,
	payload TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	state TEXT NOT NULL DEFAULT 'queued',
	error TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_task_phase_state ON jobs(task_id, phase, state);

CREATE TABLE IF NOT EXISTS auth_queue (
	task_id TEXT NOT NULL,
	domain TEXT NOT NULL,
	flagged_at DATETIME NOT NULL,
	PRIMARY KEY (task_id, domain)
);

CREATE TABLE IF NOT EXISTS feedback_log (
	feedback_id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	target_id TEXT NOT NULL,
	note TEXT,
	created_at DATETIME NOT NULL
);
`
