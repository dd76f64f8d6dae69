// Package store implements the Evidence Store (C1): the single on-disk
// relational store (sqlite via jmoiron/sqlx, per spec.md §6), its named
// views, and the claim-confidence update rule. Grounded on
// internal/storage/sqlite.go's connection/schema/WAL-mode conventions,
// generalized from CodeRisk's repository/commit/file tables to the
// evidence-graph tables of spec.md §3.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/lyralabs/evidence-runtime/internal/errors"
	"github.com/lyralabs/evidence-runtime/internal/model"
)

// ErrNotFound is returned when a row looked up by id does not exist.
var ErrNotFound = sql.ErrNoRows

// Store is the Evidence Store: typed persistent storage with named views.
// Mutations that must be serialized per-claim (confidence recomputation)
// take claimLocks; everything else relies on sqlite's own transaction
// isolation, matching the "write conflicts retry under serializable
// isolation" policy of spec.md §4.1.
type Store struct {
	db     *sqlx.DB
	logger *logrus.Logger

	claimLocksMu sync.Mutex
	claimLocks   map[string]*sync.Mutex
}

// Open connects to (or creates) the sqlite database at path and applies schema.
func Open(path string, logger *logrus.Logger) (*Store, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("connect to sqlite: %w", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	s := &Store{
		db:         db,
		logger:     logger,
		claimLocks: make(map[string]*sync.Mutex),
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) claimLock(claimID string) *sync.Mutex {
	s.claimLocksMu.Lock()
	defer s.claimLocksMu.Unlock()
	lock, ok := s.claimLocks[claimID]
	if !ok {
		lock = &sync.Mutex{}
		s.claimLocks[claimID] = lock
	}
	return lock
}

// ContentHash computes the content_hash used for Page dedup (spec.md §3
// invariant 5: "re-fetching produces a new Page only if content_hash differs").
func ContentHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// -- Tasks -------------------------------------------------------------

// CreateTask inserts a new task; create_task(h) is unique per call (spec §8).
func (s *Store) CreateTask(ctx context.Context, hypothesis string, defaultBudget int) (*model.Task, error) {
	if hypothesis == "" {
		return nil, errors.InvalidArgumentError("hypothesis must not be empty")
	}
	t := &model.Task{
		TaskID:          uuid.NewString(),
		Hypothesis:      hypothesis,
		Status:          model.TaskActive,
		BudgetRemaining: defaultBudget,
		BudgetTotal:     defaultBudget,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (task_id, hypothesis, created_at, status, budget_remaining, budget_total)
		VALUES (?, ?, CURRENT_TIMESTAMP, ?, ?, ?)`,
		t.TaskID, t.Hypothesis, t.Status, t.BudgetRemaining, t.BudgetTotal)
	if err != nil {
		return nil, errors.Wrap(err, errors.ConstraintViolation, errors.SeverityHigh, "create task")
	}
	if err := s.db.GetContext(ctx, &t.CreatedAt, `SELECT created_at FROM tasks WHERE task_id = ?`, t.TaskID); err != nil {
		return nil, err
	}
	return t, nil
}

// GetTask fetches a task by id.
func (s *Store) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	var t model.Task
	err := s.db.GetContext(ctx, &t, `SELECT * FROM tasks WHERE task_id = ?`, taskID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundError("task", taskID)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// StopTask transitions a task to stopped. Idempotent (spec §4.6).
func (s *Store) StopTask(ctx context.Context, taskID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = ? WHERE task_id = ?`, model.TaskStopped, taskID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errors.NotFoundError("task", taskID)
	}
	return nil
}

// DecrementBudget reduces a task's remaining budget by n (floor 0), returning
// the remaining budget. Called by the Task API once per completed fetch
// (spec §4.6).
func (s *Store) DecrementBudget(ctx context.Context, taskID string, n int) (int, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET budget_remaining = MAX(0, budget_remaining - ?) WHERE task_id = ?`, n, taskID)
	if err != nil {
		return 0, err
	}
	var remaining int
	if err := s.db.GetContext(ctx, &remaining, `SELECT budget_remaining FROM tasks WHERE task_id = ?`, taskID); err != nil {
		return 0, err
	}
	return remaining, nil
}

// -- Pages ---------------------------------------------------------------

// UpsertPage is idempotent on (canonical_id, content_hash); returns the
// existing page_id on duplicate (spec §4.1).
func (s *Store) UpsertPage(ctx context.Context, p *model.Page) (string, error) {
	var existing string
	err := s.db.GetContext(ctx, &existing,
		`SELECT page_id FROM pages WHERE canonical_id = ? AND content_hash = ?`,
		p.CanonicalID, p.ContentHash)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}

	if _, err := s.GetOrCreateDomain(ctx, p.Domain); err != nil {
		return "", err
	}
	if p.PageID == "" {
		p.PageID = uuid.NewString()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pages (page_id, url, canonical_id, domain, title, fetched_at, content_hash, work_ref, failed, failure_kind)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.PageID, p.URL, p.CanonicalID, p.Domain, p.Title, p.FetchedAt, p.ContentHash, p.WorkRef, p.Failed, p.FailureKind)
	if err != nil {
		return "", errors.Wrap(err, errors.ConstraintViolation, errors.SeverityHigh, "upsert page")
	}
	return p.PageID, nil
}

// FindPageByCanonicalID returns the most recently fetched page for a
// canonical_id, or ErrNotFound if none has been fetched yet. Used by the
// Citation Ingestor to decide whether a reference resolves to an
// already-known page (spec §4.5).
func (s *Store) FindPageByCanonicalID(ctx context.Context, canonicalID string) (*model.Page, error) {
	var p model.Page
	err := s.db.GetContext(ctx, &p, `
		SELECT * FROM pages WHERE canonical_id = ? ORDER BY fetched_at DESC LIMIT 1`, canonicalID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return &p, err
}

// GetPage fetches a page by id.
func (s *Store) GetPage(ctx context.Context, pageID string) (*model.Page, error) {
	var p model.Page
	err := s.db.GetContext(ctx, &p, `SELECT * FROM pages WHERE page_id = ?`, pageID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundError("page", pageID)
	}
	return &p, err
}

// -- Fragments -------------------------------------------------------------

// InsertFragments writes all fragments for a page atomically (spec §4.1).
func (s *Store) InsertFragments(ctx context.Context, pageID string, fragments []*model.Fragment) error {
	if len(fragments) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, f := range fragments {
		if f.FragmentID == "" {
			f.FragmentID = uuid.NewString()
		}
		f.Text = model.TruncateFragment(f.Text)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO fragments (fragment_id, page_id, heading_context, text, position)
			VALUES (?, ?, ?, ?, ?)`,
			f.FragmentID, pageID, f.HeadingContext, f.Text, f.Position)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// FragmentsByPage returns all fragments belonging to a page.
func (s *Store) FragmentsByPage(ctx context.Context, pageID string) ([]*model.Fragment, error) {
	var frags []*model.Fragment
	err := s.db.SelectContext(ctx, &frags, `SELECT * FROM fragments WHERE page_id = ? ORDER BY position`, pageID)
	return frags, err
}

// GetFragment fetches a single fragment by id.
func (s *Store) GetFragment(ctx context.Context, fragmentID string) (*model.Fragment, error) {
	var f model.Fragment
	err := s.db.GetContext(ctx, &f, `SELECT * FROM fragments WHERE fragment_id = ?`, fragmentID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundError("fragment", fragmentID)
	}
	return &f, err
}

// FragmentDomainTrust resolves a fragment's page domain and current trust
// level, used by the NLI Verifier to stamp an edge's source_trust_level
// (spec §4.4).
func (s *Store) FragmentDomainTrust(ctx context.Context, fragmentID string) (domain string, trust model.TrustLevel, err error) {
	row := struct {
		Domain     string         `db:"domain"`
		TrustLevel model.TrustLevel `db:"trust_level"`
	}{}
	err = s.db.GetContext(ctx, &row, `
		SELECT p.domain, d.trust_level
		FROM fragments f
		JOIN pages p ON p.page_id = f.page_id
		JOIN domains d ON d.domain = p.domain
		WHERE f.fragment_id = ?`, fragmentID)
	if err != nil {
		return "", "", err
	}
	return row.Domain, row.TrustLevel, nil
}

// -- Claims ----------------------------------------------------------------

// InsertClaim deduplicates within a task by normalized text, attaches an
// ORIGIN edge, and returns the claim_id (spec §4.1). Returns wasNew=false
// when an existing claim was reused.
func (s *Store) InsertClaim(ctx context.Context, taskID, text, originFragmentID string) (claimID string, wasNew bool, err error) {
	normalized := model.NormalizedText(text)

	var existing string
	err = s.db.GetContext(ctx, &existing, `SELECT claim_id FROM claims WHERE task_id = ? AND normalized_text = ?`, taskID, normalized)
	if err == nil {
		claimID = existing
	} else if err == sql.ErrNoRows {
		claimID = uuid.NewString()
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO claims (claim_id, task_id, text, normalized_text, adoption_status, bayesian_truth_confidence, exploration_score)
			VALUES (?, ?, ?, ?, 'pending', 0.5, 0.5)`,
			claimID, taskID, text, normalized)
		if err != nil {
			return "", false, errors.Wrap(err, errors.ConstraintViolation, errors.SeverityHigh, "insert claim")
		}
		wasNew = true
	} else {
		return "", false, err
	}

	edge := &model.Edge{
		SourceType: model.EndpointFragment,
		SourceID:   originFragmentID,
		TargetType: model.EndpointClaim,
		TargetID:   claimID,
		Relation:   model.RelationOrigin,
	}
	if _, err := s.InsertEdge(ctx, edge); err != nil {
		return "", false, err
	}

	return claimID, wasNew, nil
}

// GetClaim fetches a claim by id.
func (s *Store) GetClaim(ctx context.Context, claimID string) (*model.Claim, error) {
	var c model.Claim
	err := s.db.GetContext(ctx, &c, `SELECT * FROM claims WHERE claim_id = ?`, claimID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundError("claim", claimID)
	}
	return &c, err
}

// originCanonicalIDs returns the canonical_ids of every page whose fragment
// is an ORIGIN source for the given claim (spec §3 invariant 2).
func (s *Store) originCanonicalIDs(ctx context.Context, claimID string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT p.canonical_id
		FROM edges e
		JOIN fragments f ON f.fragment_id = e.source_id AND e.source_type = 'fragment'
		JOIN pages p ON p.page_id = f.page_id
		WHERE e.relation = 'ORIGIN' AND e.target_type = 'claim' AND e.target_id = ? AND e.invalidated = 0`,
		claimID)
	return ids, err
}

// -- Edges -------------------------------------------------------------------

// InsertEdge rejects SUPPORTS/REFUTES edges that violate the independence
// invariant (spec §3 invariant 2, §8 property 1): the source fragment's
// page canonical_id must differ from every ORIGIN page canonical_id of the
// target claim.
func (s *Store) InsertEdge(ctx context.Context, e *model.Edge) (string, error) {
	if e.Relation == model.RelationSupports || e.Relation == model.RelationRefutes || e.Relation == model.RelationNeutral {
		if e.TargetType != model.EndpointClaim {
			return "", errors.ConstraintViolationError("SUPPORTS/REFUTES/NEUTRAL edges must target a claim")
		}
		originIDs, err := s.originCanonicalIDs(ctx, e.TargetID)
		if err != nil {
			return "", err
		}
		if e.SourceType == model.EndpointFragment {
			var sourceCanonical string
			err := s.db.GetContext(ctx, &sourceCanonical, `
				SELECT p.canonical_id FROM fragments f JOIN pages p ON p.page_id = f.page_id WHERE f.fragment_id = ?`,
				e.SourceID)
			if err != nil {
				return "", err
			}
			for _, oid := range originIDs {
				if oid == sourceCanonical && (e.Relation == model.RelationSupports || e.Relation == model.RelationRefutes) {
					return "", errors.ConstraintViolationError("edge violates independence invariant: source shares canonical_id with an ORIGIN page")
				}
			}
		}
	}

	if e.EdgeID == "" {
		e.EdgeID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO edges (edge_id, source_type, source_id, target_type, target_id, relation,
			nli_edge_confidence, source_trust_level, target_trust_level, is_contradiction,
			is_academic, is_influential, citation_context, created_at, invalidated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, 0)`,
		e.EdgeID, e.SourceType, e.SourceID, e.TargetType, e.TargetID, e.Relation,
		e.NLIEdgeConfidence, e.SourceTrustLevel, e.TargetTrustLevel, e.IsContradiction,
		e.IsAcademic, e.IsInfluential, e.CitationContext)
	if err != nil {
		return "", errors.Wrap(err, errors.ConstraintViolation, errors.SeverityHigh, "insert edge")
	}
	return e.EdgeID, nil
}

// InvalidateEdge soft-deletes an edge: kept for audit, excluded from
// confidence recomputation (SPEC_FULL.md §12 re-verification resolution).
func (s *Store) InvalidateEdge(ctx context.Context, edgeID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE edges SET invalidated = 1 WHERE edge_id = ?`, edgeID)
	return err
}

// EdgesForClaim returns all non-invalidated SUPPORTS/REFUTES/NEUTRAL edges
// targeting a claim.
func (s *Store) EdgesForClaim(ctx context.Context, claimID string) ([]*model.Edge, error) {
	var edges []*model.Edge
	err := s.db.SelectContext(ctx, &edges, `
		SELECT * FROM edges
		WHERE target_type = 'claim' AND target_id = ? AND invalidated = 0
		AND relation IN ('SUPPORTS', 'REFUTES', 'NEUTRAL')`, claimID)
	return edges, err
}

// RecomputeClaimConfidence recomputes bayesian_truth_confidence and
// exploration_score for a claim from its current non-invalidated
// SUPPORTS/REFUTES edges (spec §4.4). Serialized per-claim so that
// confidence reads reflect a consistent aggregation of committed edges
// (spec §5: "Ordering guarantees").
func (s *Store) RecomputeClaimConfidence(ctx context.Context, claimID string) error {
	lock := s.claimLock(claimID)
	lock.Lock()
	defer lock.Unlock()

	edges, err := s.EdgesForClaim(ctx, claimID)
	if err != nil {
		return err
	}

	var support, refute float64
	supportsCount, refutesCount := 0, 0
	for _, e := range edges {
		if e.NLIEdgeConfidence == nil {
			continue
		}
		weight := 1.0
		if e.SourceTrustLevel != nil {
			if w, ok := model.TrustWeight[*e.SourceTrustLevel]; ok {
				weight = w
			}
		}
		contribution := weight * (*e.NLIEdgeConfidence)
		switch e.Relation {
		case model.RelationSupports:
			support += contribution
			supportsCount++
		case model.RelationRefutes:
			refute += contribution
			refutesCount++
		}
	}

	const alpha = model.DefaultPriorAlpha
	confidence := (support + alpha*0.5) / (support + refute + alpha)

	var exploration float64
	if support+refute == 0 {
		exploration = 0.5
	} else {
		exploration = support / (support + refute)
	}

	isContradiction := supportsCount > 0 && refutesCount > 0

	_, err = s.db.ExecContext(ctx, `
		UPDATE claims SET bayesian_truth_confidence = ?, exploration_score = ? WHERE claim_id = ?`,
		confidence, exploration, claimID)
	if err != nil {
		return err
	}

	if isContradiction {
		_, err = s.db.ExecContext(ctx, `
			UPDATE edges SET is_contradiction = 1
			WHERE target_type = 'claim' AND target_id = ? AND relation IN ('SUPPORTS', 'REFUTES') AND invalidated = 0`,
			claimID)
		if err != nil {
			return err
		}
	}

	return nil
}

// ReverifyOnNewOrigin implements the re-verification resolution of
// SPEC_FULL.md §12: when a claim gains a new ORIGIN edge, any existing
// SUPPORTS/REFUTES/NEUTRAL edge whose source page's canonical_id now
// collides with the new ORIGIN page is invalidated and confidence is
// recomputed.
func (s *Store) ReverifyOnNewOrigin(ctx context.Context, claimID, newOriginPageCanonicalID string) error {
	var staleEdgeIDs []string
	err := s.db.SelectContext(ctx, &staleEdgeIDs, `
		SELECT e.edge_id
		FROM edges e
		JOIN fragments f ON f.fragment_id = e.source_id AND e.source_type = 'fragment'
		JOIN pages p ON p.page_id = f.page_id
		WHERE e.target_type = 'claim' AND e.target_id = ?
		AND e.relation IN ('SUPPORTS', 'REFUTES', 'NEUTRAL')
		AND e.invalidated = 0
		AND p.canonical_id = ?`, claimID, newOriginPageCanonicalID)
	if err != nil {
		return err
	}
	for _, edgeID := range staleEdgeIDs {
		if err := s.InvalidateEdge(ctx, edgeID); err != nil {
			return err
		}
	}
	if len(staleEdgeIDs) > 0 {
		return s.RecomputeClaimConfidence(ctx, claimID)
	}
	return nil
}
