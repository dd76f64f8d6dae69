package store

import (
	"context"
	"database/sql"

	"github.com/lyralabs/evidence-runtime/internal/errors"
	"github.com/lyralabs/evidence-runtime/internal/model"
)

// UpsertWork records bibliographic metadata resolved by the Extractor or
// Citation Ingestor (spec §3's Work/Author entities). Idempotent on
// canonical_id.
func (s *Store) UpsertWork(ctx context.Context, w *model.Work) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO works (canonical_id, doi, year, venue) VALUES (?, ?, ?, ?)
		ON CONFLICT(canonical_id) DO UPDATE SET doi = excluded.doi, year = excluded.year, venue = excluded.venue`,
		w.CanonicalID, w.DOI, w.Year, w.Venue)
	return err
}

// GetWork fetches a work by canonical id.
func (s *Store) GetWork(ctx context.Context, canonicalID string) (*model.Work, error) {
	var w model.Work
	err := s.db.GetContext(ctx, &w, `SELECT * FROM works WHERE canonical_id = ?`, canonicalID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundError("work", canonicalID)
	}
	return &w, err
}

// ReplaceAuthors overwrites the author list of a work in position order.
func (s *Store) ReplaceAuthors(ctx context.Context, canonicalID string, authors []*model.Author) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM authors WHERE canonical_id = ?`, canonicalID); err != nil {
		return err
	}
	for _, a := range authors {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO authors (canonical_id, position, name, orcid) VALUES (?, ?, ?, ?)`,
			canonicalID, a.Position, a.Name, a.ORCID)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AuthorsByWork returns a work's authors ordered by position.
func (s *Store) AuthorsByWork(ctx context.Context, canonicalID string) ([]*model.Author, error) {
	var authors []*model.Author
	err := s.db.SelectContext(ctx, &authors, `SELECT * FROM authors WHERE canonical_id = ? ORDER BY position`, canonicalID)
	return authors, err
}

// -- Citation candidates ------------------------------------------------

// InsertCitationCandidate records an unresolved reference parsed by the
// Citation Ingestor (spec §4.5): a CITES edge whose target work is not yet
// known and must be resolved into a Target by queue_reference_candidates.
func (s *Store) InsertCitationCandidate(ctx context.Context, c *model.CitationCandidate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO citation_candidates (edge_id, task_id, candidate_url, candidate_doi, citing_page_id, citation_context, resolved)
		VALUES (?, ?, ?, ?, ?, ?, 0)`,
		c.EdgeID, c.TaskID, c.CandidateURL, c.CandidateDOI, c.CitingPageID, c.CitationContext)
	return err
}

// UnresolvedCitationCandidates returns a task's pending reference candidates.
func (s *Store) UnresolvedCitationCandidates(ctx context.Context, taskID string) ([]*model.CitationCandidate, error) {
	var cands []*model.CitationCandidate
	err := s.db.SelectContext(ctx, &cands, `
		SELECT * FROM citation_candidates WHERE task_id = ? AND resolved = 0 ORDER BY edge_id`, taskID)
	return cands, err
}

// ResolveCitationCandidate marks a candidate resolved once it has been
// turned into a Target and queued (spec §4.5).
func (s *Store) ResolveCitationCandidate(ctx context.Context, edgeID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE citation_candidates SET resolved = 1 WHERE edge_id = ?`, edgeID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFoundError("citation_candidate", edgeID)
	}
	return nil
}
