package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/lyralabs/evidence-runtime/internal/model"
)

// Domain trust-level promotion/demotion thresholds (SPEC_FULL.md §12
// supplemented policy): a domain is promoted to TRUSTED after
// trustPromoteAfter consecutive successful non-blocked fetches, or demoted
// to LOW after trustDemoteAfter consecutive auth-blocks.
const (
	trustPromoteAfter = 5
	trustDemoteAfter  = 2
)

// wellKnownTrust seeds GOVERNMENT/ACADEMIC by host/TLD pattern
// (SPEC_FULL.md §12). Checked as a suffix match against the domain.
var wellKnownTrust = []struct {
	suffix string
	level  model.TrustLevel
}{
	{".gov", model.TrustGovernment},
	{".edu", model.TrustAcademic},
	{"doi.org", model.TrustAcademic},
	{"ncbi.nlm.nih.gov", model.TrustGovernment},
	{"arxiv.org", model.TrustAcademic},
}

// seedTrustLevel returns the initial trust level for a domain never seen before.
func seedTrustLevel(domain string) model.TrustLevel {
	for _, wk := range wellKnownTrust {
		if len(domain) >= len(wk.suffix) && domain[len(domain)-len(wk.suffix):] == wk.suffix {
			return wk.level
		}
	}
	return model.TrustUnverified
}

// GetOrCreateDomain fetches a Domain row, seeding trust level on first use
// (spec §9: "per-domain fetch state is process-wide; initialized on first use").
func (s *Store) GetOrCreateDomain(ctx context.Context, domain string) (*model.Domain, error) {
	var d model.Domain
	err := s.db.GetContext(ctx, &d, `SELECT * FROM domains WHERE domain = ?`, domain)
	if err == nil {
		return &d, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	d = model.Domain{
		Domain:     domain,
		TrustLevel: seedTrustLevel(domain),
		AuthState:  model.AuthOK,
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO domains (domain, trust_level, wayback_success_count, wayback_failure_count, auth_state, consecutive_blocks, consecutive_successes)
		VALUES (?, ?, 0, 0, ?, 0, 0)`, d.Domain, d.TrustLevel, d.AuthState)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// MarkAuthBlocked flags a domain as blocked and demotes trust after
// consecutive blocks (spec §4.2; SPEC_FULL.md §12).
func (s *Store) MarkAuthBlocked(ctx context.Context, domain string) error {
	d, err := s.GetOrCreateDomain(ctx, domain)
	if err != nil {
		return err
	}
	blocks := d.ConsecutiveBlocks + 1
	trust := d.TrustLevel
	if blocks >= trustDemoteAfter {
		trust = model.TrustLow
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE domains SET auth_state = ?, consecutive_blocks = ?, consecutive_successes = 0, trust_level = ?
		WHERE domain = ?`, model.AuthBlocked, blocks, trust, domain)
	if err != nil {
		return err
	}
	return s.EnqueueAuthBlock(ctx, domain)
}

// MarkFetchSuccess records a successful non-blocked fetch, promoting trust
// after consecutive successes.
func (s *Store) MarkFetchSuccess(ctx context.Context, domain string) error {
	d, err := s.GetOrCreateDomain(ctx, domain)
	if err != nil {
		return err
	}
	successes := d.ConsecutiveSuccesses + 1
	trust := d.TrustLevel
	if successes >= trustPromoteAfter && (trust == model.TrustUnverified || trust == model.TrustLow) {
		trust = model.TrustTrusted
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE domains SET consecutive_successes = ?, consecutive_blocks = 0, trust_level = ?
		WHERE domain = ?`, successes, trust, domain)
	return err
}

// ResolveAuth clears a domain's auth block (spec §4.7: resolve_auth).
func (s *Store) ResolveAuth(ctx context.Context, domain string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE domains SET auth_state = ?, consecutive_blocks = 0 WHERE domain = ?`, model.AuthOK, domain)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM auth_queue WHERE domain = ?`, domain)
	return err
}

// RecordWaybackResult updates wayback_{success,failure}_count (spec §4.2).
func (s *Store) RecordWaybackResult(ctx context.Context, domain string, success bool) error {
	if _, err := s.GetOrCreateDomain(ctx, domain); err != nil {
		return err
	}
	col := "wayback_failure_count"
	if success {
		col = "wayback_success_count"
	}
	_, err := s.db.ExecContext(ctx, `UPDATE domains SET `+col+` = `+col+` + 1 WHERE domain = ?`, domain)
	return err
}

// AuthQueueEntry is one row surfaced by get_auth_queue (spec §4.7).
type AuthQueueEntry struct {
	TaskID    string    `db:"task_id"`
	Domain    string    `db:"domain"`
	FlaggedAt time.Time `db:"flagged_at"`
}

// EnqueueAuthBlock emits an auth-queue entry for every active task (spec §4.2:
// "emit an auth-queue entry tagged with task_id and domain").
func (s *Store) EnqueueAuthBlock(ctx context.Context, domain string) error {
	var taskIDs []string
	if err := s.db.SelectContext(ctx, &taskIDs, `SELECT task_id FROM tasks WHERE status = 'active'`); err != nil {
		return err
	}
	for _, taskID := range taskIDs {
		_, err := s.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO auth_queue (task_id, domain, flagged_at) VALUES (?, ?, CURRENT_TIMESTAMP)`,
			taskID, domain)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetAuthQueue returns pending auth-block entries for a task (spec §4.7).
func (s *Store) GetAuthQueue(ctx context.Context, taskID string) ([]AuthQueueEntry, error) {
	var entries []AuthQueueEntry
	err := s.db.SelectContext(ctx, &entries, `SELECT * FROM auth_queue WHERE task_id = ? ORDER BY flagged_at`, taskID)
	return entries, err
}

// PendingAuthCount returns the count of pending auth-blocked domains for a task.
func (s *Store) PendingAuthCount(ctx context.Context, taskID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM auth_queue WHERE task_id = ?`, taskID)
	return n, err
}

// IsDomainBlocked reports whether a domain currently has auth_state=blocked.
func (s *Store) IsDomainBlocked(ctx context.Context, domain string) (bool, error) {
	var state model.AuthState
	err := s.db.GetContext(ctx, &state, `SELECT auth_state FROM domains WHERE domain = ?`, domain)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return state == model.AuthBlocked, nil
}
