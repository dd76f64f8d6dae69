package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/lyralabs/evidence-runtime/internal/errors"
	"github.com/lyralabs/evidence-runtime/internal/model"
)

// EnqueueJob inserts a new queued job (spec §4.6 transitions).
func (s *Store) EnqueueJob(ctx context.Context, taskID string, phase model.JobPhase, kind model.JobKind, payload string) (*model.Job, error) {
	j := &model.Job{
		JobID:   uuid.NewString(),
		TaskID:  taskID,
		Phase:   phase,
		Kind:    kind,
		Payload: payload,
		State:   model.JobQueued,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (job_id, task_id, phase, kind, payload, attempts, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		j.JobID, j.TaskID, j.Phase, j.Kind, j.Payload, j.State)
	if err != nil {
		return nil, err
	}
	return j, nil
}

// ClaimNextJob atomically dequeues the oldest queued job for a phase and
// marks it running. Returns nil, nil if none is available.
func (s *Store) ClaimNextJob(ctx context.Context, phase model.JobPhase) (*model.Job, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var j model.Job
	err = tx.GetContext(ctx, &j, `
		SELECT * FROM jobs WHERE phase = ? AND state = ? ORDER BY created_at LIMIT 1`, phase, model.JobQueued)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE jobs SET state = ?, attempts = attempts + 1, updated_at = CURRENT_TIMESTAMP WHERE job_id = ?`,
		model.JobRunning, j.JobID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	j.State = model.JobRunning
	j.Attempts++
	return &j, nil
}

// CompleteJob marks a job completed.
func (s *Store) CompleteJob(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE job_id = ?`, model.JobCompleted, jobID)
	return err
}

// RequeueJob resets a job to queued for retry.
func (s *Store) RequeueJob(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE job_id = ?`, model.JobQueued, jobID)
	return err
}

// FailJob marks a job permanently failed with a classified error string.
func (s *Store) FailJob(ctx context.Context, jobID, classifiedError string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, error = ?, updated_at = CURRENT_TIMESTAMP WHERE job_id = ?`,
		model.JobFailed, classifiedError, jobID)
	return err
}

// GetJob fetches a job by id.
func (s *Store) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	var j model.Job
	err := s.db.GetContext(ctx, &j, `SELECT * FROM jobs WHERE job_id = ?`, jobID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundError("job", jobID)
	}
	return &j, err
}

// DiscardQueuedJobs discards (marks failed with a cancellation note) every
// queued job for a task, used by stop_task (spec §4.6: "queued jobs are
// discarded; running jobs run to completion").
func (s *Store) DiscardQueuedJobs(ctx context.Context, taskID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, error = 'cancelled: task stopped', updated_at = CURRENT_TIMESTAMP
		WHERE task_id = ? AND state = ?`, model.JobFailed, taskID, model.JobQueued)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// JobCounts reports {queued, running} counts for a phase within a task,
// used by get_status and milestone computation (spec §4.6).
type JobCounts struct {
	Queued  int `db:"queued"`
	Running int `db:"running"`
}

func (s *Store) JobCounts(ctx context.Context, taskID string, phase model.JobPhase) (JobCounts, error) {
	var jc JobCounts
	err := s.db.GetContext(ctx, &jc, `
		SELECT
			COALESCE(SUM(CASE WHEN state = 'queued' THEN 1 ELSE 0 END), 0) AS queued,
			COALESCE(SUM(CASE WHEN state = 'running' THEN 1 ELSE 0 END), 0) AS running
		FROM jobs WHERE task_id = ? AND phase = ?`, taskID, phase)
	return jc, err
}

// ClaimsWithoutAnyVerificationEdge returns claim_ids with
// adoption_status='adopted' (or 'pending', which is eligible for
// verification too) that have no SUPPORTS/REFUTES/NEUTRAL edge at all
// (invalidated edges included) — used by the nli_verification_done
// milestone (spec §4.6).
func (s *Store) ClaimsWithoutAnyVerificationEdge(ctx context.Context, taskID string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT c.claim_id FROM claims c
		WHERE c.task_id = ? AND c.adoption_status != 'not_adopted'
		AND NOT EXISTS (
			SELECT 1 FROM edges e
			WHERE e.target_type = 'claim' AND e.target_id = c.claim_id
			AND e.relation IN ('SUPPORTS', 'REFUTES', 'NEUTRAL')
		)`, taskID)
	return ids, err
}
