package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/lyralabs/evidence-runtime/internal/errors"
	"github.com/lyralabs/evidence-runtime/internal/model"
)

// FeedbackKind enumerates the feedback() operation's mutation targets (spec §4.8).
type FeedbackKind string

const (
	FeedbackEdgeCorrect  FeedbackKind = "edge_correct"
	FeedbackEdgeIncorrect FeedbackKind = "edge_incorrect"
	FeedbackClaimAdopt   FeedbackKind = "claim_adopt"
	FeedbackClaimReject  FeedbackKind = "claim_reject"
)

// RecordFeedback applies a human correction and logs it to feedback_log for
// audit (spec §4.8). edge_incorrect flips an edge's relation between
// SUPPORTS and REFUTES (a NEUTRAL edge stays NEUTRAL); edge_correct leaves
// the relation unchanged. Both recompute the target claim's confidence;
// claim_adopt/claim_reject set adoption_status directly.
func (s *Store) RecordFeedback(ctx context.Context, taskID string, kind FeedbackKind, targetID, note string) error {
	switch kind {
	case FeedbackEdgeCorrect, FeedbackEdgeIncorrect:
		var e model.Edge
		err := s.db.GetContext(ctx, &e, `SELECT * FROM edges WHERE edge_id = ?`, targetID)
		if err == sql.ErrNoRows {
			return errors.NotFoundError("edge", targetID)
		}
		if err != nil {
			return err
		}
		if kind == FeedbackEdgeIncorrect {
			newRelation := model.RelationNeutral
			switch e.Relation {
			case model.RelationSupports:
				newRelation = model.RelationRefutes
			case model.RelationRefutes:
				newRelation = model.RelationSupports
			}
			if _, err := s.db.ExecContext(ctx, `UPDATE edges SET relation = ? WHERE edge_id = ?`, newRelation, targetID); err != nil {
				return err
			}
		}
		if e.TargetType == model.EndpointClaim {
			if err := s.RecomputeClaimConfidence(ctx, e.TargetID); err != nil {
				return err
			}
		}

	case FeedbackClaimAdopt, FeedbackClaimReject:
		status := model.AdoptionAdopted
		if kind == FeedbackClaimReject {
			status = model.AdoptionNotAdopted
		}
		res, err := s.db.ExecContext(ctx, `UPDATE claims SET adoption_status = ? WHERE claim_id = ?`, status, targetID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.NotFoundError("claim", targetID)
		}

	default:
		return errors.InvalidArgumentErrorf("unsupported feedback kind: %s", kind)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback_log (feedback_id, task_id, kind, target_id, note, created_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		uuid.NewString(), taskID, kind, targetID, note)
	return err
}
