// Package nli implements the NLI Verifier (C4): selects candidate
// fragments for a claim via vector_search, scores each with the sidecar's
// natural-language-inference endpoint, and emits SUPPORTS/REFUTES/NEUTRAL
// edges, respecting the independence invariant enforced at the store layer
// (spec §4.4).
package nli

import (
	"context"

	"github.com/lyralabs/evidence-runtime/internal/errors"
	"github.com/lyralabs/evidence-runtime/internal/llmsidecar"
	"github.com/lyralabs/evidence-runtime/internal/model"
	"github.com/lyralabs/evidence-runtime/internal/store"
)

// Verifier is the NLI Verifier component.
type Verifier struct {
	store     *store.Store
	vectors   *store.VectorIndex
	sidecar   *llmsidecar.Client
	embedder  *llmsidecar.EmbeddingProvider
	candidateK int
	threshold  Thresholds
}

// Thresholds gate when an NLI verdict becomes an edge (spec §4.4:
// "threshold_entail", "threshold_contradict").
type Thresholds struct {
	Entail     float64
	Contradict float64
}

// New constructs a Verifier.
func New(s *store.Store, vectors *store.VectorIndex, sidecar *llmsidecar.Client, embedder *llmsidecar.EmbeddingProvider, candidateK int, thresholds Thresholds) *Verifier {
	if candidateK <= 0 {
		candidateK = 20
	}
	return &Verifier{store: s, vectors: vectors, sidecar: sidecar, embedder: embedder, candidateK: candidateK, threshold: thresholds}
}

// VerifyClaim selects up to candidateK nearest fragments by embedding
// similarity, scores each against the claim text, and inserts an edge for
// every verdict that clears its relation's threshold (spec §4.4). Fragments
// whose source page shares a canonical_id with an ORIGIN page for this
// claim are rejected by the store's independence check; that rejection is
// swallowed here rather than surfaced, since it reflects the search
// candidate set rather than a caller error.
func (v *Verifier) VerifyClaim(ctx context.Context, taskID, claimID, claimText string) (int, error) {
	queryVec, err := v.embedder.Embed(ctx, claimText)
	if err != nil {
		return 0, err
	}

	candidates, err := v.vectors.Search(ctx, taskID, queryVec, v.candidateK)
	if err != nil {
		return 0, err
	}

	edgesInserted := 0
	for _, cand := range candidates {
		fragment, err := v.fragmentText(ctx, cand.FragmentID)
		if err != nil {
			continue
		}

		verdict, err := v.sidecar.VerifyClaim(ctx, claimText, fragment)
		if err != nil {
			continue
		}

		relation, ok := v.classify(verdict)
		if !ok {
			continue
		}

		_, trust, err := v.sourceTrust(ctx, cand.FragmentID)
		if err != nil {
			continue
		}

		confidence := verdict.Confidence
		edge := &model.Edge{
			SourceType:        model.EndpointFragment,
			SourceID:          cand.FragmentID,
			TargetType:        model.EndpointClaim,
			TargetID:          claimID,
			Relation:          relation,
			NLIEdgeConfidence: &confidence,
			SourceTrustLevel:  &trust,
		}
		if _, err := v.store.InsertEdge(ctx, edge); err != nil {
			if ce, ok := err.(*errors.Error); ok && ce.Type == errors.ConstraintViolation {
				continue
			}
			return edgesInserted, err
		}
		edgesInserted++
	}

	if edgesInserted > 0 {
		if err := v.store.RecomputeClaimConfidence(ctx, claimID); err != nil {
			return edgesInserted, err
		}
	}
	return edgesInserted, nil
}

func (v *Verifier) classify(verdict *llmsidecar.NLIVerdict) (model.Relation, bool) {
	switch verdict.Relation {
	case "supports":
		if verdict.Confidence >= v.threshold.Entail {
			return model.RelationSupports, true
		}
	case "refutes":
		if verdict.Confidence >= v.threshold.Contradict {
			return model.RelationRefutes, true
		}
	case "neutral":
		return model.RelationNeutral, true
	}
	return "", false
}

func (v *Verifier) fragmentText(ctx context.Context, fragmentID string) (string, error) {
	frag, err := v.fragmentByID(ctx, fragmentID)
	if err != nil {
		return "", err
	}
	return frag.Text, nil
}

func (v *Verifier) fragmentByID(ctx context.Context, fragmentID string) (*model.Fragment, error) {
	return v.store.GetFragment(ctx, fragmentID)
}

func (v *Verifier) sourceTrust(ctx context.Context, fragmentID string) (string, model.TrustLevel, error) {
	return v.store.FragmentDomainTrust(ctx, fragmentID)
}
