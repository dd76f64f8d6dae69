package nli

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lyralabs/evidence-runtime/internal/llmsidecar"
	"github.com/lyralabs/evidence-runtime/internal/model"
)

func TestNewDefaultsCandidateKWhenNonPositive(t *testing.T) {
	v := New(nil, nil, nil, nil, 0, Thresholds{})
	assert.Equal(t, 20, v.candidateK)

	v = New(nil, nil, nil, nil, -5, Thresholds{})
	assert.Equal(t, 20, v.candidateK)

	v = New(nil, nil, nil, nil, 5, Thresholds{})
	assert.Equal(t, 5, v.candidateK)
}

func TestClassifyAppliesEntailAndContradictThresholdsIndependently(t *testing.T) {
	v := &Verifier{threshold: Thresholds{Entail: 0.7, Contradict: 0.6}}

	rel, ok := v.classify(&llmsidecar.NLIVerdict{Relation: "supports", Confidence: 0.7})
	assert.True(t, ok)
	assert.Equal(t, model.RelationSupports, rel)

	_, ok = v.classify(&llmsidecar.NLIVerdict{Relation: "supports", Confidence: 0.69})
	assert.False(t, ok, "a supports verdict below threshold_entail must not become an edge")

	rel, ok = v.classify(&llmsidecar.NLIVerdict{Relation: "refutes", Confidence: 0.6})
	assert.True(t, ok)
	assert.Equal(t, model.RelationRefutes, rel)

	_, ok = v.classify(&llmsidecar.NLIVerdict{Relation: "refutes", Confidence: 0.59})
	assert.False(t, ok, "a refutes verdict below threshold_contradict must not become an edge")
}

func TestClassifyAlwaysAcceptsNeutralRegardlessOfConfidence(t *testing.T) {
	v := &Verifier{threshold: Thresholds{Entail: 0.9, Contradict: 0.9}}
	rel, ok := v.classify(&llmsidecar.NLIVerdict{Relation: "neutral", Confidence: 0.01})
	assert.True(t, ok)
	assert.Equal(t, model.RelationNeutral, rel)
}

func TestClassifyRejectsUnknownRelation(t *testing.T) {
	v := &Verifier{threshold: Thresholds{Entail: 0.5, Contradict: 0.5}}
	_, ok := v.classify(&llmsidecar.NLIVerdict{Relation: "unsure", Confidence: 0.99})
	assert.False(t, ok)
}
