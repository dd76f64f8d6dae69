package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBudgetRemainingPercent(t *testing.T) {
	cases := []struct {
		name      string
		remaining int
		total     int
		want      float64
	}{
		{"half spent", 50, 100, 50},
		{"full budget", 100, 100, 100},
		{"exhausted", 0, 100, 0},
		{"zero total never divides by zero", 10, 0, 0},
		{"overdrawn clamps to zero", -5, 100, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task := &Task{BudgetRemaining: tc.remaining, BudgetTotal: tc.total}
			assert.Equal(t, tc.want, task.BudgetRemainingPercent())
		})
	}
}

func TestNormalizedTextFoldsCaseAndWhitespace(t *testing.T) {
	a := NormalizedText("The Sky   is Blue")
	b := NormalizedText("the sky is blue")
	assert.Equal(t, a, b)
	assert.Equal(t, "the sky is blue", a)
}

func TestTruncateFragmentEnforcesCap(t *testing.T) {
	short := "short fragment"
	assert.Equal(t, short, TruncateFragment(short))

	long := strings.Repeat("a", FragmentMaxLen+50)
	truncated := TruncateFragment(long)
	assert.Len(t, truncated, FragmentMaxLen)
}

func TestTrustWeightCoversEveryTrustLevel(t *testing.T) {
	levels := []TrustLevel{
		TrustPrimary, TrustGovernment, TrustAcademic,
		TrustTrusted, TrustLow, TrustUnverified, TrustBlocked,
	}
	for _, lvl := range levels {
		w, ok := TrustWeight[lvl]
		assert.True(t, ok, "missing trust weight for %s", lvl)
		assert.GreaterOrEqual(t, w, 0.0)
		assert.LessOrEqual(t, w, 1.0)
	}
	assert.Equal(t, 0.0, TrustWeight[TrustBlocked], "a blocked domain must contribute zero weight")
}
