package research

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/deep-research/internal/core/llm"
)

func newHeuristicValidator(allow, deny []string) *Validator {
	return NewValidator(0.35, 0.4, allow, deny, nil, nopLogger())
}

var validatorAsOf = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func TestValidatorCredibility(t *testing.T) {
	v := newHeuristicValidator([]string{"trusted.org"}, []string{"junk.example"})

	cand := llm.ExtractedLearning{
		Statement:  "the pilot plant reached full production capacity",
		Topic:      "production",
		Confidence: 0.8,
	}

	t.Run("allowlisted domain scores high", func(t *testing.T) {
		verdict := v.Validate(context.Background(), cand, "https://news.trusted.org/a", "pilot plant", validatorAsOf, nil)
		assert.True(t, verdict.Accepted)
		assert.Greater(t, verdict.Credibility, 0.8)
	})

	t.Run("denylisted domain is rejected at the floor", func(t *testing.T) {
		verdict := v.Validate(context.Background(), cand, "https://junk.example/a", "pilot plant", validatorAsOf, nil)
		assert.False(t, verdict.Accepted)
		assert.Contains(t, verdict.Rationale, "denylisted")
		assert.NotZero(t, verdict.Credibility, "evaluation still carries a score")
	})

	t.Run("neutral https domain passes the floor", func(t *testing.T) {
		verdict := v.Validate(context.Background(), cand, "https://neutral.example/a", "pilot plant", validatorAsOf, nil)
		assert.True(t, verdict.Accepted)
	})

	t.Run("gov domain scores above plain neutral", func(t *testing.T) {
		gov := v.Validate(context.Background(), cand, "https://energy.gov/a", "pilot plant", validatorAsOf, nil)
		neutral := v.Validate(context.Background(), cand, "https://neutral.example/a", "pilot plant", validatorAsOf, nil)
		assert.Greater(t, gov.Credibility, neutral.Credibility)
	})
}

func TestValidatorDeterminism(t *testing.T) {
	v := newHeuristicValidator(nil, nil)

	cand := llm.ExtractedLearning{
		Statement:  "battery output grew 18% year over year",
		Topic:      "output",
		Confidence: 0.7,
	}

	first := v.Validate(context.Background(), cand, "https://example.com/a", "battery output", validatorAsOf, nil)
	second := v.Validate(context.Background(), cand, "https://example.com/a", "battery output", validatorAsOf, nil)

	assert.Equal(t, first.Accepted, second.Accepted)
	assert.InDelta(t, first.Credibility, second.Credibility, 1e-12)
}

func TestValidatorTemporal(t *testing.T) {
	v := newHeuristicValidator(nil, nil)

	t.Run("past event announced as upcoming is unusable", func(t *testing.T) {
		cand := llm.ExtractedLearning{
			Statement:  "the conference is scheduled for March 2023 in Berlin",
			Confidence: 0.9,
		}

		verdict := v.Validate(context.Background(), cand, "https://example.com/a", "conference", validatorAsOf, nil)
		assert.False(t, verdict.Accepted)
		assert.Contains(t, verdict.Rationale, "already past")
	})

	t.Run("genuinely future event is fine", func(t *testing.T) {
		cand := llm.ExtractedLearning{
			Statement:  "the conference is scheduled for March 2025 in Berlin",
			Confidence: 0.9,
		}

		verdict := v.Validate(context.Background(), cand, "https://example.com/a", "conference", validatorAsOf, nil)
		assert.True(t, verdict.Accepted)
	})
}

func TestValidatorNumerical(t *testing.T) {
	v := newHeuristicValidator(nil, nil)

	base := llm.ExtractedLearning{
		Statement:  "market share reached 40% in europe",
		Confidence: 0.7,
	}
	implausible := llm.ExtractedLearning{
		Statement:  "market share reached 140% in europe",
		Confidence: 0.7,
	}
	growth := llm.ExtractedLearning{
		Statement:  "sales growth reached 140% in europe",
		Confidence: 0.7,
	}

	sane := v.Validate(context.Background(), base, "https://example.com/a", "market", validatorAsOf, nil)
	odd := v.Validate(context.Background(), implausible, "https://example.com/a", "market", validatorAsOf, nil)
	delta := v.Validate(context.Background(), growth, "https://example.com/a", "market", validatorAsOf, nil)

	assert.Less(t, odd.Credibility, sane.Credibility, "out-of-range percentage is penalized")
	assert.True(t, odd.Accepted, "penalty alone does not reject")
	assert.InDelta(t, sane.Credibility, delta.Credibility, 1e-9, "growth context disarms the check")
}

func TestValidatorConflicts(t *testing.T) {
	v := newHeuristicValidator(nil, nil)

	existing := []Learning{
		{
			ID:        "l1",
			Statement: "Acme revenue increased to five billion dollars in the second quarter",
			Topic:     "acme-revenue",
			Entities:  []string{"Acme Corp"},
		},
	}

	t.Run("opposing direction on same entity conflicts", func(t *testing.T) {
		cand := llm.ExtractedLearning{
			Statement:  "Acme revenue decreased to three billion dollars in the second quarter",
			Topic:      "acme-revenue",
			Entities:   []string{"Acme Corp"},
			Confidence: 0.8,
		}

		verdict := v.Validate(context.Background(), cand, "https://example.com/b", "acme revenue", validatorAsOf, existing)
		require.Len(t, verdict.Conflicts, 1)
		assert.Equal(t, "l1", verdict.Conflicts[0].Existing.ID)
	})

	t.Run("different topic never conflicts", func(t *testing.T) {
		cand := llm.ExtractedLearning{
			Statement:  "Acme revenue decreased to three billion dollars in the second quarter",
			Topic:      "other-topic",
			Entities:   []string{"Acme Corp"},
			Confidence: 0.8,
		}

		verdict := v.Validate(context.Background(), cand, "https://example.com/b", "acme revenue", validatorAsOf, existing)
		assert.Empty(t, verdict.Conflicts)
	})

	t.Run("no entity overlap never conflicts", func(t *testing.T) {
		cand := llm.ExtractedLearning{
			Statement:  "Globex revenue decreased to three billion dollars in the second quarter",
			Topic:      "acme-revenue",
			Entities:   []string{"Globex"},
			Confidence: 0.8,
		}

		verdict := v.Validate(context.Background(), cand, "https://example.com/b", "revenue", validatorAsOf, existing)
		assert.Empty(t, verdict.Conflicts)
	})

	t.Run("first claim is never contradictory", func(t *testing.T) {
		cand := llm.ExtractedLearning{
			Statement:  "Acme revenue increased to five billion dollars in the second quarter",
			Topic:      "acme-revenue",
			Entities:   []string{"Acme Corp"},
			Confidence: 0.8,
		}

		verdict := v.Validate(context.Background(), cand, "https://example.com/a", "acme revenue", validatorAsOf, nil)
		assert.Empty(t, verdict.Conflicts)
	})
}

func TestTemporalIssue(t *testing.T) {
	asOf := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		statement string
		flagged   bool
	}{
		{"past upcoming", "the summit is scheduled for January 2024", true},
		{"future upcoming", "the summit is scheduled for January 2026", false},
		{"current month still running", "the launch is expected in June 2024", false},
		{"no temporal claim", "the summit was held last year", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issue := temporalIssue(tt.statement, asOf)
			if tt.flagged {
				assert.NotEmpty(t, issue)
			} else {
				assert.Empty(t, issue)
			}
		})
	}
}

func TestEntityOverlap(t *testing.T) {
	assert.InDelta(t, 1.0, entityOverlap([]string{"Acme Corp"}, []string{"acme"}), 1e-9, "suffix and case are normalized")
	assert.Zero(t, entityOverlap([]string{"Acme"}, nil))
	assert.InDelta(t, 0.5, entityOverlap([]string{"Acme Corp", "Globex"}, []string{"Acme"}), 1e-9)
}
