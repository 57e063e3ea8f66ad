package llm

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/lueurxax/deep-research/internal/platform/config"
)

// QueryPlan is the parse target for query generation responses.
type QueryPlan struct {
	Queries []SubQuery `json:"queries"`
}

// SubQuery is a single generated search query with its research goal.
type SubQuery struct {
	Query string `json:"query"`
	Goal  string `json:"goal"`
}

// ComplexityRating is the parse target for query complexity assessment.
// Both fields are ordinal ratings on a 1..5 scale.
type ComplexityRating struct {
	Complexity int `json:"complexity"`
	Scope      int `json:"scope"`
}

// CredibilityJudgment is the parse target for source credibility assessment.
type CredibilityJudgment struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// ExtractedLearning is a single fact pulled out of scraped content.
type ExtractedLearning struct {
	Statement  string   `json:"statement"`
	Topic      string   `json:"topic"`
	Entities   []string `json:"entities"`
	Confidence float64  `json:"confidence"`
}

// Extraction is the parse target for learning extraction responses.
type Extraction struct {
	Learnings []ExtractedLearning `json:"learnings"`
	FollowUps []string            `json:"follow_up_questions"`
}

// ErrEmptyResponse indicates the model returned no usable content.
var ErrEmptyResponse = errors.New("empty response from LLM")

type Client interface {
	// CompleteText returns the raw text completion for the prompt.
	CompleteText(ctx context.Context, system, prompt string) (string, error)
	// CompleteObject requests a JSON completion and unmarshals it into target.
	CompleteObject(ctx context.Context, system, prompt string, target any) error
}

func New(cfg *config.Config, logger *zerolog.Logger) Client {
	if cfg.LLMAPIKey == "" || cfg.LLMAPIKey == "mock" {
		return &mockClient{}
	}

	return newOpenAI(cfg, logger)
}
