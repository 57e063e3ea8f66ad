package llm

import (
	"context"
	"fmt"
	"strings"
)

// mockClient returns deterministic completions so the engine can run
// end to end without an API key.
type mockClient struct{}

func (m *mockClient) CompleteText(_ context.Context, _, prompt string) (string, error) {
	return fmt.Sprintf("mock completion for: %.80s", prompt), nil
}

func (m *mockClient) CompleteObject(_ context.Context, _, prompt string, target any) error {
	topic := mockTopic(prompt)

	switch t := target.(type) {
	case *QueryPlan:
		t.Queries = []SubQuery{
			{Query: topic + " overview", Goal: "broad context"},
			{Query: topic + " recent developments", Goal: "current state"},
		}
	case *ComplexityRating:
		t.Complexity = 2
		t.Scope = 2
	case *CredibilityJudgment:
		t.Score = 0.6
		t.Reason = "mock judgment"
	case *Extraction:
		t.Learnings = []ExtractedLearning{
			{
				Statement:  "mock finding about " + topic,
				Topic:      topic,
				Entities:   []string{topic},
				Confidence: 0.6,
			},
		}
		t.FollowUps = []string{"what are the open problems in " + topic + "?"}
	default:
		return fmt.Errorf("mock client: unsupported target %T", target)
	}

	return nil
}

// mockTopic pulls a short stable token out of the prompt so mock
// output varies with the input.
func mockTopic(prompt string) string {
	fields := strings.Fields(prompt)
	if len(fields) == 0 {
		return "topic"
	}

	last := fields[len(fields)-1]

	return strings.Trim(strings.ToLower(last), `.,:;"'?!`)
}

var _ Client = (*mockClient)(nil)
