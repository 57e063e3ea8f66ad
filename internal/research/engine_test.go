package research

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/deep-research/internal/core/llm"
	"github.com/lueurxax/deep-research/internal/process/scrape"
	"github.com/lueurxax/deep-research/internal/process/search"
)

func simpleExtraction(topic string) func(prompt string) (llm.Extraction, error) {
	return func(_ string) (llm.Extraction, error) {
		return llm.Extraction{
			Learnings: []llm.ExtractedLearning{{
				Statement:  "a finding about " + topic,
				Topic:      topic,
				Confidence: 0.8,
			}},
		}, nil
	}
}

func TestEngineDepthZeroSinglePass(t *testing.T) {
	client := &fakeLLM{extract: simpleExtraction("quantum")}
	searcher := &fakeSearcher{results: map[string][]search.Result{
		"quantum computing": {{URL: "https://example.com/q1"}, {URL: "https://example.com/q2"}},
	}}
	extractor := &fakeExtractor{}

	engine := newTestEngine(testConfig(), client, searcher, extractor)

	res, err := engine.Run(context.Background(), Request{Query: "quantum computing", Depth: 0, Breadth: 3})
	require.NoError(t, err)

	assert.Zero(t, client.planCalls, "depth=0 must not generate sub-queries")
	assert.Equal(t, []string{"quantum computing"}, searcher.queries)
	assert.Len(t, res.VisitedURLs, 2)
	assert.NotEmpty(t, res.Learnings)
}

func TestEngineFailedBranchDoesNotAbortRun(t *testing.T) {
	client := &fakeLLM{
		plans: [][]llm.SubQuery{{
			{Query: "quantum error correction milestones", Goal: "hardware progress"},
			{Query: "superconducting qubit vendors comparison", Goal: "vendor landscape"},
		}},
		extract: simpleExtraction("quantum"),
	}
	searcher := &fakeSearcher{
		results: map[string][]search.Result{
			"quantum error correction milestones": {{URL: "https://example.com/a"}},
		},
		errs: map[string]error{
			"superconducting qubit vendors comparison": errors.New("search backend down"),
		},
	}

	engine := newTestEngine(testConfig(), client, searcher, &fakeExtractor{})

	res, err := engine.Run(context.Background(), Request{Query: "Quantum computing hardware 2024", Depth: 1, Breadth: 2})
	require.NoError(t, err, "a failed branch must not surface an error")

	assert.NotEmpty(t, res.Learnings, "surviving branch contributes learnings")

	failures := thoughtsOfKind(res.Thoughts, ThoughtBranchFailed)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Message, "superconducting qubit vendors comparison")
}

func TestEngineZeroBudget(t *testing.T) {
	client := &fakeLLM{extract: simpleExtraction("anything")}
	searcher := &fakeSearcher{}

	engine := newTestEngine(testConfig(), client, searcher, &fakeExtractor{})

	res, err := engine.Run(context.Background(), Request{
		Query: "anything", Depth: 2, Breadth: 2,
		TimeBudget: 0, HasBudget: true,
	})
	require.NoError(t, err, "budget exhaustion is not a failure")

	assert.True(t, res.BudgetExceeded)
	assert.NotEmpty(t, thoughtsOfKind(res.Thoughts, ThoughtBudgetExceeded))
	assert.Empty(t, searcher.queries, "no new work starts after the budget check")
}

func TestEngineVisitedURLs(t *testing.T) {
	shared := []search.Result{{URL: "https://example.com/shared"}, {URL: "https://example.com/extra"}}
	client := &fakeLLM{
		plans: [][]llm.SubQuery{{
			{Query: "battery cathode chemistry research", Goal: "a"},
			{Query: "electric grid storage deployments", Goal: "b"},
		}},
		extract: simpleExtraction("energy"),
	}
	searcher := &fakeSearcher{results: map[string][]search.Result{
		"battery cathode chemistry research": shared,
		"electric grid storage deployments":  shared,
	}}
	extractor := &fakeExtractor{}

	engine := newTestEngine(testConfig(), client, searcher, extractor)

	res, err := engine.Run(context.Background(), Request{Query: "energy storage", Depth: 1, Breadth: 2})
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, u := range res.VisitedURLs {
		assert.False(t, seen[u], "visited URLs must not repeat")
		seen[u] = true
	}

	returned := searcher.returnedURLs()
	for _, u := range res.VisitedURLs {
		assert.True(t, returned[u], "visited URL %s never came from search", u)
	}

	for url, calls := range extractor.calls {
		assert.Equal(t, 1, calls, "URL %s fetched more than once", url)
	}
}

func TestEngineQueryDeduplication(t *testing.T) {
	client := &fakeLLM{
		plans: [][]llm.SubQuery{{
			{Query: "solid state battery manufacturing cost", Goal: "a"},
			{Query: "The Solid State Battery Manufacturing Cost", Goal: "duplicate"},
			{Query: "sodium ion alternative chemistries", Goal: "b"},
		}},
		extract: simpleExtraction("batteries"),
	}
	searcher := &fakeSearcher{}

	engine := newTestEngine(testConfig(), client, searcher, &fakeExtractor{})

	_, err := engine.Run(context.Background(), Request{Query: "battery economics", Depth: 1, Breadth: 3})
	require.NoError(t, err)

	assert.Len(t, searcher.queries, 2, "near-duplicate query must be dropped")

	for _, q := range searcher.queries {
		assert.NotEqual(t, "The Solid State Battery Manufacturing Cost", q)
	}
}

func TestEngineBreadthCap(t *testing.T) {
	plan := make([]llm.SubQuery, 0, 6)
	for _, q := range []string{
		"alpha particle shielding materials",
		"beta decay measurement instruments",
		"gamma spectroscopy calibration sources",
		"neutron flux monitoring sensors",
		"xray diffraction crystallography labs",
		"muon tomography applications mining",
	} {
		plan = append(plan, llm.SubQuery{Query: q})
	}

	client := &fakeLLM{plans: [][]llm.SubQuery{plan}, extract: simpleExtraction("physics")}
	searcher := &fakeSearcher{}

	engine := newTestEngine(testConfig(), client, searcher, &fakeExtractor{})

	_, err := engine.Run(context.Background(), Request{Query: "radiation detection", Depth: 1, Breadth: 2})
	require.NoError(t, err)

	assert.LessOrEqual(t, len(searcher.queries), 2, "level 0 must issue at most breadth sub-queries")
}

func TestEngineAllBranchesUnreachable(t *testing.T) {
	client := &fakeLLM{plans: [][]llm.SubQuery{{
		{Query: "first unreachable query example"},
		{Query: "second unreachable query sample"},
	}}}
	searcher := &fakeSearcher{errs: map[string]error{
		"first unreachable query example": errors.New("dns failure"),
		"second unreachable query sample": errors.New("dns failure"),
	}}

	engine := newTestEngine(testConfig(), client, searcher, &fakeExtractor{})

	_, err := engine.Run(context.Background(), Request{Query: "anything at all", Depth: 1, Breadth: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNothingAttempted)
}

func TestEngineConfigurationErrors(t *testing.T) {
	engine := newTestEngine(testConfig(), &fakeLLM{}, &fakeSearcher{}, &fakeExtractor{})

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"empty query", Request{Query: "   ", Depth: 1, Breadth: 1}, ErrEmptyQuery},
		{"negative depth", Request{Query: "q", Depth: -1, Breadth: 1}, ErrInvalidDepth},
		{"zero breadth", Request{Query: "q", Depth: 1, Breadth: 0}, ErrInvalidBreadth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Run(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfiguration)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEngineContradictionScenario(t *testing.T) {
	// One branch, two sources claiming conflicting revenue figures for
	// the same company and quarter.
	client := &fakeLLM{
		plans: [][]llm.SubQuery{{{Query: "acme corp quarterly revenue report", Goal: "figures"}}},
		extract: func(prompt string) (llm.Extraction, error) {
			if strings.Contains(prompt, "first-source") {
				return llm.Extraction{Learnings: []llm.ExtractedLearning{{
					Statement:  "Acme revenue increased to five billion dollars in the second quarter",
					Topic:      "acme-revenue",
					Entities:   []string{"Acme Corp"},
					Confidence: 0.8,
				}}}, nil
			}

			return llm.Extraction{Learnings: []llm.ExtractedLearning{{
				Statement:  "Acme revenue decreased to three billion dollars in the second quarter",
				Topic:      "acme-revenue",
				Entities:   []string{"Acme Corp"},
				Confidence: 0.8,
			}}}, nil
		},
	}
	searcher := &fakeSearcher{results: map[string][]search.Result{
		"acme corp quarterly revenue report": {
			{URL: "https://example.com/a"},
			{URL: "https://example.org/b"},
		},
	}}
	extractor := &fakeExtractor{contents: map[string]*scrape.Content{
		"https://example.com/a": {URL: "https://example.com/a", Title: "first-source", Text: "report text"},
		"https://example.org/b": {URL: "https://example.org/b", Title: "second-source", Text: "report text"},
	}}

	engine := newTestEngine(testConfig(), client, searcher, extractor)

	res, err := engine.Run(context.Background(), Request{Query: "acme revenue", Depth: 1, Breadth: 1})
	require.NoError(t, err)

	require.Len(t, res.Contradictions, 1)
	assert.Len(t, res.Learnings, 2, "conflicting learnings both remain in memory")

	c := res.Contradictions[0]
	assert.Equal(t, "acme-revenue", c.Topic)
	assert.NotEqual(t, c.LearningA, c.LearningB)

	byID := make(map[string]Learning)
	for _, l := range res.Learnings {
		byID[l.ID] = l
	}

	require.Contains(t, byID, c.LearningA)
	require.Contains(t, byID, c.LearningB)
	assert.Equal(t, byID[c.LearningA].Topic, byID[c.LearningB].Topic)
}

func TestEngineAutoTune(t *testing.T) {
	client := &fakeLLM{
		rating:  llm.ComplexityRating{Complexity: 1, Scope: 1},
		plans:   [][]llm.SubQuery{{{Query: "simple lookup query example"}}},
		extract: simpleExtraction("simple"),
	}
	searcher := &fakeSearcher{results: map[string][]search.Result{
		"simple lookup query example": {{URL: "https://example.com/s"}},
	}}

	engine := newTestEngine(testConfig(), client, searcher, &fakeExtractor{})

	res, err := engine.Run(context.Background(), Request{Query: "what is the boiling point of water", AutoTune: true})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Depth)
	assert.Equal(t, 1, res.Breadth)

	params := thoughtsOfKind(res.Thoughts, ThoughtParameters)
	require.Len(t, params, 1)
	assert.Contains(t, params[0].Message, "depth=1 breadth=1")
}

func TestEngineFollowUpsSeedNextLevel(t *testing.T) {
	client := &fakeLLM{
		plans: [][]llm.SubQuery{
			{{Query: "lithium supply chains overview"}},
			{{Query: "chile lithium extraction policy"}},
		},
		extract: func(prompt string) (llm.Extraction, error) {
			if strings.Contains(prompt, "chile") {
				return llm.Extraction{
					Learnings: []llm.ExtractedLearning{{
						Statement:  "chilean concessions cap annual brine extraction volumes per operator",
						Topic:      "policy",
						Confidence: 0.8,
					}},
					FollowUps: []string{"what are refining costs in chile?"},
				}, nil
			}

			return llm.Extraction{
				Learnings: []llm.ExtractedLearning{{
					Statement:  "most lithium refining capacity is concentrated in a handful of countries",
					Topic:      "supply",
					Confidence: 0.8,
				}},
				FollowUps: []string{"how does chile regulate extraction?"},
			}, nil
		},
	}
	searcher := &fakeSearcher{results: map[string][]search.Result{
		"lithium supply chains overview":  {{URL: "https://example.com/l1"}},
		"chile lithium extraction policy": {{URL: "https://example.com/l2"}},
	}}

	engine := newTestEngine(testConfig(), client, searcher, &fakeExtractor{})

	res, err := engine.Run(context.Background(), Request{Query: "lithium supply", Depth: 2, Breadth: 1})
	require.NoError(t, err)

	assert.Equal(t, 2, client.planCalls, "each level generates once")
	assert.Len(t, searcher.queries, 2)
	assert.Len(t, res.Learnings, 2)

	// The follow-up consumed by level 1 generation is not a gap; the
	// one raised at the last level and never explored is.
	require.Contains(t, res.InformationMap, TopicGeneral)
	gaps := res.InformationMap[TopicGeneral].Gaps
	assert.Contains(t, gaps, "what are refining costs in chile?")
	assert.NotContains(t, gaps, "how does chile regulate extraction?")
}

func TestEngineQueryGenerationFailureCollapsesLevel(t *testing.T) {
	client := &fakeLLM{planErr: errors.New("llm offline")}
	searcher := &fakeSearcher{}

	engine := newTestEngine(testConfig(), client, searcher, &fakeExtractor{})

	res, err := engine.Run(context.Background(), Request{Query: "anything", Depth: 2, Breadth: 2})
	require.NoError(t, err, "generation failure collapses the level, it does not fail the run")

	assert.Empty(t, searcher.queries)
	assert.NotEmpty(t, thoughtsOfKind(res.Thoughts, ThoughtBranchFailed))
}

func thoughtsOfKind(thoughts []Thought, kind ThoughtKind) []Thought {
	var out []Thought

	for _, th := range thoughts {
		if th.Kind == kind {
			out = append(out, th)
		}
	}

	return out
}
