package research

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/deep-research/internal/core/llm"
	"github.com/lueurxax/deep-research/internal/platform/config"
	"github.com/lueurxax/deep-research/internal/process/scrape"
	"github.com/lueurxax/deep-research/internal/process/search"
)

func testConfig() *config.Config {
	return &config.Config{
		MaxDepth:               5,
		MaxBreadth:             8,
		ResultsPerQuery:        4,
		DedupSimilarity:        0.85,
		QueryDedupSimilarity:   0.75,
		CredibilityFloor:       0.35,
		EntityOverlapThreshold: 0.4,
		BranchTimeout:          30 * time.Second,
		EstimatedBranchCost:    20 * time.Second,
	}
}

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()

	return &l
}

// fakeLLM scripts the three structured completions the engine makes.
type fakeLLM struct {
	mu        sync.Mutex
	plans     [][]llm.SubQuery // consumed one per generation call
	planErr   error
	planCalls int
	rating    llm.ComplexityRating
	ratingErr error
	extract   func(prompt string) (llm.Extraction, error)
}

func (f *fakeLLM) CompleteText(_ context.Context, _, _ string) (string, error) {
	return "", nil
}

func (f *fakeLLM) CompleteObject(_ context.Context, _, prompt string, target any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch t := target.(type) {
	case *llm.QueryPlan:
		f.planCalls++

		if f.planErr != nil {
			return f.planErr
		}

		if len(f.plans) == 0 {
			return nil
		}

		t.Queries = f.plans[0]
		f.plans = f.plans[1:]

		return nil
	case *llm.ComplexityRating:
		if f.ratingErr != nil {
			return f.ratingErr
		}

		*t = f.rating

		return nil
	case *llm.Extraction:
		if f.extract == nil {
			return nil
		}

		ex, err := f.extract(prompt)
		if err != nil {
			return err
		}

		*t = ex

		return nil
	default:
		return fmt.Errorf("unexpected target %T", target)
	}
}

// fakeSearcher serves canned results per query and records every URL it
// ever returned.
type fakeSearcher struct {
	mu       sync.Mutex
	results  map[string][]search.Result
	errs     map[string]error
	queries  []string
	returned []string
}

func (f *fakeSearcher) SearchWithFallback(_ context.Context, query string, _ int) ([]search.Result, search.ProviderName, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries = append(f.queries, query)

	if err := f.errs[query]; err != nil {
		return nil, "", err
	}

	results := f.results[query]
	for _, r := range results {
		f.returned = append(f.returned, r.URL)
	}

	return results, "fake", nil
}

func (f *fakeSearcher) returnedURLs() map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	set := make(map[string]bool, len(f.returned))
	for _, u := range f.returned {
		set[u] = true
	}

	return set
}

// fakeExtractor serves canned content per URL and counts fetches.
type fakeExtractor struct {
	mu       sync.Mutex
	contents map[string]*scrape.Content
	errs     map[string]error
	calls    map[string]int
}

func (f *fakeExtractor) Extract(_ context.Context, url string) (*scrape.Content, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.calls == nil {
		f.calls = make(map[string]int)
	}

	f.calls[url]++

	if err := f.errs[url]; err != nil {
		return nil, err
	}

	if c, ok := f.contents[url]; ok {
		return c, nil
	}

	return &scrape.Content{URL: url, Title: "page", Text: "text"}, nil
}

func newTestEngine(cfg *config.Config, client llm.Client, searcher Searcher, extractor ContentExtractor) *Engine {
	logger := nopLogger()
	validator := NewValidator(cfg.CredibilityFloor, cfg.EntityOverlapThreshold, nil, nil, nil, logger)
	tuner := NewTuner(client, cfg.EstimatedBranchCost, logger)

	return NewEngine(cfg, client, searcher, extractor, validator, tuner, logger)
}
