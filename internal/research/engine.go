package research

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lueurxax/deep-research/internal/core/llm"
	"github.com/lueurxax/deep-research/internal/platform/config"
	"github.com/lueurxax/deep-research/internal/platform/observability"
	"github.com/lueurxax/deep-research/internal/process/scrape"
	"github.com/lueurxax/deep-research/internal/process/search"
)

const (
	logKeyQuery = "query"
	logKeyLevel = "level"
	logKeyURL   = "url"
)

// Searcher is the search boundary the engine drives.
type Searcher interface {
	SearchWithFallback(ctx context.Context, query string, maxResults int) ([]search.Result, search.ProviderName, error)
}

// ContentExtractor is the scrape boundary the engine drives.
type ContentExtractor interface {
	Extract(ctx context.Context, url string) (*scrape.Content, error)
}

// Engine orchestrates the recursive expansion loop: generate
// sub-queries, run branches concurrently, validate and store findings,
// recurse with what was learned. Each Run owns its private Store.
type Engine struct {
	cfg       *config.Config
	client    llm.Client
	searcher  Searcher
	extractor ContentExtractor
	validator *Validator
	tuner     *Tuner
	logger    *zerolog.Logger
}

func NewEngine(cfg *config.Config, client llm.Client, searcher Searcher, extractor ContentExtractor, validator *Validator, tuner *Tuner, logger *zerolog.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		client:    client,
		searcher:  searcher,
		extractor: extractor,
		validator: validator,
		tuner:     tuner,
		logger:    logger,
	}
}

// runState is the run-scoped shared state. The Store serializes its own
// writes; everything else here is guarded by mu.
type runState struct {
	store   *Store
	started time.Time
	asOf    time.Time

	budget    time.Duration
	hasBudget bool
	budgetHit bool

	mu           sync.Mutex
	dispatched   []map[string]bool // token sets of dispatched queries
	followUps    []string
	followUpSeen map[string]bool
	attempted    int
	reachable    bool
}

func (st *runState) markAttempted() {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.attempted++
}

func (st *runState) markReachable() {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.reachable = true
}

// noteDispatched returns false when the query is a near duplicate of
// one already dispatched this run.
func (st *runState) noteDispatched(query string, threshold float64) bool {
	tokens := tokenize(query)

	st.mu.Lock()
	defer st.mu.Unlock()

	for _, prior := range st.dispatched {
		if jaccardSimilarity(prior, tokens) >= threshold {
			return false
		}
	}

	st.dispatched = append(st.dispatched, tokens)

	return true
}

func (st *runState) addFollowUps(questions []string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	for _, q := range questions {
		q = strings.TrimSpace(q)
		if q == "" || st.followUpSeen[q] {
			continue
		}

		st.followUpSeen[q] = true
		st.followUps = append(st.followUps, q)
	}
}

func (st *runState) takeFollowUps() []string {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := st.followUps
	st.followUps = nil

	return out
}

func (st *runState) overBudget() bool {
	return st.hasBudget && time.Since(st.started) > st.budget
}

// Run executes one research run and returns an independently mutable
// result snapshot. Only configuration problems abort before work
// starts; branch failures and budget exhaustion degrade the result
// instead of failing it.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	if err := e.prepare(ctx, &req); err != nil {
		return nil, err
	}

	start := time.Now()

	st := &runState{
		store:        NewStore(e.cfg.DedupSimilarity),
		started:      start,
		asOf:         req.AsOf,
		budget:       req.TimeBudget,
		hasBudget:    req.HasBudget,
		followUpSeen: make(map[string]bool),
	}

	if st.asOf.IsZero() {
		st.asOf = start
	}

	st.store.AppendThought(Thought{
		Kind:    ThoughtParameters,
		Message: fmt.Sprintf("running %q with depth=%d breadth=%d", req.Query, req.Depth, req.Breadth),
		At:      time.Now(),
	})

	e.expand(ctx, st, req)

	// Follow-ups never explored are exactly the identified gaps.
	for _, q := range st.takeFollowUps() {
		st.store.RecordGap(TopicGeneral, q)
	}

	st.mu.Lock()
	attempted, reachable := st.attempted, st.reachable
	st.mu.Unlock()

	if attempted > 0 && !reachable {
		return nil, fmt.Errorf("%w: %d branches attempted", ErrNothingAttempted, attempted)
	}

	res := st.store.Snapshot()
	res.Query = req.Query
	res.Depth = req.Depth
	res.Breadth = req.Breadth
	res.BudgetExceeded = st.budgetHit
	res.StartedAt = start
	res.FinishedAt = time.Now()

	observability.RunDuration.Observe(res.FinishedAt.Sub(start).Seconds())

	return &res, nil
}

// prepare validates the request and resolves effective parameters.
func (e *Engine) prepare(ctx context.Context, req *Request) error {
	if strings.TrimSpace(req.Query) == "" {
		return fmt.Errorf("%w: %w", ErrConfiguration, ErrEmptyQuery)
	}

	if req.MaxDepth <= 0 {
		req.MaxDepth = e.cfg.MaxDepth
	}

	if req.MaxBreadth <= 0 {
		req.MaxBreadth = e.cfg.MaxBreadth
	}

	if req.AutoTune {
		budget := time.Duration(-1)
		if req.HasBudget {
			budget = req.TimeBudget
		}

		req.Depth, req.Breadth = e.tuner.Tune(ctx, req.Query, req.MaxDepth, req.MaxBreadth, budget)

		return nil
	}

	if req.Depth < 0 {
		return fmt.Errorf("%w: %w: got %d", ErrConfiguration, ErrInvalidDepth, req.Depth)
	}

	if req.Breadth < 1 {
		return fmt.Errorf("%w: %w: got %d", ErrConfiguration, ErrInvalidBreadth, req.Breadth)
	}

	return nil
}

// expand drives the level loop. Levels run strictly in sequence;
// branches within a level run concurrently up to the level's breadth.
func (e *Engine) expand(ctx context.Context, st *runState, req Request) {
	if req.Depth == 0 {
		// Single pass: answer from the root query, no sub-queries.
		if !st.checkBudget() {
			return
		}

		st.noteDispatched(req.Query, e.cfg.QueryDedupSimilarity)
		e.runBranch(ctx, st, llm.SubQuery{Query: req.Query, Goal: "direct answer"}, 0)

		return
	}

	breadth := req.Breadth

	for level := 0; level < req.Depth; level++ {
		if !st.checkBudget() {
			return
		}

		if e.shouldStopEarly(st, level) {
			return
		}

		queries := e.generateQueries(ctx, st, req.Query, breadth, level)
		if len(queries) == 0 {
			// Query generation failed or everything was a duplicate:
			// the level collapses to a leaf.
			return
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(breadth)

		for _, q := range queries {
			g.Go(func() error {
				e.runBranch(gctx, st, q, level)

				return nil
			})
		}

		_ = g.Wait() // branches never return errors

		st.store.AppendThought(Thought{
			Kind:    ThoughtLevelComplete,
			Message: fmt.Sprintf("level %d finished with %d branches", level, len(queries)),
			At:      time.Now(),
		})

		breadth = max(1, (breadth+1)/2)
	}
}

// checkBudget returns false and records the marker once the budget is
// exceeded. Already-dispatched work is never interrupted; this gate
// only stops new levels from starting.
func (st *runState) checkBudget() bool {
	if !st.overBudget() {
		return true
	}

	if !st.budgetHit {
		st.budgetHit = true
		st.store.AppendThought(Thought{
			Kind:    ThoughtBudgetExceeded,
			Message: fmt.Sprintf("time budget %s exhausted after %s, stopping expansion", st.budget, time.Since(st.started).Round(time.Millisecond)),
			At:      time.Now(),
		})
	}

	return false
}

func (e *Engine) shouldStopEarly(st *runState, level int) bool {
	if level == 0 || !st.hasBudget {
		return false
	}

	stop, reason := e.tuner.RecommendStop(time.Since(st.started), st.budget, st.store.Snapshot())
	if !stop {
		return false
	}

	st.store.AppendThought(Thought{
		Kind:    ThoughtStopAdvised,
		Message: reason,
		At:      time.Now(),
	})

	return true
}

// generateQueries asks the LLM for up to breadth sub-queries informed
// by the learnings and open questions accumulated so far, then drops
// near duplicates of queries already dispatched this run.
func (e *Engine) generateQueries(ctx context.Context, st *runState, rootQuery string, breadth, level int) []llm.SubQuery {
	prompt := queryGenerationPrompt(rootQuery, st.store.Learnings(), breadth)

	if followUps := st.takeFollowUps(); len(followUps) > 0 {
		prompt += "\n\nOpen questions raised by earlier findings:\n- " + strings.Join(followUps, "\n- ")
	}

	var plan llm.QueryPlan
	if err := e.client.CompleteObject(ctx, systemResearcher, prompt, &plan); err != nil {
		st.store.AppendThought(Thought{
			Kind:    ThoughtBranchFailed,
			Message: fmt.Sprintf("query generation failed at level %d: %v", level, err),
			At:      time.Now(),
		})

		return nil
	}

	accepted := make([]llm.SubQuery, 0, breadth)

	for _, q := range plan.Queries {
		if len(accepted) >= breadth {
			break
		}

		q.Query = strings.TrimSpace(q.Query)
		if q.Query == "" {
			continue
		}

		if !st.noteDispatched(q.Query, e.cfg.QueryDedupSimilarity) {
			st.store.AppendThought(Thought{
				Kind:    ThoughtQueryDropped,
				Message: fmt.Sprintf("dropped near-duplicate query %q", q.Query),
				At:      time.Now(),
			})

			continue
		}

		st.store.AppendThought(Thought{
			Kind:    ThoughtQueryGenerated,
			Message: fmt.Sprintf("level %d: %q (%s)", level, q.Query, q.Goal),
			At:      time.Now(),
		})

		accepted = append(accepted, q)
	}

	return accepted
}

// runBranch executes one sub-query end to end: search, then per result
// extract, validate and store. A branch failure is recorded as a
// thought and never disturbs its siblings.
func (e *Engine) runBranch(ctx context.Context, st *runState, q llm.SubQuery, level int) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.BranchTimeout)
	defer cancel()

	st.markAttempted()

	results, provider, err := e.searcher.SearchWithFallback(ctx, q.Query, e.cfg.ResultsPerQuery)
	if err != nil {
		observability.BranchesFailed.Inc()
		st.store.AppendThought(Thought{
			Kind:    ThoughtBranchFailed,
			Message: fmt.Sprintf("level %d: search failed for %q: %v", level, q.Query, err),
			At:      time.Now(),
		})

		return
	}

	st.markReachable()

	e.logger.Debug().
		Str(logKeyQuery, q.Query).
		Int(logKeyLevel, level).
		Str("provider", string(provider)).
		Int("results", len(results)).
		Msg("search completed")

	stored := 0

	for _, r := range results {
		if !st.store.MarkVisited(r.URL) {
			continue
		}

		stored += e.processResult(ctx, st, q, r.URL, r.Title)
	}

	if stored == 0 {
		// The question was asked but nothing answered it.
		st.store.RecordGap(TopicGeneral, q.Query)
	}
}

// processResult extracts and validates one search hit, returning the
// number of learnings stored from it.
func (e *Engine) processResult(ctx context.Context, st *runState, q llm.SubQuery, url, title string) int {
	content, err := e.extractor.Extract(ctx, url)
	if err != nil {
		e.logger.Debug().Err(err).Str(logKeyURL, url).Msg("extraction failed")

		return 0
	}

	st.markReachable()

	var extraction llm.Extraction

	prompt := extractionPrompt(q.Query, coalesceStr(content.Title, title), content.Text)
	if err := e.client.CompleteObject(ctx, systemResearcher, prompt, &extraction); err != nil {
		e.logger.Debug().Err(err).Str(logKeyURL, url).Msg("learning extraction failed")

		return 0
	}

	if len(extraction.Learnings) == 0 {
		st.store.RecordSourceEvaluation(e.validator.EvaluateSource(url))

		return 0
	}

	st.addFollowUps(extraction.FollowUps)

	stored := 0

	for _, cand := range extraction.Learnings {
		verdict := e.validator.Validate(ctx, cand, url, q.Query, st.asOf, st.store.Learnings())

		st.store.RecordSourceEvaluation(SourceEvaluation{
			URL:         url,
			Credibility: verdict.Credibility,
			Relevance:   verdict.Relevance,
			Rationale:   verdict.Rationale,
			EvaluatedAt: time.Now(),
		})

		if !verdict.Accepted {
			continue
		}

		topic := cand.Topic
		if topic == "" {
			topic = TopicGeneral
		}

		kept, merged := st.store.AddLearning(Learning{
			Statement:   cand.Statement,
			Topic:       topic,
			Entities:    cand.Entities,
			SourceURL:   url,
			Credibility: verdict.Credibility,
			ExtractedAt: time.Now(),
		})

		if !merged {
			stored++
		}

		for _, conflict := range verdict.Conflicts {
			if conflict.Existing.ID == kept.ID {
				// The candidate merged into the learning it conflicted
				// with; nothing to record.
				continue
			}

			st.store.RecordContradiction(Contradiction{
				Topic:       topic,
				LearningA:   conflict.Existing.ID,
				LearningB:   kept.ID,
				Description: conflict.Description,
				DetectedAt:  time.Now(),
			})
		}
	}

	return stored
}

func coalesceStr(a, b string) string {
	if a != "" {
		return a
	}

	return b
}
