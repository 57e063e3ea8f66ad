package research

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/lueurxax/deep-research/internal/core/llm"
)

const (
	ratingMin = 1
	ratingMax = 5

	defaultFallbackDepth   = 2
	defaultFallbackBreadth = 4

	weightEntities = 0.5
	weightAspects  = 0.3
	weightKeywords = 0.7
	scoreDivisor   = 10.0

	qualityLengthNorm    = 300.0
	qualityWeightLength  = 0.3
	qualityWeightAgree   = 0.3
	qualityWeightDivers  = 0.4
	stopQualityThreshold = 0.6
	stopBudgetFraction   = 0.8
)

var complexityKeywords = []string{
	"why", "how", "impact", "implications", "analysis", "analyze",
	"compare", "comparison", "versus", "trend", "trends", "future",
	"tradeoffs", "relationship", "cause", "effects", "evaluate",
}

var aspectMarkers = []string{" and ", " vs ", " versus ", ",", ";"}

// Tuner derives effective (depth, breadth) for a query. The primary
// path asks the LLM for ordinal complexity and scope ratings; a lexical
// heuristic covers LLM failure. Pure: no memory writes.
type Tuner struct {
	client     llm.Client // nil disables the LLM path
	branchCost time.Duration
	logger     *zerolog.Logger
}

func NewTuner(client llm.Client, branchCost time.Duration, logger *zerolog.Logger) *Tuner {
	return &Tuner{client: client, branchCost: branchCost, logger: logger}
}

// Tune returns depth in [1,maxDepth] and breadth in [1,maxBreadth],
// scaled down when the expected work would overrun the budget. The
// budget fit is an estimate only; the engine's own budget check is the
// authoritative cutoff.
func (t *Tuner) Tune(ctx context.Context, query string, maxDepth, maxBreadth int, budget time.Duration) (int, int) {
	if maxDepth < 1 {
		maxDepth = 1
	}

	if maxBreadth < 1 {
		maxBreadth = 1
	}

	depth, breadth := t.rate(ctx, query, maxDepth, maxBreadth)

	return t.fitBudget(depth, breadth, budget)
}

func (t *Tuner) rate(ctx context.Context, query string, maxDepth, maxBreadth int) (int, int) {
	if t.client != nil {
		var rating llm.ComplexityRating

		err := t.client.CompleteObject(ctx, systemResearcher, complexityPrompt(query), &rating)
		if err == nil && validRating(rating) {
			return mapRating(rating.Complexity, maxDepth), mapRating(rating.Scope, maxBreadth)
		}

		t.logger.Debug().Err(err).Msg("complexity rating unavailable, using heuristic")
	}

	return heuristicTune(query, maxDepth, maxBreadth)
}

func validRating(r llm.ComplexityRating) bool {
	return r.Complexity >= ratingMin && r.Complexity <= ratingMax &&
		r.Scope >= ratingMin && r.Scope <= ratingMax
}

// mapRating monotonically maps an ordinal 1..5 rating into [1,limit].
func mapRating(rating, limit int) int {
	fraction := float64(rating-ratingMin) / float64(ratingMax-ratingMin)

	return clampInt(1+int(math.Round(fraction*float64(limit-1))), 1, limit)
}

// heuristicTune scores the query lexically: capitalized entities,
// aspect markers like conjunctions and commas, and complexity keywords.
// A query with no signal at all gets the conservative defaults.
func heuristicTune(query string, maxDepth, maxBreadth int) (int, int) {
	score := complexityScore(query)
	if score == 0 {
		return min(defaultFallbackDepth, maxDepth), min(defaultFallbackBreadth, maxBreadth)
	}

	depth := clampInt(1+int(math.Round(score*float64(maxDepth-1))), 1, maxDepth)
	breadth := clampInt(2+int(math.Round(score*float64(maxBreadth-2))), 1, maxBreadth)

	return depth, breadth
}

func complexityScore(query string) float64 {
	lower := strings.ToLower(query)

	entities := countCapitalizedWords(query)

	aspects := 0
	for _, marker := range aspectMarkers {
		aspects += strings.Count(lower, marker)
	}

	keywords := 0
	tokens := tokenize(lower)

	for _, kw := range complexityKeywords {
		if tokens[kw] {
			keywords++
		}
	}

	score := (float64(entities)*weightEntities +
		float64(aspects)*weightAspects +
		float64(keywords)*weightKeywords) / scoreDivisor

	return math.Min(score, 1)
}

func countCapitalizedWords(query string) int {
	count := 0

	for i, word := range strings.Fields(query) {
		if i == 0 {
			// Leading word is capitalized by convention, not signal.
			continue
		}

		runes := []rune(word)
		if len(runes) > 1 && unicode.IsUpper(runes[0]) {
			count++
		}
	}

	return count
}

// fitBudget shrinks (depth, breadth) until the estimated total work
// fits the budget, trimming breadth before depth.
func (t *Tuner) fitBudget(depth, breadth int, budget time.Duration) (int, int) {
	if budget <= 0 || t.branchCost <= 0 {
		return depth, breadth
	}

	for estimateRunCost(depth, breadth, t.branchCost) > budget {
		switch {
		case breadth > 1:
			breadth--
		case depth > 1:
			depth--
		default:
			return depth, breadth
		}
	}

	return depth, breadth
}

// estimateRunCost sums expected branch counts across levels. Breadth
// halves per level, mirroring the engine's recursion.
func estimateRunCost(depth, breadth int, branchCost time.Duration) time.Duration {
	branches := 0

	b := breadth
	for d := 0; d < max(depth, 1); d++ {
		branches += b
		b = max(1, (b+1)/2)
	}

	return time.Duration(branches) * branchCost
}

// RecommendStop estimates mid-run whether further levels are worth
// their cost. It recommends stopping when most of the budget is spent
// and the accumulated information already looks saturated.
func (t *Tuner) RecommendStop(elapsed, budget time.Duration, snapshot Result) (bool, string) {
	if budget <= 0 || len(snapshot.Learnings) == 0 {
		return false, ""
	}

	if elapsed < time.Duration(float64(budget)*stopBudgetFraction) {
		return false, ""
	}

	quality := estimateInfoQuality(snapshot)
	if quality < stopQualityThreshold {
		return false, ""
	}

	return true, fmt.Sprintf("%.0f%% of budget used with information quality %.2f",
		100*float64(elapsed)/float64(budget), quality)
}

// estimateInfoQuality blends average learning length, agreement (the
// inverse of the contradiction ratio) and lexical diversity into [0,1].
func estimateInfoQuality(snapshot Result) float64 {
	if len(snapshot.Learnings) == 0 {
		return 0
	}

	totalLen := 0
	vocabulary := make(map[string]bool)
	totalTokens := 0

	for _, l := range snapshot.Learnings {
		totalLen += len(l.Statement)

		for token := range tokenize(l.Statement) {
			vocabulary[token] = true
			totalTokens++
		}
	}

	avgLen := float64(totalLen) / float64(len(snapshot.Learnings))
	lengthScore := math.Min(avgLen/qualityLengthNorm, 1)

	agreement := 1 - math.Min(float64(len(snapshot.Contradictions))/float64(len(snapshot.Learnings)), 1)

	diversity := 0.0
	if totalTokens > 0 {
		diversity = float64(len(vocabulary)) / float64(totalTokens)
	}

	return qualityWeightLength*lengthScore + qualityWeightAgree*agreement + qualityWeightDivers*diversity
}

func clampInt(v, lo, hi int) int {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
