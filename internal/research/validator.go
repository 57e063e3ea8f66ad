package research

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/deep-research/internal/core/llm"
	"github.com/lueurxax/deep-research/internal/platform/observability"
)

const (
	domainScoreDeny    = 0.1
	domainScoreAllow   = 0.9
	domainScoreNeutral = 0.5
	domainScoreBoost   = 0.2
	domainScoreHTTPS   = 0.05

	weightDomain     = 0.5
	weightConfidence = 0.5
	weightHeuristic  = 0.6
	weightJudgment   = 0.4

	temporalPenalty  = 0.2
	numericalPenalty = 0.15

	rejectReasonTemporal = "temporal"
	rejectReasonFloor    = "credibility_floor"
)

// Verdict is the outcome of validating one candidate learning.
type Verdict struct {
	Accepted    bool
	Credibility float64
	Relevance   float64
	Rationale   string
	Conflicts   []Conflict
}

// Conflict pairs an existing learning with a description of how the
// candidate contradicts it.
type Conflict struct {
	Existing    Learning
	Description string
}

// Validator scores candidate learnings for credibility and relevance,
// flags temporally or numerically implausible claims, and detects
// contradictions against already stored learnings. The LLM judgment is
// optional; with a nil client scoring is purely heuristic and
// deterministic.
type Validator struct {
	floor            float64
	overlapThreshold float64
	allowDomains     []string
	denyDomains      []string
	judge            llm.Client
	logger           *zerolog.Logger
}

func NewValidator(floor, overlapThreshold float64, allowDomains, denyDomains []string, judge llm.Client, logger *zerolog.Logger) *Validator {
	return &Validator{
		floor:            floor,
		overlapThreshold: overlapThreshold,
		allowDomains:     allowDomains,
		denyDomains:      denyDomains,
		judge:            judge,
		logger:           logger,
	}
}

// Validate scores one candidate against its source and the learnings
// accumulated so far. A rejected candidate still yields a meaningful
// credibility score so the caller can record the source evaluation.
func (v *Validator) Validate(ctx context.Context, cand llm.ExtractedLearning, sourceURL, query string, asOf time.Time, existing []Learning) Verdict {
	if asOf.IsZero() {
		asOf = time.Now()
	}

	var reasons []string

	credibility := v.baseCredibility(ctx, cand, sourceURL, &reasons)
	relevance := relevanceScore(query, cand.Statement)

	if issue := temporalIssue(cand.Statement, asOf); issue != "" {
		observability.ContentRejected.WithLabelValues(rejectReasonTemporal).Inc()

		return Verdict{
			Accepted:    false,
			Credibility: clamp01(credibility - temporalPenalty),
			Relevance:   relevance,
			Rationale:   issue,
		}
	}

	if issue := numericalIssue(cand.Statement); issue != "" {
		credibility -= numericalPenalty

		reasons = append(reasons, issue)
	}

	credibility = clamp01(credibility)

	verdict := Verdict{
		Credibility: credibility,
		Relevance:   relevance,
		Conflicts:   v.findConflicts(cand, existing),
	}

	if credibility < v.floor {
		observability.ContentRejected.WithLabelValues(rejectReasonFloor).Inc()

		reasons = append(reasons, fmt.Sprintf("credibility %.2f below floor %.2f", credibility, v.floor))
		verdict.Rationale = strings.Join(reasons, "; ")

		return verdict
	}

	verdict.Accepted = true
	verdict.Rationale = strings.Join(reasons, "; ")

	return verdict
}

// EvaluateSource scores a URL on domain reputation alone, for pages
// that yielded no candidate learnings.
func (v *Validator) EvaluateSource(sourceURL string) SourceEvaluation {
	var reasons []string

	score := v.domainReputation(sourceURL, &reasons)

	return SourceEvaluation{
		URL:         sourceURL,
		Credibility: score,
		Rationale:   strings.Join(reasons, "; "),
		EvaluatedAt: time.Now(),
	}
}

func (v *Validator) baseCredibility(ctx context.Context, cand llm.ExtractedLearning, sourceURL string, reasons *[]string) float64 {
	domainScore := v.domainReputation(sourceURL, reasons)
	if domainScore <= domainScoreDeny {
		// Denylisted or unparseable sources are not rescued by a
		// confident extraction.
		return domainScore
	}

	heuristic := weightDomain*domainScore + weightConfidence*clamp01(cand.Confidence)

	if v.judge == nil {
		return heuristic
	}

	var judgment llm.CredibilityJudgment

	prompt := credibilityPrompt(cand.Statement, sourceURL)
	if err := v.judge.CompleteObject(ctx, systemValidator, prompt, &judgment); err != nil {
		// Judgment failure is recoverable, fall back to heuristics only.
		v.logger.Debug().Err(err).Str("url", sourceURL).Msg("credibility judgment unavailable")

		return heuristic
	}

	if judgment.Reason != "" {
		*reasons = append(*reasons, judgment.Reason)
	}

	return weightHeuristic*heuristic + weightJudgment*clamp01(judgment.Score)
}

// domainReputation scores the source domain against the configured
// allow and deny lists plus coarse heuristics.
func (v *Validator) domainReputation(sourceURL string, reasons *[]string) float64 {
	u, err := url.Parse(sourceURL)
	if err != nil || u.Hostname() == "" {
		*reasons = append(*reasons, "unparseable source URL")

		return domainScoreDeny
	}

	host := strings.ToLower(u.Hostname())

	for _, d := range v.denyDomains {
		if matchesDomain(host, d) {
			*reasons = append(*reasons, "denylisted domain "+host)

			return domainScoreDeny
		}
	}

	for _, d := range v.allowDomains {
		if matchesDomain(host, d) {
			*reasons = append(*reasons, "allowlisted domain "+host)

			return domainScoreAllow
		}
	}

	score := domainScoreNeutral

	if strings.HasSuffix(host, ".gov") || strings.HasSuffix(host, ".edu") {
		score += domainScoreBoost
	}

	if u.Scheme == "https" {
		score += domainScoreHTTPS
	}

	return clamp01(score)
}

func matchesDomain(host, pattern string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return false
	}

	return host == pattern || strings.HasSuffix(host, "."+pattern)
}

// findConflicts compares the candidate against stored learnings of the
// same topic. A conflict needs both substantial entity overlap and a
// negation or opposing-direction pattern; the first claim on a subject
// is never contradictory.
func (v *Validator) findConflicts(cand llm.ExtractedLearning, existing []Learning) []Conflict {
	topic := cand.Topic
	if topic == "" {
		topic = TopicGeneral
	}

	candText := NormalizeText(cand.Statement)

	var conflicts []Conflict

	for _, l := range existing {
		if l.Topic != topic {
			continue
		}

		overlap := entityOverlap(cand.Entities, l.Entities)
		if overlap < v.overlapThreshold {
			continue
		}

		if !hasContradictingPatterns(candText, NormalizeText(l.Statement)) {
			continue
		}

		conflicts = append(conflicts, Conflict{
			Existing: l,
			Description: fmt.Sprintf("claims about %s disagree: %q vs %q",
				strings.Join(sharedEntities(cand.Entities, l.Entities), ", "),
				truncateStatement(cand.Statement), truncateStatement(l.Statement)),
		})
	}

	return conflicts
}

func entityOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	matches := 0

	for _, e := range a {
		if entityIn(e, b) {
			matches++
		}
	}

	return float64(matches) / float64(len(a))
}

func sharedEntities(a, b []string) []string {
	var shared []string

	for _, e := range a {
		if entityIn(e, b) {
			shared = append(shared, e)
		}
	}

	return shared
}

func entityIn(entity string, candidates []string) bool {
	n1 := normalizeEntity(entity)

	for _, c := range candidates {
		n2 := normalizeEntity(c)
		if n1 == n2 {
			return true
		}

		// Partial match: one name is a prefix of the other, but not too short
		if len(n1) > 4 && len(n2) > 4 && (strings.HasPrefix(n1, n2) || strings.HasPrefix(n2, n1)) {
			return true
		}
	}

	return false
}

func normalizeEntity(text string) string {
	text = NormalizeText(strings.TrimSpace(text))

	for _, suffix := range []string{" inc", " corp", " ltd", " llc", " limited"} {
		text = strings.TrimSuffix(text, suffix)
	}

	var b strings.Builder

	for _, r := range text {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	return b.String()
}

var negationWords = []string{
	"not", "never", "none", "nothing", "neither",
	"deny", "denied", "denies", "false", "untrue", "incorrect",
	"wrong", "misleading", "debunked", "refuted", "disproven",
	"contrary", "opposite",
}

var opposingPairs = [][2]string{
	{"increased", "decreased"},
	{"rose", "fell"},
	{"gained", "lost"},
	{"higher", "lower"},
	{"growth", "decline"},
	{"success", "failure"},
	{"approved", "rejected"},
	{"confirmed", "denied"},
}

func hasContradictingPatterns(a, b string) bool {
	aTokens := tokenize(a)
	bTokens := tokenize(b)

	for _, neg := range negationWords {
		if aTokens[neg] != bTokens[neg] {
			return true
		}
	}

	for _, pair := range opposingPairs {
		if aTokens[pair[0]] && bTokens[pair[1]] || aTokens[pair[1]] && bTokens[pair[0]] {
			return true
		}
	}

	return false
}

var futureEventPattern = regexp.MustCompile(
	`(?i)(upcoming|scheduled for|will take place|will be held|expected in)\s+(?:in\s+)?` +
		`(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{4})`)

// temporalIssue flags statements that announce an event as upcoming
// when the referenced month already lies in the past relative to asOf.
func temporalIssue(statement string, asOf time.Time) string {
	m := futureEventPattern.FindStringSubmatch(statement)
	if m == nil {
		return ""
	}

	month := monthIndex(strings.ToLower(m[2]))

	year, err := strconv.Atoi(m[3])
	if err != nil || month == 0 {
		return ""
	}

	// End of the named month
	eventEnd := time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC)
	if eventEnd.After(asOf) {
		return ""
	}

	return fmt.Sprintf("announced as upcoming but %s %d is already past", m[2], year)
}

func monthIndex(name string) int {
	months := []string{
		"january", "february", "march", "april", "may", "june",
		"july", "august", "september", "october", "november", "december",
	}

	for i, m := range months {
		if m == name {
			return i + 1
		}
	}

	return 0
}

var percentPattern = regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*(?:%|percent)`)

var growthContextWords = []string{
	"growth", "increase", "increased", "decrease", "decreased", "rise",
	"rose", "surge", "jump", "decline", "change", "delta", "yoy",
	"faster", "slower", "down",
}

// numericalIssue flags percentages outside [0,100] without growth or
// delta context. The claim stays usable, credibility just drops.
func numericalIssue(statement string) string {
	matches := percentPattern.FindAllStringSubmatch(statement, -1)
	if matches == nil {
		return ""
	}

	tokens := tokenize(statement)

	for _, w := range growthContextWords {
		if tokens[w] {
			return ""
		}
	}

	for _, m := range matches {
		value, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}

		if value < 0 || value > 100 {
			return fmt.Sprintf("percentage %.4g outside [0,100] without growth context", value)
		}
	}

	return ""
}

// relevanceScore measures lexical overlap between the driving query and
// the extracted statement.
func relevanceScore(query, statement string) float64 {
	return jaccardSimilarity(tokenize(query), tokenize(statement))
}

func truncateStatement(s string) string {
	const maxLen = 100

	if len(s) <= maxLen {
		return s
	}

	return s[:maxLen] + "..."
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
