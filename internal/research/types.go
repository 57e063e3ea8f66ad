package research

import (
	"errors"
	"time"
)

// Learning is a single atomic finding. Immutable once stored; near
// duplicates are merged by the store, keeping the higher-credibility
// instance.
type Learning struct {
	ID          string    `json:"id"`
	Statement   string    `json:"statement"`
	Topic       string    `json:"topic"`
	Entities    []string  `json:"entities,omitempty"`
	SourceURL   string    `json:"source_url"`
	Credibility float64   `json:"credibility"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// SourceEvaluation records credibility and relevance for one URL.
// Created on first extraction from that URL, never mutated afterwards.
type SourceEvaluation struct {
	URL         string    `json:"url"`
	Credibility float64   `json:"credibility"`
	Relevance   float64   `json:"relevance"`
	Rationale   string    `json:"rationale"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Contradiction links two stored learnings that assign incompatible
// claims to the same topic and entity.
type Contradiction struct {
	ID          string    `json:"id"`
	Topic       string    `json:"topic"`
	LearningA   string    `json:"learning_a"`
	LearningB   string    `json:"learning_b"`
	Description string    `json:"description"`
	DetectedAt  time.Time `json:"detected_at"`
}

// TopicEntry aggregates per-topic state: consensus statements in
// arrival order, contradiction IDs and open gaps.
type TopicEntry struct {
	Topic          string   `json:"topic"`
	Consensus      []string `json:"consensus"`
	Contradictions []string `json:"contradictions,omitempty"`
	Gaps           []string `json:"gaps,omitempty"`
}

// ThoughtKind classifies a chain-of-thought entry.
type ThoughtKind string

const (
	ThoughtParameters     ThoughtKind = "parameters_chosen"
	ThoughtQueryGenerated ThoughtKind = "query_generated"
	ThoughtQueryDropped   ThoughtKind = "query_dropped"
	ThoughtBranchFailed   ThoughtKind = "branch_failed"
	ThoughtLevelComplete  ThoughtKind = "level_complete"
	ThoughtBudgetExceeded ThoughtKind = "budget_exceeded"
	ThoughtStopAdvised    ThoughtKind = "stop_recommended"
)

// Thought is one chain-of-thought entry. Entries are appended in
// decision order, which for concurrent branches means completion order.
type Thought struct {
	Seq     int         `json:"seq"`
	Kind    ThoughtKind `json:"kind"`
	Message string      `json:"message"`
	At      time.Time   `json:"at"`
}

// Request describes one research run.
type Request struct {
	Query      string        `json:"query"`
	Depth      int           `json:"depth"`
	Breadth    int           `json:"breadth"`
	AutoTune   bool          `json:"auto_tune"`
	MaxDepth   int           `json:"max_depth"`
	MaxBreadth int           `json:"max_breadth"`
	// TimeBudget only applies when HasBudget is set, so a zero budget
	// (stop almost immediately) stays distinguishable from no budget.
	TimeBudget time.Duration `json:"time_budget"`
	HasBudget  bool          `json:"has_budget"`
	// AsOf is the reference time for temporal validation. Zero means now.
	AsOf time.Time `json:"as_of"`
}

// Result is the deep-copied outcome of a run.
type Result struct {
	Query             string                `json:"query"`
	Depth             int                   `json:"depth"`
	Breadth           int                   `json:"breadth"`
	Learnings         []Learning            `json:"learnings"`
	VisitedURLs       []string              `json:"visited_urls"`
	Thoughts          []Thought             `json:"chain_of_thought"`
	InformationMap    map[string]TopicEntry `json:"information_map"`
	Contradictions    []Contradiction       `json:"contradictions"`
	SourceEvaluations []SourceEvaluation    `json:"source_evaluations"`
	BudgetExceeded    bool                  `json:"budget_exceeded"`
	StartedAt         time.Time             `json:"started_at"`
	FinishedAt        time.Time             `json:"finished_at"`
}

// TopicGeneral is the implicit topic for untagged learnings.
const TopicGeneral = "general"

// ErrConfiguration marks invalid run parameters. Wrapped by the
// specific violation and surfaced before any work starts.
var ErrConfiguration = errors.New("invalid research configuration")

var (
	ErrEmptyQuery     = errors.New("query must not be empty")
	ErrInvalidDepth   = errors.New("depth must be >= 0")
	ErrInvalidBreadth = errors.New("breadth must be >= 1")
)

// ErrNothingAttempted reports that every attempted branch failed on its
// external calls, distinguishing "nothing found" from "could not
// attempt anything".
var ErrNothingAttempted = errors.New("no external capability was reachable for any branch")
