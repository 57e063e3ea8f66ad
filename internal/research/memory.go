package research

import (
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/lueurxax/deep-research/internal/platform/observability"
)

const minTokenLength = 3

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true,
	"were": true, "this": true, "that": true, "with": true, "from": true,
	"has": true, "have": true, "had": true, "its": true, "their": true,
	"been": true, "will": true, "would": true, "which": true, "about": true,
}

// Store accumulates a single run's learnings, visited URLs, source
// evaluations, contradictions and the per-topic information map. All
// mutations are serialized behind one mutex, so concurrent branches
// never observe a partially merged state. Runs must not share a Store.
type Store struct {
	mu sync.Mutex

	simThreshold float64

	learnings      []Learning
	tokens         []map[string]bool // parallel to learnings
	visited        map[string]struct{}
	visitedOrder   []string
	evaluations    map[string]SourceEvaluation
	evalOrder      []string
	contradictions []Contradiction
	topicLearnings map[string][]string // topic -> learning IDs in arrival order
	topicOrder     []string
	gaps           map[string][]string
	gapSeen        map[string]struct{}
	thoughts       []Thought
}

// NewStore creates an empty store. simThreshold is the normalized text
// similarity above which two learnings are considered near duplicates.
func NewStore(simThreshold float64) *Store {
	return &Store{
		simThreshold:   simThreshold,
		visited:        make(map[string]struct{}),
		evaluations:    make(map[string]SourceEvaluation),
		topicLearnings: make(map[string][]string),
		gaps:           make(map[string][]string),
		gapSeen:        make(map[string]struct{}),
	}
}

// AddLearning stores a learning, merging near duplicates. When an
// existing learning's similarity exceeds the threshold, the higher
// credibility instance is kept; ties keep the earlier one. Returns the
// retained learning and whether a merge happened.
func (s *Store) AddLearning(l Learning) (Learning, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l.ID == "" {
		l.ID = uuid.NewString()
	}

	if l.Topic == "" {
		l.Topic = TopicGeneral
	}

	newTokens := tokenize(l.Statement)

	for i, existing := range s.learnings {
		if jaccardSimilarity(s.tokens[i], newTokens) < s.simThreshold {
			continue
		}

		observability.LearningsMerged.Inc()

		if l.Credibility > existing.Credibility {
			// Keep the newcomer in the incumbent's slot so topic
			// membership and ordering survive the merge.
			l.ID = existing.ID
			l.Topic = existing.Topic
			s.learnings[i] = l
			s.tokens[i] = newTokens

			return l, true
		}

		return existing, true
	}

	s.learnings = append(s.learnings, l)
	s.tokens = append(s.tokens, newTokens)
	s.addToTopic(l.Topic, l.ID)

	observability.LearningsStored.Inc()

	return l, false
}

// RecordSourceEvaluation stores the evaluation for a URL. A second call
// for the same URL is a no-op.
func (s *Store) RecordSourceEvaluation(e SourceEvaluation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.evaluations[e.URL]; ok {
		return
	}

	s.evaluations[e.URL] = e
	s.evalOrder = append(s.evalOrder, e.URL)
}

// RecordContradiction stores a contradiction. Both referenced learnings
// must already exist in the store; unknown references are dropped.
func (s *Store) RecordContradiction(c Contradiction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasLearning(c.LearningA) || !s.hasLearning(c.LearningB) {
		return false
	}

	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	if c.Topic == "" {
		c.Topic = TopicGeneral
	}

	s.contradictions = append(s.contradictions, c)
	s.ensureTopic(c.Topic)

	observability.ContradictionsDetected.Inc()

	return true
}

// MarkVisited records a URL. Returns false if it was already visited.
func (s *Store) MarkVisited(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.visited[url]; ok {
		return false
	}

	s.visited[url] = struct{}{}
	s.visitedOrder = append(s.visitedOrder, url)

	return true
}

// RecordGap notes a sub-question that was asked but never answered.
func (s *Store) RecordGap(topic, question string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if topic == "" {
		topic = TopicGeneral
	}

	key := topic + "\x00" + question
	if _, ok := s.gapSeen[key]; ok {
		return
	}

	s.gapSeen[key] = struct{}{}
	s.ensureTopic(topic)
	s.gaps[topic] = append(s.gaps[topic], question)
}

// AppendThought adds a chain-of-thought entry, assigning its sequence
// number under the store lock so ordering reflects completion order.
func (s *Store) AppendThought(t Thought) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.Seq = len(s.thoughts)
	s.thoughts = append(s.thoughts, t)
}

// Learnings returns a copy of the current learnings.
func (s *Store) Learnings() []Learning {
	s.mu.Lock()
	defer s.mu.Unlock()

	return copyLearnings(s.learnings)
}

// Snapshot returns a point-in-time, independently mutable copy.
func (s *Store) Snapshot() Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := Result{
		Learnings:         copyLearnings(s.learnings),
		VisitedURLs:       append([]string(nil), s.visitedOrder...),
		Thoughts:          append([]Thought(nil), s.thoughts...),
		Contradictions:    make([]Contradiction, len(s.contradictions)),
		SourceEvaluations: make([]SourceEvaluation, 0, len(s.evalOrder)),
		InformationMap:    make(map[string]TopicEntry, len(s.topicOrder)),
	}

	copy(res.Contradictions, s.contradictions)

	for _, url := range s.evalOrder {
		res.SourceEvaluations = append(res.SourceEvaluations, s.evaluations[url])
	}

	byID := make(map[string]Learning, len(s.learnings))
	for _, l := range s.learnings {
		byID[l.ID] = l
	}

	for _, topic := range s.topicOrder {
		entry := TopicEntry{Topic: topic}

		for _, id := range s.topicLearnings[topic] {
			if l, ok := byID[id]; ok {
				entry.Consensus = append(entry.Consensus, l.Statement)
			}
		}

		for _, c := range s.contradictions {
			if c.Topic == topic {
				entry.Contradictions = append(entry.Contradictions, c.ID)
			}
		}

		entry.Gaps = append(entry.Gaps, s.gaps[topic]...)

		res.InformationMap[topic] = entry
	}

	return res
}

func (s *Store) hasLearning(id string) bool {
	for _, l := range s.learnings {
		if l.ID == id {
			return true
		}
	}

	return false
}

func (s *Store) addToTopic(topic, id string) {
	s.ensureTopic(topic)
	s.topicLearnings[topic] = append(s.topicLearnings[topic], id)
}

func (s *Store) ensureTopic(topic string) {
	if _, ok := s.topicLearnings[topic]; !ok {
		s.topicLearnings[topic] = nil
		s.topicOrder = append(s.topicOrder, topic)
	}
}

func copyLearnings(in []Learning) []Learning {
	out := make([]Learning, len(in))

	for i, l := range in {
		l.Entities = append([]string(nil), l.Entities...)
		out[i] = l
	}

	return out
}

// NormalizeText lowercases and NFKC-normalizes text for comparison.
func NormalizeText(text string) string {
	return strings.ToLower(norm.NFKC.String(text))
}

func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	words := strings.FieldsFunc(NormalizeText(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	for _, word := range words {
		if len(word) >= minTokenLength && !stopWords[word] {
			tokens[word] = true
		}
	}

	return tokens
}

func jaccardSimilarity(set1, set2 map[string]bool) float64 {
	if len(set1) == 0 || len(set2) == 0 {
		return 0
	}

	intersection := 0

	for token := range set1 {
		if set2[token] {
			intersection++
		}
	}

	union := len(set1) + len(set2) - intersection
	if union == 0 {
		return 0
	}

	return float64(intersection) / float64(union)
}
