package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lueurxax/deep-research/internal/research"
)

const (
	dateFormat = "2006-01-02"
	timeFormat = "2006-01-02 15:04:05 MST"

	sectionSeparator = "\n---\n\n"
)

// Final renders the final research report as markdown, built entirely
// from stored result fields.
func Final(res *research.Result) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Research Report: %s\n\n", res.Query))
	sb.WriteString(fmt.Sprintf("*Generated on %s*\n\n", res.FinishedAt.Format(dateFormat)))

	writeRunSummary(&sb, res)
	writeFindings(&sb, res)
	writeContradictions(&sb, res)
	writeGaps(&sb, res)
	writeSources(&sb, res)

	return sb.String()
}

func writeRunSummary(sb *strings.Builder, res *research.Result) {
	sb.WriteString("## Run Summary\n\n")
	sb.WriteString(fmt.Sprintf("- **Depth:** %d\n", res.Depth))
	sb.WriteString(fmt.Sprintf("- **Breadth:** %d\n", res.Breadth))
	sb.WriteString(fmt.Sprintf("- **Learnings:** %d\n", len(res.Learnings)))
	sb.WriteString(fmt.Sprintf("- **Sources visited:** %d\n", len(res.VisitedURLs)))
	sb.WriteString(fmt.Sprintf("- **Topics:** %d\n", len(res.InformationMap)))
	sb.WriteString(fmt.Sprintf("- **Contradictions:** %d\n", len(res.Contradictions)))
	sb.WriteString(fmt.Sprintf("- **Duration:** %s\n", res.FinishedAt.Sub(res.StartedAt).Round(time.Second)))

	if res.BudgetExceeded {
		sb.WriteString("- **Note:** the time budget was exhausted, results may be partial\n")
	}

	sb.WriteString(sectionSeparator)
}

func writeFindings(sb *strings.Builder, res *research.Result) {
	sb.WriteString("## Findings by Topic\n\n")

	if len(res.Learnings) == 0 {
		sb.WriteString("No validated findings were collected.\n")
		sb.WriteString(sectionSeparator)

		return
	}

	for _, topic := range sortedTopics(res.InformationMap) {
		sb.WriteString(fmt.Sprintf("### %s\n\n", titleCase(topic)))

		for _, l := range res.Learnings {
			if l.Topic != topic {
				continue
			}

			sb.WriteString(fmt.Sprintf("- %s *(credibility %.2f, [source](%s))*\n", l.Statement, l.Credibility, l.SourceURL))
		}

		sb.WriteString("\n")
	}

	sb.WriteString(sectionSeparator)
}

func writeContradictions(sb *strings.Builder, res *research.Result) {
	if len(res.Contradictions) == 0 {
		return
	}

	byID := make(map[string]research.Learning, len(res.Learnings))
	for _, l := range res.Learnings {
		byID[l.ID] = l
	}

	sb.WriteString("## Contradictions\n\n")
	sb.WriteString("The following claims conflict and could not be reconciled from the collected sources.\n\n")

	for i, c := range res.Contradictions {
		sb.WriteString(fmt.Sprintf("%d. **%s**: %s\n", i+1, titleCase(c.Topic), c.Description))

		if a, ok := byID[c.LearningA]; ok {
			sb.WriteString(fmt.Sprintf("   - Claim A: %s ([source](%s))\n", a.Statement, a.SourceURL))
		}

		if b, ok := byID[c.LearningB]; ok {
			sb.WriteString(fmt.Sprintf("   - Claim B: %s ([source](%s))\n", b.Statement, b.SourceURL))
		}
	}

	sb.WriteString(sectionSeparator)
}

func writeGaps(sb *strings.Builder, res *research.Result) {
	var gaps []string

	for _, topic := range sortedTopics(res.InformationMap) {
		gaps = append(gaps, res.InformationMap[topic].Gaps...)
	}

	if len(gaps) == 0 {
		return
	}

	sb.WriteString("## Open Questions\n\n")
	sb.WriteString("These questions surfaced during research but were not answered within the run.\n\n")

	for _, g := range gaps {
		sb.WriteString(fmt.Sprintf("- %s\n", g))
	}

	sb.WriteString(sectionSeparator)
}

func writeSources(sb *strings.Builder, res *research.Result) {
	sb.WriteString("## Sources\n\n")

	if len(res.SourceEvaluations) == 0 {
		sb.WriteString("No sources were evaluated.\n")

		return
	}

	evals := make([]research.SourceEvaluation, len(res.SourceEvaluations))
	copy(evals, res.SourceEvaluations)
	sort.Slice(evals, func(i, j int) bool {
		if evals[i].Credibility != evals[j].Credibility {
			return evals[i].Credibility > evals[j].Credibility
		}

		return evals[i].URL < evals[j].URL
	})

	sb.WriteString("| Source | Credibility | Relevance |\n")
	sb.WriteString("|--------|-------------|----------|\n")

	for _, e := range evals {
		sb.WriteString(fmt.Sprintf("| %s | %.2f | %.2f |\n", e.URL, e.Credibility, e.Relevance))
	}
}

// ChainOfThought renders the decision log of a run as markdown, grouped
// by thought kind in the order entries were appended.
func ChainOfThought(res *research.Result) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Research Process: %s\n\n", res.Query))
	sb.WriteString(fmt.Sprintf("Run started %s, finished %s.\n\n",
		res.StartedAt.Format(timeFormat), res.FinishedAt.Format(timeFormat)))

	if len(res.Thoughts) == 0 {
		sb.WriteString("No decision log was recorded for this run.\n")

		return sb.String()
	}

	sb.WriteString("## Decision Log\n\n")

	for _, t := range res.Thoughts {
		sb.WriteString(fmt.Sprintf("%d. `%s` %s\n", t.Seq, t.Kind, t.Message))
	}

	sb.WriteString("\n## Kind Summary\n\n")

	counts := make(map[research.ThoughtKind]int)
	for _, t := range res.Thoughts {
		counts[t.Kind]++
	}

	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, string(k))
	}

	sort.Strings(kinds)

	for _, k := range kinds {
		sb.WriteString(fmt.Sprintf("- %s: %d\n", k, counts[research.ThoughtKind(k)]))
	}

	return sb.String()
}

// Sources renders the visited URL list with evaluations as a standalone
// markdown document.
func Sources(res *research.Result) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Sources: %s\n\n", res.Query))

	evalByURL := make(map[string]research.SourceEvaluation, len(res.SourceEvaluations))
	for _, e := range res.SourceEvaluations {
		evalByURL[e.URL] = e
	}

	urls := make([]string, len(res.VisitedURLs))
	copy(urls, res.VisitedURLs)
	sort.Strings(urls)

	for _, u := range urls {
		if e, ok := evalByURL[u]; ok {
			sb.WriteString(fmt.Sprintf("- %s (credibility %.2f): %s\n", u, e.Credibility, e.Rationale))

			continue
		}

		sb.WriteString(fmt.Sprintf("- %s\n", u))
	}

	if len(urls) == 0 {
		sb.WriteString("No sources were visited.\n")
	}

	return sb.String()
}

// sortedTopics orders topics alphabetically with the catch-all topic
// last, so named topics lead the report.
func sortedTopics(m map[string]research.TopicEntry) []string {
	topics := make([]string, 0, len(m))
	for t := range m {
		topics = append(topics, t)
	}

	sort.Slice(topics, func(i, j int) bool {
		if topics[i] == research.TopicGeneral {
			return false
		}

		if topics[j] == research.TopicGeneral {
			return true
		}

		return topics[i] < topics[j]
	})

	return topics
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}

	return strings.Join(words, " ")
}
