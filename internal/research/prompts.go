package research

import (
	"fmt"
	"strings"
)

const (
	systemResearcher = "You are a meticulous research assistant. Answer strictly in the requested JSON shape."
	systemValidator  = "You assess the credibility of claims and sources. Answer strictly in the requested JSON shape."

	maxPromptLearnings  = 12
	maxPromptContentLen = 8000
)

func queryGenerationPrompt(query string, learnings []Learning, n int) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Research question: %s\n\n", query)

	if len(learnings) > 0 {
		sb.WriteString("Findings so far:\n")

		start := 0
		if len(learnings) > maxPromptLearnings {
			start = len(learnings) - maxPromptLearnings
		}

		for _, l := range learnings[start:] {
			fmt.Fprintf(&sb, "- [%s] %s\n", l.Topic, l.Statement)
		}

		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb,
		"Generate up to %d distinct web search queries that would advance this research. "+
			"Avoid repeating ground already covered by the findings. "+
			`Respond as JSON: {"queries":[{"query":"...","goal":"..."}]}`, n)

	return sb.String()
}

func complexityPrompt(query string) string {
	return fmt.Sprintf(
		"Rate the research question below.\n"+
			"complexity: 1 (single factual lookup) to 5 (multi-faceted analysis).\n"+
			"scope: 1 (one narrow aspect) to 5 (many independent aspects).\n"+
			"Question: %s\n"+
			`Respond as JSON: {"complexity":N,"scope":N}`, query)
}

func credibilityPrompt(statement, sourceURL string) string {
	return fmt.Sprintf(
		"Claim: %s\nSource: %s\n"+
			"Rate how plausible the claim is and how trustworthy the source looks, "+
			"as a single score between 0 and 1.\n"+
			`Respond as JSON: {"score":0.0,"reason":"..."}`, statement, sourceURL)
}

func extractionPrompt(query, title, content string) string {
	if len(content) > maxPromptContentLen {
		content = content[:maxPromptContentLen]
	}

	return fmt.Sprintf(
		"Research question: %s\n\nPage title: %s\n\nPage content:\n%s\n\n"+
			"Extract the atomic factual findings relevant to the research question. "+
			"For each finding give a short topic tag, the named entities involved, "+
			"and your confidence between 0 and 1. "+
			"Also list follow-up questions this page raises but does not answer.\n"+
			`Respond as JSON: {"learnings":[{"statement":"...","topic":"...",`+
			`"entities":["..."],"confidence":0.0}],"follow_up_questions":["..."]}`,
		query, title, content)
}
