package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lueurxax/deep-research/internal/research"
)

// ArchiveRun persists a completed run with its learnings, source
// evaluations and contradictions in one transaction.
func (db *DB) ArchiveRun(ctx context.Context, res *research.Result) error {
	runID := uuid.NewString()

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin run archive: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx) //nolint:errcheck // best-effort rollback
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO runs (id, query, depth, breadth, budget_exceeded, visited_urls, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, toUUID(runID), toText(res.Query), res.Depth, res.Breadth, res.BudgetExceeded,
		toTextArray(res.VisitedURLs), toTimestamptz(res.StartedAt), toTimestamptz(res.FinishedAt))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, l := range res.Learnings {
		_, err = tx.Exec(ctx, `
			INSERT INTO learnings (id, run_id, statement, topic, entities, source_url, credibility, extracted_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, toUUID(l.ID), toUUID(runID), toText(l.Statement), toText(l.Topic),
			toTextArray(l.Entities), l.SourceURL, l.Credibility, toTimestamptz(l.ExtractedAt))
		if err != nil {
			return fmt.Errorf("insert learning: %w", err)
		}
	}

	for _, e := range res.SourceEvaluations {
		_, err = tx.Exec(ctx, `
			INSERT INTO source_evaluations (run_id, url, credibility, relevance, rationale, evaluated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (run_id, url) DO NOTHING
		`, toUUID(runID), e.URL, e.Credibility, e.Relevance, toText(e.Rationale), toTimestamptz(e.EvaluatedAt))
		if err != nil {
			return fmt.Errorf("insert source evaluation: %w", err)
		}
	}

	for _, c := range res.Contradictions {
		_, err = tx.Exec(ctx, `
			INSERT INTO contradictions (id, run_id, topic, learning_a, learning_b, description, detected_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, toUUID(c.ID), toUUID(runID), toText(c.Topic), toUUID(c.LearningA), toUUID(c.LearningB),
			toText(c.Description), toTimestamptz(c.DetectedAt))
		if err != nil {
			return fmt.Errorf("insert contradiction: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit run archive: %w", err)
	}

	db.Logger.Info().
		Str("run_id", runID).
		Int("learnings", len(res.Learnings)).
		Int("contradictions", len(res.Contradictions)).
		Msg("archived research run")

	return nil
}
