package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/lueurxax/deep-research/internal/report"
	"github.com/lueurxax/deep-research/internal/research"
)

const (
	sessionDirFormat = "20060102_150405"

	finalReportFile = "final_report.md"
	thoughtsFile    = "chain_of_thought_report.md"
	sourcesFile     = "sources.md"
	rawDataFile     = "raw_research_data.json"

	dirPerm  = 0o755
	filePerm = 0o644
)

// Runner executes a research request. Satisfied by research.Engine.
type Runner interface {
	Run(ctx context.Context, req research.Request) (*research.Result, error)
}

// Archiver persists a completed run. Optional, a nil archiver disables
// archiving.
type Archiver interface {
	ArchiveRun(ctx context.Context, res *research.Result) error
}

// Session runs a research request end to end and writes the rendered
// reports and raw result into a per-run directory.
type Session struct {
	runner    Runner
	archiver  Archiver
	outputDir string
	logger    *zerolog.Logger
}

// Artifacts lists the files written for one completed run.
type Artifacts struct {
	Dir            string
	FinalReport    string
	ChainOfThought string
	Sources        string
	RawData        string
	Result         *research.Result
}

func New(runner Runner, archiver Archiver, outputDir string, logger *zerolog.Logger) *Session {
	return &Session{
		runner:    runner,
		archiver:  archiver,
		outputDir: outputDir,
		logger:    logger,
	}
}

// Execute runs the request and writes all reports. A failed run returns
// the error unwrapped so callers can inspect the sentinel. Archive
// failures are logged and do not fail the session, the reports on disk
// are the primary output.
func (s *Session) Execute(ctx context.Context, req research.Request) (*Artifacts, error) {
	res, err := s.runner.Run(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("run research: %w", err)
	}

	dir := filepath.Join(s.outputDir, "session_"+res.StartedAt.UTC().Format(sessionDirFormat))
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create session dir %s: %w", dir, err)
	}

	art := &Artifacts{
		Dir:            dir,
		FinalReport:    filepath.Join(dir, finalReportFile),
		ChainOfThought: filepath.Join(dir, thoughtsFile),
		Sources:        filepath.Join(dir, sourcesFile),
		RawData:        filepath.Join(dir, rawDataFile),
		Result:         res,
	}

	raw, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal raw result: %w", err)
	}

	files := []struct {
		path string
		data []byte
	}{
		{art.FinalReport, []byte(report.Final(res))},
		{art.ChainOfThought, []byte(report.ChainOfThought(res))},
		{art.Sources, []byte(report.Sources(res))},
		{art.RawData, raw},
	}

	for _, f := range files {
		if err := os.WriteFile(f.path, f.data, filePerm); err != nil {
			return nil, fmt.Errorf("write %s: %w", f.path, err)
		}
	}

	s.logger.Info().
		Str("dir", dir).
		Int("learnings", len(res.Learnings)).
		Int("sources", len(res.VisitedURLs)).
		Bool("budget_exceeded", res.BudgetExceeded).
		Msg("research session complete")

	if s.archiver != nil {
		if err := s.archiver.ArchiveRun(ctx, res); err != nil {
			s.logger.Error().Err(err).Msg("failed to archive run")
		}
	}

	return art, nil
}
