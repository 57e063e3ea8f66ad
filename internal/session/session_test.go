package session

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/deep-research/internal/research"
)

type fakeRunner struct {
	res *research.Result
	err error
}

func (f *fakeRunner) Run(_ context.Context, _ research.Request) (*research.Result, error) {
	return f.res, f.err
}

type fakeArchiver struct {
	archived *research.Result
	err      error
}

func (f *fakeArchiver) ArchiveRun(_ context.Context, res *research.Result) error {
	f.archived = res

	return f.err
}

func testResult() *research.Result {
	started := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	return &research.Result{
		Query:   "lithium supply chains",
		Depth:   1,
		Breadth: 2,
		Learnings: []research.Learning{
			{ID: "l1", Statement: "chile leads production", Topic: "production", SourceURL: "https://example.org/a", Credibility: 0.7},
		},
		VisitedURLs:    []string{"https://example.org/a"},
		InformationMap: map[string]research.TopicEntry{"production": {Topic: "production", Consensus: []string{"chile leads production"}}},
		StartedAt:      started,
		FinishedAt:     started.Add(time.Minute),
	}
}

func TestSessionWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	logger := zerolog.Nop()

	s := New(&fakeRunner{res: testResult()}, nil, dir, &logger)

	art, err := s.Execute(context.Background(), research.Request{Query: "lithium supply chains", Depth: 1, Breadth: 2})
	require.NoError(t, err)

	assert.Equal(t, dir+"/session_20240601_100000", art.Dir)

	final, err := os.ReadFile(art.FinalReport)
	require.NoError(t, err)
	assert.Contains(t, string(final), "# Research Report: lithium supply chains")

	thoughts, err := os.ReadFile(art.ChainOfThought)
	require.NoError(t, err)
	assert.Contains(t, string(thoughts), "# Research Process: lithium supply chains")

	sources, err := os.ReadFile(art.Sources)
	require.NoError(t, err)
	assert.Contains(t, string(sources), "https://example.org/a")

	raw, err := os.ReadFile(art.RawData)
	require.NoError(t, err)

	var decoded research.Result
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "lithium supply chains", decoded.Query)
	assert.Len(t, decoded.Learnings, 1)
}

func TestSessionRunError(t *testing.T) {
	logger := zerolog.Nop()
	s := New(&fakeRunner{err: research.ErrNothingAttempted}, nil, t.TempDir(), &logger)

	art, err := s.Execute(context.Background(), research.Request{Query: "q", Breadth: 1})
	assert.Nil(t, art)
	assert.ErrorIs(t, err, research.ErrNothingAttempted)
}

func TestSessionArchives(t *testing.T) {
	logger := zerolog.Nop()
	arch := &fakeArchiver{}
	s := New(&fakeRunner{res: testResult()}, arch, t.TempDir(), &logger)

	_, err := s.Execute(context.Background(), research.Request{Query: "q", Breadth: 1})
	require.NoError(t, err)
	require.NotNil(t, arch.archived)
	assert.Equal(t, "lithium supply chains", arch.archived.Query)
}

func TestSessionArchiveFailureNotFatal(t *testing.T) {
	logger := zerolog.Nop()
	arch := &fakeArchiver{err: errors.New("db down")}
	s := New(&fakeRunner{res: testResult()}, arch, t.TempDir(), &logger)

	art, err := s.Execute(context.Background(), research.Request{Query: "q", Breadth: 1})
	require.NoError(t, err)
	assert.NotNil(t, art)
}
