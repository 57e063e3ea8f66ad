package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/deep-research/internal/core/llm"
	"github.com/lueurxax/deep-research/internal/platform/config"
	"github.com/lueurxax/deep-research/internal/platform/observability"
	"github.com/lueurxax/deep-research/internal/process/scrape"
	"github.com/lueurxax/deep-research/internal/process/search"
	"github.com/lueurxax/deep-research/internal/research"
	"github.com/lueurxax/deep-research/internal/session"
	"github.com/lueurxax/deep-research/internal/storage"
)

func main() {
	query := flag.String("query", "", "Research query (required)")
	depth := flag.Int("depth", 0, "Recursion depth (0 = single pass, ignored with -auto)")
	breadth := flag.Int("breadth", 0, "Sub-queries per level (ignored with -auto)")
	auto := flag.Bool("auto", false, "Let the engine choose depth and breadth from query complexity")
	maxDepth := flag.Int("max-depth", 0, "Upper bound on depth (0 = config default)")
	maxBreadth := flag.Int("max-breadth", 0, "Upper bound on breadth (0 = config default)")
	budget := flag.Duration("budget", -1, "Time budget for the run (negative = unlimited)")
	out := flag.String("out", "", "Output directory (overrides config)")

	flag.Parse()

	if *query == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsPort > 0 {
		server := observability.NewServer(cfg.MetricsPort, &logger)

		go func() {
			if err := server.Start(ctx); err != nil {
				logger.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	engine := buildEngine(cfg, &logger)

	var archiver session.Archiver

	if cfg.PostgresDSN != "" {
		database, err := storage.New(ctx, cfg.PostgresDSN, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to archive database")
		}
		defer database.Close()

		if err := database.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}

		archiver = database
	}

	outputDir := cfg.OutputDir
	if *out != "" {
		outputDir = *out
	}

	req := research.Request{
		Query:      *query,
		Depth:      *depth,
		Breadth:    *breadth,
		AutoTune:   *auto,
		MaxDepth:   *maxDepth,
		MaxBreadth: *maxBreadth,
	}

	if *budget >= 0 {
		req.TimeBudget = *budget
		req.HasBudget = true
	}

	if !*auto {
		applyDefaults(&req, cfg)
	}

	sess := session.New(engine, archiver, outputDir, &logger)

	art, err := sess.Execute(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("research interrupted")
			return
		}

		logger.Fatal().Err(err).Msg("research failed")
	}

	fmt.Printf("Reports written to %s\n", art.Dir)
	fmt.Printf("  final report:     %s\n", art.FinalReport)
	fmt.Printf("  chain of thought: %s\n", art.ChainOfThought)
	fmt.Printf("  raw data:         %s\n", art.RawData)
}

// applyDefaults fills depth and breadth from config when the flags were
// not given. An explicit -depth 0 stays a single-pass run.
func applyDefaults(req *research.Request, cfg *config.Config) {
	given := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { given[f.Name] = true })

	if !given["depth"] {
		req.Depth = cfg.DefaultDepth
	}

	if !given["breadth"] {
		req.Breadth = cfg.DefaultBreadth
	}
}

func buildEngine(cfg *config.Config, logger *zerolog.Logger) *research.Engine {
	client := llm.New(cfg, logger)

	registry := search.NewRegistry()
	registry.Register(search.NewSearxNGProvider(search.SearxNGConfig{
		Enabled: cfg.SearxNGEnabled,
		BaseURL: cfg.SearxNGBaseURL,
		Timeout: cfg.SearxNGTimeout,
		Engines: config.SplitDomains(cfg.SearxNGEngines),
	}))
	registry.Register(search.NewBraveProvider(search.BraveConfig{
		Enabled: cfg.BraveEnabled,
		APIKey:  cfg.BraveAPIKey,
		Timeout: cfg.BraveTimeout,
	}))
	registry.Register(search.NewDuckDuckGoProvider(search.DuckDuckGoConfig{
		Enabled: cfg.DuckDuckGoEnabled,
		Timeout: cfg.DuckDuckGoTimeout,
	}))

	fetcher := scrape.NewFetcher(cfg.WebFetchRPS, cfg.WebFetchTimeout, cfg.UserAgent)
	extractor := scrape.NewExtractor(fetcher, cfg.MaxContentLength)

	validator := research.NewValidator(
		cfg.CredibilityFloor,
		cfg.EntityOverlapThreshold,
		config.SplitDomains(cfg.AllowlistDomains),
		config.SplitDomains(cfg.DenylistDomains),
		client,
		logger,
	)
	tuner := research.NewTuner(client, cfg.EstimatedBranchCost, logger)

	return research.NewEngine(cfg, client, registry, extractor, validator, tuner, logger)
}

func newLogger(appEnv string) zerolog.Logger {
	if appEnv == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
