package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"local"`

	// LLM provider
	LLMAPIKey           string        `env:"LLM_API_KEY"`
	LLMBaseURL          string        `env:"LLM_BASE_URL" envDefault:""`
	LLMModel            string        `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	LLMTimeout          time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`
	RateLimitRPS        int           `env:"RATE_LIMIT_RPS" envDefault:"1"`
	LLMCircuitThreshold int           `env:"LLM_CIRCUIT_THRESHOLD" envDefault:"5"`
	LLMCircuitTimeout   time.Duration `env:"LLM_CIRCUIT_TIMEOUT" envDefault:"1m"`

	// Research parameters
	MaxDepth               int           `env:"RESEARCH_MAX_DEPTH" envDefault:"5"`
	MaxBreadth             int           `env:"RESEARCH_MAX_BREADTH" envDefault:"8"`
	DefaultDepth           int           `env:"RESEARCH_DEFAULT_DEPTH" envDefault:"2"`
	DefaultBreadth         int           `env:"RESEARCH_DEFAULT_BREADTH" envDefault:"4"`
	ResultsPerQuery        int           `env:"RESEARCH_RESULTS_PER_QUERY" envDefault:"4"`
	DedupSimilarity        float64       `env:"RESEARCH_DEDUP_SIMILARITY" envDefault:"0.85"`
	QueryDedupSimilarity   float64       `env:"RESEARCH_QUERY_DEDUP_SIMILARITY" envDefault:"0.75"`
	CredibilityFloor       float64       `env:"RESEARCH_CREDIBILITY_FLOOR" envDefault:"0.35"`
	EntityOverlapThreshold float64       `env:"RESEARCH_ENTITY_OVERLAP_THRESHOLD" envDefault:"0.4"`
	BranchTimeout          time.Duration `env:"RESEARCH_BRANCH_TIMEOUT" envDefault:"90s"`
	EstimatedBranchCost    time.Duration `env:"RESEARCH_ESTIMATED_BRANCH_COST" envDefault:"20s"`
	AllowlistDomains       string        `env:"RESEARCH_ALLOWLIST_DOMAINS" envDefault:""`
	DenylistDomains        string        `env:"RESEARCH_DENYLIST_DOMAINS" envDefault:""`

	// Web fetching
	WebFetchRPS      float64       `env:"WEB_FETCH_RPS" envDefault:"2"`
	WebFetchTimeout  time.Duration `env:"WEB_FETCH_TIMEOUT" envDefault:"30s"`
	MaxContentLength int           `env:"MAX_CONTENT_LENGTH" envDefault:"100000"`
	UserAgent        string        `env:"WEB_FETCH_USER_AGENT" envDefault:"DeepResearch/1.0"`

	// SearxNG provider
	SearxNGEnabled bool          `env:"SEARXNG_ENABLED" envDefault:"false"`
	SearxNGBaseURL string        `env:"SEARXNG_BASE_URL" envDefault:"http://localhost:8888"`
	SearxNGTimeout time.Duration `env:"SEARXNG_TIMEOUT" envDefault:"30s"`
	SearxNGEngines string        `env:"SEARXNG_ENGINES" envDefault:""` // comma-separated, e.g. "google,duckduckgo"

	// Brave provider
	BraveEnabled bool          `env:"BRAVE_ENABLED" envDefault:"false"`
	BraveAPIKey  string        `env:"BRAVE_API_KEY" envDefault:""`
	BraveTimeout time.Duration `env:"BRAVE_TIMEOUT" envDefault:"30s"`

	// DuckDuckGo provider (keyless)
	DuckDuckGoEnabled bool          `env:"DUCKDUCKGO_ENABLED" envDefault:"true"`
	DuckDuckGoTimeout time.Duration `env:"DUCKDUCKGO_TIMEOUT" envDefault:"30s"`

	// Output and persistence
	OutputDir   string `env:"RESEARCH_OUTPUT_DIR" envDefault:"research_output"`
	PostgresDSN string `env:"POSTGRES_DSN" envDefault:""`

	MetricsPort int `env:"METRICS_PORT" envDefault:"0"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	return cfg, nil
}

// SplitDomains splits a comma-separated domain list into trimmed, lowercased
// patterns. Empty entries are dropped.
func SplitDomains(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}

	parts := strings.Split(list, ",")
	domains := make([]string, 0, len(parts))

	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			domains = append(domains, p)
		}
	}

	return domains
}
