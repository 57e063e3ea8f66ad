package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SearchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "research_search_requests_total",
		Help: "The total number of search provider requests",
	}, []string{"provider", "status"})

	SearchRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "research_search_request_duration_seconds",
		Help:    "Duration of search provider requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	ScrapeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "research_scrape_requests_total",
		Help: "The total number of scrape attempts",
	}, []string{"status"})

	ScrapeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "research_scrape_duration_seconds",
		Help:    "Duration of page fetch and extraction",
		Buckets: prometheus.DefBuckets,
	})

	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "research_llm_requests_total",
		Help: "The total number of LLM requests",
	}, []string{"task", "status"})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "research_llm_request_duration_seconds",
		Help:    "Duration of LLM requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LearningsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "research_learnings_stored_total",
		Help: "Total number of learnings accepted into memory",
	})

	LearningsMerged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "research_learnings_merged_total",
		Help: "Total number of learnings folded into near-duplicates",
	})

	ContradictionsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "research_contradictions_total",
		Help: "Total number of contradictions recorded",
	})

	ContentRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "research_content_rejected_total",
		Help: "Total number of content units rejected by the validator",
	}, []string{"reason"})

	BranchesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "research_branches_failed_total",
		Help: "Total number of research branches abandoned after an external failure",
	})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "research_run_duration_seconds",
		Help:    "Wall-clock duration of complete research runs",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	})
)
