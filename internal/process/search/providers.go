package search

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/lueurxax/deep-research/internal/platform/observability"
)

type ProviderName string

const (
	ProviderSearxNG    ProviderName = "searxng"
	ProviderBrave      ProviderName = "brave"
	ProviderDuckDuckGo ProviderName = "duckduckgo"
)

// Lower value means the registry tries the provider earlier.
const (
	PrioritySearxNG    = 10
	PriorityBrave      = 20
	PriorityDuckDuckGo = 30
)

var (
	ErrNoProvidersAvailable = errors.New("no search providers available")
	errProviderNotFound     = errors.New("search provider not found")
)

type Result struct {
	URL         string
	Title       string
	Description string
	Domain      string
	PublishedAt time.Time
	Score       float64
}

type Provider interface {
	Name() ProviderName
	Priority() int
	IsAvailable(ctx context.Context) bool
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

type Registry struct {
	mu        sync.RWMutex
	providers map[ProviderName]Provider
	order     []ProviderName

	circuitBreakers map[ProviderName]*circuitBreaker
}

func NewRegistry() *Registry {
	return &Registry{
		providers:       make(map[ProviderName]Provider),
		order:           []ProviderName{},
		circuitBreakers: make(map[ProviderName]*circuitBreaker),
	}
}

func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	r.providers[name] = p
	r.order = append(r.order, name)
	r.circuitBreakers[name] = newCircuitBreaker()

	sort.Slice(r.order, func(i, j int) bool {
		return r.providers[r.order[i]].Priority() < r.providers[r.order[j]].Priority()
	})
}

func (r *Registry) Get(name ProviderName) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, errProviderNotFound
	}

	return p, nil
}

// SearchWithFallback tries providers in priority order until one succeeds.
// Providers that are disabled, unreachable or circuit-open are skipped.
func (r *Registry) SearchWithFallback(ctx context.Context, query string, maxResults int) ([]Result, ProviderName, error) {
	r.mu.RLock()
	providers := make([]ProviderName, len(r.order))
	copy(providers, r.order)
	r.mu.RUnlock()

	var lastErr error

	for _, name := range providers {
		provider, err := r.Get(name)
		if err != nil {
			continue
		}

		if !provider.IsAvailable(ctx) {
			continue
		}

		cb := r.getCircuitBreaker(name)
		if !cb.canAttempt() {
			continue
		}

		start := time.Now()

		results, err := provider.Search(ctx, query, maxResults)

		observability.SearchRequestDuration.WithLabelValues(string(name)).Observe(time.Since(start).Seconds())

		if err != nil {
			cb.recordFailure()
			observability.SearchRequests.WithLabelValues(string(name), "error").Inc()

			lastErr = err

			continue
		}

		cb.recordSuccess()
		observability.SearchRequests.WithLabelValues(string(name), "ok").Inc()

		return results, name, nil
	}

	if lastErr != nil {
		return nil, "", errors.Join(ErrNoProvidersAvailable, lastErr)
	}

	return nil, "", ErrNoProvidersAvailable
}

func (r *Registry) AvailableProviders(ctx context.Context) []ProviderName {
	r.mu.RLock()
	defer r.mu.RUnlock()

	available := []ProviderName{}

	for _, name := range r.order {
		p := r.providers[name]
		if p.IsAvailable(ctx) && r.circuitBreakers[name].canAttempt() {
			available = append(available, name)
		}
	}

	return available
}

func (r *Registry) getCircuitBreaker(name ProviderName) *circuitBreaker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.circuitBreakers[name]
}

const (
	circuitBreakerThreshold  = 3
	circuitBreakerResetAfter = 5 * time.Minute
	halfOpenSuccessesToClose = 2
)

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

type circuitBreaker struct {
	mu           sync.Mutex
	failures     int
	lastFailure  time.Time
	state        circuitState
	successCount int
}

func newCircuitBreaker() *circuitBreaker {
	return &circuitBreaker{state: circuitClosed}
}

func (cb *circuitBreaker) canAttempt() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case circuitClosed:
		return true
	case circuitOpen:
		if time.Since(cb.lastFailure) > circuitBreakerResetAfter {
			cb.state = circuitHalfOpen
			cb.successCount = 0

			return true
		}

		return false
	case circuitHalfOpen:
		return true
	default:
		return false
	}
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0

	if cb.state == circuitHalfOpen {
		cb.successCount++
		if cb.successCount >= halfOpenSuccessesToClose {
			cb.state = circuitClosed
		}
	}
}

func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()

	if cb.failures >= circuitBreakerThreshold {
		cb.state = circuitOpen
	}
}
