package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	maxRedirects      = 5
	maxBodyBytes      = 5 * 1024 * 1024
	globalBurst       = 5
	perDomainRPS      = 1
	perDomainBurst    = 2
	defaultTimeout    = 30 * time.Second
	defaultUserAgent  = "DeepResearch/1.0"
	headerUserAgent   = "User-Agent"
	headerAccept      = "Accept"
	headerAcceptLang  = "Accept-Language"
	acceptHTML        = "text/html,application/xhtml+xml,application/xml"
	acceptLangEnglish = "en-US,en;q=0.9"
)

var errTooManyRedirects = errors.New("too many redirects")

// Fetcher retrieves pages with a global rate limit plus a per-domain
// 1 req/sec limit so one run cannot hammer a single host.
type Fetcher struct {
	client         *http.Client
	globalLimiter  *rate.Limiter
	domainLimiters map[string]*rate.Limiter
	mu             sync.RWMutex
	userAgent      string
}

func NewFetcher(rps float64, timeout time.Duration, userAgent string) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return errTooManyRedirects
				}

				return nil
			},
		},
		globalLimiter:  rate.NewLimiter(rate.Limit(rps), globalBurst),
		domainLimiters: make(map[string]*rate.Limiter),
		userAgent:      userAgent,
	}
}

func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := f.globalLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	domainLimiter := f.getDomainLimiter(hostOf(rawURL))
	if err := domainLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set(headerUserAgent, f.userAgent)
	req.Header.Set(headerAccept, acceptHTML)
	req.Header.Set(headerAcceptLang, acceptLangEnglish)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

func (f *Fetcher) getDomainLimiter(domain string) *rate.Limiter {
	f.mu.RLock()
	limiter, exists := f.domainLimiters[domain]
	f.mu.RUnlock()

	if exists {
		return limiter
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Double check
	if limiter, exists := f.domainLimiters[domain]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(perDomainRPS, perDomainBurst)
	f.domainLimiters[domain] = limiter

	return limiter
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	return strings.ToLower(u.Host)
}
