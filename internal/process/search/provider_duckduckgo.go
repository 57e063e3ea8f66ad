package search

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	ddgLiteEndpoint      = "https://lite.duckduckgo.com/lite/"
	ddgDefaultTimeout    = 15 * time.Second
	ddgMaxBackoff        = 30 * time.Second
	ddgMinQueryInterval  = time.Second
	httpHeaderUserAgent  = "User-Agent"
	httpHeaderContent    = "Content-Type"
	contentTypeFormData  = "application/x-www-form-urlencoded"
	ddgBrowserUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

var errEmptyQuery = errors.New("query is empty")

// Result links and snippets in the lite HTML page.
var (
	ddgLinkPattern    = regexp.MustCompile(`<a[^>]*class=['"]result-link['"][^>]*href=['"]([^'"]+)['"][^>]*>([^<]+)</a>`)
	ddgLinkPatternAlt = regexp.MustCompile(`<a[^>]*href=['"]([^'"]+)['"][^>]*class=['"]result-link['"][^>]*>([^<]+)</a>`)
	ddgSnippetPattern = regexp.MustCompile(`<td[^>]*class=['"]result-snippet['"][^>]*>([^<]+(?:<[^>]+>[^<]*</[^>]+>)*[^<]*)</td>`)
)

// DuckDuckGoProvider scrapes DuckDuckGo's lite HTML interface. Keyless,
// so it serves as the last-resort fallback. A single shared pacer keeps
// all goroutines at one query per second.
type DuckDuckGoProvider struct {
	httpClient *http.Client
	enabled    bool

	mu   sync.Mutex
	last time.Time
}

// DuckDuckGoConfig holds configuration for the DuckDuckGo provider.
type DuckDuckGoConfig struct {
	Enabled bool
	Timeout time.Duration
}

func NewDuckDuckGoProvider(cfg DuckDuckGoConfig) *DuckDuckGoProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = ddgDefaultTimeout
	}

	return &DuckDuckGoProvider{
		httpClient: &http.Client{Timeout: timeout},
		enabled:    cfg.Enabled,
	}
}

func (p *DuckDuckGoProvider) Name() ProviderName {
	return ProviderDuckDuckGo
}

func (p *DuckDuckGoProvider) Priority() int {
	return PriorityDuckDuckGo
}

func (p *DuckDuckGoProvider) IsAvailable(_ context.Context) bool {
	return p.enabled
}

func (p *DuckDuckGoProvider) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errEmptyQuery
	}

	if err := p.pace(ctx); err != nil {
		return nil, err
	}

	body, err := p.fetch(ctx, query)
	if err != nil {
		return nil, err
	}

	return parseDDGResults(body, maxResults), nil
}

// pace enforces the shared one query per second limit.
func (p *DuckDuckGoProvider) pace(ctx context.Context) error {
	p.mu.Lock()

	if wait := time.Until(p.last.Add(ddgMinQueryInterval)); wait > 0 {
		p.mu.Unlock()

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}

		p.mu.Lock()
	}

	p.last = time.Now()
	p.mu.Unlock()

	return nil
}

// fetch posts the query to the lite page, backing off and retrying on 429.
func (p *DuckDuckGoProvider) fetch(ctx context.Context, query string) (string, error) {
	formData := url.Values{}
	formData.Set("q", query)

	delay := time.Second

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, ddgLiteEndpoint, strings.NewReader(formData.Encode()))
		if err != nil {
			return "", fmt.Errorf("create duckduckgo request: %w", err)
		}

		req.Header.Set(httpHeaderUserAgent, ddgBrowserUserAgent)
		req.Header.Set(httpHeaderContent, contentTypeFormData)

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("duckduckgo request: %w", err)
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			defer func() {
				_ = resp.Body.Close()
			}()

			if resp.StatusCode != http.StatusOK {
				return "", fmt.Errorf("duckduckgo http %d", resp.StatusCode)
			}

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return "", fmt.Errorf("read duckduckgo response: %w", err)
			}

			return string(body), nil
		}

		_ = resp.Body.Close()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}

		if delay < ddgMaxBackoff {
			delay *= 2
		}
	}
}

func parseDDGResults(page string, maxResults int) []Result {
	matches := ddgLinkPattern.FindAllStringSubmatch(page, -1)
	if len(matches) == 0 {
		matches = ddgLinkPatternAlt.FindAllStringSubmatch(page, -1)
	}

	snippets := ddgSnippetPattern.FindAllStringSubmatch(page, -1)

	results := make([]Result, 0, min(len(matches), maxResults))

	for i, match := range matches {
		if len(results) >= maxResults {
			break
		}

		if len(match) < 3 {
			continue
		}

		urlStr := strings.TrimSpace(match[1])
		title := html.UnescapeString(strings.TrimSpace(match[2]))

		if urlStr == "" || title == "" {
			continue
		}

		snippet := ""
		if i < len(snippets) && len(snippets[i]) > 1 {
			snippet = html.UnescapeString(stripTags(snippets[i][1]))
		}

		results = append(results, Result{
			URL:         urlStr,
			Title:       title,
			Description: snippet,
			Domain:      extractDomain(urlStr),
		})
	}

	return results
}

var tagPattern = regexp.MustCompile(`<[^>]+>`)

func stripTags(s string) string {
	return strings.TrimSpace(tagPattern.ReplaceAllString(s, ""))
}

var _ Provider = (*DuckDuckGoProvider)(nil)
