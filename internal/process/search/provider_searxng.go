package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

const (
	searxngDefaultTimeout     = 30 * time.Second
	searxngSearchPath         = "/search"
	searxngHealthCheckTimeout = 5 * time.Second
	searxngResponseFormatJSON = "json"
	searxngCategoriesGeneral  = "general"
	httpHeaderAccept          = "Accept"
	httpContentTypeJSON       = "application/json"
)

var (
	errSearxNGUnexpectedStatus = errors.New("searxng unexpected status")
	errSearxNGAPIError         = errors.New("searxng api error")
)

// SearxNGProvider implements Provider for SearxNG metasearch instances.
type SearxNGProvider struct {
	baseURL    string
	httpClient *http.Client
	enabled    bool
	engines    []string // optional: limit to specific engines
}

// SearxNGConfig holds configuration for the SearxNG provider.
type SearxNGConfig struct {
	Enabled bool
	BaseURL string
	Timeout time.Duration
	Engines []string
}

func NewSearxNGProvider(cfg SearxNGConfig) *SearxNGProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = searxngDefaultTimeout
	}

	return &SearxNGProvider{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		enabled: cfg.Enabled,
		engines: cfg.Engines,
	}
}

func (p *SearxNGProvider) Name() ProviderName {
	return ProviderSearxNG
}

func (p *SearxNGProvider) Priority() int {
	return PrioritySearxNG
}

func (p *SearxNGProvider) IsAvailable(ctx context.Context) bool {
	if !p.enabled || p.baseURL == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, searxngHealthCheckTimeout)
	defer cancel()

	// SearxNG exposes a /config endpoint with instance configuration
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/config", nil)
	if err != nil {
		return false
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	return resp.StatusCode == http.StatusOK
}

func (p *SearxNGProvider) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if !p.enabled {
		return nil, errProviderNotFound
	}

	searchURL := p.buildSearchURL(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create searxng request: %w", err)
	}

	// SearxNG requires Accept header for JSON responses
	req.Header.Set(httpHeaderAccept, httpContentTypeJSON)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searxng request: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", errSearxNGUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read searxng response: %w", err)
	}

	return p.parseResponse(body, maxResults)
}

func (p *SearxNGProvider) buildSearchURL(query string) string {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", searxngResponseFormatJSON)
	params.Set("categories", searxngCategoriesGeneral)

	if len(p.engines) > 0 {
		params.Set("engines", strings.Join(p.engines, ","))
	}

	return p.baseURL + searxngSearchPath + "?" + params.Encode()
}

type searxngResponse struct {
	Query   string          `json:"query"`
	Results []searxngResult `json:"results"`
}

type searxngResult struct {
	URL           string  `json:"url"`
	Title         string  `json:"title"`
	Content       string  `json:"content"`
	PublishedDate string  `json:"publishedDate"` //nolint:tagliatelle // SearxNG API uses camelCase
	Engine        string  `json:"engine"`
	Score         float64 `json:"score"`
}

func (p *SearxNGProvider) parseResponse(body []byte, maxResults int) ([]Result, error) {
	if err := checkSearxNGError(body); err != nil {
		return nil, err
	}

	var resp searxngResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse searxng json: %w", err)
	}

	results := make([]Result, 0, min(len(resp.Results), maxResults))

	for _, item := range resp.Results {
		if len(results) >= maxResults {
			break
		}

		if item.URL == "" {
			continue
		}

		result := Result{
			URL:         item.URL,
			Title:       item.Title,
			Description: item.Content,
			Domain:      extractDomain(item.URL),
			Score:       item.Score,
		}

		// Engines report dates in whatever format the source used
		if item.PublishedDate != "" {
			if t, err := dateparse.ParseAny(item.PublishedDate); err == nil {
				result.PublishedAt = t
			}
		}

		results = append(results, result)
	}

	return results, nil
}

func checkSearxNGError(body []byte) error {
	if len(body) > 0 && body[0] != '{' && body[0] != '[' {
		// Not JSON, likely an error message or HTML page from SearxNG
		errMsg := string(body)
		if len(errMsg) > 200 {
			errMsg = errMsg[:200] + "..."
		}

		return fmt.Errorf("%w: %s", errSearxNGAPIError, errMsg)
	}

	return nil
}

func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

var _ Provider = (*SearxNGProvider)(nil)
