package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	braveDefaultBaseURL = "https://api.search.brave.com/res/v1"
	braveDefaultTimeout = 30 * time.Second
	braveMaxQueryWords  = 50
	braveAPIKeyHeader   = "X-Subscription-Token"
	braveMaxErrorBytes  = 8 * 1024
)

var errBraveMissingAPIKey = errors.New("brave api key is not configured")

// BraveProvider implements Provider for the Brave Search API.
type BraveProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	enabled    bool
}

// BraveConfig holds configuration for the Brave provider.
type BraveConfig struct {
	Enabled bool
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

func NewBraveProvider(cfg BraveConfig) *BraveProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = braveDefaultTimeout
	}

	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = braveDefaultBaseURL
	}

	return &BraveProvider{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		enabled:    cfg.Enabled,
	}
}

func (p *BraveProvider) Name() ProviderName {
	return ProviderBrave
}

func (p *BraveProvider) Priority() int {
	return PriorityBrave
}

func (p *BraveProvider) IsAvailable(_ context.Context) bool {
	return p.enabled && p.apiKey != ""
}

type braveResponse struct {
	Web struct {
		Results []braveResult `json:"results"`
	} `json:"web"`
}

type braveResult struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	PageAge     string `json:"page_age"`
}

func (p *BraveProvider) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if p.apiKey == "" {
		return nil, errBraveMissingAPIKey
	}

	query = trimToWordLimit(strings.TrimSpace(query), braveMaxQueryWords)
	if query == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/web/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create brave request: %w", err)
	}

	req.Header.Set(httpHeaderAccept, httpContentTypeJSON)
	req.Header.Set(braveAPIKeyHeader, p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave request: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, braveMaxErrorBytes))

		return nil, fmt.Errorf("brave returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parse brave json: %w", err)
	}

	results := make([]Result, 0, min(len(parsed.Web.Results), maxResults))

	for _, item := range parsed.Web.Results {
		if len(results) >= maxResults {
			break
		}

		if item.URL == "" {
			continue
		}

		result := Result{
			URL:         item.URL,
			Title:       item.Title,
			Description: item.Description,
			Domain:      extractDomain(item.URL),
		}

		if item.PageAge != "" {
			if t, err := time.Parse(time.RFC3339, item.PageAge); err == nil {
				result.PublishedAt = t
			}
		}

		results = append(results, result)
	}

	return results, nil
}

func trimToWordLimit(s string, limit int) string {
	words := strings.Fields(s)
	if len(words) <= limit {
		return s
	}

	return strings.Join(words[:limit], " ")
}

var _ Provider = (*BraveProvider)(nil)
