package scrape

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/araddon/dateparse"
	"github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"

	"github.com/lueurxax/deep-research/internal/platform/observability"
)

// Content is the extracted substance of a fetched page.
type Content struct {
	URL         string
	Title       string
	Description string
	Text        string
	Author      string
	PublishedAt time.Time
	WordCount   int
}

// Extractor fetches a URL and distills it into Content. Feeds are
// recognized and reduced to their newest item; for HTML pages the
// readability article text is combined with meta tag fallbacks.
type Extractor struct {
	fetcher *Fetcher
	maxLen  int
}

func NewExtractor(fetcher *Fetcher, maxLen int) *Extractor {
	return &Extractor{fetcher: fetcher, maxLen: maxLen}
}

func (e *Extractor) Extract(ctx context.Context, rawURL string) (*Content, error) {
	start := time.Now()

	body, err := e.fetcher.Fetch(ctx, rawURL)

	observability.ScrapeDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		observability.ScrapeRequests.WithLabelValues("error").Inc()

		return nil, err
	}

	observability.ScrapeRequests.WithLabelValues("ok").Inc()

	if content, ok := tryExtractFeed(body, rawURL, e.maxLen); ok {
		return content, nil
	}

	return extractHTML(body, rawURL, e.maxLen), nil
}

func extractHTML(htmlBytes []byte, rawURL string, maxLen int) *Content {
	u, _ := url.Parse(rawURL)
	meta := extractMetaTags(htmlBytes)

	// Firefox Reader Mode algorithm
	article, err := readability.FromReader(bytes.NewReader(htmlBytes), u)
	if err != nil {
		return &Content{
			URL:         rawURL,
			Title:       coalesce(meta.OGTitle, meta.Title),
			Description: coalesce(meta.OGDescription, meta.Description),
			PublishedAt: parseDate(meta.PublishedTime),
		}
	}

	return &Content{
		URL:         rawURL,
		Title:       coalesce(article.Title, meta.OGTitle, meta.Title),
		Description: coalesce(meta.OGDescription, meta.Description),
		Text:        truncate(article.TextContent, maxLen),
		Author:      coalesce(article.Byline, meta.Author),
		PublishedAt: parseDate(meta.PublishedTime),
		WordCount:   countWords(article.TextContent),
	}
}

func tryExtractFeed(body []byte, rawURL string, maxLen int) (*Content, bool) {
	fp := gofeed.NewParser()

	feed, err := fp.Parse(bytes.NewReader(body))
	if err != nil || len(feed.Items) == 0 {
		return nil, false
	}

	item := feed.Items[0]

	return &Content{
		URL:         rawURL,
		Title:       item.Title,
		Description: item.Description,
		Text:        truncate(stripTags(item.Content), maxLen),
		Author:      feedAuthor(item),
		PublishedAt: coalesceTime(derefTime(item.PublishedParsed), derefTime(item.UpdatedParsed)),
		WordCount:   countWords(item.Content),
	}, true
}

func feedAuthor(item *gofeed.Item) string {
	if item.Author != nil {
		return item.Author.Name
	}

	if len(item.Authors) > 0 {
		return item.Authors[0].Name
	}

	return ""
}

type metaTags struct {
	Title         string
	Description   string
	OGTitle       string
	OGDescription string
	Author        string
	PublishedTime string
}

func extractMetaTags(htmlBytes []byte) metaTags {
	var meta metaTags

	doc, err := html.Parse(bytes.NewReader(htmlBytes))
	if err != nil {
		return meta
	}

	var traverse func(*html.Node)

	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					meta.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				applyMetaTag(n, &meta)
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}

	traverse(doc)

	return meta
}

func applyMetaTag(n *html.Node, meta *metaTags) {
	name, content := getMetaAttrs(n)

	switch strings.ToLower(name) {
	case "description":
		meta.Description = content
	case "author":
		meta.Author = content
	case "og:title":
		meta.OGTitle = content
	case "og:description":
		meta.OGDescription = content
	case "article:published_time":
		meta.PublishedTime = content
	}
}

func getMetaAttrs(n *html.Node) (string, string) {
	var name, content string

	for _, attr := range n.Attr {
		switch strings.ToLower(attr.Key) {
		case "name", "property":
			name = attr.Val
		case "content":
			content = attr.Val
		}
	}

	return name, content
}

func coalesce(strs ...string) string {
	for _, s := range strs {
		if s != "" {
			return s
		}
	}

	return ""
}

func coalesceTime(times ...time.Time) time.Time {
	for _, t := range times {
		if !t.IsZero() {
			return t
		}
	}

	return time.Time{}
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}

	return *t
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}

	runes := []rune(s)

	return string(runes[:maxLen]) + "..."
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}

	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}
	}

	return t
}

func countWords(s string) int {
	return len(strings.Fields(s))
}

func stripTags(s string) string {
	var sb strings.Builder

	inTag := false

	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}

	return strings.TrimSpace(sb.String())
}
