// Package tavily adapts the Tavily search API for news retrieval. Searches
// run against the news topic with a trailing-days window and come back as
// normalized items.
package tavily

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/ashita-ai/ichiba/internal/model"
	"github.com/ashita-ai/ichiba/internal/provider"
)

// Name is the provider name used for rate-limit and cache keys.
const Name = "tavily"

// DefaultMaxResults bounds a search when the caller does not.
const DefaultMaxResults = 10

// Client calls the Tavily API through a shared provider.Runner.
type Client struct {
	runner  *provider.Runner
	baseURL string
	apiKey  string
}

// New creates a Tavily client. baseURL defaults to the public API.
func New(runner *provider.Runner, baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "https://api.tavily.com"
	}
	return &Client{runner: runner, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

type searchRequest struct {
	APIKey            string `json:"api_key"`
	Query             string `json:"query"`
	Topic             string `json:"topic"`
	SearchDepth       string `json:"search_depth"`
	Days              int    `json:"days"`
	MaxResults        int    `json:"max_results"`
	IncludeAnswer     bool   `json:"include_answer"`
	IncludeImages     bool   `json:"include_images"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

type searchResult struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"published_date"`
	Domain        string  `json:"domain"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

// SearchNews runs a news-topic search for query over the trailing days
// window, returning up to maxResults normalized items. No hits is a valid
// empty result, not a failure.
func (c *Client) SearchNews(ctx context.Context, query string, days, maxResults int) ([]model.NewsItem, error) {
	if days < 1 {
		days = 1
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	req := searchRequest{
		APIKey:      c.apiKey,
		Query:       query,
		Topic:       "news",
		SearchDepth: "advanced",
		Days:        days,
		MaxResults:  maxResults,
	}

	var raw searchResponse
	if err := c.runner.PostJSON(ctx, "search", c.baseURL+"/search", req, &raw); err != nil {
		return nil, err
	}

	items := make([]model.NewsItem, 0, len(raw.Results))
	for _, r := range raw.Results {
		items = append(items, model.NewsItem{
			Title:       r.Title,
			URL:         r.URL,
			Content:     r.Content,
			Source:      sourceOf(r.Domain, r.URL),
			Score:       r.Score,
			PublishedAt: parsePublished(r.PublishedDate),
		})
	}
	return items, nil
}

// The news topic reports RFC 1123 timestamps; other topics use ISO dates.
var publishedLayouts = []string{time.RFC1123, time.RFC3339, "2006-01-02"}

func parsePublished(s string) time.Time {
	for _, layout := range publishedLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func sourceOf(domain, rawURL string) string {
	if domain != "" {
		return domain
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
