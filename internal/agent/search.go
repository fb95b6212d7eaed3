package agent

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
	"unicode/utf8"
)

// DefaultSearchURL is the SearchAPI-compatible endpoint used when none is configured.
const DefaultSearchURL = "https://www.searchapi.io/api/v1/search"

const (
	defaultSearchResults = 5
	maxSearchBodyBytes   = 2 << 20
)

var errEmptyQuery = errors.New("search query cannot be empty")

// SearchResult is one organic web result.
type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Searcher runs web searches on behalf of the agent.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// WebSearcher queries a SearchAPI-style HTTP endpoint.
type WebSearcher struct {
	client     *http.Client
	endpoint   string
	apiKey     string
	maxResults int
}

// NewWebSearcher creates a searcher for endpoint using apiKey.
func NewWebSearcher(endpoint, apiKey string, timeout time.Duration) *WebSearcher {
	if endpoint == "" {
		endpoint = DefaultSearchURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &WebSearcher{
		client:     &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		apiKey:     apiKey,
		maxResults: defaultSearchResults,
	}
}

type searchResponse struct {
	OrganicResults []SearchResult `json:"organic_results"`
	Error          string         `json:"error"`
}

// Search returns the top organic results for query.
func (s *WebSearcher) Search(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errEmptyQuery
	}

	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse search endpoint: %w", err)
	}
	q := u.Query()
	q.Set("engine", "google")
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("search error: %s", parsed.Error)
	}

	results := parsed.OrganicResults
	if len(results) > s.maxResults {
		results = results[:s.maxResults]
	}
	return results, nil
}

// formatResults renders results as the tool message handed back to the model.
func formatResults(results []SearchResult) string {
	if len(results) == 0 {
		return "No results found."
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n%s\n%s\n\n", i+1, r.Title, r.Link, r.Snippet)
	}
	return strings.TrimSpace(b.String())
}

// truncate shortens s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
