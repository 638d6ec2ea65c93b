package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultTavilyBaseURL = "https://api.tavily.com"

type TavilyConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// Depth is "basic" or "advanced".
	Depth string
}

type TavilyClient struct {
	client *resty.Client
	depth  string
}

type tavilyRequest struct {
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type tavilyResponse struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
}

func NewTavilyClient(cfg TavilyConfig) *TavilyClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultTavilyBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	depth := cfg.Depth
	if depth == "" {
		depth = "basic"
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return &TavilyClient{client: client, depth: depth}
}

func (c *TavilyClient) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(tavilyRequest{Query: query, MaxResults: maxResults, SearchDepth: c.depth}).
		Post("/search")
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("search response status %d: %s", resp.StatusCode(), errorMessage(resp.Body()))
	}

	var parsed tavilyResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("parse search json failed: %w", err)
	}
	if maxResults > 0 && len(parsed.Results) > maxResults {
		parsed.Results = parsed.Results[:maxResults]
	}
	return parsed.Results, nil
}

func errorMessage(body []byte) string {
	var errResp struct {
		Detail struct {
			Error string `json:"error"`
		} `json:"detail"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Detail.Error != "" {
		return errResp.Detail.Error
	}
	return string(body)
}
