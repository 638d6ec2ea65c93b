// Package search talks to the web search provider.
package search

import (
	"context"
	"errors"
)

var ErrEmptyQuery = errors.New("search query is empty")

type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Provider returns results in the provider's ranking order.
type Provider interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}
