package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"gopherai-search/internal/ai"
)

const defaultSubQueries = 3

const plannerPrompt = `You break a research question into %d distinct web search queries
that together cover it from different angles. Keep each query short.
Reply with JSON only: {"queries": ["...", "..."]}.`

// SubQueryPlanner derives the reformulated queries used by deep mode.
type SubQueryPlanner struct {
	llm    JSONCompleter
	cfg    ai.ChatConfig
	n      int
	logger *zap.Logger
}

func NewSubQueryPlanner(llm JSONCompleter, cfg ai.ChatConfig, n int, logger *zap.Logger) *SubQueryPlanner {
	if n <= 0 {
		n = defaultSubQueries
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubQueryPlanner{llm: llm, cfg: cfg, n: n, logger: logger}
}

// Plan never fails: malformed or missing output yields []string{query}.
func (p *SubQueryPlanner) Plan(ctx context.Context, query string) []string {
	fallback := []string{query}
	if p.llm == nil {
		return fallback
	}

	var out struct {
		Queries []string `json:"queries"`
	}
	err := p.llm.CompleteJSON(ctx, p.cfg, []ai.ChatMessage{
		{Role: "system", Content: fmt.Sprintf(plannerPrompt, p.n)},
		{Role: "user", Content: query},
	}, &out)
	if err != nil {
		p.logger.Warn("sub-query planning failed, using original query", zap.Error(err))
		return fallback
	}

	queries := make([]string, 0, p.n)
	for _, q := range out.Queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		queries = append(queries, q)
		if len(queries) == p.n {
			break
		}
	}
	if len(queries) == 0 {
		p.logger.Warn("sub-query planning returned no queries, using original query")
		return fallback
	}
	return queries
}
