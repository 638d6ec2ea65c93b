package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"gopherai-search/internal/model"
	"gopherai-search/internal/search"
)

var (
	ErrEmptyQuery        = errors.New("query is empty")
	ErrInvalidMode       = errors.New("invalid retrieval mode")
	ErrAllSearchesFailed = errors.New("every search request failed")
)

// Mode is the caller's retrieval request.
type Mode string

const (
	ModeNone   Mode = "none"
	ModeSingle Mode = "single"
	ModeDeep   Mode = "deep"
)

// ParseMode maps the empty string to ModeSingle.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeSingle:
		return ModeSingle, nil
	case ModeNone:
		return ModeNone, nil
	case ModeDeep:
		return ModeDeep, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, raw)
	}
}

// Source is where a turn's grounding comes from after precedence is applied.
type Source string

const (
	SourceNone     Source = "none"
	SourceWeb      Source = "web"
	SourceDeepWeb  Source = "deep_web"
	SourceDocument Source = "document"
	SourceDataset  Source = "dataset"
)

// ResolveSource applies the retrieval precedence rule, first match wins:
// image intent, analysis intent, mode none, mode deep, uploaded context,
// chat intent, then single web search.
func ResolveSource(intent Intent, mode Mode, aux *model.AuxContext) Source {
	switch {
	case intent == IntentImage:
		return SourceNone
	case intent == IntentAnalysis:
		return SourceDataset
	case mode == ModeNone:
		return SourceNone
	case mode == ModeDeep:
		return SourceDeepWeb
	case aux.HasDataset() && !aux.HasDocument():
		return SourceDataset
	case aux.HasDocument():
		return SourceDocument
	case intent == IntentChat:
		return SourceNone
	default:
		return SourceWeb
	}
}

type Status string

const (
	StatusSkipped Status = "skipped"
	StatusFound   Status = "found"
	StatusEmpty   Status = "empty"
	StatusFailed  Status = "failed"
)

// Retrieval is the explicit outcome of one retrieval. Empty and failed are
// both valid results; callers decide what to tell the user.
type Retrieval struct {
	Source   Source
	Queries  []string
	Evidence []model.Evidence
	Status   Status
	Err      error
}

type RetrieveRequest struct {
	Query  string
	Mode   Mode
	Intent Intent
	Aux    *model.AuxContext
}

type RetrieverConfig struct {
	MaxResults     int
	DeepMaxResults int
}

type Retriever struct {
	provider search.Provider
	planner  *SubQueryPlanner
	cfg      RetrieverConfig
	logger   *zap.Logger
}

func NewRetriever(provider search.Provider, planner *SubQueryPlanner, cfg RetrieverConfig, logger *zap.Logger) *Retriever {
	cfg.MaxResults = clampResults(cfg.MaxResults)
	if cfg.DeepMaxResults <= 0 {
		cfg.DeepMaxResults = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{provider: provider, planner: planner, cfg: cfg, logger: logger}
}

func clampResults(n int) int {
	switch {
	case n <= 0:
		return 5
	case n < 3:
		return 3
	case n > 6:
		return 6
	default:
		return n
	}
}

// Retrieve never returns an error value; failures are reported through
// Retrieval.Status and Retrieval.Err.
func (r *Retriever) Retrieve(ctx context.Context, req RetrieveRequest) Retrieval {
	source := ResolveSource(req.Intent, req.Mode, req.Aux)
	if strings.TrimSpace(req.Query) == "" {
		return Retrieval{Source: source, Status: StatusFailed, Err: ErrEmptyQuery}
	}

	switch source {
	case SourceWeb:
		return r.single(ctx, req.Query)
	case SourceDeepWeb:
		return r.deep(ctx, req.Query)
	default:
		return Retrieval{Source: source, Status: StatusSkipped}
	}
}

func (r *Retriever) single(ctx context.Context, query string) Retrieval {
	out := Retrieval{Source: SourceWeb, Queries: []string{query}}
	results, err := r.provider.Search(ctx, query, r.cfg.MaxResults)
	if err != nil {
		r.logger.Warn("web search failed", zap.String("query", query), zap.Error(err))
		out.Status = StatusFailed
		out.Err = err
		return out
	}
	out.Evidence = toEvidence(results)
	out.Status = statusFor(out.Evidence)
	return out
}

func (r *Retriever) deep(ctx context.Context, query string) Retrieval {
	queries := []string{query}
	if r.planner != nil {
		queries = r.planner.Plan(ctx, query)
	}
	out := Retrieval{Source: SourceDeepWeb, Queries: queries}

	var (
		merged []model.Evidence
		failed int
		errs   []error
	)
	for _, q := range queries {
		results, err := r.provider.Search(ctx, q, r.cfg.DeepMaxResults)
		if err != nil {
			r.logger.Warn("deep sub-query search failed", zap.String("query", q), zap.Error(err))
			failed++
			errs = append(errs, err)
			continue
		}
		merged = append(merged, toEvidence(results)...)
	}
	if failed == len(queries) {
		out.Status = StatusFailed
		out.Err = fmt.Errorf("%w: %w", ErrAllSearchesFailed, errors.Join(errs...))
		return out
	}

	out.Evidence = DedupByURL(merged)
	out.Status = statusFor(out.Evidence)
	return out
}

// DedupByURL keeps the first occurrence of every URL, preserving order.
func DedupByURL(evidence []model.Evidence) []model.Evidence {
	seen := make(map[string]struct{}, len(evidence))
	out := make([]model.Evidence, 0, len(evidence))
	for _, ev := range evidence {
		key := strings.TrimSpace(ev.URL)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ev)
	}
	return out
}

func toEvidence(results []search.Result) []model.Evidence {
	out := make([]model.Evidence, 0, len(results))
	for _, res := range results {
		out = append(out, model.Evidence{Title: res.Title, URL: res.URL, Snippet: res.Content})
	}
	return out
}

func statusFor(evidence []model.Evidence) Status {
	if len(evidence) == 0 {
		return StatusEmpty
	}
	return StatusFound
}
