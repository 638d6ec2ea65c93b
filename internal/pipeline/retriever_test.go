package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopherai-search/internal/ai"
	"gopherai-search/internal/model"
	"gopherai-search/internal/search"
)

func TestParseMode(t *testing.T) {
	for raw, want := range map[string]Mode{"": ModeSingle, "single": ModeSingle, "DEEP": ModeDeep, " none ": ModeNone} {
		got, err := ParseMode(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("turbo")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestResolveSource(t *testing.T) {
	doc := &model.AuxContext{DocumentText: "text"}
	data := &model.AuxContext{Dataset: &model.Dataset{Columns: []string{"a"}}}

	tests := []struct {
		name   string
		intent Intent
		mode   Mode
		aux    *model.AuxContext
		want   Source
	}{
		{"image wins over deep", IntentImage, ModeDeep, nil, SourceNone},
		{"analysis uses dataset", IntentAnalysis, ModeDeep, data, SourceDataset},
		{"mode none", IntentSearch, ModeNone, doc, SourceNone},
		{"deep wins over document", IntentSearch, ModeDeep, doc, SourceDeepWeb},
		{"document skips web", IntentSearch, ModeSingle, doc, SourceDocument},
		{"dataset skips web", IntentSearch, ModeSingle, data, SourceDataset},
		{"chat skips web", IntentChat, ModeSingle, nil, SourceNone},
		{"default single search", IntentSearch, ModeSingle, nil, SourceWeb},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveSource(tt.intent, tt.mode, tt.aux))
		})
	}
}

func TestRetrieveSingle(t *testing.T) {
	provider := &fakeSearch{results: map[string][]search.Result{
		"capital of France": {{Title: "France", URL: "https://fr.example", Content: "Paris is the capital"}},
	}}
	r := NewRetriever(provider, nil, RetrieverConfig{MaxResults: 10}, nil)

	got := r.Retrieve(context.Background(), RetrieveRequest{Query: "capital of France", Mode: ModeSingle, Intent: IntentSearch})
	assert.Equal(t, StatusFound, got.Status)
	assert.Equal(t, SourceWeb, got.Source)
	require.Len(t, got.Evidence, 1)
	assert.Equal(t, model.Evidence{Title: "France", URL: "https://fr.example", Snippet: "Paris is the capital"}, got.Evidence[0])
	assert.Equal(t, []int{6}, provider.limits, "result count is clamped")
}

func TestRetrieveSingleFailureIsSwallowed(t *testing.T) {
	provider := &fakeSearch{errs: map[string]error{"q": errors.New("503")}}
	r := NewRetriever(provider, nil, RetrieverConfig{}, nil)

	got := r.Retrieve(context.Background(), RetrieveRequest{Query: "q", Intent: IntentSearch, Mode: ModeSingle})
	assert.Equal(t, StatusFailed, got.Status)
	assert.Error(t, got.Err)
	assert.Empty(t, got.Evidence)
	assert.Equal(t, []int{5}, provider.limits)
}

func TestRetrieveSkipped(t *testing.T) {
	provider := &fakeSearch{}
	r := NewRetriever(provider, nil, RetrieverConfig{}, nil)

	got := r.Retrieve(context.Background(), RetrieveRequest{
		Query: "summarize it", Mode: ModeSingle, Intent: IntentSearch,
		Aux: &model.AuxContext{DocumentText: "doc"},
	})
	assert.Equal(t, StatusSkipped, got.Status)
	assert.Equal(t, SourceDocument, got.Source)
	assert.Empty(t, provider.calls)

	got = r.Retrieve(context.Background(), RetrieveRequest{Query: " ", Mode: ModeSingle, Intent: IntentSearch})
	assert.ErrorIs(t, got.Err, ErrEmptyQuery)
}

func TestRetrieveDeepDedup(t *testing.T) {
	provider := &fakeSearch{results: map[string][]search.Result{
		"q1": {{Title: "A", URL: "https://a"}, {Title: "B", URL: "https://b"}},
		"q2": {{Title: "B again", URL: "https://b"}, {Title: "C", URL: "https://c"}},
		"q3": {{Title: "A again", URL: "https://a"}, {Title: "D", URL: "https://d"}},
	}}
	planner := NewSubQueryPlanner(&fakeJSON{reply: `{"queries":["q1","q2","q3"]}`}, ai.ChatConfig{}, 3, nil)
	r := NewRetriever(provider, planner, RetrieverConfig{DeepMaxResults: 2}, nil)

	got := r.Retrieve(context.Background(), RetrieveRequest{Query: "original", Mode: ModeDeep, Intent: IntentSearch})
	assert.Equal(t, StatusFound, got.Status)
	assert.Equal(t, []string{"q1", "q2", "q3"}, provider.calls)
	assert.Equal(t, []int{2, 2, 2}, provider.limits)

	var urls, titles []string
	for _, ev := range got.Evidence {
		urls = append(urls, ev.URL)
		titles = append(titles, ev.Title)
	}
	assert.Equal(t, []string{"https://a", "https://b", "https://c", "https://d"}, urls)
	assert.Equal(t, []string{"A", "B", "C", "D"}, titles)
}

func TestRetrieveDeepPartialAndTotalFailure(t *testing.T) {
	planner := NewSubQueryPlanner(&fakeJSON{reply: `{"queries":["q1","q2"]}`}, ai.ChatConfig{}, 3, nil)

	partial := &fakeSearch{
		results: map[string][]search.Result{"q2": {{Title: "ok", URL: "https://ok"}}},
		errs:    map[string]error{"q1": errors.New("boom")},
	}
	got := NewRetriever(partial, planner, RetrieverConfig{}, nil).
		Retrieve(context.Background(), RetrieveRequest{Query: "x", Mode: ModeDeep})
	assert.Equal(t, StatusFound, got.Status)
	assert.NoError(t, got.Err)
	require.Len(t, got.Evidence, 1)

	total := &fakeSearch{errs: map[string]error{"q1": errors.New("a"), "q2": errors.New("b")}}
	got = NewRetriever(total, planner, RetrieverConfig{}, nil).
		Retrieve(context.Background(), RetrieveRequest{Query: "x", Mode: ModeDeep})
	assert.Equal(t, StatusFailed, got.Status)
	assert.ErrorIs(t, got.Err, ErrAllSearchesFailed)
	assert.Empty(t, got.Evidence)
}

func TestSubQueryPlannerFallback(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		llm  *fakeJSON
		want []string
	}{
		{"error", &fakeJSON{err: errors.New("down")}, []string{"origin"}},
		{"malformed", &fakeJSON{reply: `["not", "an", "object"]`}, []string{"origin"}},
		{"empty list", &fakeJSON{reply: `{"queries":["  ",""]}`}, []string{"origin"}},
		{"capped", &fakeJSON{reply: `{"queries":["a","b","c","d"]}`}, []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewSubQueryPlanner(tt.llm, ai.ChatConfig{}, 0, nil)
			assert.Equal(t, tt.want, p.Plan(ctx, "origin"))
		})
	}
}
