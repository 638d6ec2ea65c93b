package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"gopherai-search/internal/ai"
	"gopherai-search/internal/search"
)

type fakeSearch struct {
	mu      sync.Mutex
	results map[string][]search.Result
	errs    map[string]error
	calls   []string
	limits  []int
}

func (f *fakeSearch) Search(_ context.Context, query string, maxResults int) ([]search.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, query)
	f.limits = append(f.limits, maxResults)
	if err := f.errs[query]; err != nil {
		return nil, err
	}
	return f.results[query], nil
}

type fakeJSON struct {
	reply    string
	err      error
	messages []ai.ChatMessage
}

func (f *fakeJSON) CompleteJSON(_ context.Context, _ ai.ChatConfig, messages []ai.ChatMessage, out any) error {
	f.messages = messages
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.reply), out)
}

type fakeStream struct {
	chunks   []string
	err      error
	cfg      ai.ChatConfig
	messages []ai.ChatMessage
	calls    int
	// ignoreStop keeps streaming after the callback asks to stop, then
	// reports err instead of the callback's error.
	ignoreStop bool
}

func (f *fakeStream) StreamComplete(_ context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage, onChunk func(string) error) (string, error) {
	f.calls++
	f.cfg = cfg
	f.messages = messages
	var full string
	for _, c := range f.chunks {
		full += c
		if err := onChunk(c); err != nil && !f.ignoreStop {
			return full, err
		}
	}
	return full, f.err
}

var errConnReset = errors.New("connection reset by peer")
