package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTavilySearch(t *testing.T) {
	var got tavilyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer tvly-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"query":"capital of france","results":[
			{"title":"France","url":"https://fr.example","content":"Paris is the capital","score":0.9},
			{"title":"Paris","url":"https://paris.example","content":"City of light","score":0.7},
			{"title":"Extra","url":"https://extra.example","content":"x","score":0.1}
		]}`))
	}))
	defer srv.Close()

	client := NewTavilyClient(TavilyConfig{BaseURL: srv.URL, APIKey: "tvly-key"})
	results, err := client.Search(context.Background(), "capital of france", 2)
	require.NoError(t, err)

	assert.Equal(t, "capital of france", got.Query)
	assert.Equal(t, 2, got.MaxResults)
	assert.Equal(t, "basic", got.SearchDepth)

	require.Len(t, results, 2)
	assert.Equal(t, "France", results[0].Title)
	assert.Equal(t, "https://paris.example", results[1].URL)
}

func TestTavilySearchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":{"error":"Unauthorized: missing or invalid API key."}}`))
	}))
	defer srv.Close()

	client := NewTavilyClient(TavilyConfig{BaseURL: srv.URL, APIKey: "bad"})

	_, err := client.Search(context.Background(), "   ", 5)
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = client.Search(context.Background(), "q", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "invalid API key")
}
