package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenAICompatibleClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAICompatibleClient(ClientConfig{BaseURL: srv.URL + "/v1", APIKey: "test-key"})
}

func completionBody(content string) string {
	payload, _ := json.Marshal(content)
	return fmt.Sprintf(`{"id":"c1","object":"chat.completion","created":1,"model":"m",
		"choices":[{"index":0,"message":{"role":"assistant","content":%s},"finish_reason":"stop"}]}`, payload)
}

func TestComplete(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody("hello"))
	})

	got, err := client.Complete(context.Background(), ChatConfig{Model: "llama", Temperature: 0.5},
		[]ChatMessage{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
	assert.Equal(t, "llama", body["model"])
	assert.InDelta(t, 0.5, body["temperature"], 1e-6)
	assert.Nil(t, body["response_format"])

	_, err = client.Complete(context.Background(), ChatConfig{}, nil)
	assert.ErrorIs(t, err, ErrEmptyMessages)
}

func TestCompleteJSON(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody(` {"queries":["a","b"]} `))
	})

	var out struct {
		Queries []string `json:"queries"`
	}
	err := client.CompleteJSON(context.Background(), ChatConfig{Model: "m"},
		[]ChatMessage{{Role: "user", Content: "split"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out.Queries)

	format, ok := body["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_object", format["type"])
}

func TestCompleteJSONMalformed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody("not json"))
	})

	var out map[string]any
	err := client.CompleteJSON(context.Background(), ChatConfig{Model: "m"},
		[]ChatMessage{{Role: "user", Content: "x"}}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse llm json failed")
}

func TestCompleteProviderError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Invalid API Key","type":"invalid_request_error"}}`)
	})

	_, err := client.Complete(context.Background(), ChatConfig{Model: "m"}, []ChatMessage{{Role: "user", Content: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API Key")
}

func TestStreamComplete(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"Paris", "", " is the capital."} {
			fmt.Fprintf(w, "data: {\"id\":\"s\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", delta)
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})

	var chunks []string
	full, err := client.StreamComplete(context.Background(), ChatConfig{Model: "m"},
		[]ChatMessage{{Role: "user", Content: "capital?"}},
		func(chunk string) error {
			chunks = append(chunks, chunk)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"Paris", " is the capital."}, chunks)
	assert.Equal(t, "Paris is the capital.", full)
	assert.Equal(t, true, body["stream"])
}

func TestStreamCompleteCallbackStops(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"a", "b", "c"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", delta)
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})

	stop := errors.New("stop")
	full, err := client.StreamComplete(context.Background(), ChatConfig{Model: "m"},
		[]ChatMessage{{Role: "user", Content: "x"}},
		func(chunk string) error { return stop })
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, "a", full)
}

func TestTranscribe(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-large-v3", r.FormValue("model"))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "clip.webm", header.Filename)
		data, _ := io.ReadAll(file)
		assert.Equal(t, "RIFF", string(data))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"  what is the capital of France? "}`)
	})

	text, err := client.Transcribe(context.Background(), SpeechConfig{TranscribeModel: "whisper-large-v3"},
		[]byte("RIFF"), "clip.webm", "en")
	require.NoError(t, err)
	assert.Equal(t, "what is the capital of France?", text)

	_, err = client.Transcribe(context.Background(), SpeechConfig{}, nil, "", "")
	assert.ErrorIs(t, err, ErrEmptyAudio)
}

func TestSynthesize(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = io.WriteString(w, "ID3-mp3-bytes")
	})

	audio, err := client.Synthesize(context.Background(), SpeechConfig{TTSModel: "tts-1", Voice: "alloy"}, "Paris.")
	require.NoError(t, err)
	assert.Equal(t, "ID3-mp3-bytes", string(audio))
	assert.Equal(t, "Paris.", body["input"])
	assert.Equal(t, "alloy", body["voice"])

	_, err = client.Synthesize(context.Background(), SpeechConfig{}, "  ")
	assert.ErrorIs(t, err, ErrEmptySpeechText)
}

func TestGenerateImage(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "b64_json", body["response_format"])
		assert.True(t, strings.Contains(body["prompt"].(string), "cat"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"created":1,"data":[{"b64_json":%q}]}`, base64.StdEncoding.EncodeToString(png))
	})

	data, err := client.GenerateImage(context.Background(), ImageConfig{Model: "dall-e-3", Size: "1024x1024"}, "a cat")
	require.NoError(t, err)
	assert.Equal(t, png, data)
}

func TestGenerateImageEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"created":1,"data":[]}`)
	})

	_, err := client.GenerateImage(context.Background(), ImageConfig{}, "a cat")
	assert.ErrorIs(t, err, ErrEmptyImage)
}
