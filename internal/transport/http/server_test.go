package http_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gopherai-search/internal/ai"
	"gopherai-search/internal/app"
	"gopherai-search/internal/bootstrap"
	"gopherai-search/internal/config"
	"gopherai-search/internal/pipeline"
	"gopherai-search/internal/search"
	"gopherai-search/internal/session"
	httptransport "gopherai-search/internal/transport/http"
)

const testSecret = "router-test-secret"

// newProvider fakes both the completion provider and the search API.
func newProvider(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"query":"q","results":[
				{"title":"France","url":"https://fr.example","content":"Paris is the capital of France.","score":0.9},
				{"title":"Paris","url":"https://paris.example","content":"Paris hosts the government.","score":0.5}]}`)
		case "/v1/chat/completions":
			var body struct {
				Stream bool `json:"stream"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if !body.Stream {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `{"id":"c","object":"chat.completion","created":1,"model":"m",
					"choices":[{"index":0,"message":{"role":"assistant","content":"{\"search\":true}"},"finish_reason":"stop"}]}`)
				return
			}
			w.Header().Set("Content-Type", "text/event-stream")
			for _, delta := range []string{"Paris", " is the capital [1]."} {
				fmt.Fprintf(w, "data: {\"id\":\"s\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", delta)
			}
			_, _ = io.WriteString(w, "data: [DONE]\n\n")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestApp(t *testing.T) *bootstrap.App {
	t.Helper()
	provider := newProvider(t)
	llm := ai.NewOpenAICompatibleClient(ai.ClientConfig{BaseURL: provider.URL + "/v1", APIKey: "k"})
	searcher := search.NewTavilyClient(search.TavilyConfig{BaseURL: provider.URL, APIKey: "k"})
	store := session.NewMemoryStore()
	logger := zap.NewNop()

	fast := ai.ChatConfig{Model: "m"}
	chat := app.NewChatService(app.ChatDependencies{
		Store:      store,
		Classifier: pipeline.NewClassifier(llm, fast, logger),
		Retriever:  pipeline.NewRetriever(searcher, pipeline.NewSubQueryPlanner(llm, fast, 3, logger), pipeline.RetrieverConfig{}, logger),
		Assembler:  pipeline.NewAssembler(0, 0),
		Streamer:   pipeline.NewStreamer(llm, pipeline.ModelProfiles{Fast: fast, Smart: fast}, logger),
		Sandbox:    pipeline.NewChartSandbox(time.Second),
		Logger:     logger,
	}, app.ChatOptions{})

	return &bootstrap.App{
		Config: &config.Config{
			App:  config.AppConfig{Name: "gopherai-search", Env: "test", GinMode: "test"},
			Auth: config.AuthConfig{JWTSecret: testSecret, JWTExpireMinute: 10},
		},
		Logger:        logger,
		Store:         store,
		AuthService:   app.NewAuthService(nil, testSecret, 10*time.Minute),
		ChatService:   chat,
		UploadService: app.NewUploadService(store, 1<<20),
		StartedAt:     time.Now(),
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, router http.Handler, method, path, token string, body io.Reader, contentType string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func guestToken(t *testing.T, router http.Handler) string {
	t.Helper()
	rec, env := do(t, router, http.MethodPost, "/api/v1/auth/guest", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Token)
	return data.Token
}

func createConversation(t *testing.T, router http.Handler, token string) string {
	t.Helper()
	rec, env := do(t, router, http.MethodPost, "/api/v1/conversations", token, strings.NewReader(`{"title":"Geography"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	var conv struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &conv))
	require.NotEmpty(t, conv.ID)
	return conv.ID
}

type sseEvent struct {
	name string
	data string
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	var current sseEvent
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			current.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			current.data += strings.TrimPrefix(line, "data:")
		case line == "" && current.name != "":
			events = append(events, current)
			current = sseEvent{}
		}
	}
	return events
}

func TestRouterRequiresToken(t *testing.T) {
	router := httptransport.NewRouter(newTestApp(t))

	rec, env := do(t, router, http.MethodGet, "/api/v1/conversations", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotZero(t, env.Code)

	rec, _ = do(t, router, http.MethodGet, "/api/v1/conversations", "not-a-token", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterGuestAccountsDisabled(t *testing.T) {
	router := httptransport.NewRouter(newTestApp(t))

	rec, _ := do(t, router, http.MethodPost, "/api/v1/auth/login", "",
		strings.NewReader(`{"username":"alice","password":"password123"}`), "application/json")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	token := guestToken(t, router)
	rec, env := do(t, router, http.MethodGet, "/api/v1/auth/me", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"guest":true`)
}

func TestRouterTurnStream(t *testing.T) {
	router := httptransport.NewRouter(newTestApp(t))
	token := guestToken(t, router)
	convID := createConversation(t, router, token)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/"+convID+"/turns",
		strings.NewReader(`{"content":"What is the capital of France?"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseSSE(t, rec.Body.String())
	require.NotEmpty(t, events)
	assert.Equal(t, "done", events[len(events)-1].name)

	var answer strings.Builder
	var evidence []app.EvidencePayload
	for _, ev := range events {
		switch ev.name {
		case "fragment":
			var frag struct {
				Text string `json:"text"`
			}
			require.NoError(t, json.Unmarshal([]byte(ev.data), &frag))
			answer.WriteString(frag.Text)
		case "evidence":
			require.NoError(t, json.Unmarshal([]byte(ev.data), &evidence))
		}
	}
	assert.Equal(t, "Paris is the capital [1].", answer.String())
	require.Len(t, evidence, 2)
	assert.Equal(t, "https://fr.example", evidence[0].URL)

	rec, env := do(t, router, http.MethodGet, "/api/v1/conversations/"+convID+"/turns", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var turns []struct {
		Role     string `json:"role"`
		Content  string `json:"content"`
		Evidence []struct {
			URL string `json:"url"`
		} `json:"evidence"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &turns))
	require.Len(t, turns, 2)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "Paris is the capital [1].", turns[1].Content)
	require.Len(t, turns[1].Evidence, 2)
}

func TestRouterTurnErrorsBeforeStreaming(t *testing.T) {
	router := httptransport.NewRouter(newTestApp(t))
	token := guestToken(t, router)
	convID := createConversation(t, router, token)

	rec, _ := do(t, router, http.MethodPost, "/api/v1/conversations/missing/turns", token,
		strings.NewReader(`{"content":"hi there"}`), "application/json")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, router, http.MethodPost, "/api/v1/conversations/"+convID+"/turns", token,
		strings.NewReader(`{"content":"hi there","mode":"sideways"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// another session cannot read the conversation
	other := guestToken(t, router)
	rec, _ = do(t, router, http.MethodGet, "/api/v1/conversations/"+convID+"/turns", other, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterUploadAndDelete(t *testing.T) {
	router := httptransport.NewRouter(newTestApp(t))
	token := guestToken(t, router)
	convID := createConversation(t, router, token)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "sales.csv")
	require.NoError(t, err)
	_, _ = io.WriteString(part, "month,revenue\nJan,10\nFeb,12\n")
	require.NoError(t, form.Close())

	rec, env := do(t, router, http.MethodPost, "/api/v1/conversations/"+convID+"/uploads", token, &body, form.FormDataContentType())
	require.Equal(t, http.StatusOK, rec.Code)
	var result app.UploadResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "dataset", result.Kind)
	assert.Equal(t, 2, result.Rows)
	assert.Equal(t, []string{"month", "revenue"}, result.Columns)

	body.Reset()
	form = multipart.NewWriter(&body)
	part, err = form.CreateFormFile("file", "slides.pptx")
	require.NoError(t, err)
	_, _ = io.WriteString(part, "binary")
	require.NoError(t, form.Close())
	rec, _ = do(t, router, http.MethodPost, "/api/v1/conversations/"+convID+"/uploads", token, &body, form.FormDataContentType())
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec, _ = do(t, router, http.MethodDelete, "/api/v1/conversations/"+convID, token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec, env = do(t, router, http.MethodGet, "/api/v1/conversations", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestRouterHealth(t *testing.T) {
	a := newTestApp(t)
	router := httptransport.NewRouter(a)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"app":"gopherai-search"`)

}
