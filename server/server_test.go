package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/askgov/internal/models"
	"github.com/xhad/askgov/internal/types"
	"github.com/xhad/askgov/pkg/assistant"
	"github.com/xhad/askgov/pkg/retrieval"
	"github.com/xhad/askgov/pkg/scraper"
	"github.com/xhad/askgov/pkg/store"
	"github.com/xhad/askgov/server"
)

const knowledge = `## 户籍办理
### 关键词: 身份证
#### 问题 1: 如何办理身份证
**回答:**
请携带户口本前往派出所办理
`

type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func newTestServer(t *testing.T, emb *fakeEmbedder) (*server.Server, *retrieval.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := retrieval.New(emb, store.NewCollection(store.NewMemoryBackend()), retrieval.Options{})
	asst := assistant.New(svc, nil, assistant.Config{})
	srv := server.New(server.Config{
		Scraper: scraper.ScraperConfig{RateLimit: 100},
	}, svc, asst)
	return srv, svc
}

func chineseEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vectors: map[string][]float32{
		"如何办理身份证":       {0.9, 0.1, 0},
		"请携带户口本前往派出所办理": {0.8, 0.3, 0},
		"身份证怎么办":        {1, 0.2, 0},
	}}
}

func do(t *testing.T, h http.Handler, method, target string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, &fakeEmbedder{})
	w, body := do(t, srv.Handler(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestVectorsLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, chineseEmbedder())
	h := srv.Handler()

	w, body := do(t, h, http.MethodGet, "/api/vectors?query="+url.QueryEscape("身份证怎么办"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{retrieval.DefaultFallbackMessage}, body["results"])

	w, body = do(t, h, http.MethodPost, "/api/vectors", map[string]any{
		"content":  "如何办理身份证",
		"metadata": map[string]any{"type": "question", "keywords": []string{"身份证"}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])

	w, body = do(t, h, http.MethodPost, "/api/vectors", map[string]any{
		"content":  "请携带户口本前往派出所办理",
		"metadata": map[string]any{"type": "answer", "keywords": []string{"身份证"}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	answerID := body["id"].(string)

	w, body = do(t, h, http.MethodGet, "/api/vectors?topK=1&query="+url.QueryEscape("身份证怎么办"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"请携带户口本前往派出所办理"}, body["results"])
	debug := body["debug"].(map[string]any)
	assert.Equal(t, float64(2), debug["totalDocuments"])
	assert.Equal(t, float64(2), debug["matchedDocuments"])

	w, _ = do(t, h, http.MethodDelete, "/api/vectors?id="+answerID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, body = do(t, h, http.MethodGet, "/api/vectors?topK=3&query="+url.QueryEscape("身份证怎么办"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"如何办理身份证"}, body["results"])
}

func TestVectorsValidation(t *testing.T) {
	srv, _ := newTestServer(t, &fakeEmbedder{})
	h := srv.Handler()

	tests := []struct {
		name   string
		method string
		target string
		body   any
		status int
	}{
		{"missing query", http.MethodGet, "/api/vectors", nil, http.StatusBadRequest},
		{"bad topK", http.MethodGet, "/api/vectors?query=x&topK=zero", nil, http.StatusBadRequest},
		{"negative topK", http.MethodGet, "/api/vectors?query=x&topK=-1", nil, http.StatusBadRequest},
		{"missing id", http.MethodDelete, "/api/vectors", nil, http.StatusBadRequest},
		{"unknown id", http.MethodDelete, "/api/vectors?id=nope", nil, http.StatusOK},
		{"empty content", http.MethodPost, "/api/vectors", map[string]any{"content": " "}, http.StatusBadRequest},
		{"bad type", http.MethodPost, "/api/vectors", map[string]any{"content": "x", "metadata": map[string]any{"type": "note"}}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := do(t, h, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestEmbeddingFailureIsBadGateway(t *testing.T) {
	emb := &fakeEmbedder{err: &types.EmbeddingServiceError{Op: "embed", Err: errors.New("connection refused")}}
	srv, _ := newTestServer(t, emb)

	w, body := do(t, srv.Handler(), http.MethodPost, "/api/vectors", map[string]any{"content": "x"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, body["error"], "connection refused")
}

func TestImportKnowledgeAndList(t *testing.T) {
	srv, _ := newTestServer(t, chineseEmbedder())
	h := srv.Handler()

	w, body := do(t, h, http.MethodPost, "/api/knowledge", map[string]any{"markdown": knowledge})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["entriesCount"])
	assert.Equal(t, float64(2), body["addedCount"])

	w, body = do(t, h, http.MethodGet, "/api/vectors/list", nil)
	require.Equal(t, http.StatusOK, w.Code)

	groups := body["data"].([]any)
	require.Len(t, groups, 2)
	first := groups[0].(map[string]any)
	assert.Equal(t, "answer", first["type"])
	assert.Equal(t, float64(1), first["count"])
	item := first["items"].([]any)[0].(map[string]any)
	assert.Equal(t, "请携带户口本前往派出所办理", item["content"])
	assert.Equal(t, []any{"身份证"}, item["keywords"])
	assert.NotContains(t, item, "embedding")

	w, body = do(t, h, http.MethodPost, "/api/knowledge", map[string]any{"markdown": "没有问答"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["success"])

	w, _ = do(t, h, http.MethodPost, "/api/knowledge", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportKnowledgeUpload(t *testing.T) {
	srv, svc := newTestServer(t, chineseEmbedder())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "knowledge.md")
	require.NoError(t, err)
	_, err = fw.Write([]byte(knowledge))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/knowledge", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	groups, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, groups, 2)
}

func TestImportKnowledgeFromURL(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/markdown")
		w.Write([]byte(knowledge))
	}))
	defer site.Close()

	srv, _ := newTestServer(t, chineseEmbedder())
	w, body := do(t, srv.Handler(), http.MethodPost, "/api/knowledge", map[string]any{"url": site.URL + "/kb.md"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["addedCount"])
}

func TestWebSocketAsk(t *testing.T) {
	srv, svc := newTestServer(t, chineseEmbedder())
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "如何办理身份证", models.Metadata{Type: models.TypeQuestion})
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, "请携带户口本前往派出所办理", models.Metadata{Type: models.TypeAnswer})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.WriteJSON(server.Message{Type: server.MessageAsk, Content: "身份证怎么办"}))

	var msg server.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, server.MessageStatus, msg.Type)

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, server.MessageAnswer, msg.Type)
	assert.Equal(t, "请携带户口本前往派出所办理", msg.Content)

	require.NoError(t, conn.WriteJSON(server.Message{Type: server.MessagePing}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, server.MessagePong, msg.Type)

	require.NoError(t, conn.WriteJSON(server.Message{Type: "bogus"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, server.MessageError, msg.Type)
}

func TestRunShutsDown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := retrieval.New(&fakeEmbedder{}, store.NewCollection(store.NewMemoryBackend()), retrieval.Options{})
	srv := server.New(server.Config{Addr: "127.0.0.1:0"}, svc, assistant.New(svc, nil, assistant.Config{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
