package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragassist/app/agent"
	"ragassist/loader"
	"ragassist/types"
)

type indexCall struct {
	locator string
	kind    loader.Kind
	kinds   []loader.Kind
	dir     bool
}

type fakeIndexer struct {
	n     int
	err   error
	calls []indexCall
}

func (f *fakeIndexer) IndexLocator(ctx context.Context, locator string, kind loader.Kind) (int, error) {
	f.calls = append(f.calls, indexCall{locator: locator, kind: kind})
	return f.n, f.err
}

func (f *fakeIndexer) IndexDirectory(ctx context.Context, root string, kinds ...loader.Kind) (int, error) {
	f.calls = append(f.calls, indexCall{locator: root, kinds: kinds, dir: true})
	return f.n, f.err
}

type fakeAnswerer struct {
	answer agent.Answer
	web    agent.WebAnswer
	text   string
	err    error
	inputs []string
}

func (f *fakeAnswerer) QueryRAG(ctx context.Context, query string) (agent.Answer, error) {
	f.inputs = append(f.inputs, query)
	return f.answer, f.err
}

func (f *fakeAnswerer) QueryWithWebSearch(ctx context.Context, query string) (agent.WebAnswer, error) {
	f.inputs = append(f.inputs, query)
	return f.web, f.err
}

func (f *fakeAnswerer) SearchWeb(ctx context.Context, query string) (string, error) {
	f.inputs = append(f.inputs, query)
	return f.text, f.err
}

func (f *fakeAnswerer) CompleteCode(ctx context.Context, code, language string) (string, error) {
	f.inputs = append(f.inputs, code, language)
	return f.text, f.err
}

func (f *fakeAnswerer) SuggestImprovements(ctx context.Context, code, language string) (string, error) {
	f.inputs = append(f.inputs, code, language)
	return f.text, f.err
}

func (f *fakeAnswerer) GenerateCode(ctx context.Context, description, language string) (string, error) {
	f.inputs = append(f.inputs, description, language)
	return f.text, f.err
}

func newTestApp(ix Indexer, a Answerer, uploadDir string) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	NewRAGHandler(ix, a, uploadDir, nil).Register(app.Group("/api/v1/rag"))
	app.Get("/check/healthy", NewCheckHandler().HandleHealthy)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func get(t *testing.T, app *fiber.App, path string) *http.Response {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthy(t *testing.T) {
	app := newTestApp(&fakeIndexer{}, &fakeAnswerer{}, t.TempDir())
	resp := get(t, app, "/check/healthy")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[map[string]any](t, resp)["result"])
}

func TestIndexRoutes(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		want indexCall
	}{
		{"generic file", "/api/v1/rag/index", `{"locator":"/d/a.txt","kind":"text"}`, indexCall{locator: "/d/a.txt", kind: loader.KindText}},
		{"generic directory", "/api/v1/rag/index", `{"locator":"/d","kind":"directory"}`, indexCall{locator: "/d", dir: true}},
		{"pdf", "/api/v1/rag/index-pdf", `{"filePath":"/d/a.pdf"}`, indexCall{locator: "/d/a.pdf", kind: loader.KindPDF}},
		{"text", "/api/v1/rag/index-text", `{"filePath":"/d/a.md"}`, indexCall{locator: "/d/a.md", kind: loader.KindText}},
		{"html", "/api/v1/rag/index-html", `{"filePath":"/d/a.html"}`, indexCall{locator: "/d/a.html", kind: loader.KindHTML}},
		{"url", "/api/v1/rag/index-url", `{"url":"https://example.com/page"}`, indexCall{locator: "https://example.com/page", kind: loader.KindURL}},
		{"directory", "/api/v1/rag/index-directory", `{"directoryPath":"/d"}`, indexCall{locator: "/d", dir: true}},
		{"pdfs", "/api/v1/rag/index-pdfs", `{"directoryPath":"/d"}`, indexCall{locator: "/d", dir: true, kinds: []loader.Kind{loader.KindPDF}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ix := &fakeIndexer{n: 7}
			app := newTestApp(ix, &fakeAnswerer{}, t.TempDir())

			resp := postJSON(t, app, tt.path, tt.body)
			require.Equal(t, fiber.StatusOK, resp.StatusCode)

			out := decode[types.IndexResponse](t, resp)
			assert.Equal(t, 7, out.Chunks)
			assert.Equal(t, "indexed 7 chunks from "+tt.want.locator, out.Message)
			assert.Equal(t, []indexCall{tt.want}, ix.calls)
		})
	}
}

func TestIndex_Validation(t *testing.T) {
	app := newTestApp(&fakeIndexer{}, &fakeAnswerer{}, t.TempDir())

	resp := postJSON(t, app, "/api/v1/rag/index", `{"locator":"/d/a.txt","kind":"docx"}`)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	verr := decode[ValidationError](t, resp)
	assert.Contains(t, verr.Errors, "Kind")

	resp = postJSON(t, app, "/api/v1/rag/index-url", `{"url":"not a url"}`)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	resp = postJSON(t, app, "/api/v1/rag/index-pdf", `{"filePath":`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, ErrBadRequest().Message, decode[Error](t, resp).Message)
}

func TestIndex_ErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{types.ErrUnsupportedKind, fiber.StatusBadRequest},
		{types.ErrLoad, fiber.StatusBadRequest},
		{types.ErrEmbedding, fiber.StatusBadGateway},
		{types.ErrStorage, fiber.StatusInternalServerError},
		{errors.New("unexpected"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			app := newTestApp(&fakeIndexer{err: tt.err}, &fakeAnswerer{}, t.TempDir())
			resp := postJSON(t, app, "/api/v1/rag/index-text", `{"filePath":"/d/a.txt"}`)
			assert.Equal(t, tt.want, resp.StatusCode)
			assert.Equal(t, tt.want, decode[Error](t, resp).Code)
		})
	}
}

func TestQuery(t *testing.T) {
	id := uuid.New()
	a := &fakeAnswerer{answer: agent.Answer{
		Text: "Paris",
		Sources: []types.Chunk{
			{ID: id, Title: "geo", Source: types.SourceText, Content: "Paris is in France.", Distance: 0.12},
		},
	}}
	app := newTestApp(&fakeIndexer{}, a, t.TempDir())

	resp := get(t, app, "/api/v1/rag/query?query=Where%20is%20Paris")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	out := decode[types.SearchResponse](t, resp)
	assert.Equal(t, "Paris", out.Answer)
	assert.Equal(t, []types.Source{{
		ChunkID:   id.String(),
		Title:     "geo",
		Source:    types.SourceText,
		ChunkText: "Paris is in France.",
		Distance:  0.12,
	}}, out.Sources)
	assert.False(t, out.Timestamp.IsZero())
	assert.Equal(t, []string{"Where is Paris"}, a.inputs)
}

func TestQuery_MissingQuery(t *testing.T) {
	app := newTestApp(&fakeIndexer{}, &fakeAnswerer{}, t.TempDir())
	for _, path := range []string{"/api/v1/rag/query", "/api/v1/rag/query-with-web-search", "/api/v1/rag/search"} {
		resp := get(t, app, path)
		assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode, path)
	}
}

func TestQueryWithWebSearch(t *testing.T) {
	a := &fakeAnswerer{web: agent.WebAnswer{
		Text:          "Paris is the capital of France.",
		LowConfidence: true,
		States:        []agent.State{agent.StateInitialAnswer, agent.StateWebSearch, agent.StateEnhancedAnswer, agent.StateDone},
	}}
	app := newTestApp(&fakeIndexer{}, a, t.TempDir())

	resp := get(t, app, "/api/v1/rag/query-with-web-search?query=capital")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	out := decode[types.WebSearchResponse](t, resp)
	assert.Equal(t, "Paris is the capital of France.", out.Answer)
	assert.True(t, out.LowConfidence)
	assert.True(t, out.WebSearchUsed)
	assert.Equal(t, []string{"initial_answer", "web_search", "enhanced_answer", "done"}, out.States)
}

func TestSearch(t *testing.T) {
	app := newTestApp(&fakeIndexer{}, &fakeAnswerer{text: "snippet"}, t.TempDir())
	resp := get(t, app, "/api/v1/rag/search?query=go")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "snippet", decode[types.ResultResponse](t, resp).Result)

	app = newTestApp(&fakeIndexer{}, &fakeAnswerer{err: types.ErrSearch}, t.TempDir())
	resp = get(t, app, "/api/v1/rag/search?query=go")
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
}

func TestCodeRoutes(t *testing.T) {
	tests := []struct {
		path string
		body string
		want []string
	}{
		{"/api/v1/rag/complete-code", `{"context":"func f(","language":"Go"}`, []string{"func f(", "Go"}},
		{"/api/v1/rag/suggest-improvements", `{"code":"x=1","language":"Python"}`, []string{"x=1", "Python"}},
		{"/api/v1/rag/generate-code", `{"description":"sort","language":"Rust"}`, []string{"sort", "Rust"}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			a := &fakeAnswerer{text: "code"}
			app := newTestApp(&fakeIndexer{}, a, t.TempDir())

			resp := postJSON(t, app, tt.path, tt.body)
			require.Equal(t, fiber.StatusOK, resp.StatusCode)
			assert.Equal(t, "code", decode[types.ResultResponse](t, resp).Result)
			assert.Equal(t, tt.want, a.inputs)

			resp = postJSON(t, app, tt.path, `{"language":"Go"}`)
			assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
		})
	}

	app := newTestApp(&fakeIndexer{}, &fakeAnswerer{err: types.ErrGeneration}, t.TempDir())
	resp := postJSON(t, app, "/api/v1/rag/generate-code", `{"description":"sort","language":"Rust"}`)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
}

func TestUpload(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "incoming")
	app := newTestApp(&fakeIndexer{}, &fakeAnswerer{}, dir)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "../notes.txt")
	require.NoError(t, err)
	_, err = io.WriteString(part, "hello")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rag/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	want := filepath.Join(dir, "notes.txt")
	assert.Equal(t, want, decode[types.ResultResponse](t, resp).Result)
	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestUpload_MissingFile(t *testing.T) {
	app := newTestApp(&fakeIndexer{}, &fakeAnswerer{}, t.TempDir())
	resp := postJSON(t, app, "/api/v1/rag/upload", `{}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
