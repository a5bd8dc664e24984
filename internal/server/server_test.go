package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"iter"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsearch/internal/domain"
	"docsearch/internal/service"
)

type fakeBackend struct {
	mu        sync.Mutex
	lastQuery domain.QueryRequest
	principal string
	tokens    []domain.StreamToken
	upload    service.Upload
	purged    []string
	purgeErr  error
}

func (f *fakeBackend) ListModels(context.Context) map[string][]string {
	return map[string][]string{"ollama": {"llama2"}}
}

func (f *fakeBackend) QueryAs(_ context.Context, principalID string, req domain.QueryRequest) iter.Seq[domain.StreamToken] {
	f.mu.Lock()
	f.lastQuery, f.principal = req, principalID
	f.mu.Unlock()
	return func(yield func(domain.StreamToken) bool) {
		for _, t := range f.tokens {
			if !yield(t) {
				return
			}
		}
	}
}

func (f *fakeBackend) IngestFile(_ context.Context, principalID string, up service.Upload) (service.UploadResult, error) {
	f.upload, f.principal = up, principalID
	if strings.HasSuffix(up.Filename, ".exe") {
		return service.UploadResult{}, domain.ErrUnsupportedFormat
	}
	return service.UploadResult{DocumentID: "doc-1", Message: "processed document: 1 chunks", Analysis: "summary"}, nil
}

func (f *fakeBackend) Purge(_ context.Context, id string) error {
	f.purged = append(f.purged, id)
	return f.purgeErr
}

func (f *fakeBackend) ListHistory(_ context.Context, principalID string, skip, limit int) ([]domain.HistoryRecord, []domain.HistoryRecord, error) {
	return []domain.HistoryRecord{{ID: int64(skip), PrincipalID: principalID, Kind: domain.HistorySearch, Subject: "q"}},
		[]domain.HistoryRecord{{ID: int64(limit), PrincipalID: principalID, Kind: domain.HistoryAnalysis}}, nil
}

func sseFrames(t *testing.T, body string) []string {
	t.Helper()
	var frames []string
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		if line, ok := strings.CutPrefix(sc.Text(), "data: "); ok {
			frames = append(frames, line)
		}
	}
	return frames
}

func TestSearchStreamFramesTokens(t *testing.T) {
	backend := &fakeBackend{tokens: []domain.StreamToken{
		domain.ContentToken("Hello"), domain.ContentToken(" \"world\""), domain.DoneToken(),
	}}
	srv := New(Config{}, backend, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/search/stream?query=hi&model=ollama&model_name=llama2&document_id=d1", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, []string{`{"content":"Hello"}`, `{"content":" \"world\""}`, "[DONE]"}, sseFrames(t, rec.Body.String()))
	assert.Equal(t, domain.QueryRequest{Query: "hi", Provider: "ollama", Model: "llama2", DocumentID: "d1", UseRAG: true}, backend.lastQuery)
	assert.Equal(t, AnonymousPrincipal, backend.principal)
}

func TestSearchStreamErrorFrame(t *testing.T) {
	backend := &fakeBackend{tokens: []domain.StreamToken{domain.ErrorToken("unsupported provider: foo"), domain.DoneToken()}}
	srv := New(Config{}, backend, nil, nil)

	body := `{"query":"hi","model":"foo","model_name":"x","use_rag":false}`
	req := httptest.NewRequest(http.MethodPost, "/api/search/stream", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, []string{`{"error":"unsupported provider: foo"}`, "[DONE]"}, sseFrames(t, rec.Body.String()))
	assert.False(t, backend.lastQuery.UseRAG)
}

func TestSearchStreamValidation(t *testing.T) {
	srv := New(Config{}, &fakeBackend{}, nil, nil)

	for _, target := range []string{
		"/api/search/stream?model=ollama&model_name=llama2",
		"/api/search/stream?query=hi&model=ollama&model_name=llama2&use_rag=maybe",
	} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, target, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestAuthenticationRequiredWhenTokensConfigured(t *testing.T) {
	backend := &fakeBackend{}
	srv := New(Config{}, backend, NewAuthenticator(map[string]string{"tok-alice": "alice"}), nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/models", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/history?skip=2&limit=5", nil)
	req.Header.Set("Authorization", "Bearer tok-alice")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string][]domain.HistoryRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got["searches"], 1)
	assert.Equal(t, "alice", got["searches"][0].PrincipalID)
	assert.EqualValues(t, 2, got["searches"][0].ID)
	assert.EqualValues(t, 5, got["analyses"][0].ID)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestModels(t *testing.T) {
	srv := New(Config{}, &fakeBackend{}, nil, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/models", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ollama":["llama2"]}`, rec.Body.String())
}

func uploadRequest(t *testing.T, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/process-document", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestProcessDocument(t *testing.T) {
	backend := &fakeBackend{}
	srv := New(Config{}, backend, nil, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, uploadRequest(t, "notes.txt", "hello.", map[string]string{"model": "groq", "model_name": "llama3"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"document_id":"doc-1","message":"processed document: 1 chunks","analysis":"summary"}`, rec.Body.String())
	assert.Equal(t, "notes.txt", backend.upload.Filename)
	assert.Equal(t, "groq", backend.upload.Provider)
	assert.Equal(t, "llama3", backend.upload.Model)
	assert.Equal(t, "hello.", string(backend.upload.Data))

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, uploadRequest(t, "virus.exe", "MZ", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessDocumentTooLarge(t *testing.T) {
	srv := New(Config{MaxUploadBytes: 64}, &fakeBackend{}, nil, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, uploadRequest(t, "big.txt", strings.Repeat("x", 4096), nil))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestDeleteDocument(t *testing.T) {
	backend := &fakeBackend{}
	srv := New(Config{}, backend, nil, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/documents/abc-123", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"abc-123"}, backend.purged)

	backend.purgeErr = errors.Join(domain.ErrIndexUnavailable, errors.New("dial tcp"))
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/documents/abc-123", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv := New(Config{AllowedOrigins: []string{"http://localhost:3000"}}, &fakeBackend{}, nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/search/stream", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/search/stream", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHistoryUsesPrincipalAndPaging(t *testing.T) {
	srv := New(Config{}, &fakeBackend{}, NewAuthenticator(map[string]string{"secret": "alice"}), nil)
	req := httptest.NewRequest(http.MethodGet, "/api/history?skip=2&limit=5", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string][]domain.HistoryRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body["searches"], 1)
	assert.Equal(t, "alice", body["searches"][0].PrincipalID)
	assert.Equal(t, int64(2), body["searches"][0].ID)
	assert.Equal(t, int64(5), body["analyses"][0].ID)
}

func TestHistoryRejectsBadPaging(t *testing.T) {
	srv := New(Config{}, &fakeBackend{}, nil, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
