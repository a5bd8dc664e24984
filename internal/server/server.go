// Package server exposes the document search service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"docsearch/internal/domain"
	"docsearch/internal/service"
)

// Backend is the part of the service the HTTP API needs.
type Backend interface {
	ListModels(ctx context.Context) map[string][]string
	QueryAs(ctx context.Context, principalID string, req domain.QueryRequest) iter.Seq[domain.StreamToken]
	IngestFile(ctx context.Context, principalID string, up service.Upload) (service.UploadResult, error)
	Purge(ctx context.Context, documentID string) error
	ListHistory(ctx context.Context, principalID string, skip, limit int) (searches, analyses []domain.HistoryRecord, err error)
}

type Config struct {
	Addr           string
	AllowedOrigins []string
	MaxUploadBytes int64
}

type Server struct {
	cfg      Config
	backend  Backend
	auth     *Authenticator
	validate *validator.Validate
	logger   *slog.Logger
	handler  http.Handler
}

func New(cfg Config, backend Backend, auth *Authenticator, logger *slog.Logger) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	if auth == nil {
		auth = NewAuthenticator(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		backend:  backend,
		auth:     auth,
		validate: validator.New(),
		logger:   logger,
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /api/models", s.handleModels)
	api.HandleFunc("POST /api/search/stream", s.handleSearchStream)
	api.HandleFunc("POST /api/process-document", s.handleProcessDocument)
	api.HandleFunc("DELETE /api/documents/{document_id}", s.handleDeleteDocument)
	api.HandleFunc("GET /api/history", s.handleHistory)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	root.Handle("/api/", auth.Middleware(api))

	s.handler = s.cors(s.logRequests(root))
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	s.logger.Info("http server listening", "addr", s.cfg.Addr)
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.ListModels(r.Context()))
}

// handleSearchStream accepts either a JSON body or query parameters
// (query, model, model_name, document_id, use_rag). use_rag defaults to true.
func (s *Server) handleSearchStream(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeQuery(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, invalidArgument(err))
		return
	}

	sse := newSSEWriter(w)
	for tok := range s.backend.QueryAs(r.Context(), PrincipalFrom(r.Context()), req) {
		if err := sse.WriteToken(tok); err != nil {
			s.logger.Debug("client went away", "error", err)
			return
		}
	}
}

func (s *Server) decodeQuery(r *http.Request) (domain.QueryRequest, error) {
	req := domain.QueryRequest{UseRAG: true}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		body := struct {
			domain.QueryRequest
			UseRAG *bool `json:"use_rag"`
		}{}
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil {
			return req, invalidArgument(err)
		}
		req = body.QueryRequest
		req.UseRAG = body.UseRAG == nil || *body.UseRAG
		return req, nil
	}
	q := r.URL.Query()
	req.Query = q.Get("query")
	req.Provider = q.Get("model")
	req.Model = q.Get("model_name")
	req.DocumentID = q.Get("document_id")
	if v := q.Get("use_rag"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return req, invalidArgument(err)
		}
		req.UseRAG = b
	}
	return req, nil
}

func (s *Server) handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.cfg.MaxUploadBytes {
		s.writeError(w, &http.MaxBytesError{Limit: s.cfg.MaxUploadBytes})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		s.writeError(w, invalidArgument(err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, invalidArgument(err))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, err)
		return
	}

	provider := formOrQuery(r, "model")
	model := formOrQuery(r, "model_name")
	res, err := s.backend.IngestFile(r.Context(), PrincipalFrom(r.Context()), service.Upload{
		Filename: header.Filename,
		Data:     data,
		Provider: provider,
		Model:    model,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Purge(r.Context(), r.PathValue("document_id")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "document deleted"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	skip, err := intParam(r, "skip", 0)
	if err != nil {
		s.writeError(w, err)
		return
	}
	limit, err := intParam(r, "limit", 10)
	if err != nil {
		s.writeError(w, err)
		return
	}
	searches, analyses, err := s.backend.ListHistory(r.Context(), PrincipalFrom(r.Context()), skip, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]domain.HistoryRecord{"searches": searches, "analyses": analyses})
}

type errorBody struct {
	Detail string `json:"detail"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrUnsupportedFormat):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnsupportedProvider):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrIndexUnavailable), errors.Is(err, domain.ErrProviderHTTP):
		status = http.StatusBadGateway
	}
	if status >= 500 {
		s.logger.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Detail: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (len(s.cfg.AllowedOrigins) == 0 || slices.Contains(s.cfg.AllowedOrigins, origin)) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func formOrQuery(r *http.Request, key string) string {
	if v := r.FormValue(key); v != "" {
		return v
	}
	return r.URL.Query().Get(key)
}

func intParam(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrInvalidArgument, key)
	}
	return n, nil
}

func invalidArgument(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
}
