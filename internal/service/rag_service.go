package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"docsearch/internal/catalog"
	"docsearch/internal/domain"
	"docsearch/internal/extract"
	"docsearch/internal/summarizer"
)

// AnalysisQuery is the question asked to a provider when a document is analyzed.
const AnalysisQuery = "Summarize the main content of this document."

var _ domain.RAGService = (*RAGService)(nil)

// Deps are the collaborators of RAGService. History may be nil.
type Deps struct {
	Chunker      domain.Chunker
	Index        domain.VectorIndex
	Orchestrator *Orchestrator
	Catalog      *catalog.Cache
	Extractor    domain.Extractor
	Summarizer   domain.Summarizer
	History      domain.HistoryStore
	// DocumentsDir receives uploaded files as <document id><ext>.
	DocumentsDir string
	Logger       *slog.Logger
}

type RAGService struct {
	Deps
}

func NewRAGService(d Deps) *RAGService {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.DocumentsDir == "" {
		d.DocumentsDir = "documents"
	}
	return &RAGService{Deps: d}
}

// ListModels returns the cached provider model lists.
func (s *RAGService) ListModels(ctx context.Context) map[string][]string {
	return s.Catalog.Get(ctx)
}

// Ingest chunks rawText and indexes the chunks under documentID, replacing any
// chunks previously indexed for it.
func (s *RAGService) Ingest(ctx context.Context, documentID, rawText string) (string, error) {
	if documentID == "" {
		return "", fmt.Errorf("%w: empty document id", domain.ErrInvalidArgument)
	}
	chunks, err := s.Chunker.Chunk(domain.Document{ID: documentID, Content: rawText})
	if err != nil {
		return "", err
	}
	if err := s.Index.DeleteByDocument(ctx, documentID); err != nil {
		return "", fmt.Errorf("replace document %s: %w", documentID, err)
	}
	if len(chunks) == 0 {
		return "document is empty", nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	if err := s.Index.Add(ctx, documentID, texts); err != nil {
		return "", fmt.Errorf("index document %s: %w", documentID, err)
	}
	s.Logger.Info("document ingested", "document_id", documentID, "chunks", len(chunks))
	return fmt.Sprintf("processed document: %d chunks", len(chunks)), nil
}

// Query streams an answer; see Orchestrator.Answer.
func (s *RAGService) Query(ctx context.Context, req domain.QueryRequest) iter.Seq[domain.StreamToken] {
	return s.Orchestrator.Answer(ctx, req)
}

// QueryAs streams an answer and records it in the principal's search history
// once the stream completes without error.
func (s *RAGService) QueryAs(ctx context.Context, principalID string, req domain.QueryRequest) iter.Seq[domain.StreamToken] {
	return func(yield func(domain.StreamToken) bool) {
		var answer strings.Builder
		failed := false
		for tok := range s.Orchestrator.Answer(ctx, req) {
			switch {
			case tok.IsError():
				failed = true
			case tok.Done:
				if !failed {
					s.record(context.WithoutCancel(ctx), domain.HistoryRecord{
						PrincipalID: principalID,
						Kind:        domain.HistorySearch,
						Subject:     req.Query,
						Result:      answer.String(),
						ModelUsed:   modelUsed(req.Provider, req.Model),
					})
				}
			default:
				answer.WriteString(tok.Content)
			}
			if !yield(tok) {
				return
			}
		}
	}
}

// Purge removes the stored upload files of documentID and its vectors.
func (s *RAGService) Purge(ctx context.Context, documentID string) error {
	if documentID == "" || strings.ContainsAny(documentID, `/\`) {
		return fmt.Errorf("%w: document id %q", domain.ErrInvalidArgument, documentID)
	}
	for _, ext := range extract.Extensions() {
		path := filepath.Join(s.DocumentsDir, documentID+ext)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	if err := s.Index.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("purge document %s: %w", documentID, err)
	}
	s.Logger.Info("document purged", "document_id", documentID)
	return nil
}

// Upload describes a file handed to IngestFile.
type Upload struct {
	Filename string
	Data     []byte
	// Provider and Model select the LLM used for the analysis. When either is
	// empty an extractive summary is returned instead.
	Provider string
	Model    string
}

// UploadResult is the outcome of IngestFile.
type UploadResult struct {
	DocumentID string `json:"document_id"`
	Message    string `json:"message"`
	Analysis   string `json:"analysis"`
}

// IngestFile stores an uploaded file, indexes its text and analyzes it.
func (s *RAGService) IngestFile(ctx context.Context, principalID string, up Upload) (UploadResult, error) {
	ext := strings.ToLower(filepath.Ext(up.Filename))
	text, err := s.Extractor.Extract(up.Data, strings.TrimPrefix(ext, "."))
	if err != nil {
		return UploadResult{}, err
	}

	documentID := uuid.NewString()
	if err := os.MkdirAll(s.DocumentsDir, 0o755); err != nil {
		return UploadResult{}, fmt.Errorf("create documents dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.DocumentsDir, documentID+ext), up.Data, 0o644); err != nil {
		return UploadResult{}, fmt.Errorf("store upload: %w", err)
	}

	msg, err := s.Ingest(ctx, documentID, text)
	if err != nil {
		s.discard(ctx, documentID)
		return UploadResult{}, err
	}
	analysis, err := s.Analyze(ctx, principalID, AnalyzeRequest{
		DocumentID: documentID,
		Filename:   up.Filename,
		Text:       text,
		Provider:   up.Provider,
		Model:      up.Model,
	})
	if err != nil {
		s.discard(ctx, documentID)
		return UploadResult{}, err
	}
	return UploadResult{DocumentID: documentID, Message: msg, Analysis: analysis}, nil
}

// discard removes a failed upload; the caller never learns its id.
func (s *RAGService) discard(ctx context.Context, documentID string) {
	if err := s.Purge(context.WithoutCancel(ctx), documentID); err != nil {
		s.Logger.Warn("failed to discard upload", "document_id", documentID, "error", err)
	}
}

type AnalyzeRequest struct {
	DocumentID string
	Filename   string
	// Text is the extracted document text, used by the extractive fallback.
	Text     string
	Provider string
	Model    string
}

// Analyze summarizes a document, through the selected provider with retrieval
// when one is given, otherwise extractively.
func (s *RAGService) Analyze(ctx context.Context, principalID string, req AnalyzeRequest) (string, error) {
	var (
		analysis string
		err      error
	)
	if req.Provider != "" && req.Model != "" {
		analysis, err = Collect(s.Orchestrator.Answer(ctx, domain.QueryRequest{
			Query:      AnalysisQuery,
			Provider:   req.Provider,
			Model:      req.Model,
			DocumentID: req.DocumentID,
			UseRAG:     true,
		}))
	} else {
		analysis, err = s.Summarizer.Summarize(req.Text, summarizer.DefaultMaxSentences)
	}
	if err != nil {
		return "", fmt.Errorf("analyze document %s: %w", req.DocumentID, err)
	}
	s.record(ctx, domain.HistoryRecord{
		PrincipalID: principalID,
		Kind:        domain.HistoryAnalysis,
		Subject:     req.Filename,
		Result:      analysis,
		ModelUsed:   modelUsed(req.Provider, req.Model),
	})
	return analysis, nil
}

// ListHistory returns the principal's most recent searches and analyses.
func (s *RAGService) ListHistory(ctx context.Context, principalID string, skip, limit int) (searches, analyses []domain.HistoryRecord, err error) {
	if s.History == nil {
		return []domain.HistoryRecord{}, []domain.HistoryRecord{}, nil
	}
	searches, err = s.History.List(ctx, principalID, domain.HistorySearch, skip, limit)
	if err != nil {
		return nil, nil, err
	}
	analyses, err = s.History.List(ctx, principalID, domain.HistoryAnalysis, skip, limit)
	if err != nil {
		return nil, nil, err
	}
	return searches, analyses, nil
}

// Collect concatenates the content of a token stream. An error token becomes the returned error.
func Collect(seq iter.Seq[domain.StreamToken]) (string, error) {
	var b strings.Builder
	for tok := range seq {
		if tok.IsError() {
			return b.String(), errors.New(tok.Error)
		}
		b.WriteString(tok.Content)
	}
	return b.String(), nil
}

func (s *RAGService) record(ctx context.Context, rec domain.HistoryRecord) {
	if s.History == nil {
		return
	}
	if _, err := s.History.Append(ctx, rec); err != nil {
		s.Logger.Warn("failed to record history", "kind", rec.Kind, "error", err)
	}
}

func modelUsed(provider, model string) string {
	if provider == "" || model == "" {
		return "extractive"
	}
	return provider + "/" + model
}
