// Package ollama streams completions from a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"docsearch/internal/domain"
	"docsearch/internal/provider"
)

var _ provider.Adapter = (*Adapter)(nil)

// Default configuration values.
const (
	Name               = "ollama"
	DefaultBaseURL     = "http://localhost:11434"
	DefaultModel       = "llama2"
	DefaultListTimeout = 10 * time.Second
)

type Config struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL       string
	DefaultModels []string
	ListTimeout   time.Duration
}

type Adapter struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if len(cfg.DefaultModels) == 0 {
		cfg.DefaultModels = []string{DefaultModel}
	}
	if cfg.ListTimeout == 0 {
		cfg.ListTimeout = DefaultListTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{cfg: cfg, client: &http.Client{}, logger: logger.With("provider", Name)}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) DefaultModels() []string { return append([]string(nil), a.cfg.DefaultModels...) }

// generateRequest is the Ollama /api/generate request format.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// generateResponse is one line of the streamed /api/generate response.
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

func (a *Adapter) Stream(ctx context.Context, prompt, model string) iter.Seq[domain.StreamToken] {
	body, err := json.Marshal(generateRequest{Model: model, Prompt: prompt, Stream: true})
	if err != nil {
		return provider.Fail(fmt.Errorf("marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return provider.Fail(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	return provider.StreamLines(a.client, req, Name, decodeLine, a.logger)
}

func decodeLine(line []byte) (string, bool, error) {
	var r generateResponse
	if err := json.Unmarshal(line, &r); err != nil {
		return "", false, fmt.Errorf("%w: %v", domain.ErrProviderMalformedLine, err)
	}
	if r.Error != "" {
		return "", false, fmt.Errorf("ollama error: %s", r.Error)
	}
	return r.Response, r.Done, nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func (a *Adapter) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.ListTimeout)
	defer cancel()

	var resp tagsResponse
	if err := provider.GetJSON(ctx, a.client, a.cfg.BaseURL+"/api/tags", "", Name, &resp); err != nil {
		return nil, err
	}
	models := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		if m.Name != "" {
			models = append(models, m.Name)
		}
	}
	return models, nil
}
