// Package openaicompat streams chat completions from backends that speak the
// OpenAI server-sent-events protocol, such as DeepSeek and Groq.
package openaicompat

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

const (
	DeepSeekBaseURL = "https://api.deepseek.com/v1"
	GroqBaseURL     = "https://api.groq.com/openai/v1"

	DefaultListTimeout = 15 * time.Second
)

// Config describes one OpenAI-compatible backend.
type Config struct {
	// Name is the public provider identifier.
	Name string
	// BaseURL is the API root without the trailing /chat/completions.
	BaseURL string
	APIKey  string
	// DefaultModels is returned by DefaultModels and used when listing fails.
	DefaultModels []string
	// ListTimeout bounds the model listing request.
	ListTimeout time.Duration
}

// DeepSeek returns the configuration of the DeepSeek backend.
func DeepSeek(apiKey string) Config {
	return Config{Name: "deepseek", BaseURL: DeepSeekBaseURL, APIKey: apiKey, DefaultModels: []string{"deepseek-chat"}}
}

// Groq returns the configuration of the Groq backend.
func Groq(apiKey string) Config {
	return Config{Name: "groq", BaseURL: GroqBaseURL, APIKey: apiKey, DefaultModels: []string{"mixtral-8x7b-32768"}}
}

type Adapter struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// New creates an adapter. Streaming requests have no client timeout; they are
// bounded by the caller's context.
func New(cfg Config, logger *slog.Logger) *Adapter {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.ListTimeout == 0 {
		cfg.ListTimeout = DefaultListTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		cfg:    cfg,
		client: &http.Client{},
		logger: logger.With("provider", cfg.Name),
	}
}

func (a *Adapter) Name() string { return a.cfg.Name }

func (a *Adapter) DefaultModels() []string { return append([]string(nil), a.cfg.DefaultModels...) }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chunkResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (a *Adapter) Stream(ctx context.Context, prompt, model string) iter.Seq[domain.StreamToken] {
	body, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   true,
	})
	if err != nil {
		return provider.Fail(fmt.Errorf("marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return provider.Fail(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if a.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}
	return provider.StreamLines(a.client, req, a.cfg.Name, decodeEvent, a.logger)
}

// decodeEvent parses one SSE line. Lines other than data fields are ignored.
func decodeEvent(line []byte) (string, bool, error) {
	payload, ok := bytes.CutPrefix(line, []byte("data:"))
	if !ok {
		return "", false, nil
	}
	payload = bytes.TrimSpace(payload)
	if string(payload) == "[DONE]" {
		return "", true, nil
	}
	var chunk chunkResponse
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return "", false, fmt.Errorf("%w: %v", domain.ErrProviderMalformedLine, err)
	}
	if len(chunk.Choices) == 0 {
		return "", false, nil
	}
	return chunk.Choices[0].Delta.Content, false, nil
}

type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (a *Adapter) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.ListTimeout)
	defer cancel()

	var resp modelsResponse
	if err := provider.GetJSON(ctx, a.client, a.cfg.BaseURL+"/models", a.cfg.APIKey, a.cfg.Name, &resp); err != nil {
		return nil, err
	}
	models := make([]string, 0, len(resp.Data))
	for _, m := range resp.Data {
		if m.ID != "" {
			models = append(models, m.ID)
		}
	}
	return models, nil
}
