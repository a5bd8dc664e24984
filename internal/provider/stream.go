package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"docsearch/internal/domain"
)

const (
	maxLineSize     = 1 << 20
	maxErrorExcerpt = 512
)

// LineDecoder turns one non-empty response line into generated text.
// done reports the backend's end-of-stream marker. An error wrapping
// domain.ErrProviderMalformedLine makes the line be skipped.
type LineDecoder func(line []byte) (content string, done bool, err error)

// StreamLines sends req and relays the decoded lines of a line-delimited
// streaming response as tokens. The sequence always finishes with one done
// token unless the consumer stops early, in which case the body is closed.
// Every range sends its own copy of req, so a request with a body must be
// replayable through req.GetBody (as http.NewRequest sets up for in-memory bodies).
func StreamLines(client *http.Client, req *http.Request, provider string, decode LineDecoder, logger *slog.Logger) iter.Seq[domain.StreamToken] {
	if logger == nil {
		logger = slog.Default()
	}
	return func(yield func(domain.StreamToken) bool) {
		r, err := replay(req)
		if err != nil {
			if yield(domain.ErrorToken(fmt.Sprintf("%s request failed: %v", provider, err))) {
				yield(domain.DoneToken())
			}
			return
		}
		if !relay(client, r, provider, decode, logger, yield) {
			return
		}
		yield(domain.DoneToken())
	}
}

func replay(req *http.Request) (*http.Request, error) {
	r := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return r, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	r.Body = body
	return r, nil
}

// Fail yields a single error token followed by done.
func Fail(err error) iter.Seq[domain.StreamToken] {
	return func(yield func(domain.StreamToken) bool) {
		if yield(domain.ErrorToken(err.Error())) {
			yield(domain.DoneToken())
		}
	}
}

// relay reports false when the consumer stopped the iteration.
func relay(client *http.Client, req *http.Request, provider string, decode LineDecoder, logger *slog.Logger, yield func(domain.StreamToken) bool) bool {
	resp, err := client.Do(req)
	if err != nil {
		return yield(domain.ErrorToken(fmt.Sprintf("%s request failed: %v", provider, err)))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return yield(domain.ErrorToken(StatusError(provider, resp).Error()))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		content, done, err := decode(line)
		if err != nil {
			if errors.Is(err, domain.ErrProviderMalformedLine) {
				logger.Debug("skipping malformed stream line", "provider", provider, "error", err)
				continue
			}
			return yield(domain.ErrorToken(fmt.Sprintf("%s stream: %v", provider, err)))
		}
		if content != "" && !yield(domain.ContentToken(content)) {
			return false
		}
		if done {
			return true
		}
	}
	if err := scanner.Err(); err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			err = ctxErr
		}
		return yield(domain.ErrorToken(fmt.Sprintf("%s stream interrupted: %v", provider, err)))
	}
	return true
}

// StatusError drains a bounded excerpt of a failed response into a *domain.ProviderHTTPError.
func StatusError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorExcerpt))
	return &domain.ProviderHTTPError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}

// GetJSON issues a GET and decodes a JSON body into out, used for model listings.
func GetJSON(ctx context.Context, client *http.Client, url, bearer, provider string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return StatusError(provider, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", provider, err)
	}
	return nil
}
