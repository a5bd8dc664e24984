package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument indicates bad chunker parameters or document scope.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnsupportedFormat indicates an unknown file extension on upload.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrUnsupportedProvider indicates an unknown LLM backend name.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrIndexUnavailable indicates the vector store cannot be reached.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrProviderHTTP indicates a non-2xx response from an LLM backend.
	ErrProviderHTTP = errors.New("provider http error")

	// ErrProviderMalformedLine marks a stream line that could not be decoded.
	// It is recovered locally and never reaches the caller.
	ErrProviderMalformedLine = errors.New("malformed stream line")

	// ErrCatalogRefresh marks a failed model list fetch for one provider.
	// It is logged and replaced by the provider defaults.
	ErrCatalogRefresh = errors.New("catalog refresh failed")
)

// ProviderHTTPError carries the status and a body excerpt of a failed provider call.
type ProviderHTTPError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderHTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

func (e *ProviderHTTPError) Unwrap() error { return ErrProviderHTTP }
