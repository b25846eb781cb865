package voice

import (
	"context"
	"fmt"
	"strings"
)

// Synthesizer converts text in the given language into encoded audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, lang string) ([]byte, error)
}

// SynthesizerFunc adapts a function to Synthesizer.
type SynthesizerFunc func(ctx context.Context, text, lang string) ([]byte, error)

func (f SynthesizerFunc) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	return f(ctx, text, lang)
}

// UpstreamError is returned when a speech backend answers with a non-2xx status.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
	Retryable  bool
}

func (e *UpstreamError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s http status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s http status %d: %s", e.Provider, e.StatusCode, body)
}
