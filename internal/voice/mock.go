package voice

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
)

// MockProvider is a local fallback synthesizer used when no speech backend
// should be contacted. It returns a deterministic fake MP3 payload.
type MockProvider struct {
	calls atomic.Int64
}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("no text to speak")
	}
	p.calls.Add(1)
	out := make([]byte, 0, len(mockHeader)+len(lang)+len(text)+1)
	out = append(out, mockHeader...)
	out = append(out, lang...)
	out = append(out, ':')
	out = append(out, text...)
	return out, nil
}

// Calls reports how many successful syntheses were served.
func (p *MockProvider) Calls() int64 { return p.calls.Load() }

var mockHeader = []byte("ID3mock:")
