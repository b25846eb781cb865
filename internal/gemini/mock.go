package gemini

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ent0n29/agrigenius/internal/chat"
)

// MockGenerator answers every prompt with a canned structured reply that
// echoes the last user line.
type MockGenerator struct{}

func NewMockGenerator() *MockGenerator { return &MockGenerator{} }

func (MockGenerator) Generate(ctx context.Context, req chat.GenerateRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	question := ""
	if i := strings.LastIndex(req.Prompt, "USER: "); i >= 0 {
		question = strings.TrimSuffix(strings.TrimSpace(req.Prompt[i+len("USER: "):]), "ASSISTANT:")
		question = strings.TrimSpace(question)
	}
	out, err := json.Marshal(map[string]any{
		"answer": "Mock answer for: " + question,
		"references": []map[string]string{
			{"title": "Mock agronomy handbook", "url": "https://example.com/handbook"},
		},
	})
	if err != nil {
		return "", err
	}
	return "```json\n" + string(out) + "\n```", nil
}
