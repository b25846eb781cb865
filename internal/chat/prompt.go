package chat

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Turn is one prior message of a conversation as sent by the client.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildPrompt linearizes the system instruction, the history and the new
// message into one prompt ending with an open ASSISTANT turn. Parts are
// separated by a blank line; history turns with empty content are skipped.
func BuildPrompt(systemInstruction string, history []Turn, message string) string {
	parts := make([]string, 0, len(history)+3)
	if s := strings.TrimSpace(systemInstruction); s != "" {
		parts = append(parts, s)
	}
	for _, turn := range history {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		parts = append(parts, roleLabel(turn.Role)+": "+content)
	}
	parts = append(parts, "USER: "+strings.TrimSpace(message))
	parts = append(parts, "ASSISTANT:")
	return strings.Join(parts, "\n\n")
}

func roleLabel(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "assistant":
		return "ASSISTANT"
	case "system":
		return "SYSTEM"
	default:
		return "USER"
	}
}

// DecodeHistory reads a loosely typed history array. Anything that is not an
// array yields no turns and elements that are not objects are skipped.
func DecodeHistory(raw json.RawMessage) []Turn {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	turns := make([]Turn, 0, len(items))
	for _, item := range items {
		var fields map[string]json.RawMessage
		if !isObject(item) || json.Unmarshal(item, &fields) != nil {
			continue
		}
		turns = append(turns, Turn{
			Role:    scalarText(fields["role"]),
			Content: scalarText(fields["content"]),
		})
	}
	return turns
}

// scalarText renders a JSON scalar as text: strings verbatim, numbers and
// booleans in their JSON form. Null, arrays, objects and missing values are
// empty.
func scalarText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return ""
		}
		return string(raw)
	case 'n', '[', '{':
		return ""
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return ""
		}
		return n.String()
	}
}

// stringField returns raw only when it is a JSON string.
func stringField(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
