package chat

import (
	"bytes"
	"encoding/json"
	"strings"
)

// MaxReferences caps the references returned with an answer.
const MaxReferences = 8

type Reference struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type Response struct {
	Text       string      `json:"text"`
	References []Reference `json:"references"`
}

// ExtractObject finds the JSON object embedded in model output. A leading
// code fence is stripped when the text spans at least three lines; the
// object is then taken from the first '{' to the last '}'.
func ExtractObject(text string) (map[string]json.RawMessage, bool) {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return nil, false
	}
	if strings.HasPrefix(cleaned, "```") {
		if lines := splitLines(cleaned); len(lines) >= 3 {
			cleaned = strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
		}
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// ParseModelOutput turns raw model text into a response. When the text holds
// an object with a string "answer" that answer and its references are used,
// otherwise the raw text is returned with no references.
func ParseModelOutput(raw string) Response {
	resp, _ := parseModelOutput(raw)
	return resp
}

func parseModelOutput(raw string) (Response, bool) {
	if obj, ok := ExtractObject(raw); ok {
		if answer, isString := stringValue(obj["answer"]); isString {
			return Response{Text: answer, References: NormalizeReferences(obj["references"])}, true
		}
	}
	return Response{Text: raw, References: []Reference{}}, false
}

// NormalizeReferences keeps at most MaxReferences well-formed references.
// Elements that are not objects, or whose title and url are both empty after
// trimming, are dropped. Non-string fields read as empty.
func NormalizeReferences(raw json.RawMessage) []Reference {
	out := []Reference{}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return out
	}
	for _, item := range items {
		var fields map[string]json.RawMessage
		if !isObject(item) || json.Unmarshal(item, &fields) != nil {
			continue
		}
		ref := Reference{
			Title: strings.TrimSpace(stringField(fields["title"])),
			URL:   strings.TrimSpace(stringField(fields["url"])),
		}
		if ref.Title == "" && ref.URL == "" {
			continue
		}
		out = append(out, ref)
		if len(out) == MaxReferences {
			break
		}
	}
	return out
}

func stringValue(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// splitLines splits on \n, \r\n and \r, dropping one trailing line break.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
