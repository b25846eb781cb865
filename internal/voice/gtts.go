package voice

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/ent0n29/agrigenius/internal/reliability"
)

const (
	gttsRPCID        = "jQ1olc"
	gttsMaxChunkRune = 100
	gttsUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	gttsProviderName = "gtts"
)

var (
	gttsAudioPattern = regexp.MustCompile(`jQ1olc","\[\\"(.*)\\"]`)
	gttsBreakRunes   = ".!?;:,।\n"

	// ErrNoAudio is returned when the translate endpoint answers without an
	// audio stream, which happens for unsupported languages.
	ErrNoAudio = errors.New("no audio stream in response; check the language code")
)

// GoogleTranslateConfig configures the Google Translate speech provider.
type GoogleTranslateConfig struct {
	// TLD selects translate.google.<tld>; defaults to "com".
	TLD string
	// BaseURL overrides the full endpoint origin, mainly for tests.
	BaseURL string
	Slow    bool
	Timeout time.Duration
	// RequestsPerMinute throttles upstream calls; 0 disables throttling.
	RequestsPerMinute int
}

// GoogleTranslateProvider synthesizes MP3 audio through the batchexecute RPC
// that backs the Google Translate "listen" button. It needs no API key.
type GoogleTranslateProvider struct {
	endpoint string
	slow     bool
	client   *http.Client
	limiter  *rate.Limiter
}

func NewGoogleTranslateProvider(cfg GoogleTranslateConfig) *GoogleTranslateProvider {
	tld := strings.Trim(strings.TrimSpace(cfg.TLD), ".")
	if tld == "" {
		tld = "com"
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://translate.google." + tld
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	p := &GoogleTranslateProvider{
		endpoint: base + "/_/TranslateWebserverUi/data/batchexecute",
		slow:     cfg.Slow,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.RequestsPerMinute > 0 {
		p.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return p
}

// Synthesize splits text into endpoint-sized chunks, fetches each one and
// concatenates the MP3 streams.
func (p *GoogleTranslateProvider) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return nil, errors.New("language is required")
	}
	chunks := splitSpeechChunks(text, gttsMaxChunkRune)
	if len(chunks) == 0 {
		return nil, errors.New("no text to speak")
	}

	var out bytes.Buffer
	for i, chunk := range chunks {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
			}
		}
		audio, err := p.fetchChunk(ctx, chunk, lang)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		out.Write(audio)
	}
	return out.Bytes(), nil
}

func (p *GoogleTranslateProvider) fetchChunk(ctx context.Context, chunk, lang string) ([]byte, error) {
	body, err := p.encodeRequest(chunk, lang)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=utf-8")
	req.Header.Set("Referer", "http://translate.google.com/")
	req.Header.Set("User-Agent", gttsUserAgent)

	res, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, &UpstreamError{
			Provider:   gttsProviderName,
			StatusCode: res.StatusCode,
			Body:       string(snippet),
			Retryable:  reliability.IsRetryableHTTPStatus(res.StatusCode),
		}
	}
	return decodeBatchAudio(res.Body)
}

func (p *GoogleTranslateProvider) encodeRequest(chunk, lang string) (string, error) {
	var speed any
	if p.slow {
		speed = true
	}
	param, err := json.Marshal([]any{chunk, lang, speed, "null"})
	if err != nil {
		return "", fmt.Errorf("marshal rpc parameter: %w", err)
	}
	rpc, err := json.Marshal([][][]any{{{gttsRPCID, string(param), nil, "generic"}}})
	if err != nil {
		return "", fmt.Errorf("marshal rpc: %w", err)
	}
	return "f.req=" + url.QueryEscape(string(rpc)) + "&", nil
}

// decodeBatchAudio scans a batchexecute response for the jQ1olc payload and
// decodes the base64 MP3 it carries.
func decodeBatchAudio(r io.Reader) ([]byte, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var out bytes.Buffer
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, gttsRPCID) {
			continue
		}
		m := gttsAudioPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		audio, err := base64.StdEncoding.DecodeString(m[1])
		if err != nil {
			return nil, fmt.Errorf("decode audio payload: %w", err)
		}
		out.Write(audio)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if out.Len() == 0 {
		return nil, ErrNoAudio
	}
	return out.Bytes(), nil
}

// splitSpeechChunks breaks text into pieces of at most maxRunes runes,
// preferring sentence punctuation, then whitespace. Pieces without any letter
// or digit are dropped since the endpoint cannot voice them.
func splitSpeechChunks(text string, maxRunes int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var pieces []string
	start := 0
	for i, r := range text {
		if strings.ContainsRune(gttsBreakRunes, r) {
			end := i + utf8.RuneLen(r)
			pieces = append(pieces, text[start:end])
			start = end
		}
	}
	if start < len(text) {
		pieces = append(pieces, text[start:])
	}

	var sized []string
	for _, piece := range pieces {
		sized = append(sized, cutToSize(piece, maxRunes)...)
	}

	var chunks []string
	var cur strings.Builder
	curRunes := 0
	flush := func() {
		if s := strings.TrimSpace(cur.String()); speakable(s) {
			chunks = append(chunks, s)
		}
		cur.Reset()
		curRunes = 0
	}
	for _, piece := range sized {
		n := utf8.RuneCountInString(piece)
		if curRunes > 0 && curRunes+n > maxRunes {
			flush()
		}
		cur.WriteString(piece)
		curRunes += n
	}
	flush()
	return chunks
}

func cutToSize(piece string, maxRunes int) []string {
	var out []string
	for utf8.RuneCountInString(piece) > maxRunes {
		limit := byteOffset(piece, maxRunes)
		cut := strings.LastIndexFunc(piece[:limit], unicode.IsSpace)
		if cut <= 0 {
			cut = limit
		}
		out = append(out, piece[:cut])
		piece = piece[cut:]
	}
	if piece != "" {
		out = append(out, piece)
	}
	return out
}

func byteOffset(s string, runes int) int {
	n := 0
	for i := range s {
		if n == runes {
			return i
		}
		n++
	}
	return len(s)
}

func speakable(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r) {
			return true
		}
	}
	return false
}
