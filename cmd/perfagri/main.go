package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/agrigenius/internal/protocol"
)

type options struct {
	baseURL     string
	rounds      int
	lang        string
	texts       []string
	questions   []string
	turnTimeout time.Duration
	verbose     bool
}

type ttsRequest struct {
	Text string `json:"text"`
	Lang string `json:"lang,omitempty"`
}

type wsEnvelope struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Text      string `json:"text,omitempty"`
	TextDelta string `json:"text_delta,omitempty"`
}

type chatRequestFrame struct {
	Type      protocol.MessageType `json:"type"`
	RequestID string               `json:"request_id"`
	Message   string               `json:"message"`
}

type report struct {
	TTSRequests  int
	TTSCacheHits int
	TTS          []time.Duration
	ChatTurns    int
	FirstDelta   []time.Duration
	ChatTotal    []time.Duration
}

var (
	defaultTexts = []string{
		"Irrigate the paddy field early in the morning.",
		"వరి పొలానికి ఉదయాన్నే నీరు పెట్టండి.",
	}
	defaultQuestions = []string{
		"Which fertilizer suits cotton at flowering stage?",
		"How do I control stem borer in rice?",
	}
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfagri: %v\n", err)
		os.Exit(2)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Minute)
	defer cancel()

	rep, err := run(ctx, cfg, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfagri: %v\n", err)
		os.Exit(1)
	}
	printReport(os.Stdout, rep)
	if err := printServerLatency(ctx, cfg.baseURL, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "perfagri: fetch server latency: %v\n", err)
	}
}

func parseFlags(args []string) (options, error) {
	var cfg options
	var textsRaw, questionsRaw string
	var turnTimeoutMS int

	fs := flag.NewFlagSet("perfagri", flag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:5000", "AgriGenius base URL")
	fs.IntVar(&cfg.rounds, "rounds", 2, "times each TTS text is replayed (rounds after the first should hit the cache)")
	fs.StringVar(&cfg.lang, "lang", "", "explicit TTS language; empty lets the server detect it")
	fs.StringVar(&textsRaw, "texts", "", "TTS texts separated by '|' (optional)")
	fs.StringVar(&questionsRaw, "questions", "", "chat questions separated by '|' (optional, 'none' skips chat)")
	fs.IntVar(&turnTimeoutMS, "turn-timeout-ms", 60000, "timeout waiting for chat_done per question in milliseconds")
	fs.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.rounds <= 0 {
		return options{}, fmt.Errorf("rounds must be > 0")
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond
	cfg.lang = strings.TrimSpace(cfg.lang)

	cfg.texts = splitList(textsRaw, defaultTexts)
	if strings.EqualFold(strings.TrimSpace(questionsRaw), "none") {
		cfg.questions = nil
	} else {
		cfg.questions = splitList(questionsRaw, defaultQuestions)
	}
	if len(cfg.texts) == 0 && len(cfg.questions) == 0 {
		return options{}, fmt.Errorf("nothing to replay")
	}
	return cfg, nil
}

func splitList(raw string, fallback []string) []string {
	if strings.TrimSpace(raw) == "" {
		return append([]string(nil), fallback...)
	}
	var out []string
	for _, part := range strings.Split(raw, "|") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func run(ctx context.Context, cfg options, progress io.Writer) (report, error) {
	var rep report
	httpClient := &http.Client{Timeout: 45 * time.Second}

	for round := 1; round <= cfg.rounds; round++ {
		for _, text := range cfg.texts {
			start := time.Now()
			cache, lang, err := speak(ctx, httpClient, cfg, text)
			if err != nil {
				return rep, fmt.Errorf("round %d tts %q: %w", round, text, err)
			}
			elapsed := time.Since(start)
			rep.TTSRequests++
			rep.TTS = append(rep.TTS, elapsed)
			if cache == "hit" {
				rep.TTSCacheHits++
			}
			if cfg.verbose {
				fmt.Fprintf(progress, "perfagri: tts round=%d lang=%s cache=%s took=%s\n", round, lang, cache, elapsed.Round(time.Millisecond))
			}
		}
	}

	if len(cfg.questions) == 0 {
		return rep, nil
	}
	if err := replayChat(ctx, cfg, &rep, progress); err != nil {
		return rep, err
	}
	return rep, nil
}

func speak(ctx context.Context, client *http.Client, cfg options, text string) (string, string, error) {
	payload, err := json.Marshal(ttsRequest{Text: text, Lang: cfg.lang})
	if err != nil {
		return "", "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/tts", bytes.NewReader(payload))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 40<<20))
	if err != nil {
		return "", "", err
	}
	if res.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	if len(body) == 0 {
		return "", "", fmt.Errorf("empty audio body")
	}
	return res.Header.Get("X-TTS-Cache"), res.Header.Get("X-TTS-Lang"), nil
}

func replayChat(ctx context.Context, cfg options, rep *report, progress io.Writer) error {
	wsURL, err := chatWSURL(cfg.baseURL)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	frames := make(chan wsEnvelope, 64)
	readErrCh := make(chan error, 1)
	go readLoop(conn, frames, readErrCh)

	if _, err := awaitFrame(frames, readErrCh, cfg.turnTimeout, func(env wsEnvelope) bool {
		return env.Type == string(protocol.TypeSystemEvent) && env.Code == "ready"
	}); err != nil {
		return fmt.Errorf("await ready: %w", err)
	}

	for i, question := range cfg.questions {
		requestID := uuid.NewString()
		start := time.Now()
		if err := conn.WriteJSON(chatRequestFrame{Type: protocol.TypeChatRequest, RequestID: requestID, Message: question}); err != nil {
			return fmt.Errorf("question %d send: %w", i+1, err)
		}

		var firstDelta time.Duration
		done, err := awaitFrame(frames, readErrCh, cfg.turnTimeout, func(env wsEnvelope) bool {
			if env.RequestID != requestID {
				return false
			}
			if env.Type == string(protocol.TypeChatTextDelta) && firstDelta == 0 {
				firstDelta = time.Since(start)
			}
			return env.Type == string(protocol.TypeChatDone) || env.Type == string(protocol.TypeErrorEvent)
		})
		if err != nil {
			return fmt.Errorf("question %d await chat_done: %w", i+1, err)
		}
		if done.Type == string(protocol.TypeErrorEvent) {
			return fmt.Errorf("question %d error_event code=%s detail=%s", i+1, done.Code, done.Detail)
		}
		total := time.Since(start)
		rep.ChatTurns++
		rep.FirstDelta = append(rep.FirstDelta, firstDelta)
		rep.ChatTotal = append(rep.ChatTotal, total)
		if cfg.verbose {
			fmt.Fprintf(progress, "perfagri: chat question=%d first_delta=%s total=%s chars=%d\n", i+1, firstDelta.Round(time.Millisecond), total.Round(time.Millisecond), len([]rune(done.Text)))
		}
	}
	return nil
}

func chatWSURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/gemini/ws"
	return u.String(), nil
}

func readLoop(conn *websocket.Conn, frames chan<- wsEnvelope, readErrCh chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		frames <- env
	}
}

func awaitFrame(frames <-chan wsEnvelope, readErrCh <-chan error, timeout time.Duration, match func(wsEnvelope) bool) (wsEnvelope, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case env := <-frames:
			if match(env) {
				return env, nil
			}
		case err := <-readErrCh:
			return wsEnvelope{}, err
		case <-timer.C:
			return wsEnvelope{}, errors.New("timeout after " + timeout.String())
		}
	}
}

func percentile(samples []time.Duration, p float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(p*float64(len(sorted)-1) + 0.5)
	return sorted[idx]
}

func printReport(w io.Writer, rep report) {
	fmt.Fprintf(w, "perfagri: tts requests=%d cache_hits=%d p50=%s p95=%s\n",
		rep.TTSRequests, rep.TTSCacheHits,
		percentile(rep.TTS, 0.5).Round(time.Millisecond), percentile(rep.TTS, 0.95).Round(time.Millisecond))
	if rep.ChatTurns > 0 {
		fmt.Fprintf(w, "perfagri: chat turns=%d first_delta_p50=%s total_p50=%s total_p95=%s\n",
			rep.ChatTurns,
			percentile(rep.FirstDelta, 0.5).Round(time.Millisecond),
			percentile(rep.ChatTotal, 0.5).Round(time.Millisecond),
			percentile(rep.ChatTotal, 0.95).Round(time.Millisecond))
	}
}

func printServerLatency(ctx context.Context, baseURL string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/perf/latency", nil)
	if err != nil {
		return err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", res.StatusCode)
	}
	var pretty bytes.Buffer
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		return err
	}
	fmt.Fprintf(w, "perfagri: server latency snapshot\n%s\n", pretty.String())
	return nil
}
