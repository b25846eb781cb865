package main

import (
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ent0n29/agrigenius/internal/app"
	"github.com/ent0n29/agrigenius/internal/config"
)

func newMockBackend(t *testing.T) *httptest.Server {
	t.Helper()
	t.Setenv("AGRIGENIUS_TOKEN", "test-key")
	cfg := config.Config{
		CORSOrigins:            []string{"*"},
		MaxBodyBytes:           1 << 20,
		TTSProvider:            "mock",
		TTSCacheCapacity:       16,
		ChatProvider:           "mock",
		ChatCredentialEnv:      "AGRIGENIUS_TOKEN",
		ChatDefaultModel:       "gemini-2.5-flash",
		ChatDefaultTemperature: 0.6,
		ChatStreamChunkRunes:   8,
	}
	built, err := app.Build(cfg, log.New(io.Discard), fmt.Sprintf("test_perfagri_%d", time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("app.Build() error = %v", err)
	}
	ts := httptest.NewServer(built.API.Router())
	t.Cleanup(ts.Close)
	return ts
}

func TestRunReplaysAgainstMockBackend(t *testing.T) {
	ts := newMockBackend(t)
	cfg, err := parseFlags([]string{"-base-url", ts.URL, "-rounds", "3", "-verbose=false"})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}

	rep, err := run(context.Background(), cfg, io.Discard)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if rep.TTSRequests != 3*len(defaultTexts) {
		t.Fatalf("tts requests = %d, want %d", rep.TTSRequests, 3*len(defaultTexts))
	}
	if rep.TTSCacheHits != 2*len(defaultTexts) {
		t.Fatalf("tts cache hits = %d, want %d", rep.TTSCacheHits, 2*len(defaultTexts))
	}
	if rep.ChatTurns != len(defaultQuestions) {
		t.Fatalf("chat turns = %d, want %d", rep.ChatTurns, len(defaultQuestions))
	}

	var out strings.Builder
	if err := printServerLatency(context.Background(), ts.URL, &out); err != nil {
		t.Fatalf("printServerLatency() error = %v", err)
	}
	if !strings.Contains(out.String(), "tts_request") {
		t.Fatalf("latency snapshot missing tts_request stage: %s", out.String())
	}
}

func TestParseFlags(t *testing.T) {
	cfg, err := parseFlags([]string{"-texts", " a | |b ", "-questions", "none"})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if strings.Join(cfg.texts, ",") != "a,b" {
		t.Fatalf("texts = %q, want [a b]", cfg.texts)
	}
	if cfg.questions != nil {
		t.Fatalf("questions = %q, want none", cfg.questions)
	}
	if cfg.turnTimeout != 60*time.Second {
		t.Fatalf("turnTimeout = %s, want 1m0s", cfg.turnTimeout)
	}

	if _, err := parseFlags([]string{"-rounds", "0"}); err == nil {
		t.Fatalf("parseFlags() error = nil for rounds=0")
	}
}

func TestChatWSURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:5000":      "ws://localhost:5000/api/gemini/ws",
		"https://agri.example/base/": "wss://agri.example/base/api/gemini/ws",
	}
	for in, want := range cases {
		got, err := chatWSURL(in)
		if err != nil {
			t.Fatalf("chatWSURL(%q) error = %v", in, err)
		}
		if got != want {
			t.Fatalf("chatWSURL(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := chatWSURL("ftp://x"); err == nil {
		t.Fatalf("chatWSURL(ftp) error = nil")
	}
}

func TestPercentile(t *testing.T) {
	samples := []time.Duration{40, 10, 30, 20}
	if got := percentile(samples, 0.5); got != 30 {
		t.Fatalf("p50 = %d, want 30", got)
	}
	if got := percentile(samples, 0.95); got != 40 {
		t.Fatalf("p95 = %d, want 40", got)
	}
	if got := percentile(nil, 0.5); got != 0 {
		t.Fatalf("empty p50 = %d, want 0", got)
	}
}
