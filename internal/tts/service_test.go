package tts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ent0n29/agrigenius/internal/audiocache"
	"github.com/ent0n29/agrigenius/internal/observability"
	"github.com/ent0n29/agrigenius/internal/voice"
)

type countingSynth struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (c *countingSynth) Synthesize(_ context.Context, text, lang string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, lang+"|"+text)
	if c.err != nil {
		return nil, c.err
	}
	return []byte("mp3:" + lang + ":" + text), nil
}

func newTestService(t *testing.T, synth voice.Synthesizer, capacity int) (*Service, *audiocache.Cache) {
	t.Helper()
	cache := audiocache.New(capacity)
	metrics := observability.NewMetrics(fmt.Sprintf("test_tts_%d", time.Now().UnixNano()))
	return NewService(cache, synth, "stub", nil, metrics), cache
}

func TestSpeakIsIdempotent(t *testing.T) {
	synth := &countingSynth{}
	svc, _ := newTestService(t, synth, 4)

	first, err := svc.Speak(context.Background(), "**Water** the crop", "")
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	if first.Cached {
		t.Fatalf("first Speak() Cached = true, want false")
	}
	second, err := svc.Speak(context.Background(), "Water the **crop**", "")
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	if !second.Cached {
		t.Fatalf("second Speak() Cached = false, want true")
	}
	if string(second.Audio) != string(first.Audio) {
		t.Fatalf("cached audio = %q, want %q", second.Audio, first.Audio)
	}
	if len(synth.calls) != 1 {
		t.Fatalf("synth calls = %d, want 1", len(synth.calls))
	}
	if synth.calls[0] != "en|Water the crop" {
		t.Fatalf("synth input = %q, want normalized text", synth.calls[0])
	}
}

func TestSpeakDetectsTelugu(t *testing.T) {
	synth := &countingSynth{}
	svc, _ := newTestService(t, synth, 4)

	res, err := svc.Speak(context.Background(), "వరి పంట", "")
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	if res.Lang != "te" {
		t.Fatalf("Lang = %q, want te", res.Lang)
	}
}

func TestSpeakExplicitLanguageWins(t *testing.T) {
	synth := &countingSynth{}
	svc, cache := newTestService(t, synth, 4)

	res, err := svc.Speak(context.Background(), "వరి", " hi ")
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	if res.Lang != "hi" {
		t.Fatalf("Lang = %q, want hi", res.Lang)
	}
	if _, ok := cache.Get(audiocache.Key{Lang: "hi", Text: "వరి"}); !ok {
		t.Fatalf("cache has no entry under the explicit language")
	}
}

func TestSpeakNoText(t *testing.T) {
	synth := &countingSynth{}
	svc, cache := newTestService(t, synth, 4)

	for _, text := range []string{"", "**__**", "`code only`"} {
		_, err := svc.Speak(context.Background(), text, "")
		if !errors.Is(err, ErrNoText) {
			t.Fatalf("Speak(%q) error = %v, want ErrNoText", text, err)
		}
	}
	if len(synth.calls) != 0 {
		t.Fatalf("synth calls = %d, want 0", len(synth.calls))
	}
	if cache.Len() != 0 {
		t.Fatalf("cache.Len() = %d, want 0", cache.Len())
	}
	if got := cache.Stats().Misses; got != 3 {
		t.Fatalf("cache misses = %d, want 3", got)
	}
}

func TestSpeakBackendError(t *testing.T) {
	upstream := &voice.UpstreamError{Provider: "gtts", StatusCode: 503, Body: "unavailable", Retryable: true}
	synth := &countingSynth{err: upstream}
	svc, cache := newTestService(t, synth, 4)

	_, err := svc.Speak(context.Background(), "hello", "")
	var backendErr *BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("error = %v, want *BackendError", err)
	}
	if err.Error() != upstream.Error() {
		t.Fatalf("error message = %q, want %q", err.Error(), upstream.Error())
	}
	if !errors.Is(err, upstream) {
		t.Fatalf("BackendError does not unwrap to the upstream error")
	}
	if cache.Len() != 0 {
		t.Fatalf("failed synthesis was cached")
	}
}

func TestSpeakEvictsLeastRecentlyUsed(t *testing.T) {
	synth := &countingSynth{}
	svc, _ := newTestService(t, synth, 2)
	ctx := context.Background()

	for _, text := range []string{"A", "B", "A", "C", "A", "B"} {
		if _, err := svc.Speak(ctx, text, ""); err != nil {
			t.Fatalf("Speak(%q) error = %v", text, err)
		}
	}
	want := []string{"en|A", "en|B", "en|C", "en|B"}
	if len(synth.calls) != len(want) {
		t.Fatalf("synth calls = %v, want %v", synth.calls, want)
	}
	for i := range want {
		if synth.calls[i] != want[i] {
			t.Fatalf("synth calls = %v, want %v", synth.calls, want)
		}
	}
	if got := svc.CacheStats().Evictions; got != 2 {
		t.Fatalf("evictions = %d, want 2", got)
	}
}
