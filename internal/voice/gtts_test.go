package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"
)

func batchResponse(audio []byte) string {
	payload := base64.StdEncoding.EncodeToString(audio)
	return ")]}'\n\n104\n" + `[["wrb.fr","jQ1olc","[\"` + payload + `\"]",null,null,null,"generic"]]` + "\n57\n" + `[["di",42],["af.httprm",41,"-1",1]]` + "\n"
}

type recordedRPC struct {
	Text string
	Lang string
	Slow any
}

func newFakeTranslate(t *testing.T) (*httptest.Server, *[]recordedRPC) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []recordedRPC
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/_/TranslateWebserverUi/data/batchexecute" {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		form, err := url.ParseQuery(string(raw))
		if err != nil {
			t.Errorf("parse form: %v", err)
		}
		var rpc [][][]any
		if err := json.Unmarshal([]byte(form.Get("f.req")), &rpc); err != nil {
			t.Errorf("decode f.req: %v", err)
			return
		}
		if rpc[0][0][0] != "jQ1olc" {
			t.Errorf("rpc id = %v, want jQ1olc", rpc[0][0][0])
		}
		var param []any
		if err := json.Unmarshal([]byte(rpc[0][0][1].(string)), &param); err != nil {
			t.Errorf("decode rpc parameter: %v", err)
			return
		}
		rec := recordedRPC{Text: param[0].(string), Lang: param[1].(string), Slow: param[2]}
		mu.Lock()
		calls = append(calls, rec)
		mu.Unlock()
		_, _ = io.WriteString(w, batchResponse([]byte("mp3:"+rec.Lang+":"+rec.Text)))
	}))
	t.Cleanup(ts.Close)
	return ts, &calls
}

func TestGoogleTranslateProviderSynthesize(t *testing.T) {
	ts, calls := newFakeTranslate(t)
	p := NewGoogleTranslateProvider(GoogleTranslateConfig{BaseURL: ts.URL})

	audio, err := p.Synthesize(context.Background(), "Sow paddy after the first rains.", "en")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(audio) != "mp3:en:Sow paddy after the first rains." {
		t.Fatalf("audio = %q", audio)
	}
	if len(*calls) != 1 {
		t.Fatalf("upstream calls = %d, want 1", len(*calls))
	}
	if (*calls)[0].Slow != nil {
		t.Fatalf("slow parameter = %v, want null", (*calls)[0].Slow)
	}
}

func TestGoogleTranslateProviderSlowFlag(t *testing.T) {
	ts, calls := newFakeTranslate(t)
	p := NewGoogleTranslateProvider(GoogleTranslateConfig{BaseURL: ts.URL, Slow: true})

	if _, err := p.Synthesize(context.Background(), "నమస్కారం", "te"); err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if got := (*calls)[0]; got.Slow != true || got.Lang != "te" || got.Text != "నమస్కారం" {
		t.Fatalf("recorded rpc = %+v", got)
	}
}

func TestGoogleTranslateProviderConcatenatesChunks(t *testing.T) {
	ts, calls := newFakeTranslate(t)
	p := NewGoogleTranslateProvider(GoogleTranslateConfig{BaseURL: ts.URL})

	first := strings.Repeat("a", 60) + "."
	second := strings.Repeat("b", 60) + "."
	audio, err := p.Synthesize(context.Background(), first+" "+second, "en")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if len(*calls) != 2 {
		t.Fatalf("upstream calls = %d, want 2", len(*calls))
	}
	want := "mp3:en:" + first + "mp3:en:" + second
	if string(audio) != want {
		t.Fatalf("audio = %q, want %q", audio, want)
	}
}

func TestGoogleTranslateProviderUpstreamStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exhausted", http.StatusTooManyRequests)
	}))
	defer ts.Close()
	p := NewGoogleTranslateProvider(GoogleTranslateConfig{BaseURL: ts.URL})

	_, err := p.Synthesize(context.Background(), "hello", "en")
	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("error = %v, want *UpstreamError", err)
	}
	if upErr.StatusCode != http.StatusTooManyRequests || !upErr.Retryable {
		t.Fatalf("upstream error = %+v", upErr)
	}
	if !strings.Contains(err.Error(), "quota exhausted") {
		t.Fatalf("error = %q, want upstream body", err.Error())
	}
}

func TestGoogleTranslateProviderNoAudio(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, ")]}'\n\n[[\"wrb.fr\",\"jQ1olc\",null,null,null,[3],\"generic\"]]\n")
	}))
	defer ts.Close()
	p := NewGoogleTranslateProvider(GoogleTranslateConfig{BaseURL: ts.URL})

	_, err := p.Synthesize(context.Background(), "hello", "xx")
	if !errors.Is(err, ErrNoAudio) {
		t.Fatalf("error = %v, want ErrNoAudio", err)
	}
}

func TestGoogleTranslateProviderRejectsUnspeakableText(t *testing.T) {
	p := NewGoogleTranslateProvider(GoogleTranslateConfig{BaseURL: "http://127.0.0.1:0"})
	if _, err := p.Synthesize(context.Background(), " ... !! ", "en"); err == nil {
		t.Fatalf("Synthesize() error = nil, want error for punctuation-only text")
	}
}

func TestSplitSpeechChunks(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty", in: "   ", want: nil},
		{name: "short text is one chunk", in: " Hello farmer. How are you? ", want: []string{"Hello farmer. How are you?"}},
		{name: "punctuation only is dropped", in: "...", want: nil},
	}
	for _, tc := range cases {
		got := splitSpeechChunks(tc.in, 100)
		if fmt.Sprint(got) != fmt.Sprint(tc.want) || len(got) != len(tc.want) {
			t.Fatalf("%s: splitSpeechChunks(%q) = %q, want %q", tc.name, tc.in, got, tc.want)
		}
	}
}

func TestSplitSpeechChunksRespectsLimit(t *testing.T) {
	words := strings.Repeat("irrigation ", 40)
	long := strings.Repeat("x", 250)
	for _, in := range []string{words, long, words + ". " + long} {
		chunks := splitSpeechChunks(in, 100)
		if len(chunks) < 2 {
			t.Fatalf("splitSpeechChunks produced %d chunks for %d runes", len(chunks), utf8.RuneCountInString(in))
		}
		for _, c := range chunks {
			if n := utf8.RuneCountInString(c); n > 100 || n == 0 {
				t.Fatalf("chunk has %d runes: %q", n, c)
			}
		}
		joined := strings.Join(strings.Fields(strings.Join(chunks, " ")), "")
		original := strings.Join(strings.Fields(in), "")
		if joined != original {
			t.Fatalf("chunks lost content")
		}
	}
}

func TestSplitSpeechChunksBreaksOnWhitespace(t *testing.T) {
	in := strings.Repeat("soil ", 30)
	for _, c := range splitSpeechChunks(in, 100) {
		for _, w := range strings.Fields(c) {
			if w != "soil" {
				t.Fatalf("word split mid-way: %q in chunk %q", w, c)
			}
		}
	}
}
