// Package tts turns free-form assistant text into cached MP3 audio.
package tts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ent0n29/agrigenius/internal/audiocache"
	"github.com/ent0n29/agrigenius/internal/observability"
	"github.com/ent0n29/agrigenius/internal/policy"
	"github.com/ent0n29/agrigenius/internal/speech"
	"github.com/ent0n29/agrigenius/internal/voice"
)

const logPreviewRunes = 20

// ErrNoText is returned when nothing speakable remains after normalization.
var ErrNoText = errors.New("no text provided")

// BackendError wraps a synthesizer failure. Its message is the backend's own.
type BackendError struct {
	Provider string
	Err      error
}

func (e *BackendError) Error() string { return e.Err.Error() }

func (e *BackendError) Unwrap() error { return e.Err }

// Result is a synthesized or cached MP3 payload.
type Result struct {
	Audio  []byte
	Lang   string
	Cached bool
}

type Service struct {
	cache    *audiocache.Cache
	synth    voice.Synthesizer
	provider string
	logger   *log.Logger
	metrics  *observability.Metrics
}

func NewService(cache *audiocache.Cache, synth voice.Synthesizer, provider string, logger *log.Logger, metrics *observability.Metrics) *Service {
	if cache == nil {
		cache = audiocache.New(audiocache.DefaultCapacity)
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &Service{
		cache:    cache,
		synth:    synth,
		provider: provider,
		logger:   logger.WithPrefix("tts"),
		metrics:  metrics,
	}
	cache.SetEvictHook(func(audiocache.Key) {
		metrics.ObserveCacheEvent("evict")
	})
	return s
}

// Provider names the configured synthesizer.
func (s *Service) Provider() string { return s.provider }

func (s *Service) CacheStats() audiocache.Stats { return s.cache.Stats() }

// Speak resolves the language, normalizes the text and serves it from the
// cache, calling the synthesizer once on a miss. A non-empty lang overrides
// detection.
func (s *Service) Speak(ctx context.Context, text, lang string) (Result, error) {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		lang = speech.DetectLanguage(text)
	}
	normalized := speech.Normalize(text)
	key := audiocache.Key{Lang: lang, Text: normalized}

	if audio, ok := s.cache.Get(key); ok {
		s.metrics.ObserveCacheEvent("hit")
		return Result{Audio: audio, Lang: lang, Cached: true}, nil
	}
	s.metrics.ObserveCacheEvent("miss")

	if normalized == "" {
		return Result{}, ErrNoText
	}

	s.logger.Debug("cache miss", "lang", lang, "runes", len([]rune(normalized)), "preview", policy.LogPreview(normalized, logPreviewRunes))

	started := time.Now()
	audio, err := s.synth.Synthesize(ctx, normalized, lang)
	elapsed := time.Since(started)
	s.metrics.ObserveUpstreamLatency(s.provider, elapsed)
	if err != nil {
		status, retryable := 0, false
		var upErr *voice.UpstreamError
		if errors.As(err, &upErr) {
			status, retryable = upErr.StatusCode, upErr.Retryable
		}
		s.metrics.ObserveProviderError(s.provider, status, retryable)
		s.logger.Warn("synthesis failed", "provider", s.provider, "lang", lang, "status", status, "retryable", retryable, "err", err)
		return Result{}, &BackendError{Provider: s.provider, Err: err}
	}
	s.metrics.ObserveStage(observability.StageTTSSynthesize, elapsed)

	s.cache.Put(key, audio)
	s.metrics.SetCacheEntries(s.cache.Len())
	return Result{Audio: audio, Lang: lang}, nil
}
