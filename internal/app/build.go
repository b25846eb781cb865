package app

import (
	"github.com/charmbracelet/log"

	"github.com/ent0n29/agrigenius/internal/audiocache"
	"github.com/ent0n29/agrigenius/internal/chat"
	"github.com/ent0n29/agrigenius/internal/config"
	"github.com/ent0n29/agrigenius/internal/httpapi"
	"github.com/ent0n29/agrigenius/internal/observability"
	"github.com/ent0n29/agrigenius/internal/tts"
)

type ProviderInfo struct {
	TTS        string
	TTSDetail  string
	Chat       string
	ChatDetail string
}

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	TTS      *tts.Service
	Chat     *chat.Service
	Cache    *audiocache.Cache
	Metrics  *observability.Metrics
	Provider ProviderInfo
}

// Build wires the cache, providers and services behind the HTTP API.
// metricsNamespace overrides cfg.MetricsNamespace when non-empty.
func Build(cfg config.Config, logger *log.Logger, metricsNamespace string) (*BuildResult, error) {
	if metricsNamespace == "" {
		metricsNamespace = cfg.MetricsNamespace
	}
	metrics := observability.NewMetrics(metricsNamespace)

	speech, err := resolveSynthesizer(cfg)
	if err != nil {
		return nil, err
	}
	generator, err := resolveGenerator(cfg)
	if err != nil {
		return nil, err
	}

	cache := audiocache.New(cfg.TTSCacheCapacity)
	ttsService := tts.NewService(cache, speech.synth, speech.provider, logger, metrics)
	chatService := chat.NewService(generator.gen, chat.Config{
		Provider:           generator.provider,
		CredentialEnv:      cfg.ChatCredentialEnv,
		DefaultModel:       cfg.ChatDefaultModel,
		DefaultTemperature: cfg.ChatDefaultTemperature,
	}, logger, metrics)

	api := httpapi.New(cfg, ttsService, chatService, metrics, logger)

	return &BuildResult{
		Config:  cfg,
		API:     api,
		TTS:     ttsService,
		Chat:    chatService,
		Cache:   cache,
		Metrics: metrics,
		Provider: ProviderInfo{
			TTS:        speech.provider,
			TTSDetail:  speech.detail,
			Chat:       generator.provider,
			ChatDetail: generator.detail,
		},
	}, nil
}
