package app

import (
	"fmt"

	"github.com/ent0n29/agrigenius/internal/chat"
	"github.com/ent0n29/agrigenius/internal/config"
	"github.com/ent0n29/agrigenius/internal/gemini"
	"github.com/ent0n29/agrigenius/internal/voice"
)

type speechSetup struct {
	synth    voice.Synthesizer
	provider string
	detail   string
}

func resolveSynthesizer(cfg config.Config) (speechSetup, error) {
	switch cfg.TTSProvider {
	case "gtts", "":
		p := voice.NewGoogleTranslateProvider(voice.GoogleTranslateConfig{
			TLD:               cfg.GTTSTLD,
			Slow:              cfg.GTTSSlow,
			Timeout:           cfg.GTTSTimeout,
			RequestsPerMinute: cfg.GTTSRequestsPerMinute,
		})
		detail := "google translate (translate.google." + cfg.GTTSTLD + ")"
		if cfg.GTTSRequestsPerMinute > 0 {
			detail += fmt.Sprintf(", %d req/min", cfg.GTTSRequestsPerMinute)
		}
		return speechSetup{synth: p, provider: "gtts", detail: detail}, nil
	case "mock":
		return speechSetup{synth: voice.NewMockProvider(), provider: "mock", detail: "mock synthesizer"}, nil
	default:
		return speechSetup{}, fmt.Errorf("invalid TTS_PROVIDER: %q (expected gtts|mock)", cfg.TTSProvider)
	}
}

type chatSetup struct {
	gen      chat.Generator
	provider string
	detail   string
}

// resolveGenerator returns a nil generator for CHAT_PROVIDER=disabled.
func resolveGenerator(cfg config.Config) (chatSetup, error) {
	switch cfg.ChatProvider {
	case "gemini", "":
		return chatSetup{
			gen:      gemini.NewClient(cfg.GeminiBaseURL, cfg.GeminiTimeout),
			provider: "gemini",
			detail:   "gemini generateContent, default model " + cfg.ChatDefaultModel,
		}, nil
	case "mock":
		return chatSetup{gen: gemini.NewMockGenerator(), provider: "mock", detail: "mock generator"}, nil
	case "disabled":
		return chatSetup{provider: "disabled", detail: "chat backend disabled"}, nil
	default:
		return chatSetup{}, fmt.Errorf("invalid CHAT_PROVIDER: %q (expected gemini|mock|disabled)", cfg.ChatProvider)
	}
}
