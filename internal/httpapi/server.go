package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/agrigenius/internal/chat"
	"github.com/ent0n29/agrigenius/internal/config"
	"github.com/ent0n29/agrigenius/internal/observability"
	"github.com/ent0n29/agrigenius/internal/tts"
)

const defaultMaxBodyBytes = 1 << 20

type Server struct {
	cfg      config.Config
	tts      *tts.Service
	chat     *chat.Service
	metrics  *observability.Metrics
	logger   *log.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, ttsService *tts.Service, chatService *chat.Service, metrics *observability.Metrics, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.ChatStreamChunkRunes <= 0 {
		cfg.ChatStreamChunkRunes = 48
	}
	return &Server{
		cfg:     cfg,
		tts:     ttsService,
		chat:    chatService,
		metrics: metrics,
		logger:  logger.WithPrefix("http"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin() {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				for _, allowed := range cfg.CORSOrigins {
					if strings.EqualFold(allowed, origin) {
						return true
					}
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins(),
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With", requestIDHeader},
		ExposedHeaders: []string{headerTTSCache, headerTTSLang, requestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Post("/tts", s.handleTTS)
	r.Post("/api/tts", s.handleTTS)
	r.Post("/api/gemini", s.handleChat)
	r.Get("/api/gemini/ws", s.handleChatWS)

	return r
}

func (s *Server) corsOrigins() []string {
	if len(s.cfg.CORSOrigins) == 0 || s.cfg.AllowAnyOrigin() {
		return []string{"*"}
	}
	return s.cfg.CORSOrigins
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"tts_provider":   s.ttsProvider(),
		"chat_provider":  s.chatProvider(),
		"chat_available": s.chat != nil && s.chat.Available(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{
		"status":         "ready",
		"tts_provider":   s.ttsProvider(),
		"chat_provider":  s.chatProvider(),
		"chat_available": s.chat != nil && s.chat.Available(),
	}
	if s.tts != nil {
		payload["tts_cache"] = s.tts.CacheStats()
	}
	if s.chat != nil {
		payload["chat_credential_present"] = s.chat.HasCredential()
	}
	respondJSON(w, http.StatusOK, payload)
}

func (s *Server) ttsProvider() string {
	if s.tts == nil {
		return "disabled"
	}
	return s.tts.Provider()
}

func (s *Server) chatProvider() string {
	if s.chat == nil {
		return "disabled"
	}
	return s.chat.Provider()
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

var errBodyTooLarge = errors.New("request body too large")

// readBody returns the request body capped at the configured size. A missing
// body reads as empty.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errBodyTooLarge
		}
		return nil, err
	}
	return body, nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func respondText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, message)
}
