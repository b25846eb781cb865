// Package chat assembles prompts for the farming assistant and turns model
// output into answers with references.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ent0n29/agrigenius/internal/observability"
	"github.com/ent0n29/agrigenius/internal/reliability"
)

const (
	DefaultCredentialEnv = "AGRIGENIUS_TOKEN"
	DefaultModel         = "gemini-2.5-flash"
	DefaultTemperature   = 0.6
)

var (
	ErrNoMessage          = errors.New("no message provided")
	ErrMissingCredential  = errors.New("chat credential is not set")
	ErrBackendUnavailable = errors.New("generative-language backend is not configured")
)

// BackendError wraps a generator failure. Its message is the backend's own.
type BackendError struct {
	Err error
}

func (e *BackendError) Error() string { return e.Err.Error() }

func (e *BackendError) Unwrap() error { return e.Err }

// GenerateRequest is one single-turn completion call.
type GenerateRequest struct {
	APIKey      string
	Model       string
	Prompt      string
	Temperature float64
}

// Generator produces raw model text for a prompt.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Request is a decoded chat request. Zero Model and nil Temperature select
// the service defaults.
type Request struct {
	Message           string
	SystemInstruction string
	History           []Turn
	Model             string
	Temperature       *float64
}

type wireRequest struct {
	Message           json.RawMessage `json:"message"`
	SystemInstruction json.RawMessage `json:"systemInstruction"`
	History           json.RawMessage `json:"history"`
	Model             json.RawMessage `json:"model"`
	Temperature       json.RawMessage `json:"temperature"`
}

// ParseRequest decodes a request body. Malformed or non-object bodies decode
// as an empty request; message, systemInstruction and model are read only
// when they are strings.
func ParseRequest(body []byte) Request {
	var wire wireRequest
	if !isObject(body) || json.Unmarshal(body, &wire) != nil {
		return Request{}
	}
	req := Request{
		Message:           stringField(wire.Message),
		SystemInstruction: stringField(wire.SystemInstruction),
		History:           DecodeHistory(wire.History),
		Model:             stringField(wire.Model),
	}
	if t, ok := CoerceTemperature(wire.Temperature); ok {
		req.Temperature = &t
	}
	return req
}

// CoerceTemperature accepts a JSON number, a numeric string or a boolean.
// Anything else, including null and non-finite values, is rejected.
func CoerceTemperature(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	var v float64
	switch raw[0] {
	case 'n':
		return 0, false
	case 't', 'f':
		var b bool
		if json.Unmarshal(raw, &b) != nil {
			return 0, false
		}
		if b {
			return 1, true
		}
		return 0, true
	case '"':
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		v = f
	default:
		if json.Unmarshal(raw, &v) != nil {
			return 0, false
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

type Config struct {
	// Provider labels metrics and logs.
	Provider           string
	CredentialEnv      string
	DefaultModel       string
	DefaultTemperature float64
	// LookupEnv reads the credential; defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Service answers chat requests. A nil Generator marks the backend as
// unavailable.
type Service struct {
	gen     Generator
	cfg     Config
	logger  *log.Logger
	metrics *observability.Metrics
}

func NewService(gen Generator, cfg Config, logger *log.Logger, metrics *observability.Metrics) *Service {
	if strings.TrimSpace(cfg.CredentialEnv) == "" {
		cfg.CredentialEnv = DefaultCredentialEnv
	}
	if strings.TrimSpace(cfg.DefaultModel) == "" {
		cfg.DefaultModel = DefaultModel
	}
	if cfg.LookupEnv == nil {
		cfg.LookupEnv = os.LookupEnv
	}
	if cfg.Provider == "" {
		cfg.Provider = "disabled"
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{gen: gen, cfg: cfg, logger: logger.WithPrefix("chat"), metrics: metrics}
}

func (s *Service) Available() bool { return s.gen != nil }

func (s *Service) Provider() string { return s.cfg.Provider }

// CredentialEnv names the environment variable holding the API key.
func (s *Service) CredentialEnv() string { return s.cfg.CredentialEnv }

// HasCredential reports whether the API key is currently set.
func (s *Service) HasCredential() bool {
	key, _ := s.cfg.LookupEnv(s.cfg.CredentialEnv)
	return key != ""
}

// Reply validates the request, calls the generator once and parses its
// output. Checks run in order: message, credential, backend.
func (s *Service) Reply(ctx context.Context, req Request) (Response, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return Response{}, ErrNoMessage
	}
	apiKey, _ := s.cfg.LookupEnv(s.cfg.CredentialEnv)
	if apiKey == "" {
		return Response{}, ErrMissingCredential
	}
	if s.gen == nil {
		return Response{}, ErrBackendUnavailable
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = s.cfg.DefaultModel
	}
	temperature := s.cfg.DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	prompt := BuildPrompt(req.SystemInstruction, req.History, message)
	started := time.Now()
	raw, err := s.gen.Generate(ctx, GenerateRequest{
		APIKey:      apiKey,
		Model:       model,
		Prompt:      prompt,
		Temperature: temperature,
	})
	elapsed := time.Since(started)
	s.metrics.ObserveUpstreamLatency(s.cfg.Provider, elapsed)
	if err != nil {
		status := 0
		var withStatus interface{ HTTPStatus() int }
		if errors.As(err, &withStatus) {
			status = withStatus.HTTPStatus()
		}
		retryable := reliability.IsRetryableHTTPStatus(status)
		s.metrics.ObserveProviderError(s.cfg.Provider, status, retryable)
		s.logger.Warn("generation failed", "provider", s.cfg.Provider, "model", model, "status", status, "retryable", retryable, "err", err)
		return Response{}, &BackendError{Err: err}
	}
	s.metrics.ObserveStage(observability.StageChatGenerate, elapsed)

	resp, structured := parseModelOutput(raw)
	if !structured {
		s.metrics.ObserveIndicator("chat_unstructured_answer")
	}
	s.logger.Debug("reply ready", "model", model, "history", len(req.History), "structured", structured, "references", len(resp.References))
	return resp, nil
}
