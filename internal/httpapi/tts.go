package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ent0n29/agrigenius/internal/observability"
	"github.com/ent0n29/agrigenius/internal/tts"
)

const (
	headerTTSCache = "X-TTS-Cache"
	headerTTSLang  = "X-TTS-Lang"
)

type ttsRequest struct {
	Text string `json:"text"`
	Lang string `json:"lang"`
}

// parseTTSRequest decodes a TTS body; anything malformed reads as empty.
func parseTTSRequest(body []byte) ttsRequest {
	var req ttsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return ttsRequest{}
	}
	return req
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	if s.tts == nil {
		respondText(w, http.StatusServiceUnavailable, "Text-to-speech is not configured")
		return
	}
	body, err := s.readBody(w, r)
	if errors.Is(err, errBodyTooLarge) {
		respondText(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	req := parseTTSRequest(body)

	res, err := s.tts.Speak(r.Context(), req.Text, req.Lang)
	if err != nil {
		if errors.Is(err, tts.ErrNoText) {
			respondText(w, http.StatusBadRequest, "No text provided")
			return
		}
		s.requestLogger(r).Error("tts failed", "err", err)
		respondText(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.metrics.ObserveStage(observability.StageTTSRequest, time.Since(started))

	cache := "miss"
	if res.Cached {
		cache = "hit"
	}
	h := w.Header()
	h.Set("Content-Type", "audio/mpeg")
	h.Set("Content-Disposition", `inline; filename="tts.mp3"`)
	h.Set("Content-Length", strconv.Itoa(len(res.Audio)))
	h.Set(headerTTSCache, cache)
	h.Set(headerTTSLang, res.Lang)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Audio)
}
