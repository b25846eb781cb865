package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/ent0n29/agrigenius/internal/chat"
	"github.com/ent0n29/agrigenius/internal/observability"
)

const backendUnavailableMessage = "Server is missing the generative-language backend"

// chatFailure maps a chat error onto the status, code and client message
// shared by the HTTP and websocket surfaces.
func (s *Server) chatFailure(err error) (int, string, string) {
	var backendErr *chat.BackendError
	switch {
	case errors.Is(err, chat.ErrNoMessage):
		return http.StatusBadRequest, "invalid_request", "No message provided"
	case errors.Is(err, chat.ErrMissingCredential):
		return http.StatusInternalServerError, "missing_credential", s.chat.CredentialEnv() + " is not set on the server"
	case errors.Is(err, chat.ErrBackendUnavailable):
		return http.StatusInternalServerError, "backend_unavailable", backendUnavailableMessage
	case errors.As(err, &backendErr):
		return http.StatusInternalServerError, "backend_error", backendErr.Error()
	default:
		return http.StatusInternalServerError, "internal_error", err.Error()
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	if s.chat == nil {
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: backendUnavailableMessage})
		return
	}
	body, err := s.readBody(w, r)
	if errors.Is(err, errBodyTooLarge) {
		respondError(w, http.StatusRequestEntityTooLarge, "body_too_large", "Request body too large")
		return
	}

	resp, err := s.chat.Reply(r.Context(), chat.ParseRequest(body))
	if err != nil {
		status, code, message := s.chatFailure(err)
		if status >= 500 {
			s.requestLogger(r).Error("chat failed", "code", code, "err", message)
		}
		respondJSON(w, status, errorResponse{Error: message})
		return
	}
	s.metrics.ObserveStage(observability.StageChatRequest, time.Since(started))
	respondJSON(w, http.StatusOK, resp)
}
