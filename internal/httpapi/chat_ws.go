package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/agrigenius/internal/observability"
	"github.com/ent0n29/agrigenius/internal/protocol"
)

const (
	wsReadLimit    = 2 << 20
	wsIdleTimeout  = 120 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// handleChatWS streams chat answers over a websocket. Each chat_request is
// answered with chat_text_delta frames followed by one chat_done, or with an
// error_event. Only one turn runs at a time per connection.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	logger := s.requestLogger(r)
	sessionID := uuid.NewString()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 64)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					logger.Debug("websocket write failed", "err", err)
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.ObserveWSMessage("outbound", string(t))
				}
			}
		}
	}()

	send := func(msg any) {
		select {
		case outbound <- msg:
		case <-ctx.Done():
		}
	}
	send(protocol.SystemEvent{Type: protocol.TypeSystemEvent, SessionID: sessionID, Code: "ready"})

	var (
		turns      sync.WaitGroup
		mu         sync.Mutex
		turnCancel context.CancelFunc
		turnReqID  string
	)
	busy := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return turnCancel != nil
	}

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			send(protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Source: "gateway",
				Detail: err.Error(),
			})
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.ObserveWSMessage("inbound", string(t))
		}

		switch msg := parsed.(type) {
		case protocol.ClientControl:
			switch msg.Action {
			case protocol.ActionPing:
				send(protocol.SystemEvent{Type: protocol.TypeSystemEvent, SessionID: sessionID, Code: "pong"})
			case protocol.ActionCancel:
				mu.Lock()
				if turnCancel != nil && (msg.RequestID == "" || msg.RequestID == turnReqID) {
					turnCancel()
				}
				mu.Unlock()
			}
		case protocol.ChatRequest:
			if busy() {
				send(protocol.ErrorEvent{
					Type:      protocol.TypeErrorEvent,
					RequestID: msg.RequestID,
					Code:      "turn_in_progress",
					Source:    "gateway",
					Retryable: true,
					Detail:    "a chat turn is already running on this connection",
				})
				continue
			}
			turnCtx, stop := context.WithCancel(ctx)
			mu.Lock()
			turnCancel, turnReqID = stop, msg.RequestID
			mu.Unlock()

			turns.Add(1)
			go func(req protocol.ChatRequest) {
				defer turns.Done()
				final := s.runChatTurn(ctx, turnCtx, req, send)
				mu.Lock()
				turnCancel, turnReqID = nil, ""
				mu.Unlock()
				stop()
				if final != nil {
					send(final)
				}
			}(msg)
		}
	}

	cancel()
	turns.Wait()
	<-writerDone
	logger.Debug("chat stream closed", "session_id", sessionID)
}

// runChatTurn answers one request, streaming deltas through send and
// returning the closing frame (chat_done or error_event). The closing frame
// is sent by the caller once the turn slot is released, on the connection
// context, so a cancelled turn can still report its cancellation. A nil frame
// means the connection is gone.
func (s *Server) runChatTurn(connCtx, turnCtx context.Context, req protocol.ChatRequest, send func(any)) any {
	started := time.Now()
	turnID := uuid.NewString()
	if s.chat == nil {
		return protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			RequestID: req.RequestID,
			TurnID:    turnID,
			Code:      "backend_unavailable",
			Source:    "chat",
			Detail:    backendUnavailableMessage,
		}
	}

	resp, err := s.chat.Reply(turnCtx, req.Request)
	if err != nil {
		if connCtx.Err() != nil {
			return nil
		}
		_, code, message := s.chatFailure(err)
		retryable := code == "backend_error"
		if errors.Is(turnCtx.Err(), context.Canceled) {
			code, message, retryable = "cancelled", "chat turn cancelled", false
		}
		return protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			RequestID: req.RequestID,
			TurnID:    turnID,
			Code:      code,
			Source:    "chat",
			Retryable: retryable,
			Detail:    message,
		}
	}

	for i, delta := range splitRunes(resp.Text, s.cfg.ChatStreamChunkRunes) {
		if turnCtx.Err() != nil {
			break
		}
		send(protocol.ChatTextDelta{
			Type:      protocol.TypeChatTextDelta,
			RequestID: req.RequestID,
			TurnID:    turnID,
			Seq:       i,
			TextDelta: delta,
		})
	}
	if connCtx.Err() != nil {
		return nil
	}
	if turnCtx.Err() != nil {
		return protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			RequestID: req.RequestID,
			TurnID:    turnID,
			Code:      "cancelled",
			Source:    "chat",
			Detail:    "chat turn cancelled",
		}
	}
	s.metrics.ObserveStage(observability.StageChatRequest, time.Since(started))
	return protocol.ChatDone{
		Type:       protocol.TypeChatDone,
		RequestID:  req.RequestID,
		TurnID:     turnID,
		Text:       resp.Text,
		References: resp.References,
	}
}

// splitRunes cuts text into pieces of at most n runes.
func splitRunes(text string, n int) []string {
	if text == "" || n <= 0 {
		return nil
	}
	out := make([]string, 0, utf8.RuneCountInString(text)/n+1)
	start, count := 0, 0
	for i := range text {
		if count == n {
			out = append(out, text[start:i])
			start, count = i, 0
		}
		count++
	}
	return append(out, text[start:])
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ChatRequest:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.ChatTextDelta:
		return m.Type, true
	case protocol.ChatDone:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
