package httpapi

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/carobot/internal/assistant"
	"github.com/ent0n29/carobot/internal/memory"
	"github.com/ent0n29/carobot/internal/protocol"
)

const (
	wsReadLimit    = 32 << 20
	wsIdleTimeout  = 120 * time.Second
	wsWriteTimeout = 10 * time.Second
)

func newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" {
				// Non-browser clients often omit Origin.
				return true
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
	}
}

// handleConversationWS serves turns over one websocket. Frames are handled
// in arrival order; each inbound turn produces exactly one reply or error.
func (s *Server) handleConversationWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
	})

	write := func(msg any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			s.logger.Debug("websocket write failed", zap.Error(err))
			return false
		}
		return true
	}

	if !write(protocol.NewSystemEvent("connected", "")) {
		return
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			if !write(protocol.NewErrorEvent("invalid_client_message", "gateway", err.Error(), false)) {
				return
			}
			continue
		}
		if !write(s.dispatch(ctx, parsed)) {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, msg any) any {
	names := s.engine.Names()
	switch m := msg.(type) {
	case protocol.ClientText:
		speaker, err := names.Parse(m.Participant)
		if err != nil {
			return protocol.NewErrorEvent("unknown_participant", "gateway", err.Error(), false)
		}
		reply, err := s.engine.HandleText(ctx, speaker, m.Text)
		if err != nil {
			return s.turnErrorEvent(err)
		}
		return toAssistantReply(speaker, reply)
	case protocol.ClientAudio:
		if !s.engine.VoiceEnabled() {
			return protocol.NewErrorEvent("voice_unavailable", "gateway", assistant.ErrVoiceUnavailable.Error(), false)
		}
		speaker, err := names.Parse(m.Participant)
		if err != nil {
			return protocol.NewErrorEvent("unknown_participant", "gateway", err.Error(), false)
		}
		audio, err := base64.StdEncoding.DecodeString(m.AudioBase64)
		if err != nil || len(audio) == 0 {
			return protocol.NewErrorEvent("invalid_audio", "gateway", "audio_base64 must be non-empty base64", false)
		}
		reply, err := s.engine.HandleVoice(ctx, speaker, audio, m.Format)
		if err != nil {
			return s.turnErrorEvent(err)
		}
		return toAssistantReply(speaker, reply)
	case protocol.ClientControl:
		if m.Action == protocol.ActionPing {
			return protocol.NewSystemEvent("pong", "")
		}
		if err := s.engine.ResetConversation(ctx); err != nil {
			s.logger.Error("conversation reset failed", zap.Error(err))
			return protocol.NewErrorEvent("internal", "store", "reset failed", true)
		}
		return protocol.NewSystemEvent("conversation_reset", "")
	default:
		return protocol.NewErrorEvent("invalid_client_message", "gateway", protocol.ErrUnsupportedType.Error(), false)
	}
}

func (s *Server) turnErrorEvent(err error) protocol.ErrorEvent {
	switch {
	case errors.Is(err, memory.ErrUnknownParticipant):
		return protocol.NewErrorEvent("unknown_participant", "engine", err.Error(), false)
	case errors.Is(err, assistant.ErrEmptyUtterance):
		return protocol.NewErrorEvent("empty_utterance", "engine", err.Error(), false)
	case errors.Is(err, assistant.ErrVoiceUnavailable):
		return protocol.NewErrorEvent("voice_unavailable", "engine", err.Error(), false)
	default:
		s.logger.Error("turn failed", zap.Error(err))
		return protocol.NewErrorEvent("internal", "engine", "turn failed", true)
	}
}

func toAssistantReply(speaker memory.Participant, reply assistant.Reply) protocol.AssistantReply {
	out := protocol.AssistantReply{
		Type:        protocol.TypeAssistantReply,
		TurnID:      uuid.NewString(),
		Participant: string(speaker),
		Reply:       reply.Text,
		Emotion:     reply.Emotion,
		Fallback:    reply.Fallback,
		Transcript:  reply.Transcript,
	}
	if reply.Audio != nil && len(reply.Audio.Data) > 0 {
		out.AudioBase64 = base64.StdEncoding.EncodeToString(reply.Audio.Data)
		out.AudioFormat = reply.Audio.Format
	}
	return out
}
