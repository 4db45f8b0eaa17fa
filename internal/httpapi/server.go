package httpapi

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/carobot/internal/assistant"
	"github.com/ent0n29/carobot/internal/memory"
	"github.com/ent0n29/carobot/internal/observability"
)

const (
	maxTextBody  = 64 << 10
	maxVoiceBody = 25 << 20
)

// Engine is the turn engine behind the transport.
type Engine interface {
	HandleText(ctx context.Context, speaker memory.Participant, text string) (assistant.Reply, error)
	HandleVoice(ctx context.Context, speaker memory.Participant, audio []byte, format string) (assistant.Reply, error)
	Facts(ctx context.Context, p memory.Participant) ([]memory.Fact, error)
	Mood(ctx context.Context) *memory.MoodState
	History(ctx context.Context, n int) ([]memory.Turn, error)
	ResetConversation(ctx context.Context) error
	Names() memory.Names
	VoiceEnabled() bool
}

// Status describes the resolved collaborators, reported by /readyz.
type Status struct {
	Store   string `json:"store"`
	LLM     string `json:"llm"`
	Emotion string `json:"emotion"`
	Voice   string `json:"voice"`
}

type Server struct {
	engine   Engine
	status   Status
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func New(engine Engine, status Status, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{engine: engine, status: status, logger: logger, upgrader: newUpgrader()}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/turns", s.handleTextTurn)
		r.Post("/turns/voice", s.handleVoiceTurn)
		r.Get("/participants/{participant}/facts", s.handleListFacts)
		r.Get("/mood", s.handleMood)
		r.Get("/conversation", s.handleConversation)
		r.Delete("/conversation", s.handleResetConversation)
		r.Get("/conversation/ws", s.handleConversationWS)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ready",
		"collaborators": s.status,
		"voice_enabled": s.engine.VoiceEnabled(),
	})
}

type turnRequest struct {
	Participant string `json:"participant"`
	Text        string `json:"text"`
}

type turnResponse struct {
	Reply       string `json:"reply"`
	Emotion     string `json:"emotion,omitempty"`
	Fallback    bool   `json:"fallback"`
	Transcript  string `json:"transcript,omitempty"`
	AudioBase64 string `json:"audio_base64,omitempty"`
	AudioFormat string `json:"audio_format,omitempty"`
}

func (s *Server) handleTextTurn(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxTextBody)
	var req turnRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	speaker, err := s.engine.Names().Parse(req.Participant)
	if err != nil {
		respondError(w, http.StatusBadRequest, "unknown_participant", err.Error())
		return
	}

	reply, err := s.engine.HandleText(r.Context(), speaker, req.Text)
	if err != nil {
		s.respondTurnError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toTurnResponse(reply))
}

func (s *Server) handleVoiceTurn(w http.ResponseWriter, r *http.Request) {
	if !s.engine.VoiceEnabled() {
		respondError(w, http.StatusServiceUnavailable, "voice_unavailable", assistant.ErrVoiceUnavailable.Error())
		return
	}
	speaker, err := s.engine.Names().Parse(r.URL.Query().Get("participant"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unknown_participant", err.Error())
		return
	}
	format := strings.TrimSpace(r.URL.Query().Get("format"))

	audio, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxVoiceBody))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "invalid_audio", err.Error())
		return
	}
	if len(audio) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_audio", "empty audio body")
		return
	}

	reply, err := s.engine.HandleVoice(r.Context(), speaker, audio, format)
	if err != nil {
		s.respondTurnError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toTurnResponse(reply))
}

func (s *Server) respondTurnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, memory.ErrUnknownParticipant):
		respondError(w, http.StatusBadRequest, "unknown_participant", err.Error())
	case errors.Is(err, assistant.ErrEmptyUtterance):
		respondError(w, http.StatusBadRequest, "empty_utterance", err.Error())
	case errors.Is(err, assistant.ErrVoiceUnavailable):
		respondError(w, http.StatusServiceUnavailable, "voice_unavailable", err.Error())
	default:
		s.logger.Error("turn failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal", "turn failed")
	}
}

func toTurnResponse(reply assistant.Reply) turnResponse {
	out := turnResponse{
		Reply:      reply.Text,
		Emotion:    reply.Emotion,
		Fallback:   reply.Fallback,
		Transcript: reply.Transcript,
	}
	if reply.Audio != nil && len(reply.Audio.Data) > 0 {
		out.AudioBase64 = base64.StdEncoding.EncodeToString(reply.Audio.Data)
		out.AudioFormat = reply.Audio.Format
	}
	return out
}

func (s *Server) handleListFacts(w http.ResponseWriter, r *http.Request) {
	names := s.engine.Names()
	p, err := names.Parse(chi.URLParam(r, "participant"))
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown_participant", err.Error())
		return
	}
	facts, err := s.engine.Facts(r.Context(), p)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if facts == nil {
		facts = []memory.Fact{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"participant": p,
		"name":        names.Of(p),
		"facts":       facts,
	})
}

func (s *Server) handleMood(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"mood": s.engine.Mood(r.Context())})
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	turns, err := s.engine.History(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if turns == nil {
		turns = []memory.Turn{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

func (s *Server) handleResetConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ResetConversation(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the request logger.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if r.URL.Path == "/metrics" || r.URL.Path == "/healthz" {
			return
		}
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(started)))
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
