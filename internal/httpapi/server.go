package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/conversavoice/conversavoice/internal/config"
	"github.com/conversavoice/conversavoice/internal/observability"
	"github.com/conversavoice/conversavoice/internal/pipeline"
	"github.com/conversavoice/conversavoice/internal/prosody"
)

// ttsSessionID serves synthesize requests that do not name a session.
const ttsSessionID = "tts-default"

const maxAudioBody = 16 << 20

type Server struct {
	cfg      config.Config
	registry *pipeline.Registry
	router   *pipeline.Router
	bus      *pipeline.Bus
	window   *observability.StageWindow
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, registry *pipeline.Registry, router *pipeline.Router, bus *pipeline.Bus, window *observability.StageWindow, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		registry: registry,
		router:   router,
		bus:      bus,
		window:   window,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browser clients may stream session
				// events unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
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
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/chat", s.handleChat)
	r.Post("/v1/audio", s.handleAudio)
	r.Post("/v1/synthesize", s.handleSynthesize)
	r.Get("/v1/sessions", s.handleListSessions)
	r.Delete("/v1/sessions/{id}", s.handleDeleteSession)
	r.Get("/v1/health", s.handleProviderHealth)
	r.Post("/v1/health/reset", s.handleProviderReset)
	r.Get("/v1/stats", s.handleStats)
	r.Get("/v1/events", s.handleEvents)

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.registry.Len(),
	})
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	Speak     bool   `json:"speak"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	pipeline.Result
	AudioBase64 []byte `json:"audio,omitempty"`
	AudioFormat string `json:"audio_format,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "empty_text", "text is required")
		return
	}

	orch, err := s.registry.GetOrCreate(r.Context(), strings.TrimSpace(req.SessionID))
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}

	result, err := orch.ProcessText(r.Context(), req.Text, req.Speak)
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newChatResponse(orch.ID(), result))
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	speak := queryBool(r, "speak")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxAudioBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	defer r.Body.Close()
	if len(body) == 0 {
		respondError(w, http.StatusUnprocessableEntity, "empty_audio", "request body must carry audio bytes")
		return
	}

	orch, err := s.registry.GetOrCreate(r.Context(), sessionID)
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}

	result, err := orch.ProcessAudio(r.Context(), body, speak)
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newChatResponse(orch.ID(), result))
}

type synthesizeRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	Style     string `json:"style"`
	// Pitch and Rate override the style baseline for that dimension only.
	Pitch string `json:"pitch"`
	Rate  string `json:"rate"`
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "empty_text", "text is required")
		return
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = ttsSessionID
	}
	orch, err := s.registry.GetOrCreate(r.Context(), sessionID)
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}

	audio, err := orch.Synthesize(r.Context(), req.Text, prosody.ParseStyle(req.Style), req.Pitch, req.Rate)
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}

	w.Header().Set("Content-Type", audioContentType(audio.Format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio.Data)
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"sessions": s.registry.IDs(),
		"count":    s.registry.Len(),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}
	if err := s.registry.Evict(r.Context(), id); err != nil {
		s.respondPipelineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": "deleted"})
}

func (s *Server) handleProviderHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.router.Status())
}

func (s *Server) handleProviderReset(w http.ResponseWriter, r *http.Request) {
	kind := strings.TrimSpace(r.URL.Query().Get("kind"))
	switch kind {
	case "":
		s.router.Reset()
	case string(pipeline.KindResponder), string(pipeline.KindSynthesizer):
		s.router.ResetKind(pipeline.Kind(kind))
	default:
		respondError(w, http.StatusBadRequest, "invalid_kind", "kind must be responder or synthesizer")
		return
	}
	respondJSON(w, http.StatusOK, s.router.Status())
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.window.Snapshot())
}

// handleEvents streams pipeline lifecycle events over a websocket. An
// optional session_id query filters to one session.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	filter := strings.TrimSpace(r.URL.Query().Get("session_id"))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, cancel := s.bus.Subscribe()
	defer cancel()

	// Drain client frames so pings and close messages are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for evt := range events {
		if filter != "" && evt.SessionID != filter {
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(evt); err != nil {
			return
		}
	}
}

func (s *Server) respondPipelineError(w http.ResponseWriter, err error) {
	var te *pipeline.TranscriptionError
	var pe *pipeline.PipelineError

	switch {
	case errors.Is(err, pipeline.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, pipeline.ErrSessionCapacity):
		respondError(w, http.StatusTooManyRequests, "session_capacity", err.Error())
	case errors.As(err, &te):
		respondError(w, http.StatusUnprocessableEntity, "transcription_failed", err.Error())
	case errors.As(err, &pe) && pe.Stage == "queued":
		respondError(w, http.StatusServiceUnavailable, "session_busy", err.Error())
	case errors.As(err, &pe):
		respondError(w, http.StatusBadGateway, "providers_exhausted", err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func newChatResponse(sessionID string, result pipeline.Result) chatResponse {
	resp := chatResponse{SessionID: sessionID, Result: result}
	if result.Audio != nil {
		resp.AudioBase64 = result.Audio.Data
		resp.AudioFormat = result.Audio.Format
	}
	return resp
}

func audioContentType(format string) string {
	switch format {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

func queryBool(r *http.Request, key string) bool {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get(key))) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty request body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
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
