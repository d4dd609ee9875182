package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/conversavoice/conversavoice/internal/config"
	"github.com/conversavoice/conversavoice/internal/memory"
	"github.com/conversavoice/conversavoice/internal/observability"
	"github.com/conversavoice/conversavoice/internal/pipeline"
	"github.com/conversavoice/conversavoice/internal/prosody"
	"github.com/conversavoice/conversavoice/internal/providers"
)

func newTestServer(t *testing.T) (*httptest.Server, *pipeline.Registry) {
	t.Helper()
	return newTestServerWithSynthesizer(t, providers.NewMockSynthesizer())
}

func newTestServerWithSynthesizer(t *testing.T, synth pipeline.Synthesizer) (*httptest.Server, *pipeline.Registry) {
	t.Helper()

	store := memory.NewInMemoryStore()
	index := memory.NewInMemoryIndex(memory.NewHashingEmbedder(64))
	conv := memory.NewConversation(store, index, memory.Config{}, nil)

	router := pipeline.NewRouter(pipeline.RouterConfig{
		PrimaryResponder:   providers.NewMockResponder(),
		PrimarySynthesizer: synth,
	})
	bus := pipeline.NewBus(64)
	window := observability.NewStageWindow(32)

	registry := pipeline.NewRegistry(pipeline.RegistryConfig{
		Conversation: conv,
		Router:       router,
		Mapper:       prosody.NewMapper(""),
		Transcriber:  providers.NewMockTranscriber(),
		Bus:          bus,
		StageWindow:  window,
		LockWait:     time.Second,
	})

	cfg := config.Config{AllowAnyOrigin: true}
	srv := New(cfg, registry, router, bus, window, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, registry
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	res, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	return res
}

func TestChatRoundTrip(t *testing.T) {
	ts, _ := newTestServer(t)

	res := postJSON(t, ts.URL+"/v1/chat", map[string]any{"text": "hello there"})
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("chat status = %d", res.StatusCode)
	}

	var got map[string]any
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	sessionID, _ := got["session_id"].(string)
	if !strings.HasPrefix(sessionID, "session-") {
		t.Fatalf("session_id = %q", sessionID)
	}
	if reply, _ := got["assistant_response"].(string); !strings.Contains(reply, "hello there") {
		t.Fatalf("assistant_response = %q", reply)
	}

	// Reusing the returned id continues the same session.
	res2 := postJSON(t, ts.URL+"/v1/chat", map[string]any{"text": "hello there", "session_id": sessionID})
	defer res2.Body.Close()
	var got2 map[string]any
	if err := json.NewDecoder(res2.Body).Decode(&got2); err != nil {
		t.Fatalf("decode second response: %v", err)
	}
	if rep, _ := got2["is_repetition"].(bool); !rep {
		t.Fatal("is_repetition = false for identical follow-up")
	}
}

func TestChatSpeakReturnsAudio(t *testing.T) {
	ts, _ := newTestServer(t)

	res := postJSON(t, ts.URL+"/v1/chat", map[string]any{"text": "hi", "speak": true})
	defer res.Body.Close()

	var got map[string]any
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got["audio"] == nil {
		t.Fatal("audio missing with speak=true")
	}
	if format, _ := got["audio_format"].(string); format != "mock_text_bytes" {
		t.Fatalf("audio_format = %q", format)
	}
}

func TestChatRejectsEmptyText(t *testing.T) {
	ts, _ := newTestServer(t)

	res := postJSON(t, ts.URL+"/v1/chat", map[string]any{"text": "   "})
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.StatusCode)
	}
}

func TestAudioRoute(t *testing.T) {
	ts, _ := newTestServer(t)

	res, err := http.Post(ts.URL+"/v1/audio?session_id=s1", "audio/wav", bytes.NewReader([]byte{1, 2, 3, 4}))
	if err != nil {
		t.Fatalf("POST /v1/audio error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("audio status = %d", res.StatusCode)
	}

	var got map[string]any
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if input, _ := got["user_input"].(string); input != "simulated voice input" {
		t.Fatalf("user_input = %q", input)
	}
}

func TestAudioRouteRejectsEmptyBody(t *testing.T) {
	ts, _ := newTestServer(t)

	res, err := http.Post(ts.URL+"/v1/audio", "audio/wav", bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("POST /v1/audio error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", res.StatusCode)
	}
}

func TestSynthesizeSessionless(t *testing.T) {
	ts, registry := newTestServer(t)

	res := postJSON(t, ts.URL+"/v1/synthesize", map[string]any{"text": "read me", "style": "cheerful"})
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("synthesize status = %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/octet-stream" {
		t.Fatalf("content type = %q", ct)
	}

	if _, err := registry.Get(ttsSessionID); err != nil {
		t.Fatalf("tts default session missing: %v", err)
	}
}

func TestDeleteSession(t *testing.T) {
	ts, registry := newTestServer(t)

	res := postJSON(t, ts.URL+"/v1/chat", map[string]any{"text": "hi", "session_id": "gone-soon"})
	res.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/sessions/gone-soon", nil)
	delRes, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE error = %v", err)
	}
	defer delRes.Body.Close()
	if delRes.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", delRes.StatusCode)
	}
	if registry.Len() != 0 {
		t.Fatalf("Len() = %d after delete", registry.Len())
	}

	req2, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/sessions/gone-soon", nil)
	delRes2, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatalf("second DELETE error = %v", err)
	}
	defer delRes2.Body.Close()
	if delRes2.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", delRes2.StatusCode)
	}
}

func TestProviderHealthAndReset(t *testing.T) {
	ts, _ := newTestServer(t)

	res, err := http.Get(ts.URL + "/v1/health")
	if err != nil {
		t.Fatalf("GET /v1/health error = %v", err)
	}
	defer res.Body.Close()

	var status map[string][]pipeline.ProviderStatus
	if err := json.NewDecoder(res.Body).Decode(&status); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if got := status["responder"][0].Health; got != pipeline.HealthNotProbed {
		t.Fatalf("responder health = %q before first use", got)
	}

	resetRes := postJSON(t, ts.URL+"/v1/health/reset", nil)
	defer resetRes.Body.Close()
	if resetRes.StatusCode != http.StatusOK {
		t.Fatalf("reset status = %d", resetRes.StatusCode)
	}

	badRes, err := http.Post(ts.URL+"/v1/health/reset?kind=nonsense", "application/json", nil)
	if err != nil {
		t.Fatalf("reset with bad kind error = %v", err)
	}
	defer badRes.Body.Close()
	if badRes.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad kind status = %d, want 400", badRes.StatusCode)
	}
}

func TestEventsWebSocket(t *testing.T) {
	ts, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/events?session_id=ws-session"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial events ws: %v", err)
	}
	defer conn.Close()

	res := postJSON(t, ts.URL+"/v1/chat", map[string]any{"text": "hi", "session_id": "ws-session"})
	res.Body.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt pipeline.Event
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if evt.SessionID != "ws-session" {
		t.Fatalf("event session = %q", evt.SessionID)
	}
}

func TestStatsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	res := postJSON(t, ts.URL+"/v1/chat", map[string]any{"text": "hi"})
	res.Body.Close()

	statsRes, err := http.Get(ts.URL + "/v1/stats")
	if err != nil {
		t.Fatalf("GET /v1/stats error = %v", err)
	}
	defer statsRes.Body.Close()

	var snap observability.StageSnapshot
	if err := json.NewDecoder(statsRes.Body).Decode(&snap); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if len(snap.Stages) == 0 {
		t.Fatal("stats empty after a cycle")
	}
}

// captureSynthesizer records the directives it was handed.
type captureSynthesizer struct {
	last prosody.Directives
}

func (c *captureSynthesizer) Name() string                { return "capture-tts" }
func (c *captureSynthesizer) Probe(context.Context) error { return nil }

func (c *captureSynthesizer) Synthesize(_ context.Context, d prosody.Directives) (pipeline.Audio, error) {
	c.last = d
	return pipeline.Audio{Data: []byte(d.Text), Format: "mock_text_bytes"}, nil
}

func TestSynthesizeOverrides(t *testing.T) {
	synth := &captureSynthesizer{}
	ts, _ := newTestServerWithSynthesizer(t, synth)

	res := postJSON(t, ts.URL+"/v1/synthesize", map[string]any{
		"text":  "read me",
		"style": "cheerful",
		"pitch": "-3%",
		"rate":  "x-slow",
	})
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("synthesize status = %d", res.StatusCode)
	}
	if synth.last.Pitch != "-3%" {
		t.Fatalf("Pitch = %q, want override -3%%", synth.last.Pitch)
	}
	if synth.last.Rate != "x-slow" {
		t.Fatalf("Rate = %q, want override x-slow", synth.last.Rate)
	}
}
