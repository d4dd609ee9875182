package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/conversavoice/conversavoice/internal/prosody"
)

func TestHostedResponderRespond(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		resp := chatResponse{}
		resp.Choices = append(resp.Choices, struct {
			Message chatMessage `json:"message"`
		}{Message: chatMessage{Role: "assistant", Content: `{"reply": "Hi!", "style": "cheerful"}`}})
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	r := NewHostedResponder(HostedResponderConfig{BaseURL: srv.URL, APIKey: "test-key", Model: "test-model"})
	got, err := r.Respond(context.Background(), "hello", "user: earlier turn")
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if got.Reply != "Hi!" || got.Style != prosody.StyleCheerful {
		t.Fatalf("Respond() = %+v", got)
	}

	if gotReq.Model != "test-model" {
		t.Fatalf("request model = %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 3 {
		t.Fatalf("len(messages) = %d, want system+context+user", len(gotReq.Messages))
	}
	if gotReq.Messages[0].Role != "system" {
		t.Fatalf("messages[0].Role = %q", gotReq.Messages[0].Role)
	}
	if !strings.HasPrefix(gotReq.Messages[1].Content, "Previous context: ") {
		t.Fatalf("messages[1] = %q, want context prefix", gotReq.Messages[1].Content)
	}
	if gotReq.Messages[2].Content != "hello" {
		t.Fatalf("messages[2] = %q", gotReq.Messages[2].Content)
	}
}

func TestHostedResponderHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	r := NewHostedResponder(HostedResponderConfig{BaseURL: srv.URL, APIKey: "k"})
	if _, err := r.Respond(context.Background(), "hello", ""); err == nil {
		t.Fatal("Respond() error = nil on HTTP 429")
	}
}

func TestHostedResponderProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("probe path = %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewHostedResponder(HostedResponderConfig{BaseURL: srv.URL, APIKey: "k"})
	if err := r.Probe(context.Background()); err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
}

func TestLocalResponderRespond(t *testing.T) {
	var gotReq ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.WriteHeader(http.StatusOK)
		case "/api/chat":
			if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
				t.Errorf("decode request: %v", err)
			}
			json.NewEncoder(w).Encode(ollamaChatResponse{
				Message: chatMessage{Role: "assistant", Content: `{"reply": "Local hi", "style": "patient"}`},
			})
		default:
			t.Errorf("path = %q", r.URL.Path)
		}
	}))
	defer srv.Close()

	r := NewLocalResponder(LocalResponderConfig{Host: srv.URL, Model: "llama3.2"})
	if err := r.Probe(context.Background()); err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	got, err := r.Respond(context.Background(), "teach me", "")
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if got.Reply != "Local hi" || got.Style != prosody.StylePatient {
		t.Fatalf("Respond() = %+v", got)
	}
	if gotReq.Stream {
		t.Fatal("request asked for streaming")
	}
	if gotReq.Options.Temperature <= 0 {
		t.Fatalf("options.temperature = %v", gotReq.Options.Temperature)
	}
}

func TestMockResponderStyles(t *testing.T) {
	m := NewMockResponder()

	tests := []struct {
		text string
		hint string
		want prosody.Style
	}{
		{"what time is it", "", prosody.StyleNeutral},
		{"thank you so much", "", prosody.StyleCheerful},
		{"this is terrible", "", prosody.StyleDeEscalate},
		{"can you explain that", "", prosody.StylePatient},
		{"where is it", "The user seems to be repeating themselves - respond with extra patience.", prosody.StyleEmpathetic},
	}
	for _, tt := range tests {
		got, err := m.Respond(context.Background(), tt.text, tt.hint)
		if err != nil {
			t.Fatalf("Respond(%q) error = %v", tt.text, err)
		}
		if got.Style != tt.want {
			t.Fatalf("Respond(%q) style = %q, want %q", tt.text, got.Style, tt.want)
		}
		if !strings.Contains(got.Reply, strings.TrimSpace(tt.text)) {
			t.Fatalf("Respond(%q) reply = %q", tt.text, got.Reply)
		}
	}
}
