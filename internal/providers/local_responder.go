package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/conversavoice/conversavoice/internal/pipeline"
)

const (
	defaultOllamaHost  = "http://localhost:11434"
	defaultOllamaModel = "llama3.2"
)

// LocalResponderConfig configures the Ollama fallback backend.
type LocalResponderConfig struct {
	Host        string
	Model       string
	Temperature float64
	MaxTokens   int
	HTTPClient  *http.Client
}

// LocalResponder generates emotional replies from a locally running Ollama
// server, for offline operation when the hosted backend is down.
type LocalResponder struct {
	host        string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
}

func NewLocalResponder(cfg LocalResponderConfig) *LocalResponder {
	host := strings.TrimRight(strings.TrimSpace(cfg.Host), "/")
	if host == "" {
		host = defaultOllamaHost
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultOllamaModel
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.7
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &LocalResponder{
		host:        host,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      client,
	}
}

func (r *LocalResponder) Name() string { return "ollama" }

// Probe checks whether the Ollama server answers its tags listing.
func (r *LocalResponder) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.host+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama probe: HTTP %d", resp.StatusCode)
	}
	return nil
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  struct {
		Temperature float64 `json:"temperature"`
		NumPredict  int     `json:"num_predict"`
	} `json:"options"`
}

type ollamaChatResponse struct {
	Message chatMessage `json:"message"`
}

func (r *LocalResponder) Respond(ctx context.Context, text, contextHint string) (pipeline.EmotionalResponse, error) {
	messages := []chatMessage{{Role: "system", Content: systemPrompt}}
	if strings.TrimSpace(contextHint) != "" {
		messages = append(messages, chatMessage{Role: "user", Content: "Previous context: " + contextHint})
	}
	messages = append(messages, chatMessage{Role: "user", Content: text})

	payload := ollamaChatRequest{
		Model:    r.model,
		Messages: messages,
		Stream:   false,
	}
	payload.Options.Temperature = r.temperature
	payload.Options.NumPredict = r.maxTokens

	body, err := json.Marshal(payload)
	if err != nil {
		return pipeline.EmotionalResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return pipeline.EmotionalResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return pipeline.EmotionalResponse{}, fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return pipeline.EmotionalResponse{}, fmt.Errorf("ollama: HTTP %d %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return pipeline.EmotionalResponse{}, fmt.Errorf("ollama decode: %w", err)
	}
	return ParseEmotionalResponse(parsed.Message.Content), nil
}
