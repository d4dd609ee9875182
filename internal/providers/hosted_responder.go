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
	defaultHostedBaseURL = "https://api.groq.com/openai/v1"
	defaultHostedModel   = "llama-3.3-70b-versatile"
)

// HostedResponderConfig configures the OpenAI-compatible chat backend.
type HostedResponderConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	HTTPClient  *http.Client
}

// HostedResponder generates emotional replies through an OpenAI-compatible
// chat completions endpoint.
type HostedResponder struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
}

func NewHostedResponder(cfg HostedResponderConfig) *HostedResponder {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultHostedBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultHostedModel
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
	return &HostedResponder{
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      client,
	}
}

func (r *HostedResponder) Name() string { return "hosted-llm" }

// Probe verifies the API key against the models listing.
func (r *HostedResponder) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("hosted llm unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hosted llm probe: HTTP %d", resp.StatusCode)
	}
	return nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (r *HostedResponder) Respond(ctx context.Context, text, contextHint string) (pipeline.EmotionalResponse, error) {
	messages := []chatMessage{{Role: "system", Content: systemPrompt}}
	if strings.TrimSpace(contextHint) != "" {
		messages = append(messages, chatMessage{Role: "user", Content: "Previous context: " + contextHint})
	}
	messages = append(messages, chatMessage{Role: "user", Content: text})

	body, err := json.Marshal(chatRequest{
		Model:       r.model,
		Messages:    messages,
		Temperature: r.temperature,
		MaxTokens:   r.maxTokens,
	})
	if err != nil {
		return pipeline.EmotionalResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return pipeline.EmotionalResponse{}, err
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return pipeline.EmotionalResponse{}, fmt.Errorf("hosted llm request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return pipeline.EmotionalResponse{}, fmt.Errorf("hosted llm: HTTP %d %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return pipeline.EmotionalResponse{}, fmt.Errorf("hosted llm decode: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return pipeline.EmotionalResponse{}, fmt.Errorf("hosted llm: empty choices")
	}
	return ParseEmotionalResponse(parsed.Choices[0].Message.Content), nil
}
