package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/conversavoice/conversavoice/internal/pipeline"
	"github.com/conversavoice/conversavoice/internal/prosody"
)

const (
	defaultSpeechOutputFormat = "audio-16khz-32kbitrate-mono-mp3"
	speechUserAgent           = "conversavoice"
)

// HostedSynthesizerConfig configures the Azure speech REST backend.
type HostedSynthesizerConfig struct {
	APIKey string
	Region string
	// OutputFormat is an Azure output format label; empty selects 16kHz mp3.
	OutputFormat string
	HTTPClient   *http.Client
}

// HostedSynthesizer renders SSML through the Azure text-to-speech REST
// endpoint. It is the only engine that honors style, pitch and emphasis
// directives; the local fallback reduces them to a rate multiplier.
type HostedSynthesizer struct {
	apiKey string
	region string
	format string
	client *http.Client
}

func NewHostedSynthesizer(cfg HostedSynthesizerConfig) *HostedSynthesizer {
	format := strings.TrimSpace(cfg.OutputFormat)
	if format == "" {
		format = defaultSpeechOutputFormat
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HostedSynthesizer{
		apiKey: cfg.APIKey,
		region: strings.TrimSpace(cfg.Region),
		format: format,
		client: client,
	}
}

func (s *HostedSynthesizer) Name() string { return "azure-speech" }

func (s *HostedSynthesizer) endpoint() string {
	return fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", s.region)
}

// Probe lists available voices to validate the key and region.
func (s *HostedSynthesizer) Probe(ctx context.Context) error {
	if s.apiKey == "" || s.region == "" {
		return fmt.Errorf("speech api key and region are required")
	}
	url := fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/voices/list", s.region)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("speech service unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("speech probe: HTTP %d", resp.StatusCode)
	}
	return nil
}

func (s *HostedSynthesizer) Synthesize(ctx context.Context, d prosody.Directives) (pipeline.Audio, error) {
	ssml := d.SSML
	if strings.TrimSpace(ssml) == "" {
		return pipeline.Audio{}, fmt.Errorf("empty ssml directive")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(), strings.NewReader(ssml))
	if err != nil {
		return pipeline.Audio{}, err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", s.apiKey)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", s.format)
	req.Header.Set("User-Agent", speechUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return pipeline.Audio{}, fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return pipeline.Audio{}, fmt.Errorf("speech synthesis: HTTP %d %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return pipeline.Audio{}, fmt.Errorf("speech read: %w", err)
	}
	if len(data) == 0 {
		return pipeline.Audio{}, fmt.Errorf("speech synthesis returned no audio")
	}
	return pipeline.Audio{Data: data, Format: "mp3"}, nil
}
