package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/conversavoice/conversavoice/internal/pipeline"
	"github.com/conversavoice/conversavoice/internal/prosody"
)

const (
	defaultStreamWSBase  = "wss://api.elevenlabs.io"
	defaultStreamModelID = "eleven_multilingual_v2"
	defaultStreamFormat  = "mp3_44100_128"
)

// StreamingSynthesizerConfig configures the ElevenLabs stream-input backend.
type StreamingSynthesizerConfig struct {
	APIKey  string
	VoiceID string
	// WSBaseURL overrides the websocket endpoint, mainly for tests.
	WSBaseURL    string
	ModelID      string
	OutputFormat string
	HTTPClient   *http.Client
	Dialer       *websocket.Dialer
}

// StreamingSynthesizer renders speech over the ElevenLabs text-to-speech
// stream-input websocket. Reply text is cut into clause-sized chunks so the
// engine can start generating before the full reply is sent; the audio frames
// are collected into one payload. Style and rate map onto the engine's voice
// settings; pitch and emphasis have no equivalent there and are no-ops.
type StreamingSynthesizer struct {
	apiKey  string
	voiceID string
	wsBase  string
	modelID string
	format  string
	client  *http.Client
	dialer  *websocket.Dialer
}

func NewStreamingSynthesizer(cfg StreamingSynthesizerConfig) *StreamingSynthesizer {
	wsBase := strings.TrimRight(strings.TrimSpace(cfg.WSBaseURL), "/")
	if wsBase == "" {
		wsBase = defaultStreamWSBase
	}
	modelID := strings.TrimSpace(cfg.ModelID)
	if modelID == "" {
		modelID = defaultStreamModelID
	}
	format := strings.TrimSpace(cfg.OutputFormat)
	if format == "" {
		format = defaultStreamFormat
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &StreamingSynthesizer{
		apiKey:  cfg.APIKey,
		voiceID: strings.TrimSpace(cfg.VoiceID),
		wsBase:  wsBase,
		modelID: modelID,
		format:  format,
		client:  client,
		dialer:  dialer,
	}
}

func (s *StreamingSynthesizer) Name() string { return "elevenlabs-stream" }

func (s *StreamingSynthesizer) httpBase() string {
	base := strings.Replace(s.wsBase, "wss://", "https://", 1)
	return strings.Replace(base, "ws://", "http://", 1)
}

// Probe lists voices over the REST surface to validate the key.
func (s *StreamingSynthesizer) Probe(ctx context.Context) error {
	if s.apiKey == "" || s.voiceID == "" {
		return fmt.Errorf("stream tts api key and voice id are required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.httpBase()+"/v1/voices", nil)
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("stream tts unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream tts probe: HTTP %d", resp.StatusCode)
	}
	return nil
}

func (s *StreamingSynthesizer) Synthesize(ctx context.Context, d prosody.Directives) (pipeline.Audio, error) {
	text := strings.TrimSpace(d.Text)
	if text == "" {
		return pipeline.Audio{}, fmt.Errorf("empty text directive")
	}

	u, err := url.Parse(s.wsBase + "/v1/text-to-speech/" + url.PathEscape(s.voiceID) + "/stream-input")
	if err != nil {
		return pipeline.Audio{}, err
	}
	q := u.Query()
	q.Set("model_id", s.modelID)
	q.Set("output_format", s.format)
	q.Set("auto_mode", "true")
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("xi-api-key", s.apiKey)

	conn, _, err := s.dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return pipeline.Audio{}, fmt.Errorf("dial tts websocket: %w", err)
	}
	defer conn.Close()

	// The first frame carries the voice settings for the whole stream.
	if err := conn.WriteJSON(map[string]any{
		"text": " ",
		"voice_settings": map[string]any{
			"stability":        styleStability(d.Style),
			"similarity_boost": 0.85,
			"speed":            streamSpeed(d.RateScale()),
		},
	}); err != nil {
		return pipeline.Audio{}, fmt.Errorf("prime tts stream: %w", err)
	}

	seg := prosody.NewSegmenter()
	chunks := seg.Push(text)
	chunks = append(chunks, seg.Flush()...)
	for _, chunk := range chunks {
		if err := conn.WriteJSON(map[string]any{
			"text":                   chunk + " ",
			"try_trigger_generation": true,
		}); err != nil {
			return pipeline.Audio{}, fmt.Errorf("send tts chunk: %w", err)
		}
	}
	// Empty text closes the input side of the stream.
	if err := conn.WriteJSON(map[string]any{"text": ""}); err != nil {
		return pipeline.Audio{}, fmt.Errorf("close tts input: %w", err)
	}

	return s.collect(ctx, conn)
}

type streamFrame struct {
	audio []byte
	final bool
	err   error
}

func (s *StreamingSynthesizer) collect(ctx context.Context, conn *websocket.Conn) (pipeline.Audio, error) {
	frames := make(chan streamFrame, 64)
	go readStream(conn, frames)

	var buf bytes.Buffer
	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return pipeline.Audio{}, ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return finishStream(buf)
			}
			if f.err != nil {
				if websocket.IsCloseError(f.err, websocket.CloseNormalClosure) {
					return finishStream(buf)
				}
				return pipeline.Audio{}, f.err
			}
			buf.Write(f.audio)
			if f.final {
				return finishStream(buf)
			}
		}
	}
}

func readStream(conn *websocket.Conn, frames chan<- streamFrame) {
	defer close(frames)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			frames <- streamFrame{err: err}
			return
		}
		var raw struct {
			Audio   string `json:"audio"`
			IsFinal bool   `json:"isFinal"`
			Final   bool   `json:"is_final"`
			Error   string `json:"error"`
			MsgType string `json:"message_type"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}
		if raw.Error != "" {
			frames <- streamFrame{err: fmt.Errorf("tts stream %s: %s", raw.MsgType, raw.Error)}
			return
		}
		if raw.Audio != "" {
			chunk, decErr := base64.StdEncoding.DecodeString(raw.Audio)
			if decErr != nil {
				frames <- streamFrame{err: fmt.Errorf("decode tts audio: %w", decErr)}
				return
			}
			frames <- streamFrame{audio: chunk}
		}
		if raw.IsFinal || raw.Final {
			frames <- streamFrame{final: true}
			return
		}
	}
}

func finishStream(buf bytes.Buffer) (pipeline.Audio, error) {
	if buf.Len() == 0 {
		return pipeline.Audio{}, fmt.Errorf("tts stream returned no audio")
	}
	return pipeline.Audio{Data: buf.Bytes(), Format: "mp3"}, nil
}

// styleStability biases the engine toward expressiveness for upbeat styles
// and toward steadiness for calming ones.
func styleStability(style prosody.Style) float64 {
	switch style {
	case prosody.StyleCheerful:
		return 0.3
	case prosody.StylePatient:
		return 0.5
	case prosody.StyleEmpathetic, prosody.StyleDeEscalate:
		return 0.6
	default:
		return 0.42
	}
}

// streamSpeed narrows the prosody rate scale to the engine's accepted range.
func streamSpeed(scale float64) float64 {
	if scale < 0.7 {
		return 0.7
	}
	if scale > 1.2 {
		return 1.2
	}
	return scale
}
