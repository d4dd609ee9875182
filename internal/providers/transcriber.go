package providers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/conversavoice/conversavoice/internal/audio"
	"github.com/conversavoice/conversavoice/internal/pipeline"
)

// WhisperTranscriberConfig configures the whisper.cpp CLI backend.
type WhisperTranscriberConfig struct {
	// CLIPath is the whisper-cli executable; empty resolves it on PATH.
	CLIPath   string
	ModelPath string
	Language  string
	// SampleRate applies to raw PCM16 input; WAV input keeps its own.
	SampleRate int
}

// WhisperTranscriber shells out to whisper.cpp for speech recognition. Every
// failure surfaces as a *pipeline.TranscriptionError so a cycle aborts before
// touching memory.
type WhisperTranscriber struct {
	cliPath    string
	modelPath  string
	language   string
	sampleRate int
}

func NewWhisperTranscriber(cfg WhisperTranscriberConfig) *WhisperTranscriber {
	cliPath := strings.TrimSpace(cfg.CLIPath)
	if cliPath == "" {
		cliPath = "whisper-cli"
	}
	language := strings.TrimSpace(cfg.Language)
	if language == "" {
		language = "en"
	}
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	return &WhisperTranscriber{
		cliPath:    cliPath,
		modelPath:  strings.TrimSpace(cfg.ModelPath),
		language:   language,
		sampleRate: sampleRate,
	}
}

func (t *WhisperTranscriber) Transcribe(ctx context.Context, input []byte) (string, error) {
	if len(input) == 0 {
		return "", &pipeline.TranscriptionError{Reason: "empty audio input"}
	}

	tmpDir, err := os.MkdirTemp("", "conversavoice-whisper-*")
	if err != nil {
		return "", &pipeline.TranscriptionError{Reason: "temp dir", Err: err}
	}
	defer os.RemoveAll(tmpDir)

	wavPath := filepath.Join(tmpDir, "audio.wav")
	if err := audio.WriteWAVFile(wavPath, input, t.sampleRate); err != nil {
		return "", &pipeline.TranscriptionError{Reason: "unusable audio payload", Err: err}
	}
	outPrefix := filepath.Join(tmpDir, "out")

	// whisper.cpp CLI flag set varies slightly across builds; keep this
	// conservative.
	args := []string{
		"-m", t.modelPath,
		"-f", wavPath,
		"-l", t.language,
		"-otxt",
		"-of", outPrefix,
		"-nt",
	}

	cmd := exec.CommandContext(ctx, t.cliPath, args...)
	cmd.Stdout = io.Discard
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &pipeline.TranscriptionError{Reason: "whisper timed out", Err: ctx.Err()}
		}
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 8<<10 {
			detail = strings.TrimSpace(detail[len(detail)-(8<<10):])
		}
		if detail == "" {
			detail = err.Error()
		}
		return "", &pipeline.TranscriptionError{Reason: "whisper failed: " + detail, Err: err}
	}

	b, err := os.ReadFile(outPrefix + ".txt")
	if err != nil {
		return "", &pipeline.TranscriptionError{Reason: "whisper output missing", Err: err}
	}
	text := strings.TrimSpace(string(b))
	if text == "" {
		return "", &pipeline.TranscriptionError{Reason: "no speech detected"}
	}
	return text, nil
}
