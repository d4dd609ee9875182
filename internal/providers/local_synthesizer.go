package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/conversavoice/conversavoice/internal/pipeline"
	"github.com/conversavoice/conversavoice/internal/prosody"
)

// LocalSynthesizerConfig configures the piper subprocess backend.
type LocalSynthesizerConfig struct {
	// PiperPath is the piper executable; empty resolves "piper" on PATH.
	PiperPath string
	ModelPath string
}

// LocalSynthesizer renders speech with a local piper binary. Piper has no
// style, pitch or emphasis support, so only the rate directive survives as a
// length-scale multiplier.
type LocalSynthesizer struct {
	piperPath string
	modelPath string
}

func NewLocalSynthesizer(cfg LocalSynthesizerConfig) *LocalSynthesizer {
	piperPath := strings.TrimSpace(cfg.PiperPath)
	if piperPath == "" {
		piperPath = "piper"
	}
	return &LocalSynthesizer{
		piperPath: piperPath,
		modelPath: strings.TrimSpace(cfg.ModelPath),
	}
}

func (s *LocalSynthesizer) Name() string { return "piper" }

// Probe checks the binary and the voice model are present.
func (s *LocalSynthesizer) Probe(ctx context.Context) error {
	if _, err := exec.LookPath(s.piperPath); err != nil {
		return fmt.Errorf("piper not found: %w", err)
	}
	if s.modelPath != "" {
		if _, err := os.Stat(s.modelPath); err != nil {
			return fmt.Errorf("piper model not found: %s", s.modelPath)
		}
	}
	return ctx.Err()
}

func (s *LocalSynthesizer) Synthesize(ctx context.Context, d prosody.Directives) (pipeline.Audio, error) {
	text := strings.TrimSpace(d.Text)
	if text == "" {
		return pipeline.Audio{}, fmt.Errorf("empty text directive")
	}

	tmpDir, err := os.MkdirTemp("", "conversavoice-piper-*")
	if err != nil {
		return pipeline.Audio{}, err
	}
	defer os.RemoveAll(tmpDir)
	outPath := filepath.Join(tmpDir, "speech.wav")

	args := []string{"--output_file", outPath}
	if s.modelPath != "" {
		args = append(args, "--model", s.modelPath)
	}
	// Rate maps to piper's length scale: faster speech = shorter phonemes.
	if scale := d.RateScale(); scale > 0 && scale != 1.0 {
		args = append(args, "--length_scale", strconv.FormatFloat(1.0/scale, 'f', 3, 64))
	}

	cmd := exec.CommandContext(ctx, s.piperPath, args...)
	cmd.Stdin = strings.NewReader(text)
	cmd.Stdout = io.Discard
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return pipeline.Audio{}, fmt.Errorf("piper timed out")
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return pipeline.Audio{}, fmt.Errorf("piper failed: %s", detail)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return pipeline.Audio{}, fmt.Errorf("piper output: %w", err)
	}
	if len(data) == 0 {
		return pipeline.Audio{}, fmt.Errorf("piper produced no audio")
	}
	return pipeline.Audio{Data: data, Format: "wav"}, nil
}
