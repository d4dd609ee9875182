package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const DefaultSampleRate = 16000

// HasWAVHeader reports whether b starts with a RIFF/WAVE container, so raw
// PCM uploads can be told apart from already-wrapped files.
func HasWAVHeader(b []byte) bool {
	return len(b) >= 12 &&
		bytes.Equal(b[0:4], []byte("RIFF")) &&
		bytes.Equal(b[8:12], []byte("WAVE"))
}

// WrapPCM16 wraps raw PCM16LE mono samples in a WAV container. Input that
// already carries a WAV header passes through unchanged.
func WrapPCM16(pcm []byte, sampleRate int) ([]byte, error) {
	if HasWAVHeader(pcm) {
		return pcm, nil
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm16 payload has odd length %d", len(pcm))
	}
	var buf bytes.Buffer
	if err := writePCM16(&buf, pcm, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAVFile writes audio bytes to path as a WAV file, wrapping raw PCM16
// input on the way.
func WriteWAVFile(path string, data []byte, sampleRate int) error {
	wav, err := WrapPCM16(data, sampleRate)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(wav)
	return err
}

func writePCM16(out io.Writer, pcm []byte, sampleRate int) error {
	const (
		numChannels   = 1
		bitsPerSample = 16
		audioFormat   = 1 // PCM
	)
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	dataSize := uint32(len(pcm))
	byteRate := uint32(sampleRate * numChannels * bitsPerSample / 8)
	blockAlign := uint16(numChannels * bitsPerSample / 8)

	w := bufio.NewWriter(out)

	if _, err := w.WriteString("RIFF"); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(36)+dataSize); err != nil {
		return err
	}
	if _, err := w.WriteString("WAVE"); err != nil {
		return err
	}

	if _, err := w.WriteString("fmt "); err != nil {
		return err
	}
	for _, field := range []any{
		uint32(16),
		uint16(audioFormat),
		uint16(numChannels),
		uint32(sampleRate),
		byteRate,
		blockAlign,
		uint16(bitsPerSample),
	} {
		if err := binary.Write(w, binary.LittleEndian, field); err != nil {
			return err
		}
	}

	if _, err := w.WriteString("data"); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, dataSize); err != nil {
		return err
	}
	if _, err := w.Write(pcm); err != nil {
		return err
	}
	return w.Flush()
}
