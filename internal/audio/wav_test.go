package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestWrapPCM16(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	wav, err := WrapPCM16(pcm, 16000)
	if err != nil {
		t.Fatalf("WrapPCM16() error = %v", err)
	}
	if !HasWAVHeader(wav) {
		t.Fatal("output missing RIFF/WAVE header")
	}
	if !bytes.HasSuffix(wav, pcm) {
		t.Fatal("pcm payload not carried through")
	}

	var sampleRate uint32
	if err := binary.Read(bytes.NewReader(wav[24:28]), binary.LittleEndian, &sampleRate); err != nil {
		t.Fatalf("read sample rate: %v", err)
	}
	if sampleRate != 16000 {
		t.Fatalf("sample rate = %d, want 16000", sampleRate)
	}
}

func TestWrapPCM16Passthrough(t *testing.T) {
	pcm := []byte{0x01, 0x02}
	wav, err := WrapPCM16(pcm, 0)
	if err != nil {
		t.Fatalf("WrapPCM16() error = %v", err)
	}
	again, err := WrapPCM16(wav, 0)
	if err != nil {
		t.Fatalf("WrapPCM16() on wrapped input error = %v", err)
	}
	if !bytes.Equal(wav, again) {
		t.Fatal("wrapped input was rewrapped")
	}
}

func TestWrapPCM16OddLength(t *testing.T) {
	if _, err := WrapPCM16([]byte{0x01}, 16000); err == nil {
		t.Fatal("WrapPCM16() accepted odd-length pcm")
	}
}
