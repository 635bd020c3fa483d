package audio

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/talking-ben/voicebot/internal/voice"
)

func TestFramesPadsLastFrame(t *testing.T) {
	samples := make([]int16, FrameSamples*Channels+10)
	for i := range samples {
		samples[i] = 1
	}
	frames := Frames(samples)
	if len(frames) != 2 {
		t.Fatalf("frames=%d want 2", len(frames))
	}
	last := frames[1]
	if len(last) != FrameSamples*Channels {
		t.Fatalf("last frame len=%d", len(last))
	}
	if last[9] != 1 || last[10] != 0 || last[len(last)-1] != 0 {
		t.Fatalf("padding wrong: %v", last[:12])
	}
	if Frames(nil) != nil {
		t.Fatalf("empty input should yield no frames")
	}
}

func TestResampleStereo(t *testing.T) {
	// 24 kHz -> 48 kHz doubles the frame count and keeps channels apart
	in := []int16{0, 1000, 100, 1000}
	out := resampleStereo(in, 24000, 48000)
	if len(out) != 8 {
		t.Fatalf("len=%d want 8", len(out))
	}
	want := []int16{0, 1000, 50, 1000, 100, 1000, 100, 1000}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out=%v want %v", out, want)
		}
	}
	if got := resampleStereo(in, SampleRate, SampleRate); len(got) != len(in) {
		t.Fatalf("same-rate resample changed length")
	}
}

func TestOpenMP3Missing(t *testing.T) {
	_, err := OpenMP3(filepath.Join(t.TempDir(), "nope.mp3"))
	if !voice.IsKind(err, voice.KindSoundNotFound) {
		t.Fatalf("want sound-not-found, got %v", err)
	}
}

func TestDecodeMP3Garbage(t *testing.T) {
	_, err := DecodeMP3(bytes.NewReader([]byte("definitely not an mp3")))
	if !voice.IsKind(err, voice.KindPlayback) {
		t.Fatalf("want playback error, got %v", err)
	}
}
