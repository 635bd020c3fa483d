package voice

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func pcm16(samples ...int16) []byte {
	b := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(s))
	}
	return b
}

func samples16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out
}

func TestRMSZeroCases(t *testing.T) {
	cases := map[string][]byte{
		"nil":      nil,
		"empty":    {},
		"one byte": {0x7f},
		"odd":      {0x00, 0x10, 0x20},
		"silence":  make([]byte, 3840),
	}
	for name, in := range cases {
		if got := RMS(in); got != 0 {
			t.Fatalf("%s: RMS=%v want 0", name, got)
		}
	}
}

func TestRMSConstantAndMixedSignal(t *testing.T) {
	if got := RMS(pcm16(1000, -1000, 1000, -1000)); got != 1000 {
		t.Fatalf("square wave RMS=%v want 1000", got)
	}
	got := RMS(pcm16(3, 4))
	want := math.Sqrt((9.0 + 16.0) / 2)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("RMS=%v want %v", got, want)
	}
}

func TestNoiseFloorSeedsFromFirstFrame(t *testing.T) {
	n := NewNoiseFloor()
	if n.Floor("7") != 0 {
		t.Fatalf("expected zero floor before first frame")
	}
	if speech := n.Classify("7", 100); speech {
		t.Fatalf("first frame must not be speech against its own seed")
	}
	// seeded at 100, then one EMA step towards 100
	if got := n.Floor("7"); math.Abs(got-100) > 1e-9 {
		t.Fatalf("floor=%v want 100", got)
	}
}

func TestNoiseFloorFrozenDuringSpeech(t *testing.T) {
	n := NewNoiseFloor()
	n.Classify("7", 100)
	n.Classify("7", 120)
	before := n.Floor("7")

	for _, rms := range []float64{500, 900, 400, 1200} {
		if !n.Classify("7", rms) {
			t.Fatalf("rms %v should be speech against floor %v", rms, before)
		}
	}
	if after := n.Floor("7"); after != before {
		t.Fatalf("floor moved during speech: before=%v after=%v", before, after)
	}
}

func TestNoiseFloorEMAOnQuietFrames(t *testing.T) {
	n := NewNoiseFloor()
	n.Classify("a", 100)
	if n.Classify("a", 150) { // 150 < 180, quiet
		t.Fatalf("quiet frame classified as speech")
	}
	want := 100*floorDecay + 150*floorGain
	if got := n.Floor("a"); math.Abs(got-want) > 1e-9 {
		t.Fatalf("floor=%v want %v", got, want)
	}
}

func TestNoiseFloorZeroFloorIsUninitialized(t *testing.T) {
	n := NewNoiseFloor()
	// silent first frames keep the floor at zero; the next real frame seeds it
	n.Classify("a", 0)
	if n.Classify("a", 50) {
		t.Fatalf("frame after zero floor must seed, not compare against 0")
	}
	if n.Floor("a") == 0 {
		t.Fatalf("expected floor to be seeded")
	}
}

func TestNoiseFloorSpeakersIndependent(t *testing.T) {
	n := NewNoiseFloor()
	n.Classify("a", 100)
	n.Classify("b", 1000)
	if n.Floor("a") == n.Floor("b") {
		t.Fatalf("speakers share a floor")
	}
	n.Reset()
	if n.Len() != 0 || n.Floor("a") != 0 {
		t.Fatalf("reset left state behind")
	}
}

func TestToRecognizerPCMDownmixAndDecimate(t *testing.T) {
	// 6 stereo frames at 48k -> 2 mono samples at 16k
	in := pcm16(
		100, 300, 100, 300, 100, 300,
		-50, -150, -50, -150, -50, -150,
	)
	out, err := ToRecognizerPCM(in, DiscordFormat, 16000)
	if err != nil {
		t.Fatalf("ToRecognizerPCM: %v", err)
	}
	got := samples16(out)
	if len(got) != 2 || got[0] != 200 || got[1] != -100 {
		t.Fatalf("unexpected output %v", got)
	}
}

func TestToRecognizerPCMDiscordFrameSize(t *testing.T) {
	// 20 ms of 48k stereo is 960 frames -> 320 mono samples at 16k
	out, err := ToRecognizerPCM(make([]byte, 3840), DiscordFormat, 16000)
	if err != nil {
		t.Fatalf("ToRecognizerPCM: %v", err)
	}
	if len(out) != 640 {
		t.Fatalf("len=%d want 640", len(out))
	}
}

func TestToRecognizerPCMUpsample(t *testing.T) {
	out, err := ToRecognizerPCM(pcm16(0, 100), Format{SampleRate: 8000, Channels: 1}, 16000)
	if err != nil {
		t.Fatalf("ToRecognizerPCM: %v", err)
	}
	got := samples16(out)
	if len(got) != 4 || got[0] != 0 || got[1] != 50 || got[2] != 100 {
		t.Fatalf("unexpected interpolation %v", got)
	}
}

func TestToRecognizerPCMRejectsMalformed(t *testing.T) {
	for name, in := range map[string][]byte{
		"empty":      nil,
		"odd bytes":  {1, 2, 3},
		"half frame": {1, 2},
		"too short":  pcm16(1, 1),
	} {
		_, err := ToRecognizerPCM(in, DiscordFormat, 16000)
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if !IsKind(err, KindTransient) {
			t.Fatalf("%s: want transient error, got %v", name, err)
		}
	}
}

func TestWakeWordsMatch(t *testing.T) {
	w := NewWakeWords(" Ben ", "", "PEN")
	if len(w) != 2 {
		t.Fatalf("normalized words=%v", w)
	}
	if tok, ok := w.Match("hey BENJAMIN"); !ok || tok != "ben" {
		t.Fatalf("Match substring: tok=%q ok=%v", tok, ok)
	}
	if tok, ok := w.Match("a pen please"); !ok || tok != "pen" {
		t.Fatalf("Match second: tok=%q ok=%v", tok, ok)
	}
	if _, ok := w.Match("hello there"); ok {
		t.Fatalf("unexpected match")
	}
	if _, ok := w.Match(""); ok {
		t.Fatalf("empty transcript matched")
	}
}

func TestErrorKinds(t *testing.T) {
	err := E(KindRecordingStart, "start recording", errors.New("no ssrc"))
	if !IsKind(err, KindRecordingStart) {
		t.Fatalf("IsKind failed")
	}
	wrapped := Errorf(KindJoin, "join", "wrapping: %w", err)
	if !IsKind(wrapped, KindRecordingStart) || !IsKind(wrapped, KindJoin) {
		t.Fatalf("IsKind should walk the chain")
	}
	if IsKind(wrapped, KindPlayback) {
		t.Fatalf("unexpected kind match")
	}
	if !errors.Is(err, ErrRecordingStart) || errors.Is(err, ErrNotConnected) {
		t.Fatalf("sentinel matching broken")
	}
}
