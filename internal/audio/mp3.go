// Package audio turns MP3 assets into 20 ms frames of 48 kHz stereo PCM,
// the shape the Discord voice transport encodes from.
package audio

import (
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/hajimehoshi/go-mp3"

	"github.com/talking-ben/voicebot/internal/voice"
)

const (
	SampleRate   = 48000
	Channels     = 2
	FrameSamples = 960 // per channel, 20 ms
	FrameBytes   = FrameSamples * Channels * 2
)

// OpenMP3 decodes the file at path to interleaved 48 kHz stereo samples.
func OpenMP3(path string) ([]int16, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, voice.E(voice.KindSoundNotFound, "open "+path, err)
	}
	if err != nil {
		return nil, voice.E(voice.KindPlayback, "open "+path, err)
	}
	defer f.Close()
	return DecodeMP3(f)
}

// DecodeMP3 decodes r and resamples it to SampleRate. go-mp3 always yields
// 16-bit little-endian stereo at the stream's own rate.
func DecodeMP3(r io.Reader) ([]int16, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, voice.E(voice.KindPlayback, "decode mp3", err)
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, voice.E(voice.KindPlayback, "decode mp3", err)
	}
	raw = raw[:len(raw)-len(raw)%4]
	if len(raw) == 0 {
		return nil, voice.E(voice.KindPlayback, "decode mp3", io.ErrUnexpectedEOF)
	}
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	return resampleStereo(samples, dec.SampleRate(), SampleRate), nil
}

// resampleStereo linearly interpolates interleaved stereo samples.
func resampleStereo(in []int16, from, to int) []int16 {
	if from == to || from <= 0 || len(in) < 2 {
		return in
	}
	frames := len(in) / 2
	n := int(int64(frames) * int64(to) / int64(from))
	out := make([]int16, 2*n)
	step := float64(from) / float64(to)
	for i := 0; i < n; i++ {
		pos := float64(i) * step
		j := int(pos)
		frac := pos - float64(j)
		for c := 0; c < 2; c++ {
			a := in[2*j+c]
			b := a
			if j+1 < frames {
				b = in[2*(j+1)+c]
			}
			out[2*i+c] = int16(float64(a)*(1-frac) + float64(b)*frac)
		}
	}
	return out
}

// Frames splits interleaved stereo samples into 20 ms frames. The last
// frame is padded with silence.
func Frames(samples []int16) [][]int16 {
	per := FrameSamples * Channels
	var out [][]int16
	for off := 0; off < len(samples); off += per {
		frame := make([]int16, per)
		copy(frame, samples[off:min(off+per, len(samples))])
		out = append(out, frame)
	}
	return out
}
