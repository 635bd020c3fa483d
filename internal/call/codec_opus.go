//go:build opus
// +build opus

package call

import (
	"github.com/hraban/opus"

	"github.com/talking-ben/voicebot/internal/audio"
)

// maxPacket is the largest opus payload we produce for one 20 ms frame.
const maxPacket = 4000

type opusDecoder struct {
	dec *opus.Decoder
	pcm []int16
}

func newOpusDecoder() (frameDecoder, error) {
	dec, err := opus.NewDecoder(audio.SampleRate, audio.Channels)
	if err != nil {
		return nil, err
	}
	// room for the longest opus frame (120 ms)
	return &opusDecoder{dec: dec, pcm: make([]int16, 6*audio.FrameSamples*audio.Channels)}, nil
}

func (d *opusDecoder) Decode(packet []byte) ([]int16, error) {
	n, err := d.dec.Decode(packet, d.pcm)
	if err != nil {
		return nil, err
	}
	out := make([]int16, n*audio.Channels)
	copy(out, d.pcm[:n*audio.Channels])
	return out, nil
}

type opusEncoder struct {
	enc *opus.Encoder
	buf []byte
}

func newOpusEncoder() (frameEncoder, error) {
	enc, err := opus.NewEncoder(audio.SampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		return nil, err
	}
	return &opusEncoder{enc: enc, buf: make([]byte, maxPacket)}, nil
}

func (e *opusEncoder) Encode(pcm []int16) ([]byte, error) {
	n, err := e.enc.Encode(pcm, e.buf)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), e.buf[:n]...), nil
}
