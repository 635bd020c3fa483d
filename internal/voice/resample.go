package voice

import (
	"encoding/binary"
	"errors"
)

// Format describes interleaved 16-bit little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// DiscordFormat is what the Discord voice transport decodes to.
var DiscordFormat = Format{SampleRate: 48000, Channels: 2}

var errMalformedFrame = errors.New("frame is not a whole number of samples")

// ToRecognizerPCM downmixes pcm to mono and resamples it to outRate.
func ToRecognizerPCM(pcm []byte, in Format, outRate int) ([]byte, error) {
	if in.Channels <= 0 || in.SampleRate <= 0 || outRate <= 0 {
		return nil, E(KindTransient, "convert frame", errors.New("invalid format"))
	}
	frameBytes := 2 * in.Channels
	if len(pcm) == 0 || len(pcm)%frameBytes != 0 {
		return nil, E(KindTransient, "convert frame", errMalformedFrame)
	}
	mono := downmix(pcm, in.Channels)
	out := resample(mono, in.SampleRate, outRate)
	if len(out) == 0 {
		return nil, E(KindTransient, "convert frame", errors.New("frame too short to resample"))
	}
	buf := make([]byte, 2*len(out))
	for i, s := range out {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(s))
	}
	return buf, nil
}

// downmix averages the channels of each interleaved frame.
func downmix(pcm []byte, channels int) []int16 {
	frames := len(pcm) / (2 * channels)
	out := make([]int16, frames)
	for f := 0; f < frames; f++ {
		var sum int
		base := f * channels * 2
		for c := 0; c < channels; c++ {
			sum += int(int16(binary.LittleEndian.Uint16(pcm[base+2*c:])))
		}
		out[f] = int16(sum / channels)
	}
	return out
}

// resample converts mono samples between rates. Integer down-ratios use a
// box filter over each group; anything else is linearly interpolated.
func resample(in []int16, from, to int) []int16 {
	if from == to {
		return in
	}
	if from > to && from%to == 0 {
		factor := from / to
		out := make([]int16, len(in)/factor)
		for i := range out {
			var sum int
			for _, s := range in[i*factor : (i+1)*factor] {
				sum += int(s)
			}
			out[i] = int16(sum / factor)
		}
		return out
	}
	n := int(int64(len(in)) * int64(to) / int64(from))
	out := make([]int16, n)
	step := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j+1 >= len(in) {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = int16(float64(in[j])*(1-frac) + float64(in[j+1])*frac)
	}
	return out
}
