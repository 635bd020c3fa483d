package voice

import (
	"encoding/binary"
	"math"
)

// RMS returns the root-mean-square amplitude of 16-bit little-endian PCM.
// Interleaved channels are treated as one sample stream. Empty or odd-length
// input yields 0.
func RMS(pcm []byte) float64 {
	if len(pcm) < 2 || len(pcm)%2 != 0 {
		return 0
	}
	n := len(pcm) / 2
	var sumSq float64
	for i := 0; i < len(pcm); i += 2 {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i:])))
		sumSq += s * s
	}
	return math.Sqrt(sumSq / float64(n))
}
