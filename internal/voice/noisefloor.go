package voice

import "sync"

const (
	floorDecay      = 0.95
	floorGain       = 0.05
	speechThreshold = 1.8
)

type floorState struct {
	floor float64
}

// NoiseFloor tracks an adaptive ambient baseline per speaker and classifies
// frames against it. The threshold is multiplicative so quiet and noisy
// rooms work with the same settings.
type NoiseFloor struct {
	mu       sync.Mutex
	speakers map[string]*floorState
}

func NewNoiseFloor() *NoiseFloor {
	return &NoiseFloor{speakers: make(map[string]*floorState)}
}

// Classify reports whether a frame with the given rms is speech for speaker.
// A zero floor is uninitialized and is seeded from rms. Non-speech frames
// pull the floor towards rms; speech frames leave it frozen.
func (n *NoiseFloor) Classify(speaker string, rms float64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	st, ok := n.speakers[speaker]
	if !ok {
		st = &floorState{}
		n.speakers[speaker] = st
	}
	if st.floor == 0 {
		st.floor = rms
	}

	speech := rms > st.floor*speechThreshold
	if !speech {
		st.floor = st.floor*floorDecay + rms*floorGain
	}
	return speech
}

// Floor returns the current baseline for speaker, or 0 when none exists.
func (n *NoiseFloor) Floor(speaker string) float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	if st, ok := n.speakers[speaker]; ok {
		return st.floor
	}
	return 0
}

// Len is the number of tracked speakers.
func (n *NoiseFloor) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.speakers)
}

// Reset forgets every speaker.
func (n *NoiseFloor) Reset() {
	n.mu.Lock()
	n.speakers = make(map[string]*floorState)
	n.mu.Unlock()
}
