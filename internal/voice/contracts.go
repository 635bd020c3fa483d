package voice

import "context"

// Weights are the relative chances of each reply category. Yapping applies
// to every yapping asset individually.
type Weights struct {
	Yes     int `json:"yes"`
	No      int `json:"no"`
	Yapping int `json:"yapping"`
}

// DefaultWeights mirrors the out-of-the-box answer mix.
var DefaultWeights = Weights{Yes: 10, No: 10, Yapping: 2}

// Settings is the per-context configuration seen by a session.
type Settings struct {
	VoiceEnabled bool
	Weights      Weights
}

// SettingsProvider returns the settings for a context id (a guild id, or a
// DM-equivalent scope). Implementations must be safe for concurrent use and
// cheap enough to call from the frame path.
type SettingsProvider interface {
	Settings(contextID string) Settings
}

// Selector picks a reply asset for a context. ok is false when nothing can
// be played.
type Selector interface {
	Pick(contextID string) (asset string, ok bool)
}

// Call is the live voice connection a session listens on.
type Call interface {
	IsConnected() bool
	IsRecording() bool
	IsPlaying() bool
	// Play blocks until asset has finished playing or ctx is done. While it
	// runs IsPlaying reports true.
	Play(ctx context.Context, asset string) error
	// Hangup leaves the call. It must tolerate a recorder or monitor that has
	// already stopped.
	Hangup(ctx context.Context) error
}

// Sink receives decoded PCM frames tagged with the speaking user.
type Sink interface {
	Write(pcm []byte, speaker string)
}
