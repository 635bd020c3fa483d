package voice

import (
	"errors"
	"fmt"
)

// Kind classifies failures across the bot.
type Kind int

const (
	// KindTransient covers malformed frames and conversion failures. The frame
	// is dropped where it fails; these never leave the write path.
	KindTransient Kind = iota + 1
	// KindRecognizer is a decode failure inside the speech recognizer. Treated
	// as "no transcript this frame".
	KindRecognizer
	// KindRecordingStart means listening could not begin. This is the one
	// failure surfaced to users: hang up and call again.
	KindRecordingStart
	// KindTeardown is a failure while stopping or disconnecting. Logged only.
	KindTeardown
	KindNotConnected
	KindJoin
	KindSoundNotFound
	KindPlayback
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRecognizer:
		return "recognizer"
	case KindRecordingStart:
		return "recording_start"
	case KindTeardown:
		return "teardown"
	case KindNotConnected:
		return "not_connected"
	case KindJoin:
		return "join"
	case KindSoundNotFound:
		return "sound_not_found"
	case KindPlayback:
		return "playback"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by the voice stack.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind so callers can compare against the
// sentinels below with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// E builds an *Error.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an *Error with a formatted cause.
func Errorf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// IsKind reports whether any *Error in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// Sentinels for errors.Is.
var (
	ErrRecordingStart = &Error{Kind: KindRecordingStart}
	ErrNotConnected   = &Error{Kind: KindNotConnected}
	ErrSoundNotFound  = &Error{Kind: KindSoundNotFound}
)
