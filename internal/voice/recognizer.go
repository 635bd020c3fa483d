package voice

import (
	"strings"
	"sync"
	"time"
)

// Recognizer is a streaming speech recognizer fed mono 16-bit PCM.
type Recognizer interface {
	// Accept feeds one chunk. final is true when an utterance was completed by
	// this chunk and Result holds its text.
	Accept(pcm []byte) (final bool, err error)
	Result() string
	Partial() string
	Close() error
}

// RecognizerFactory builds a fresh recognizer with no carried-over context.
type RecognizerFactory func() (Recognizer, error)

// Redial backoff after a failed dial or a failed Accept.
const (
	minRedial = 250 * time.Millisecond
	maxRedial = 10 * time.Second
)

// recognizerSlot owns the session's recognizer. The instance is only ever
// read or replaced with mu held; replacement builds a new one rather than
// resetting the old. An instance that fails once is discarded, and new
// instances are built no sooner than the current backoff allows.
type recognizerSlot struct {
	mu      sync.Mutex
	rec     Recognizer
	factory RecognizerFactory
	now     func() time.Time
	backoff time.Duration
	retryAt time.Time
	closed  bool
}

func newRecognizerSlot(factory RecognizerFactory, now func() time.Time) *recognizerSlot {
	s := &recognizerSlot{factory: factory, now: now}
	s.mu.Lock()
	s.dialLocked()
	s.mu.Unlock()
	return s
}

// feed runs one chunk through the recognizer and hands the lower-cased text
// to decide. When decide returns true the recognizer is replaced before the
// lock is released. Recognizer failures count as an empty transcript.
func (s *recognizerSlot) feed(pcm []byte, decide func(text string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.rec == nil && !s.dialLocked() {
		return
	}

	final, err := s.rec.Accept(pcm)
	if err != nil {
		// a stream that failed once (e.g. a deadline on the socket) is not
		// usable again
		metricRecognizerErrors.Inc()
		s.discardLocked()
		s.failLocked()
		return
	}
	s.backoff = 0
	var text string
	if final {
		text = s.rec.Result()
	} else {
		text = s.rec.Partial()
	}
	if decide(strings.ToLower(text)) {
		s.replaceLocked()
	}
}

// resetWith runs fn with the slot held, then replaces the recognizer.
func (s *recognizerSlot) resetWith(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
	if !s.closed {
		s.replaceLocked()
	}
}

func (s *recognizerSlot) replaceLocked() {
	s.discardLocked()
	if s.dialLocked() {
		metricRecognizerSwaps.Inc()
	}
}

// dialLocked builds a recognizer unless a previous failure is still backing
// off.
func (s *recognizerSlot) dialLocked() bool {
	if s.now().Before(s.retryAt) {
		return false
	}
	rec, err := s.factory()
	if err != nil {
		metricRecognizerErrors.Inc()
		s.failLocked()
		return false
	}
	s.rec = rec
	return true
}

func (s *recognizerSlot) failLocked() {
	switch {
	case s.backoff == 0:
		s.backoff = minRedial
	case s.backoff < maxRedial:
		s.backoff = min(2*s.backoff, maxRedial)
	}
	s.retryAt = s.now().Add(s.backoff)
}

func (s *recognizerSlot) discardLocked() {
	if s.rec != nil {
		_ = s.rec.Close()
		s.rec = nil
	}
}

// close releases the recognizer for good; later feeds are dropped.
func (s *recognizerSlot) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.rec == nil {
		return nil
	}
	err := s.rec.Close()
	s.rec = nil
	return err
}
