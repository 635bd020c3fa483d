package voice

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/talking-ben/voicebot/internal/logging"
)

const (
	stateIdle      = "idle"
	stateActivated = "activated"

	eventWake    = "wake"
	eventTimeout = "timeout"
	eventAnswer  = "answer"
	eventHangup  = "hangup"
	eventClose   = "close"
)

// Defaults for Options fields left zero.
const (
	DefaultSilence       = 350 * time.Millisecond
	DefaultIdleTimeout   = 5 * time.Second
	DefaultCheckInterval = 350 * time.Millisecond
	DefaultHangupOdds    = 500
	DefaultRecognizerHz  = 16000
)

// speechQueue bounds the frames waiting for the recognizer.
const speechQueue = 32

// Dice draws a uniform integer in [0, n).
type Dice interface {
	IntN(n int) int
}

// Options configures a Session. Call, Selector, Settings and Recognizer are
// required.
type Options struct {
	ContextID  string
	Call       Call
	Selector   Selector
	Settings   SettingsProvider
	Recognizer RecognizerFactory
	WakeWords  WakeWords

	// Input is the PCM format handed to Write. Defaults to DiscordFormat.
	Input        Format
	RecognizerHz int

	Silence       time.Duration
	IdleTimeout   time.Duration
	CheckInterval time.Duration
	// HangupOdds is n in a 1-in-n chance of hanging up instead of answering.
	// Zero or negative disables the draw.
	HangupOdds int

	Now  func() time.Time
	Dice Dice

	// SpeakerName resolves a speaker id for logs. Optional.
	SpeakerName func(speaker string) string
}

// Session is the listening state of one call: wake detection, tracking of
// the active speaker and the monitor that decides when to answer.
type Session struct {
	contextID string
	call      Call
	selector  Selector
	settings  SettingsProvider
	words     WakeWords
	input     Format
	rate      int
	silence   time.Duration
	idle      time.Duration
	interval  time.Duration
	odds      int
	now       func() time.Time
	dice      Dice
	names     func(string) string

	rec    *recognizerSlot
	floors *NoiseFloor

	// speech feeds the recognizer goroutine; quit stops it and listened is
	// closed once it has returned.
	speech   chan speechFrame
	quit     chan struct{}
	listened chan struct{}
	// generation advances on every reset; queued frames from an earlier
	// episode are not recognized.
	generation atomic.Uint64

	mu             sync.Mutex
	machine        *fsm.FSM
	activeSpeaker  string
	lastVoice      time.Time
	speechRunStart time.Time
	speechTotal    time.Duration
	episode        uuid.UUID

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

type speechFrame struct {
	pcm     []byte
	speaker string
	at      time.Time
	gen     uint64
	ack     chan struct{}
}

func NewSession(opts Options) *Session {
	s := &Session{
		contextID: opts.ContextID,
		call:      opts.Call,
		selector:  opts.Selector,
		settings:  opts.Settings,
		words:     opts.WakeWords,
		input:     opts.Input,
		rate:      opts.RecognizerHz,
		silence:   opts.Silence,
		idle:      opts.IdleTimeout,
		interval:  opts.CheckInterval,
		odds:      opts.HangupOdds,
		now:       opts.Now,
		dice:      opts.Dice,
		names:     opts.SpeakerName,
		floors:    NewNoiseFloor(),
		speech:    make(chan speechFrame, speechQueue),
		quit:      make(chan struct{}),
		listened:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	if s.input == (Format{}) {
		s.input = DiscordFormat
	}
	if s.rate <= 0 {
		s.rate = DefaultRecognizerHz
	}
	if s.silence <= 0 {
		s.silence = DefaultSilence
	}
	if s.idle <= 0 {
		s.idle = DefaultIdleTimeout
	}
	if s.interval <= 0 {
		s.interval = DefaultCheckInterval
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.dice == nil {
		seed := uint64(time.Now().UnixNano())
		s.dice = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	if len(s.words) == 0 {
		s.words = NewWakeWords("ben", "pen", "men", "bin", "baan")
	}

	s.machine = fsm.NewFSM(
		stateIdle,
		fsm.Events{
			{Name: eventWake, Src: []string{stateIdle}, Dst: stateActivated},
			{Name: eventTimeout, Src: []string{stateActivated}, Dst: stateIdle},
			{Name: eventAnswer, Src: []string{stateActivated}, Dst: stateIdle},
			{Name: eventHangup, Src: []string{stateActivated}, Dst: stateIdle},
			{Name: eventClose, Src: []string{stateActivated}, Dst: stateIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				metricTransitions.WithLabelValues(e.Event).Inc()
				logging.Debugw("session transition",
					append(logging.SessionFields(s.contextID, ""),
						"event", e.Event,
						"from", e.Src,
						"to", e.Dst,
					)...,
				)
			},
		},
	)
	s.rec = newRecognizerSlot(opts.Recognizer, s.now)
	go s.listen()
	return s
}

// ContextID is the guild or DM scope the session answers for.
func (s *Session) ContextID() string { return s.contextID }

// Write is the frame sink. It tracks the active speaker inline and hands
// the frame to the recognizer goroutine without waiting; when that goroutine
// is behind, the frame skips recognition. Conversion failures drop the frame.
func (s *Session) Write(pcm []byte, speaker string) {
	select {
	case <-s.quit:
		return
	default:
	}
	mono, err := ToRecognizerPCM(pcm, s.input, s.rate)
	if err != nil {
		metricFramesDropped.WithLabelValues("convert").Inc()
		return
	}
	metricFramesWritten.Inc()

	now := s.now()
	// Tracking first: a frame that wakes the session is never tracked.
	s.track(speaker, RMS(pcm), now)
	select {
	case s.speech <- speechFrame{pcm: mono, speaker: speaker, at: now, gen: s.generation.Load()}:
	default:
		metricFramesDropped.WithLabelValues("recognizer_busy").Inc()
	}
}

// listen owns all recognizer I/O for the session.
func (s *Session) listen() {
	defer close(s.listened)
	for {
		select {
		case <-s.quit:
			return
		case f := <-s.speech:
			if f.ack != nil {
				close(f.ack)
				continue
			}
			s.recognize(f)
		}
	}
}

func (s *Session) recognize(f speechFrame) {
	if f.gen != s.generation.Load() {
		metricFramesDropped.WithLabelValues("stale").Inc()
		return
	}
	enabled := s.settings.Settings(s.contextID).VoiceEnabled
	var word, episode string
	s.rec.feed(f.pcm, func(text string) bool {
		if !enabled {
			return false
		}
		w, ok := s.words.Match(text)
		if !ok {
			return false
		}
		ep, woke := s.activate(f.speaker, f.at)
		if woke {
			word, episode = w, ep
		}
		return woke
	})
	if episode == "" {
		return
	}
	name := ""
	if s.names != nil {
		name = s.names(f.speaker)
	}
	fields := append(logging.SessionFields(s.contextID, episode), logging.UserFields(f.speaker, name)...)
	logging.Infow("wake word detected", append(fields, "word", word)...)
}

// flush returns once every frame queued before it has been through the
// recognizer, or the recognizer goroutine has stopped.
func (s *Session) flush() {
	ack := make(chan struct{})
	select {
	case s.speech <- speechFrame{ack: ack}:
	case <-s.listened:
		return
	}
	select {
	case <-ack:
	case <-s.listened:
	}
}

// activate binds speaker and returns the new episode id. Called with the
// recognizer slot held.
func (s *Session) activate(speaker string, now time.Time) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.machine.Event(context.Background(), eventWake); err != nil {
		return "", false
	}
	s.activeSpeaker = speaker
	s.lastVoice = now
	s.speechRunStart = time.Time{}
	s.speechTotal = 0
	s.episode = uuid.New()
	metricActivations.Inc()
	return s.episode.String(), true
}

func (s *Session) track(speaker string, rms float64, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.machine.Is(stateActivated) || speaker != s.activeSpeaker {
		return
	}
	if !s.floors.Classify(speaker, rms) {
		s.speechRunStart = time.Time{}
		return
	}
	s.lastVoice = now
	if s.speechRunStart.IsZero() {
		s.speechRunStart = now
		return
	}
	s.speechTotal += now.Sub(s.speechRunStart)
	s.speechRunStart = now
}

// reset returns to idle through event and forgets everything learned in the
// episode, including the recognizer.
func (s *Session) reset(event string) {
	s.rec.resetWith(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		_ = s.machine.Event(context.Background(), event)
		s.activeSpeaker = ""
		s.lastVoice = time.Time{}
		s.speechRunStart = time.Time{}
		s.speechTotal = 0
		s.episode = uuid.Nil
		s.floors.Reset()
		s.generation.Add(1)
	})
}

// Activated reports whether a speaker is bound.
func (s *Session) Activated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Is(stateActivated)
}

// Start launches the silence monitor. Later calls are no-ops, as is a call
// after Close.
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, s.cancel = context.WithCancel(ctx)
		go s.monitor(ctx)
	})
}

// Done is closed when the monitor has exited, either because the call went
// away or because the session was closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close stops the monitor and the recognizer goroutine, waits for both, then
// releases the recognizer. It must not be called from the monitor goroutine.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.startOnce.Do(func() { close(s.done) })
		if s.cancel != nil {
			s.cancel()
		}
		<-s.done
		close(s.quit)
		<-s.listened

		s.mu.Lock()
		_ = s.machine.Event(context.Background(), eventClose)
		s.activeSpeaker = ""
		s.floors.Reset()
		s.mu.Unlock()

		if cerr := s.rec.close(); cerr != nil {
			err = E(KindTeardown, "close recognizer", cerr)
		}
	})
	return err
}
