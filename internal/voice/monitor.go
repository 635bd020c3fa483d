package voice

import (
	"context"
	"time"

	"github.com/talking-ben/voicebot/internal/logging"
)

func (s *Session) monitor(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.tick(ctx) {
				logging.Infow("voice monitor stopped", logging.SessionFields(s.contextID, "")...)
				return
			}
		}
	}
}

// tick runs one decision. It returns false once the call has gone away or
// recording was stopped, which ends the monitor.
//
// Order of checks when activated: idle timeout, then the hang-up draw, then
// the answer. A playing call is never interrupted.
func (s *Session) tick(ctx context.Context) bool {
	if !s.call.IsConnected() || !s.call.IsRecording() {
		return false
	}
	if !s.settings.Settings(s.contextID).VoiceEnabled || s.call.IsPlaying() {
		return true
	}

	s.mu.Lock()
	activated := s.machine.Is(stateActivated)
	lastVoice := s.lastVoice
	speaker := s.activeSpeaker
	episode := s.episode.String()
	s.mu.Unlock()
	if !activated {
		return true
	}

	quiet := s.now().Sub(lastVoice)
	if quiet > s.idle {
		logging.Debugw("idle timeout", logging.SessionFields(s.contextID, episode)...)
		s.reset(eventTimeout)
		return true
	}
	if quiet < s.silence {
		return true
	}

	if s.odds > 0 && s.dice.IntN(s.odds) == 0 {
		logging.Infow("hanging up on caller", logging.SessionFields(s.contextID, episode)...)
		s.reset(eventHangup)
		if err := s.call.Hangup(ctx); err != nil {
			logging.Warnw("hangup failed", append(logging.SessionFields(s.contextID, episode), "error", err)...)
		}
		return true
	}

	if asset, ok := s.selector.Pick(s.contextID); ok {
		logging.Infow("answering", append(logging.SessionFields(s.contextID, episode),
			"asset", asset,
			"noise_floor", s.floors.Floor(speaker),
		)...)
		if err := s.call.Play(ctx, asset); err != nil {
			logging.Warnw("answer playback failed", append(logging.SessionFields(s.contextID, episode), "error", err)...)
		}
	}
	s.reset(eventAnswer)
	return true
}
