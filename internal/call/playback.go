package call

import (
	"context"
	"time"

	"github.com/talking-ben/voicebot/internal/audio"
	"github.com/talking-ben/voicebot/internal/logging"
	"github.com/talking-ben/voicebot/internal/voice"
)

const sendTimeout = 5 * time.Second

// Play decodes the MP3 at path and streams it into the call, returning when
// the last frame has been handed to the transport or ctx is done. Only one
// sound plays at a time; IsPlaying is true for the duration.
func (c *Conn) Play(ctx context.Context, path string) error {
	if !c.IsConnected() {
		return voice.ErrNotConnected
	}
	samples, err := audio.OpenMP3(path)
	if err != nil {
		metricPlayback.WithLabelValues("error").Inc()
		return err
	}
	enc, err := c.newEncoder()
	if err != nil {
		metricPlayback.WithLabelValues("error").Inc()
		return voice.E(voice.KindPlayback, "play", err)
	}

	c.playMu.Lock()
	defer c.playMu.Unlock()
	c.playing.Store(true)
	defer c.playing.Store(false)

	if err := c.link.Speaking(true); err != nil {
		logging.Debugw("speaking(true) failed", append(logging.GuildFields(c.guildID, ""), "error", err)...)
	}
	defer func() {
		if err := c.link.Speaking(false); err != nil {
			logging.Debugw("speaking(false) failed", append(logging.GuildFields(c.guildID, ""), "error", err)...)
		}
	}()

	if err := c.sendFrames(ctx, enc, audio.Frames(samples)); err != nil {
		metricPlayback.WithLabelValues("aborted").Inc()
		return err
	}
	metricPlayback.WithLabelValues("ok").Inc()
	return nil
}

// PlaySequence plays paths in order, stopping at the first failure.
func (c *Conn) PlaySequence(ctx context.Context, paths []string) error {
	for _, p := range paths {
		if err := c.Play(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conn) sendFrames(ctx context.Context, enc frameEncoder, frames [][]int16) error {
	timer := time.NewTimer(sendTimeout)
	defer timer.Stop()
	for _, f := range frames {
		packet, err := enc.Encode(f)
		if err != nil {
			return voice.E(voice.KindPlayback, "encode frame", err)
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(sendTimeout)
		select {
		case c.send <- packet:
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return voice.Errorf(voice.KindPlayback, "send frame", "transport did not accept audio for %s", sendTimeout)
		}
	}
	return nil
}
