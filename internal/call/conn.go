// Package call owns the Discord side of a voice call: joining, receiving
// and decoding audio, playing sounds and hanging up.
package call

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"github.com/talking-ben/voicebot/internal/logging"
	"github.com/talking-ben/voicebot/internal/voice"
)

// frameDecoder turns one opus packet into interleaved 48 kHz stereo PCM.
// Opus decoders are stateful, so there is one per SSRC.
type frameDecoder interface {
	Decode(packet []byte) ([]int16, error)
}

// frameEncoder turns one 20 ms frame of 48 kHz stereo PCM into opus.
type frameEncoder interface {
	Encode(pcm []int16) ([]byte, error)
}

// link is the part of *discordgo.VoiceConnection a Conn drives.
type link interface {
	Speaking(b bool) error
	ChangeChannel(channelID string, mute, deaf bool) error
	Disconnect() error
}

// HangUpSounds supplies the clip played before leaving.
type HangUpSounds interface {
	HangUpSound() (string, bool)
}

// Conn is one joined voice call. It implements voice.Call.
type Conn struct {
	guildID string

	link  link
	recv  <-chan *discordgo.Packet
	send  chan<- []byte
	ready func() bool

	sounds     HangUpSounds
	queueSize  int
	newDecoder func() (frameDecoder, error)
	newEncoder func() (frameEncoder, error)

	mu        sync.Mutex
	channelID string
	ssrcUsers map[uint32]string
	stopRecv  context.CancelFunc
	recvWG    sync.WaitGroup

	recording atomic.Bool
	playing   atomic.Bool
	closed    atomic.Bool
	playMu    sync.Mutex
	hangOnce  sync.Once
}

func newConn(vc *discordgo.VoiceConnection, sounds HangUpSounds, queueSize int) *Conn {
	c := &Conn{
		guildID:    vc.GuildID,
		channelID:  vc.ChannelID,
		link:       vc,
		recv:       vc.OpusRecv,
		send:       vc.OpusSend,
		sounds:     sounds,
		queueSize:  queueSize,
		newDecoder: newOpusDecoder,
		newEncoder: newOpusEncoder,
		ssrcUsers:  make(map[uint32]string),
	}
	c.ready = func() bool {
		vc.RLock()
		defer vc.RUnlock()
		return vc.Ready
	}
	return c
}

func (c *Conn) GuildID() string { return c.guildID }

func (c *Conn) ChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelID
}

func (c *Conn) IsConnected() bool { return !c.closed.Load() && c.ready() }
func (c *Conn) IsRecording() bool { return c.recording.Load() }
func (c *Conn) IsPlaying() bool   { return c.playing.Load() }

// HandleSpeakingUpdate records which user sends on which SSRC. Register it
// with VoiceConnection.AddHandler.
func (c *Conn) HandleSpeakingUpdate(_ *discordgo.VoiceConnection, su *discordgo.VoiceSpeakingUpdate) {
	if su == nil || su.UserID == "" {
		return
	}
	c.mu.Lock()
	c.ssrcUsers[uint32(su.SSRC)] = su.UserID
	c.mu.Unlock()
	fields := append(logging.GuildFields(c.guildID, ""), logging.UserFields(su.UserID, "")...)
	logging.Debugw("mapped ssrc to user", append(fields, "ssrc", su.SSRC)...)
}

func (c *Conn) userFor(ssrc uint32) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ssrcUsers[ssrc]
}

// Move switches the call to another channel in the same guild.
func (c *Conn) Move(channelID string) error {
	if !c.IsConnected() {
		return voice.ErrNotConnected
	}
	if err := c.link.ChangeChannel(channelID, false, false); err != nil {
		return voice.E(voice.KindJoin, "move", err)
	}
	c.mu.Lock()
	c.channelID = channelID
	c.mu.Unlock()
	return nil
}

// Hangup plays a hang-up sound, stops recording and disconnects. Every
// step is best effort and later calls do nothing.
func (c *Conn) Hangup(ctx context.Context) error {
	c.hangOnce.Do(func() {
		if c.sounds != nil && c.IsConnected() {
			if clip, ok := c.sounds.HangUpSound(); ok {
				if err := c.Play(ctx, clip); err != nil {
					logging.Warnw("hang-up sound failed", append(logging.GuildFields(c.guildID, ""), "error", err)...)
				}
			}
		}
		c.teardown()
	})
	return nil
}

// teardown stops recording and disconnects without any sound.
func (c *Conn) teardown() {
	if err := c.StopRecording(); err != nil {
		logging.Warnw("stop recording failed", append(logging.GuildFields(c.guildID, ""), "error", err)...)
	}
	if c.closed.Swap(true) {
		return
	}
	if err := c.link.Disconnect(); err != nil {
		logging.Warnw("voice disconnect failed", append(logging.GuildFields(c.guildID, ""), "error", voice.E(voice.KindTeardown, "disconnect", err))...)
	}
}

var errAlreadyRecording = errors.New("already recording")
