package call

import (
	"context"
	"encoding/binary"

	"github.com/bwmarrin/discordgo"

	"github.com/talking-ben/voicebot/internal/logging"
	"github.com/talking-ben/voicebot/internal/voice"
)

const defaultQueueSize = 256

// StartRecording starts delivering decoded PCM to sink. The transport's
// packet channel is drained by a pump that never blocks; packets go through
// a bounded queue to a single decode worker and are dropped when it is full.
func (c *Conn) StartRecording(sink voice.Sink) error {
	if !c.IsConnected() {
		return voice.E(voice.KindRecordingStart, "start recording", voice.ErrNotConnected)
	}
	// probe the codec before committing to anything
	if _, err := c.newDecoder(); err != nil {
		return voice.E(voice.KindRecordingStart, "start recording", err)
	}
	if !c.recording.CompareAndSwap(false, true) {
		return voice.E(voice.KindRecordingStart, "start recording", errAlreadyRecording)
	}

	size := c.queueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	queue := make(chan *discordgo.Packet, size)

	c.mu.Lock()
	c.stopRecv = cancel
	c.mu.Unlock()

	c.recvWG.Add(2)
	go func() {
		defer c.recvWG.Done()
		c.pump(ctx, queue)
	}()
	go func() {
		defer c.recvWG.Done()
		c.decodeLoop(ctx, queue, sink)
	}()
	logging.Infow("recording started", append(logging.GuildFields(c.guildID, ""), logging.ChannelFields(c.ChannelID(), "")...)...)
	return nil
}

// StopRecording stops the receive goroutines and waits for them. Stopping
// a call that is not recording is not an error.
func (c *Conn) StopRecording() error {
	c.mu.Lock()
	cancel := c.stopRecv
	c.stopRecv = nil
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	c.recvWG.Wait()
	c.recording.Store(false)
	logging.Infow("recording stopped", logging.GuildFields(c.guildID, "")...)
	return nil
}

// pump forwards packets from the transport to queue. discordgo never
// closes OpusRecv on disconnect, so ctx is the exit signal.
func (c *Conn) pump(ctx context.Context, queue chan<- *discordgo.Packet) {
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-c.recv:
			if !ok {
				return
			}
			if pkt == nil || len(pkt.Opus) == 0 {
				continue
			}
			metricPackets.Inc()
			select {
			case queue <- pkt:
			default:
				metricPacketsDropped.WithLabelValues("queue_full").Inc()
			}
		}
	}
}

func (c *Conn) decodeLoop(ctx context.Context, queue <-chan *discordgo.Packet, sink voice.Sink) {
	decoders := make(map[uint32]frameDecoder)
	for {
		select {
		case <-ctx.Done():
			return
		case pkt := <-queue:
			c.handlePacket(pkt, decoders, sink)
		}
	}
}

func (c *Conn) handlePacket(pkt *discordgo.Packet, decoders map[uint32]frameDecoder, sink voice.Sink) {
	user := c.userFor(pkt.SSRC)
	if user == "" {
		metricPacketsDropped.WithLabelValues("unknown_ssrc").Inc()
		return
	}
	dec, ok := decoders[pkt.SSRC]
	if !ok {
		var err error
		if dec, err = c.newDecoder(); err != nil {
			metricPacketsDropped.WithLabelValues("decoder").Inc()
			return
		}
		decoders[pkt.SSRC] = dec
	}
	samples, err := dec.Decode(pkt.Opus)
	if err != nil || len(samples) == 0 {
		metricPacketsDropped.WithLabelValues("decode").Inc()
		return
	}
	sink.Write(pcmBytes(samples), user)
}

func pcmBytes(samples []int16) []byte {
	b := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(s))
	}
	return b
}
