package call

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/talking-ben/voicebot/internal/answers"
	"github.com/talking-ben/voicebot/internal/config"
	"github.com/talking-ben/voicebot/internal/logging"
	"github.com/talking-ben/voicebot/internal/voice"
)

// Options wires a Manager to the rest of the bot.
type Options struct {
	Voice      config.Voice
	Settings   voice.SettingsProvider
	Library    *answers.Library
	Recognizer voice.RecognizerFactory
	Resolver   NameResolver
}

type joinFunc func(ctx context.Context, guildID, channelID string) (*Conn, error)

type entry struct {
	conn *Conn
	sess *voice.Session // nil when joined but not listening
}

// Manager owns at most one call per guild and the listening session bound
// to it.
type Manager struct {
	opts   Options
	join   joinFunc
	humans func(guildID, channelID string) int
	botID  func() string
	ring   func(ctx context.Context, conn *Conn) error

	// opMu serializes join, move and leave.
	opMu  sync.Mutex
	mu    sync.Mutex
	calls map[string]*entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager builds a Manager that joins calls through s.
func NewManager(s *discordgo.Session, opts Options) *Manager {
	if opts.Resolver == nil {
		opts.Resolver = NewDiscordResolver(s)
	}
	m := newManager(opts, nil, stateHumans(s), func() string {
		if s.State != nil && s.State.User != nil {
			return s.State.User.ID
		}
		return ""
	})
	m.join = m.discordJoin(s)
	return m
}

func newManager(opts Options, join joinFunc, humans func(string, string) int, botID func() string) *Manager {
	if opts.Resolver == nil {
		opts.Resolver = NoopResolver{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		opts:   opts,
		join:   join,
		humans: humans,
		botID:  botID,
		calls:  make(map[string]*entry),
		ctx:    ctx,
		cancel: cancel,
	}
	m.ring = func(ctx context.Context, conn *Conn) error {
		return conn.PlaySequence(ctx, m.opts.Library.CallSequence())
	}
	return m
}

func (m *Manager) discordJoin(s *discordgo.Session) joinFunc {
	return func(ctx context.Context, guildID, channelID string) (*Conn, error) {
		s.RLock()
		stale := s.VoiceConnections[guildID]
		s.RUnlock()
		if stale != nil {
			stale.RLock()
			ready := stale.Ready
			stale.RUnlock()
			if !ready {
				// left over from a dropped gateway session
				logging.Infow("disconnecting stale voice connection", logging.GuildFields(guildID, "")...)
				if err := stale.Disconnect(); err != nil {
					logging.Warnw("stale voice disconnect failed", append(logging.GuildFields(guildID, ""), "error", err)...)
				}
			}
		}
		vc, err := s.ChannelVoiceJoin(guildID, channelID, false, false)
		if err != nil {
			return nil, voice.E(voice.KindJoin, "join "+channelID, err)
		}
		conn := newConn(vc, m.opts.Library, m.opts.Voice.FrameQueue)
		vc.AddHandler(conn.HandleSpeakingUpdate)
		return conn, nil
	}
}

// stateHumans counts non-bot members in a voice channel from the state
// cache. -1 means the guild is unknown.
func stateHumans(s *discordgo.Session) func(guildID, channelID string) int {
	return func(guildID, channelID string) int {
		if s.State == nil {
			return -1
		}
		g, err := s.State.Guild(guildID)
		if err != nil {
			return -1
		}
		var users []string
		bots := make(map[string]bool)
		s.State.RLock()
		for _, vs := range g.VoiceStates {
			if vs.ChannelID != channelID {
				continue
			}
			users = append(users, vs.UserID)
			if vs.Member != nil && vs.Member.User != nil {
				bots[vs.UserID] = vs.Member.User.Bot
			}
		}
		s.State.RUnlock()

		n := 0
		for _, uid := range users {
			bot, known := bots[uid]
			if !known {
				if mem, err := s.State.Member(guildID, uid); err == nil && mem.User != nil {
					bot = mem.User.Bot
				}
			}
			if !bot {
				n++
			}
		}
		return n
	}
}

func (m *Manager) get(guildID string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[guildID]
}

func (m *Manager) put(guildID string, e *entry) {
	m.mu.Lock()
	m.calls[guildID] = e
	metricCalls.Set(float64(len(m.calls)))
	m.mu.Unlock()
}

func (m *Manager) take(guildID string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.calls[guildID]
	delete(m.calls, guildID)
	metricCalls.Set(float64(len(m.calls)))
	return e
}

func (m *Manager) guildFields(guildID string) []interface{} {
	return logging.GuildFields(guildID, m.opts.Resolver.GuildName(guildID))
}

func (m *Manager) fields(guildID, channelID string) []interface{} {
	return append(m.guildFields(guildID), logging.ChannelFields(channelID, m.opts.Resolver.ChannelName(channelID))...)
}

// Join connects to channelID, plays the ring sequence and starts listening.
// Joining the channel the bot is already listening in is a no-op; joining
// another channel moves the call and rebuilds the session from scratch.
// A failure to start recording is returned as a KindRecordingStart error
// with the call left joined, so the user can hang up and call again.
func (m *Manager) Join(ctx context.Context, guildID, channelID string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if e := m.get(guildID); e != nil {
		if e.conn.IsConnected() {
			if e.conn.ChannelID() == channelID && e.sess != nil {
				return nil
			}
			m.take(guildID)
			m.stopListening(e)
			if e.conn.ChannelID() != channelID {
				if err := e.conn.Move(channelID); err != nil {
					e.conn.teardown()
					return err
				}
				logging.Infow("moved voice call", m.fields(guildID, channelID)...)
			}
			return m.listen(ctx, guildID, e.conn, true)
		}
		// the transport went away underneath us
		m.take(guildID)
		m.stopListening(e)
		e.conn.teardown()
	}

	conn, err := m.join(ctx, guildID, channelID)
	if err != nil {
		return err
	}
	logging.Infow("joined voice channel", m.fields(guildID, channelID)...)
	return m.listen(ctx, guildID, conn, true)
}

// listen binds a fresh session to conn, ringing first when ring is set.
// Called with opMu held.
func (m *Manager) listen(ctx context.Context, guildID string, conn *Conn, ring bool) error {
	if ring {
		if err := m.ring(ctx, conn); err != nil {
			logging.Warnw("call sequence failed", append(m.fields(guildID, conn.ChannelID()), "error", err)...)
		}
	}
	if !conn.IsConnected() {
		conn.teardown()
		return voice.E(voice.KindJoin, "join", voice.ErrNotConnected)
	}

	sess := voice.NewSession(m.sessionOptions(conn))
	if err := conn.StartRecording(sess); err != nil {
		_ = sess.Close()
		m.put(guildID, &entry{conn: conn})
		logging.Errorw("could not start listening", append(m.fields(guildID, conn.ChannelID()), "error", err)...)
		return err
	}
	e := &entry{conn: conn, sess: sess}
	m.put(guildID, e)
	sess.Start(m.ctx)

	odds := m.opts.Library.Odds(sess.ContextID())
	logging.Infow("listening", append(m.fields(guildID, conn.ChannelID()),
		"voice_enabled", m.opts.Settings.Settings(sess.ContextID()).VoiceEnabled,
		"odds_yes", odds.Yes,
		"odds_no", odds.No,
		"odds_yapping", odds.Yapping,
		"yapping_clips", odds.YappingCount,
	)...)

	m.wg.Add(1)
	go m.watch(guildID, e)
	return nil
}

func (m *Manager) sessionOptions(conn *Conn) voice.Options {
	v := m.opts.Voice
	return voice.Options{
		ContextID:     conn.GuildID(),
		Call:          conn,
		Selector:      m.opts.Library,
		Settings:      m.opts.Settings,
		Recognizer:    m.opts.Recognizer,
		WakeWords:     voice.NewWakeWords(v.WakeWords...),
		RecognizerHz:  v.SampleRate,
		Silence:       v.Silence,
		IdleTimeout:   v.IdleTimeout,
		CheckInterval: v.CheckInterval,
		HangupOdds:    v.HangupOdds,
		SpeakerName:   m.opts.Resolver.UserName,
	}
}

// watch tears a call down once its monitor exits on its own, which happens
// when the call was disconnected or recording stopped.
func (m *Manager) watch(guildID string, e *entry) {
	defer m.wg.Done()
	select {
	case <-e.sess.Done():
	case <-m.ctx.Done():
		return
	}
	m.mu.Lock()
	current := m.calls[guildID] == e
	if current {
		delete(m.calls, guildID)
		metricCalls.Set(float64(len(m.calls)))
	}
	m.mu.Unlock()
	if !current {
		return
	}
	logging.Infow("call ended", m.fields(guildID, e.conn.ChannelID())...)
	m.stopListening(e)
	e.conn.teardown()
}

// stopListening stops frame delivery, then the session (which waits for
// its monitor before releasing the recognizer).
func (m *Manager) stopListening(e *entry) {
	if err := e.conn.StopRecording(); err != nil {
		logging.Warnw("stop recording failed", append(logging.GuildFields(e.conn.GuildID(), ""), "error", err)...)
	}
	if e.sess != nil {
		if err := e.sess.Close(); err != nil {
			logging.Warnw("session close failed", append(logging.GuildFields(e.conn.GuildID(), ""), "error", err)...)
		}
	}
}

// Leave hangs up the call in guildID.
func (m *Manager) Leave(ctx context.Context, guildID string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	e := m.take(guildID)
	if e == nil {
		return voice.ErrNotConnected
	}
	m.stopListening(e)
	logging.Infow("hanging up", m.fields(guildID, e.conn.ChannelID())...)
	return e.conn.Hangup(ctx)
}

// drop tears the call down without the hang-up sound. Used when nobody is
// left to hear it.
func (m *Manager) drop(guildID string) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	e := m.take(guildID)
	if e == nil {
		return
	}
	m.stopListening(e)
	e.conn.teardown()
}

// HandleVoiceStateUpdate follows the bot being moved or kicked, and leaves
// when nobody but bots remain in the call's channel.
func (m *Manager) HandleVoiceStateUpdate(_ *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if vsu == nil || vsu.VoiceState == nil {
		return
	}
	guildID := vsu.GuildID
	e := m.get(guildID)
	if e == nil {
		return
	}

	if vsu.UserID == m.botID() {
		switch {
		case vsu.ChannelID == "":
			logging.Infow("removed from voice channel", m.guildFields(guildID)...)
			m.drop(guildID)
		case vsu.ChannelID != e.conn.ChannelID():
			if err := m.relisten(guildID, vsu.ChannelID); err != nil {
				logging.Warnw("could not follow channel move", append(m.fields(guildID, vsu.ChannelID), "error", err)...)
			}
		}
		return
	}

	channelID := e.conn.ChannelID()
	if n := m.humans(guildID, channelID); n == 0 {
		logging.Infow("channel empty, leaving", m.fields(guildID, channelID)...)
		m.drop(guildID)
	}
}

// relisten rebuilds the session after someone else moved the bot. The
// transport already followed, so there is nothing to move, and the caller
// already heard the ring.
func (m *Manager) relisten(guildID, channelID string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	e := m.take(guildID)
	if e == nil {
		return voice.ErrNotConnected
	}
	m.stopListening(e)
	e.conn.mu.Lock()
	e.conn.channelID = channelID
	e.conn.mu.Unlock()
	logging.Infow("moved by someone else, rebuilding session", m.fields(guildID, channelID)...)
	return m.listen(m.ctx, guildID, e.conn, false)
}

// Rejoin joins the channel the bot's voice state still points at, e.g.
// after a restart while a call was live.
func (m *Manager) Rejoin(ctx context.Context, guildID string, states []*discordgo.VoiceState) error {
	bot := m.botID()
	for _, vs := range states {
		if vs == nil || vs.UserID != bot || vs.ChannelID == "" {
			continue
		}
		logging.Infow("rejoining voice channel", m.fields(guildID, vs.ChannelID)...)
		return m.Join(ctx, guildID, vs.ChannelID)
	}
	return nil
}

// HandleGuildCreate rejoins calls found in the guild's initial state.
func (m *Manager) HandleGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	if g == nil || g.Guild == nil || g.Unavailable {
		return
	}
	if err := m.Rejoin(m.ctx, g.ID, g.VoiceStates); err != nil {
		logging.Warnw("rejoin failed", append(m.guildFields(g.ID), "error", err)...)
	}
}

// Close drops every call and waits for background work to finish.
func (m *Manager) Close() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.calls))
	for id := range m.calls {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.drop(id)
	}
	m.cancel()
	m.wg.Wait()
}
