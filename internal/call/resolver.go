package call

import (
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// NameResolver turns Discord ids into display names for log fields.
type NameResolver interface {
	UserName(userID string) string
	GuildName(guildID string) string
	ChannelName(channelID string) string
}

// NoopResolver returns empty names. Used in tests and when REST lookups
// should be avoided.
type NoopResolver struct{}

func (NoopResolver) UserName(string) string    { return "" }
func (NoopResolver) GuildName(string) string   { return "" }
func (NoopResolver) ChannelName(string) string { return "" }

// cacheTTL controls how long a cached name is valid.
var cacheTTL = 5 * time.Minute

type cacheEntry struct {
	val    string
	expiry time.Time
}

type discordResolver struct {
	s   *discordgo.Session
	now func() time.Time

	mu       sync.Mutex
	users    map[string]cacheEntry
	guilds   map[string]cacheEntry
	channels map[string]cacheEntry
}

// NewDiscordResolver resolves names from the session state cache first and
// falls back to REST, caching results for cacheTTL.
func NewDiscordResolver(s *discordgo.Session) NameResolver {
	return &discordResolver{
		s:        s,
		now:      time.Now,
		users:    make(map[string]cacheEntry),
		guilds:   make(map[string]cacheEntry),
		channels: make(map[string]cacheEntry),
	}
}

func (d *discordResolver) cached(m map[string]cacheEntry, id string, fetch func() string) string {
	if d.s == nil || id == "" {
		return ""
	}
	d.mu.Lock()
	if e, ok := m[id]; ok {
		if d.now().Before(e.expiry) {
			d.mu.Unlock()
			return e.val
		}
		delete(m, id)
	}
	d.mu.Unlock()

	name := fetch()
	if name == "" {
		return ""
	}
	d.mu.Lock()
	m[id] = cacheEntry{val: name, expiry: d.now().Add(cacheTTL)}
	d.mu.Unlock()
	return name
}

func (d *discordResolver) UserName(userID string) string {
	return d.cached(d.users, userID, func() string {
		if u, err := d.s.User(userID); err == nil && u != nil {
			return u.Username
		}
		return ""
	})
}

func (d *discordResolver) GuildName(guildID string) string {
	return d.cached(d.guilds, guildID, func() string {
		if d.s.State != nil {
			if g, err := d.s.State.Guild(guildID); err == nil && g != nil {
				return g.Name
			}
		}
		if g, err := d.s.Guild(guildID); err == nil && g != nil {
			return g.Name
		}
		return ""
	})
}

func (d *discordResolver) ChannelName(channelID string) string {
	return d.cached(d.channels, channelID, func() string {
		if d.s.State != nil {
			if c, err := d.s.State.Channel(channelID); err == nil && c != nil {
				return c.Name
			}
		}
		if c, err := d.s.Channel(channelID); err == nil && c != nil {
			return c.Name
		}
		return ""
	})
}
