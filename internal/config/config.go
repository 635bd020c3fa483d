package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/talking-ben/voicebot/internal/voice"
)

// Config is the process-level configuration of the bot.
type Config struct {
	Discord struct {
		Token          string
		GuildID        string
		VoiceChannelID string
	}
	LogLevel    string
	MetricsAddr string
	AssetDir    string
	GuildConfig string

	Voice Voice
}

// Voice holds the listening tunables shared by every call.
type Voice struct {
	VoskURL       string
	SampleRate    int
	WakeWords     []string
	Silence       time.Duration
	IdleTimeout   time.Duration
	CheckInterval time.Duration
	HangupOdds    int
	FrameQueue    int
}

// Load reads configuration from the environment and, when present, a
// config.yaml in the working directory. Environment variables win.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("asset.dir", "assets")
	v.SetDefault("guild.config", "data/config.json")
	v.SetDefault("vosk.url", "ws://localhost:2700")
	v.SetDefault("recognizer.sample_rate", 16000)
	v.SetDefault("wake.words", "ben,pen,men,bin,baan")
	v.SetDefault("silence.ms", 350)
	v.SetDefault("idle.ms", 5000)
	v.SetDefault("check.interval_ms", 350)
	v.SetDefault("hangup.odds", 500)
	v.SetDefault("frame.queue", 256)

	_ = v.BindEnv("discord.token", "DISCORD_BOT_TOKEN")
	_ = v.BindEnv("discord.guild_id", "GUILD_ID")
	_ = v.BindEnv("discord.voice_channel_id", "VOICE_CHANNEL_ID")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
	_ = v.BindEnv("metrics.addr", "METRICS_ADDR")
	_ = v.BindEnv("asset.dir", "ASSET_DIR")
	_ = v.BindEnv("guild.config", "GUILD_CONFIG_PATH")
	_ = v.BindEnv("vosk.url", "VOSK_URL")
	_ = v.BindEnv("recognizer.sample_rate", "RECOGNIZER_SAMPLE_RATE")
	_ = v.BindEnv("wake.words", "WAKE_WORDS")
	_ = v.BindEnv("silence.ms", "SILENCE_MS")
	_ = v.BindEnv("idle.ms", "IDLE_MS")
	_ = v.BindEnv("check.interval_ms", "CHECK_INTERVAL_MS")
	_ = v.BindEnv("hangup.odds", "HANGUP_ODDS")
	_ = v.BindEnv("frame.queue", "FRAME_QUEUE")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, voice.E(voice.KindConfig, "read config", err)
		}
	}

	var c Config
	c.Discord.Token = v.GetString("discord.token")
	c.Discord.GuildID = v.GetString("discord.guild_id")
	c.Discord.VoiceChannelID = v.GetString("discord.voice_channel_id")
	c.LogLevel = v.GetString("log.level")
	c.MetricsAddr = v.GetString("metrics.addr")
	c.AssetDir = v.GetString("asset.dir")
	c.GuildConfig = v.GetString("guild.config")

	c.Voice.VoskURL = v.GetString("vosk.url")
	c.Voice.SampleRate = v.GetInt("recognizer.sample_rate")
	c.Voice.WakeWords = splitList(v.GetString("wake.words"))
	c.Voice.Silence = time.Duration(v.GetInt("silence.ms")) * time.Millisecond
	c.Voice.IdleTimeout = time.Duration(v.GetInt("idle.ms")) * time.Millisecond
	c.Voice.CheckInterval = time.Duration(v.GetInt("check.interval_ms")) * time.Millisecond
	c.Voice.HangupOdds = v.GetInt("hangup.odds")
	c.Voice.FrameQueue = v.GetInt("frame.queue")

	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) validate() error {
	var msg string
	switch {
	case c.Voice.SampleRate <= 0:
		msg = "recognizer sample rate must be positive"
	case c.Voice.Silence <= 0 || c.Voice.IdleTimeout <= 0 || c.Voice.CheckInterval <= 0:
		msg = "silence, idle and check interval must be positive"
	case c.Voice.HangupOdds < 0:
		msg = "hangup odds must not be negative"
	case len(c.Voice.WakeWords) == 0:
		msg = "at least one wake word is required"
	case c.Voice.FrameQueue <= 0:
		msg = "frame queue must be positive"
	default:
		return nil
	}
	return voice.E(voice.KindConfig, "validate", errors.New(msg))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.ToLower(strings.TrimSpace(part)); t != "" {
			out = append(out, t)
		}
	}
	return out
}
