package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talking-ben/voicebot/internal/answers"
	"github.com/talking-ben/voicebot/internal/call"
	"github.com/talking-ben/voicebot/internal/config"
	"github.com/talking-ben/voicebot/internal/logging"
	"github.com/talking-ben/voicebot/internal/voice"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Init("")
		logging.FatalExitf("invalid configuration", "error", err)
	}
	logging.Init(cfg.LogLevel)
	defer func() { _ = logging.Sync() }()
	if cfg.Discord.Token == "" {
		logging.FatalExitf("DISCORD_BOT_TOKEN is not set")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	guilds := config.NewGuildStore(cfg.GuildConfig)
	if err := guilds.Load(); err != nil {
		logging.Warnw("guild config not loaded, using defaults", "path", cfg.GuildConfig, "error", err)
	}
	if err := guilds.Watch(ctx); err != nil {
		logging.Warnw("guild config watch disabled", "path", cfg.GuildConfig, "error", err)
	}

	library := answers.NewLibrary(cfg.AssetDir, guilds)
	if len(library.Files(answers.AnswersDir)) == 0 {
		logging.Warnw("no answer clips found", "dir", filepath.Join(cfg.AssetDir, answers.AnswersDir))
	}

	recognizer, err := voice.NewVoskFactory(cfg.Voice.VoskURL, cfg.Voice.SampleRate)
	if err != nil {
		logging.FatalExitf("recognizer setup failed", "vosk_url", cfg.Voice.VoskURL, "error", err)
	}

	dg, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		logging.FatalExitf("discordgo.New failed", "error", err)
	}
	// Guilds + GuildVoiceStates are enough to follow calls; nothing here
	// needs privileged intents.
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	logging.Infow("using gateway intents", "intents", dg.Identify.Intents)

	calls := call.NewManager(dg, call.Options{
		Voice:      cfg.Voice,
		Settings:   guilds,
		Library:    library,
		Recognizer: recognizer,
	})

	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		logging.Infow("discord ready", append(logging.UserFields(r.User.ID, r.User.Username), "guilds", len(r.Guilds))...)
	})
	dg.AddHandler(calls.HandleVoiceStateUpdate)
	dg.AddHandler(calls.HandleGuildCreate)
	if strings.EqualFold(cfg.LogLevel, "debug") {
		dg.AddHandler(logEvent)
	}

	logging.Infow("opening discord session")
	if err := dg.Open(); err != nil {
		logging.FatalExitf("discord session open failed", "error", err)
	}
	logging.Infow("discord session opened")

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logging.Infow("metrics listening", "addr", cfg.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Errorw("metrics server failed", "error", err)
			}
		}()
	}

	if g, c := cfg.Discord.GuildID, cfg.Discord.VoiceChannelID; g != "" && c != "" {
		go func() {
			fields := append(logging.GuildFields(g, ""), logging.ChannelFields(c, "")...)
			logging.Infow("auto-joining voice channel", fields...)
			if err := calls.Join(ctx, g, c); err != nil {
				logging.Warnw("auto-join failed", append(fields, "error", err)...)
			}
		}()
	}

	<-ctx.Done()
	logging.Infow("shutdown signal received, closing resources")

	calls.Close()
	if metricsSrv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsSrv.Shutdown(shutdownCtx)
		done()
	}
	if err := dg.Close(); err != nil {
		logging.Warnw("discord session close error", "error", err)
	}
	logging.Infow("shutdown complete")
}
