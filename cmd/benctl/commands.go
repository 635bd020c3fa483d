package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/talking-ben/voicebot/internal/answers"
	"github.com/talking-ben/voicebot/internal/config"
	"github.com/talking-ben/voicebot/internal/voice"
)

type paths struct {
	guildConfig string
	assets      string
}

func newRootCmd() *cobra.Command {
	var p paths
	root := &cobra.Command{
		Use:   "benctl",
		Short: "Inspect and change per-guild voice settings",
		Long: `benctl reads and writes the guild settings file used by the bot.

Paths default to GUILD_CONFIG_PATH and ASSET_DIR, as for the bot.

Examples:
  benctl voice 123456789 on
  benctl weight 123456789 yapping 5
  benctl status 123456789`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if p.guildConfig == "" {
				p.guildConfig = cfg.GuildConfig
			}
			if p.assets == "" {
				p.assets = cfg.AssetDir
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&p.guildConfig, "config", "", "guild settings file")
	root.PersistentFlags().StringVar(&p.assets, "assets", "", "asset directory")

	root.AddCommand(voiceCmd(&p), weightCmd(&p), statusCmd(&p))
	return root
}

func voiceCmd(p *paths) *cobra.Command {
	return &cobra.Command{
		Use:   "voice [guild] [on|off]",
		Short: "Enable or disable wake-word listening for a guild",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch strings.ToLower(args[1]) {
			case "on", "true", "enable":
				enabled = true
			case "off", "false", "disable":
			default:
				return voice.Errorf(voice.KindConfig, "voice", "want on or off, got %q", args[1])
			}
			store, err := openStore(p)
			if err != nil {
				return err
			}
			store.SetVoiceEnabled(args[0], enabled)
			if err := store.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "voice %s for guild %s\n", onOff(enabled), args[0])
			return nil
		},
	}
}

func weightCmd(p *paths) *cobra.Command {
	return &cobra.Command{
		Use:   "weight [guild] [yes|no|yapping] [n]",
		Short: "Set the weight of one answer category",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[2])
			if err != nil {
				return voice.E(voice.KindConfig, "weight", err)
			}
			store, err := openStore(p)
			if err != nil {
				return err
			}
			if err := store.SetWeight(args[0], strings.ToLower(args[1]), n); err != nil {
				return err
			}
			if err := store.Save(); err != nil {
				return err
			}
			w := store.Settings(args[0]).Weights
			fmt.Fprintf(cmd.OutOrStdout(), "weights for guild %s: yes=%d no=%d yapping=%d\n", args[0], w.Yes, w.No, w.Yapping)
			return nil
		},
	}
}

func statusCmd(p *paths) *cobra.Command {
	return &cobra.Command{
		Use:   "status [guild]",
		Short: "Show a guild's settings and the resulting answer odds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(p)
			if err != nil {
				return err
			}
			guild := args[0]
			s := store.Settings(guild)
			odds := answers.NewLibrary(p.assets, store).Odds(guild)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "guild:   %s\n", guild)
			fmt.Fprintf(out, "voice:   %s\n", onOff(s.VoiceEnabled))
			fmt.Fprintf(out, "weights: yes=%d no=%d yapping=%d (x%d clips)\n", s.Weights.Yes, s.Weights.No, s.Weights.Yapping, odds.YappingCount)
			if odds.Total == 0 {
				fmt.Fprintln(out, "odds:    no answers possible")
				return nil
			}
			fmt.Fprintf(out, "odds:    yes %.1f%%  no %.1f%%  yapping %.1f%%\n", odds.Yes, odds.No, odds.Yapping)
			return nil
		},
	}
}

func openStore(p *paths) (*config.GuildStore, error) {
	store := config.NewGuildStore(p.guildConfig)
	if err := store.Load(); err != nil {
		return nil, err
	}
	return store, nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
