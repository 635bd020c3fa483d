package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/talking-ben/voicebot/internal/logging"
	"github.com/talking-ben/voicebot/internal/voice"
)

const reloadDebounce = 100 * time.Millisecond

// Answer categories accepted by SetWeight.
const (
	WeightYes     = "yes"
	WeightNo      = "no"
	WeightYapping = "yapping"
)

type guildFile struct {
	VoiceEnabled  map[string]bool          `json:"voice_enabled"`
	AnswerWeights map[string]voice.Weights `json:"answer_weights"`
}

// GuildStore holds per-guild settings backed by a JSON file. It is the
// voice.SettingsProvider used by every session.
type GuildStore struct {
	path string

	mu      sync.RWMutex
	enabled map[string]bool
	weights map[string]voice.Weights
}

func NewGuildStore(path string) *GuildStore {
	return &GuildStore{
		path:    path,
		enabled: make(map[string]bool),
		weights: make(map[string]voice.Weights),
	}
}

// Load replaces the in-memory settings with the file's. A missing file is
// not an error. On a parse error the current settings are kept.
func (g *GuildStore) Load() error {
	data, err := os.ReadFile(g.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return voice.E(voice.KindConfig, "read guild settings", err)
	}
	enabled, weights, err := parseGuildFile(data)
	if err != nil {
		return voice.E(voice.KindConfig, "parse guild settings", err)
	}
	g.mu.Lock()
	g.enabled = enabled
	g.weights = weights
	g.mu.Unlock()
	return nil
}

func parseGuildFile(data []byte) (map[string]bool, map[string]voice.Weights, error) {
	var raw struct {
		VoiceEnabled  map[string]bool            `json:"voice_enabled"`
		AnswerWeights map[string]json.RawMessage `json:"answer_weights"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, err
	}
	enabled := raw.VoiceEnabled
	if enabled == nil {
		enabled = make(map[string]bool)
	}
	weights := make(map[string]voice.Weights)

	if isLegacyWeights(raw.AnswerWeights) {
		// one global mix, applied to every guild that has a voice setting
		w := voice.DefaultWeights
		flat, _ := json.Marshal(raw.AnswerWeights)
		if err := json.Unmarshal(flat, &w); err != nil {
			return nil, nil, fmt.Errorf("legacy answer_weights: %w", err)
		}
		for id := range enabled {
			weights[id] = normalizeWeights(w)
		}
		return enabled, weights, nil
	}

	for id, msg := range raw.AnswerWeights {
		w := voice.DefaultWeights
		if err := json.Unmarshal(msg, &w); err != nil {
			return nil, nil, fmt.Errorf("answer_weights[%s]: %w", id, err)
		}
		weights[id] = normalizeWeights(w)
	}
	return enabled, weights, nil
}

// isLegacyWeights reports whether answer_weights is the old flat
// {"yes":10,...} shape rather than one object per guild.
func isLegacyWeights(m map[string]json.RawMessage) bool {
	if len(m) == 0 {
		return false
	}
	for _, v := range m {
		v = bytes.TrimSpace(v)
		if len(v) == 0 || v[0] == '{' {
			return false
		}
	}
	return true
}

func normalizeWeights(w voice.Weights) voice.Weights {
	w.Yes = max(w.Yes, 0)
	w.No = max(w.No, 0)
	w.Yapping = max(w.Yapping, 0)
	return w
}

// Settings implements voice.SettingsProvider. Guilds without weights get
// the defaults; voice is off unless enabled.
func (g *GuildStore) Settings(contextID string) voice.Settings {
	g.mu.RLock()
	defer g.mu.RUnlock()
	w, ok := g.weights[contextID]
	if !ok {
		w = voice.DefaultWeights
	}
	return voice.Settings{VoiceEnabled: g.enabled[contextID], Weights: w}
}

func (g *GuildStore) SetVoiceEnabled(contextID string, enabled bool) {
	g.mu.Lock()
	g.enabled[contextID] = enabled
	g.mu.Unlock()
}

// SetWeight sets one answer category. Negative weights are stored as 0.
func (g *GuildStore) SetWeight(contextID, category string, weight int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	w, ok := g.weights[contextID]
	if !ok {
		w = voice.DefaultWeights
	}
	switch category {
	case WeightYes:
		w.Yes = weight
	case WeightNo:
		w.No = weight
	case WeightYapping:
		w.Yapping = weight
	default:
		return voice.Errorf(voice.KindConfig, "set weight", "unknown answer category %q", category)
	}
	g.weights[contextID] = normalizeWeights(w)
	return nil
}

// Save writes the current settings to the backing file atomically.
func (g *GuildStore) Save() error {
	g.mu.RLock()
	data, err := json.MarshalIndent(guildFile{
		VoiceEnabled:  g.enabled,
		AnswerWeights: g.weights,
	}, "", "  ")
	g.mu.RUnlock()
	if err != nil {
		return voice.E(voice.KindConfig, "encode guild settings", err)
	}
	if err := saveFileAtomic(g.path, data, 0o644); err != nil {
		return voice.E(voice.KindConfig, "save guild settings", err)
	}
	return nil
}

// Watch reloads the file whenever it changes on disk until ctx is done.
// Bursts of events are collapsed into one reload.
func (g *GuildStore) Watch(ctx context.Context) error {
	dir := filepath.Dir(g.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return voice.E(voice.KindConfig, "watch guild settings", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return voice.E(voice.KindConfig, "watch guild settings", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return voice.E(voice.KindConfig, "watch guild settings", fmt.Errorf("watch %s: %w", dir, err))
	}

	base := filepath.Base(g.path)
	go func() {
		defer watcher.Close()
		var debounce *time.Timer
		defer func() {
			if debounce != nil {
				debounce.Stop()
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, func() {
					if err := g.Load(); err != nil {
						logging.Warnw("guild settings reload failed", "path", g.path, "error", err)
						return
					}
					logging.Infow("guild settings reloaded", "path", g.path)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Warnw("guild settings watcher error", "error", err)
			}
		}
	}()
	logging.Debugw("watching guild settings", "path", g.path)
	return nil
}
