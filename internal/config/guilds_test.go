package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/talking-ben/voicebot/internal/voice"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestGuildStoreMissingFile(t *testing.T) {
	g := NewGuildStore(filepath.Join(t.TempDir(), "config.json"))
	if err := g.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := g.Settings("123")
	if s.VoiceEnabled {
		t.Fatalf("voice should default to off")
	}
	if s.Weights != voice.DefaultWeights {
		t.Fatalf("weights=%+v want defaults", s.Weights)
	}
}

func TestGuildStorePerGuildFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{
		"voice_enabled": {"1": true, "2": false},
		"answer_weights": {"1": {"yes": 5, "no": -3}, "2": {"yapping": 7}}
	}`)
	g := NewGuildStore(path)
	if err := g.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	one := g.Settings("1")
	if !one.VoiceEnabled {
		t.Fatalf("guild 1 should be enabled")
	}
	if one.Weights != (voice.Weights{Yes: 5, No: 0, Yapping: 2}) {
		t.Fatalf("guild 1 weights=%+v", one.Weights)
	}
	two := g.Settings("2")
	if two.VoiceEnabled || two.Weights != (voice.Weights{Yes: 10, No: 10, Yapping: 7}) {
		t.Fatalf("guild 2 settings=%+v", two)
	}
}

func TestGuildStoreLegacyWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{
		"voice_enabled": {"1": true, "2": true},
		"answer_weights": {"yes": 1, "no": 2, "yapping": 3}
	}`)
	g := NewGuildStore(path)
	if err := g.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := voice.Weights{Yes: 1, No: 2, Yapping: 3}
	for _, id := range []string{"1", "2"} {
		if got := g.Settings(id).Weights; got != want {
			t.Fatalf("guild %s weights=%+v want %+v", id, got, want)
		}
	}
	if got := g.Settings("3").Weights; got != voice.DefaultWeights {
		t.Fatalf("unlisted guild got legacy weights: %+v", got)
	}
}

func TestGuildStoreBadFileKeepsState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"voice_enabled": {"1": true}}`)
	g := NewGuildStore(path)
	if err := g.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	writeFile(t, path, `{"voice_enabled": `)
	err := g.Load()
	if !voice.IsKind(err, voice.KindConfig) {
		t.Fatalf("want config error, got %v", err)
	}
	if !g.Settings("1").VoiceEnabled {
		t.Fatalf("failed reload dropped settings")
	}
}

func TestGuildStoreSetAndSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "config.json")
	g := NewGuildStore(path)
	g.SetVoiceEnabled("42", true)
	if err := g.SetWeight("42", WeightYapping, -1); err != nil {
		t.Fatalf("SetWeight: %v", err)
	}
	if err := g.SetWeight("42", WeightYes, 4); err != nil {
		t.Fatalf("SetWeight: %v", err)
	}
	if err := g.SetWeight("42", "maybe", 4); !voice.IsKind(err, voice.KindConfig) {
		t.Fatalf("unknown category accepted: %v", err)
	}
	if err := g.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("tmp file left behind: %v", err)
	}

	reloaded := NewGuildStore(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := reloaded.Settings("42")
	if !s.VoiceEnabled || s.Weights != (voice.Weights{Yes: 4, No: 10, Yapping: 0}) {
		t.Fatalf("reloaded settings=%+v", s)
	}
}

func TestGuildStoreWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	g := NewGuildStore(path)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := g.Watch(ctx); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	writeFile(t, path, `{"voice_enabled": {"9": true}}`)
	deadline := time.Now().Add(3 * time.Second)
	for !g.Settings("9").VoiceEnabled {
		if time.Now().After(deadline) {
			t.Fatalf("settings not reloaded after write")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
