package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetLoggerRoutesPackageCalls(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core).Sugar())
	t.Cleanup(func() { SetLogger(nil) })

	Infow("joined", GuildFields("g1", "Ben's Lab")...)
	Debugw("frame", "n", 3)

	if logs.Len() != 2 {
		t.Fatalf("want 2 entries, got %d", logs.Len())
	}
	got := logs.All()[0].ContextMap()
	if got["guild.id"] != "g1" || got["guild.name"] != "Ben's Lab" {
		t.Fatalf("unexpected fields %v", got)
	}
}

func TestFieldHelpersOmitEmptyNames(t *testing.T) {
	if f := UserFields("u1", ""); len(f) != 2 {
		t.Fatalf("want id only, got %v", f)
	}
	if f := ChannelFields("c1", "general"); len(f) != 4 {
		t.Fatalf("want id and name, got %v", f)
	}
	if f := SessionFields("g1", ""); len(f) != 2 {
		t.Fatalf("want context only, got %v", f)
	}
	if f := SessionFields("g1", "ep"); len(f) != 4 || f[3] != "ep" {
		t.Fatalf("want episode, got %v", f)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug": zap.DebugLevel, " WARN ": zap.WarnLevel, "error": zap.ErrorLevel, "": zap.InfoLevel, "loud": zap.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q): want %v got %v", in, want, got)
		}
	}
}
