package answers

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/talking-ben/voicebot/internal/voice"
)

type staticSettings map[string]voice.Settings

func (s staticSettings) Settings(id string) voice.Settings {
	if st, ok := s[id]; ok {
		return st
	}
	return voice.Settings{Weights: voice.DefaultWeights}
}

// seqDice returns its values in order, then repeats the last one.
type seqDice struct {
	vals []int
	seen []int
}

func (d *seqDice) IntN(n int) int {
	d.seen = append(d.seen, n)
	v := d.vals[0]
	if len(d.vals) > 1 {
		d.vals = d.vals[1:]
	}
	return v
}

func touch(t *testing.T, root string, rel ...string) {
	t.Helper()
	for _, r := range rel {
		p := filepath.Join(root, r)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte("ID3"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

func newTestLibrary(t *testing.T, w voice.Weights, dice voice.Dice) (*Library, string) {
	t.Helper()
	root := t.TempDir()
	touch(t, root,
		"sounds/answers/Yes.mp3",
		"sounds/answers/no_ben.mp3",
		"sounds/answers/readme.txt",
		"sounds/yapping/a.mp3",
		"sounds/yapping/b.MP3",
	)
	lib := NewLibrary(root, staticSettings{"g": {VoiceEnabled: true, Weights: w}}).WithDice(dice)
	return lib, root
}

func TestPickWalksWeightedPool(t *testing.T) {
	// pool order: yes(10) no(10) a(2) b(2) = 24
	cases := []struct {
		draw int
		want string
	}{
		{0, "sounds/answers/Yes.mp3"},
		{9, "sounds/answers/Yes.mp3"},
		{10, "sounds/answers/no_ben.mp3"},
		{19, "sounds/answers/no_ben.mp3"},
		{20, "sounds/yapping/a.mp3"},
		{23, "sounds/yapping/b.MP3"},
	}
	for _, tc := range cases {
		dice := &seqDice{vals: []int{tc.draw}}
		lib, root := newTestLibrary(t, voice.DefaultWeights, dice)
		got, ok := lib.Pick("g")
		if !ok || got != filepath.Join(root, tc.want) {
			t.Fatalf("draw %d: got %q ok=%v want %s", tc.draw, got, ok, tc.want)
		}
		if dice.seen[0] != 24 {
			t.Fatalf("pool total=%d want 24", dice.seen[0])
		}
	}
}

func TestPickUsesContextWeights(t *testing.T) {
	dice := &seqDice{vals: []int{0}}
	lib, root := newTestLibrary(t, voice.Weights{Yes: 0, No: 3, Yapping: 0}, dice)
	got, ok := lib.Pick("g")
	if !ok || got != filepath.Join(root, "sounds/answers/no_ben.mp3") {
		t.Fatalf("got %q ok=%v", got, ok)
	}
	if dice.seen[0] != 3 {
		t.Fatalf("pool total=%d want 3", dice.seen[0])
	}

	// other contexts fall back to defaults
	if _, ok := lib.Pick("other"); !ok {
		t.Fatalf("default weights should pick something")
	}
}

func TestPickEmptyPool(t *testing.T) {
	lib, _ := newTestLibrary(t, voice.Weights{}, &seqDice{vals: []int{0}})
	if got, ok := lib.Pick("g"); ok {
		t.Fatalf("zero weights picked %q", got)
	}
	empty := NewLibrary(t.TempDir(), staticSettings{})
	if _, ok := empty.Pick("g"); ok {
		t.Fatalf("missing asset dirs picked something")
	}
}

func TestCallSequenceSorted(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "sounds/telephone/call/2_ring.mp3", "sounds/telephone/call/1_dial.mp3", "sounds/telephone/call/3_pickup.mp3")
	lib := NewLibrary(root, staticSettings{})
	seq := lib.CallSequence()
	if len(seq) != 3 {
		t.Fatalf("sequence=%v", seq)
	}
	for i, name := range []string{"1_dial.mp3", "2_ring.mp3", "3_pickup.mp3"} {
		if filepath.Base(seq[i]) != name {
			t.Fatalf("sequence=%v", seq)
		}
	}
}

func TestHangUpSound(t *testing.T) {
	root := t.TempDir()
	lib := NewLibrary(root, staticSettings{}).WithDice(&seqDice{vals: []int{1}})
	if _, ok := lib.HangUpSound(); ok {
		t.Fatalf("expected no hang-up sound")
	}
	touch(t, root, "sounds/telephone/hang_up/a.mp3", "sounds/telephone/hang_up/b.mp3")
	got, ok := lib.HangUpSound()
	if !ok || filepath.Base(got) != "b.mp3" {
		t.Fatalf("got %q ok=%v", got, ok)
	}
}

func TestOdds(t *testing.T) {
	lib, _ := newTestLibrary(t, voice.Weights{Yes: 10, No: 10, Yapping: 5}, &seqDice{vals: []int{0}})
	o := lib.Odds("g")
	if o.Total != 30 || o.YappingCount != 2 {
		t.Fatalf("odds=%+v", o)
	}
	if math.Abs(o.Yes-100.0/3) > 1e-9 || math.Abs(o.Yapping-100.0/3) > 1e-9 {
		t.Fatalf("odds=%+v", o)
	}
	zero, _ := newTestLibrary(t, voice.Weights{}, &seqDice{vals: []int{0}})
	if o := zero.Odds("g"); o.Total != 0 || o.Yes != 0 {
		t.Fatalf("zero odds=%+v", o)
	}
}
