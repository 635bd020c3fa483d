// Package answers picks the reply and telephone sounds played into a call.
package answers

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/talking-ben/voicebot/internal/voice"
)

// Asset directories below the asset root.
const (
	AnswersDir = "sounds/answers"
	YappingDir = "sounds/yapping"
	CallDir    = "sounds/telephone/call"
	HangUpDir  = "sounds/telephone/hang_up"
)

// Library reads sound files from disk on every pick, so assets can be added
// or removed while the bot runs.
type Library struct {
	root     string
	settings voice.SettingsProvider

	mu   sync.Mutex
	dice voice.Dice
}

// Odds is the chance of each reply category in percent, plus the total
// weight of the pool they were computed from.
type Odds struct {
	Yes          float64
	No           float64
	Yapping      float64
	YappingCount int
	Total        int
}

func NewLibrary(root string, settings voice.SettingsProvider) *Library {
	seed := uint64(time.Now().UnixNano())
	return &Library{
		root:     root,
		settings: settings,
		dice:     rand.New(rand.NewPCG(seed, seed>>1|1)),
	}
}

// WithDice replaces the random source. Used by tests.
func (l *Library) WithDice(d voice.Dice) *Library {
	l.mu.Lock()
	l.dice = d
	l.mu.Unlock()
	return l
}

func (l *Library) intN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dice.IntN(n)
}

// Files lists the .mp3 files in dir (relative to the asset root), sorted.
// A missing directory is empty.
func (l *Library) Files(dir string) []string {
	full := filepath.Join(l.root, dir)
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".mp3") {
			continue
		}
		out = append(out, filepath.Join(full, e.Name()))
	}
	sort.Strings(out)
	return out
}

// firstWithPrefix returns the first answer file whose name starts with
// prefix, case-insensitively.
func (l *Library) firstWithPrefix(prefix string) (string, bool) {
	for _, f := range l.Files(AnswersDir) {
		if strings.HasPrefix(strings.ToLower(filepath.Base(f)), prefix) {
			return f, true
		}
	}
	return "", false
}

type weighted struct {
	path   string
	weight int
}

func (l *Library) pool(contextID string) []weighted {
	w := l.settings.Settings(contextID).Weights
	var pool []weighted
	if yes, ok := l.firstWithPrefix("yes"); ok && w.Yes > 0 {
		pool = append(pool, weighted{yes, w.Yes})
	}
	if no, ok := l.firstWithPrefix("no"); ok && w.No > 0 {
		pool = append(pool, weighted{no, w.No})
	}
	if w.Yapping > 0 {
		for _, f := range l.Files(YappingDir) {
			pool = append(pool, weighted{f, w.Yapping})
		}
	}
	return pool
}

// Pick chooses a reply for contextID using that context's weights. The
// yapping weight counts once per yapping file. ok is false when every
// weight is zero or no files exist.
func (l *Library) Pick(contextID string) (string, bool) {
	pool := l.pool(contextID)
	total := 0
	for _, p := range pool {
		total += p.weight
	}
	if total == 0 {
		return "", false
	}
	n := l.intN(total)
	for _, p := range pool {
		if n < p.weight {
			return p.path, true
		}
		n -= p.weight
	}
	return "", false
}

// PickRandom returns a uniformly chosen file from dir.
func (l *Library) PickRandom(dir string) (string, bool) {
	files := l.Files(dir)
	if len(files) == 0 {
		return "", false
	}
	return files[l.intN(len(files))], true
}

// HangUpSound is a random hang-up clip.
func (l *Library) HangUpSound() (string, bool) { return l.PickRandom(HangUpDir) }

// CallSequence is the ring played, in order, when joining a call.
func (l *Library) CallSequence() []string { return l.Files(CallDir) }

// Odds reports the reply mix for contextID as percentages.
func (l *Library) Odds(contextID string) Odds {
	w := l.settings.Settings(contextID).Weights
	yaps := len(l.Files(YappingDir))
	o := Odds{YappingCount: yaps, Total: w.Yes + w.No + w.Yapping*yaps}
	if o.Total == 0 {
		return o
	}
	total := float64(o.Total)
	o.Yes = float64(w.Yes) / total * 100
	o.No = float64(w.No) / total * 100
	o.Yapping = float64(w.Yapping*yaps) / total * 100
	return o
}
