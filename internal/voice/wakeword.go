package voice

import "strings"

// WakeWords is a set of lower-case tokens; any of them appearing anywhere in
// a transcript arms the session.
type WakeWords []string

// NewWakeWords normalizes tokens and drops empty ones.
func NewWakeWords(tokens ...string) WakeWords {
	out := make(WakeWords, 0, len(tokens))
	for _, t := range tokens {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Match returns the first token contained in text (case-insensitive).
func (w WakeWords) Match(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	text = strings.ToLower(text)
	for _, tok := range w {
		if strings.Contains(text, tok) {
			return tok, true
		}
	}
	return "", false
}
