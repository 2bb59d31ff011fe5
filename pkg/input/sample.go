package input

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Sample is one raw input notification crossing the hook boundary. A single
// shape serves both modalities; producers emit one JSON object per line in
// this layout when running out of process.
type Sample struct {
	Key    string `json:"key,omitempty"`
	Button string `json:"button,omitempty"`
	Action string `json:"action"`
	X      int    `json:"x,omitempty"`
	Y      int    `json:"y,omitempty"`
	DX     int    `json:"dx,omitempty"`
	DY     int    `json:"dy,omitempty"`
}

// Actions reported by hook sources.
const (
	ActionPress   = "press"
	ActionRelease = "release"
	ActionMove    = "move"
	ActionScroll  = "scroll"
)

// symbolicKeys maps hook-specific spellings of control keys onto their
// canonical names.
var symbolicKeys = map[string]string{
	"return":   "enter",
	"escape":   "esc",
	"spacebar": "space",
	"control":  "ctrl",
	"command":  "cmd",
	"option":   "alt",
}

// NormalizeKey reduces a hook-provided key identity to a stable string:
// printable characters keep their literal glyph, control keys map to a
// symbolic lowercase name, and anything unrecognized falls back to the
// native string form.
func NormalizeKey(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return raw
	}
	if utf8.RuneCountInString(trimmed) == 1 {
		r, _ := utf8.DecodeRuneInString(trimmed)
		if unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return trimmed
		}
	}
	lowered := strings.ToLower(trimmed)
	if canonical, ok := symbolicKeys[lowered]; ok {
		return canonical
	}
	if isSymbolicName(lowered) {
		return lowered
	}
	return raw
}

func isSymbolicName(name string) bool {
	for _, r := range name {
		if !unicode.IsLower(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return name != ""
}
