package hotkey

import (
	"fmt"
	"sort"
	"strings"
)

// Mod is a modifier in an accelerator string.
type Mod int

const (
	Control Mod = iota
	Alt
	Shift
	Super
	Meta
	// CommandOrControl resolves to Meta on macOS and Control elsewhere.
	CommandOrControl
)

var modNames = map[Mod]string{
	Control:          "Control",
	Alt:              "Alt",
	Shift:            "Shift",
	Super:            "Super",
	Meta:             "Meta",
	CommandOrControl: "CommandOrControl",
}

func (m Mod) String() string { return modNames[m] }

var modAliases = map[string]Mod{
	"ctrl":             Control,
	"control":          Control,
	"alt":              Alt,
	"option":           Alt,
	"shift":            Shift,
	"super":            Super,
	"win":              Super,
	"windows":          Super,
	"meta":             Meta,
	"cmd":              Meta,
	"command":          Meta,
	"commandorcontrol": CommandOrControl,
	"cmdorctrl":        CommandOrControl,
}

var keyAliases = map[string]string{
	"space":  "Space",
	"tab":    "Tab",
	"enter":  "Return",
	"return": "Return",
	"esc":    "Escape",
	"escape": "Escape",
}

// Accelerator is a parsed key combination. Key is empty for
// modifier-only combos such as Control+Super.
type Accelerator struct {
	Mods []Mod
	Key  string
}

// Parse reads strings like "Control+Super" or "CommandOrControl+Shift+Space".
func Parse(s string) (Accelerator, error) {
	var acc Accelerator
	if strings.TrimSpace(s) == "" {
		return acc, fmt.Errorf("empty accelerator")
	}
	seen := map[Mod]bool{}
	for _, part := range strings.Split(s, "+") {
		tok := strings.TrimSpace(part)
		if tok == "" {
			return acc, fmt.Errorf("accelerator %q: empty component", s)
		}
		if m, ok := modAliases[strings.ToLower(tok)]; ok {
			if !seen[m] {
				seen[m] = true
				acc.Mods = append(acc.Mods, m)
			}
			continue
		}
		if acc.Key != "" {
			return acc, fmt.Errorf("accelerator %q: more than one key", s)
		}
		key, ok := normalizeKey(tok)
		if !ok {
			return acc, fmt.Errorf("accelerator %q: unknown key %q", s, tok)
		}
		acc.Key = key
	}
	if len(acc.Mods) == 0 {
		return acc, fmt.Errorf("accelerator %q: needs at least one modifier", s)
	}
	sortMods(acc.Mods)
	return acc, nil
}

func normalizeKey(tok string) (string, bool) {
	if k, ok := keyAliases[strings.ToLower(tok)]; ok {
		return k, true
	}
	up := strings.ToUpper(tok)
	if len(up) == 1 && (up[0] >= 'A' && up[0] <= 'Z' || up[0] >= '0' && up[0] <= '9') {
		return up, true
	}
	if len(up) >= 2 && up[0] == 'F' {
		var n int
		if _, err := fmt.Sscanf(up[1:], "%d", &n); err == nil && n >= 1 && n <= 12 && fmt.Sprint(n) == up[1:] {
			return up, true
		}
	}
	return "", false
}

func sortMods(m []Mod) {
	sort.Slice(m, func(i, j int) bool { return m[i] < m[j] })
}

// Translate resolves platform aliases once, at registration time: on
// darwin Super and CommandOrControl become Meta, elsewhere
// CommandOrControl becomes Control.
func Translate(acc Accelerator, goos string) Accelerator {
	out := Accelerator{Key: acc.Key}
	seen := map[Mod]bool{}
	for _, m := range acc.Mods {
		switch {
		case m == CommandOrControl && goos == "darwin":
			m = Meta
		case m == CommandOrControl:
			m = Control
		case m == Super && goos == "darwin":
			m = Meta
		}
		if !seen[m] {
			seen[m] = true
			out.Mods = append(out.Mods, m)
		}
	}
	sortMods(out.Mods)
	return out
}

func (a Accelerator) String() string {
	parts := make([]string, 0, len(a.Mods)+1)
	for _, m := range a.Mods {
		parts = append(parts, m.String())
	}
	if a.Key != "" {
		parts = append(parts, a.Key)
	}
	return strings.Join(parts, "+")
}

func (a Accelerator) ModifierOnly() bool { return a.Key == "" }

func (a Accelerator) Has(m Mod) bool {
	for _, x := range a.Mods {
		if x == m {
			return true
		}
	}
	return false
}

// ReleaseModifier names the held modifier a release watcher should track
// for this combo: "ctrl", "alt" or "".
func (a Accelerator) ReleaseModifier() string {
	switch {
	case a.Has(Control):
		return "ctrl"
	case a.Has(Alt):
		return "alt"
	}
	return ""
}
