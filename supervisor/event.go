package supervisor

import (
	"strconv"
	"strings"
)

// Kind identifies which watcher script a process runs.
type Kind int

const (
	ComboDetector Kind = iota
	ReleaseDetector
	URLMonitor
	KeyTracker
)

func (k Kind) String() string {
	switch k {
	case ComboDetector:
		return "combo_detector"
	case ReleaseDetector:
		return "release_detector"
	case URLMonitor:
		return "url_monitor"
	case KeyTracker:
		return "key_tracker"
	}
	return "unknown"
}

// Script is the file name of the watcher script for k.
func (k Kind) Script() string {
	switch k {
	case ComboDetector:
		return "comboMonitor.ps1"
	case ReleaseDetector:
		return "keyRelease.ps1"
	case URLMonitor:
		return "urlMonitor.ps1"
	case KeyTracker:
		return "keyTracker.ps1"
	}
	return ""
}

// Event is emitted by a watcher. Concrete types: ComboDown, KeyReleased,
// URLObserved, KeyTyped, Exited.
type Event interface {
	isEvent()
}

// Combo names reported by the combo detector.
const (
	ComboCtrlWin = "ctrl_win"
	ComboAltWin  = "alt_win"
)

type ComboDown struct {
	Combo string
}

type KeyReleased struct{}

type Bounds struct {
	X, Y, W, H int
}

type URLObserved struct {
	URL    string
	Bounds Bounds
}

// Key classifies a KeyTyped event.
type Key int

const (
	KeyChar Key = iota
	KeySpace
	KeyBackspace
	// KeyReset covers enter, clicks, arrows and bare modifiers: anything
	// that invalidates the tracked run of typed text.
	KeyReset
)

type KeyTyped struct {
	Key  Key
	Char string
}

// Exited is delivered once, after the process has ended.
type Exited struct {
	Err error
}

func (ComboDown) isEvent()   {}
func (KeyReleased) isEvent() {}
func (URLObserved) isEvent() {}
func (KeyTyped) isEvent()    {}
func (Exited) isEvent()      {}

// ParseLine converts one line of watcher stdout into an event.
// Unrecognised or malformed lines return ok=false.
func ParseLine(kind Kind, line string) (Event, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, false
	}
	switch kind {
	case ComboDetector:
		switch {
		case strings.Contains(line, "ctrl_win_down"):
			return ComboDown{Combo: ComboCtrlWin}, true
		case strings.Contains(line, "alt_win_down"):
			return ComboDown{Combo: ComboAltWin}, true
		}
	case ReleaseDetector:
		if strings.Contains(line, "released") {
			return KeyReleased{}, true
		}
	case URLMonitor:
		return parseURL(line)
	case KeyTracker:
		return parseKey(line)
	}
	return nil, false
}

func parseURL(line string) (Event, bool) {
	parts := strings.SplitN(line, "|", 3)
	if len(parts) != 3 || parts[0] != "URL" || parts[1] == "" {
		return nil, false
	}
	nums := strings.Split(parts[2], ",")
	if len(nums) != 4 {
		return nil, false
	}
	var v [4]int
	for i, n := range nums {
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil, false
		}
		v[i] = int(f)
	}
	return URLObserved{
		URL:    parts[1],
		Bounds: Bounds{X: v[0], Y: v[1], W: v[2], H: v[3]},
	}, true
}

func parseKey(line string) (Event, bool) {
	switch line {
	case "SPACE":
		return KeyTyped{Key: KeySpace, Char: " "}, true
	case "BACKSPACE":
		return KeyTyped{Key: KeyBackspace}, true
	case "ENTER", "CLICK", "ARROW", "MODIFIER":
		return KeyTyped{Key: KeyReset}, true
	}
	if ch, ok := strings.CutPrefix(line, "CHAR:"); ok {
		r := []rune(ch)
		if len(r) != 1 || r[0] < 32 {
			return nil, false
		}
		return KeyTyped{Key: KeyChar, Char: ch}, true
	}
	return nil, false
}
