//go:build linux

package hotkey

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	evKey      = 1
	keyRelease = 0
	keyPress   = 1

	inputEventSize = 24
	devInput       = "/dev/input"
	sysInput       = "/sys/class/input"
)

var errNoKeyboards = errors.New("no keyboard devices found (is user in 'input' group?)")

// evdev codes, left and right variants.
var modCodes = map[Mod][]uint16{
	Control: {29, 97},
	Shift:   {42, 54},
	Alt:     {56, 100},
	Super:   {125, 126},
	Meta:    {125, 126},
}

var keyCodes = map[string]uint16{
	"Escape": 1, "Tab": 15, "Return": 28, "Space": 57,
	"1": 2, "2": 3, "3": 4, "4": 5, "5": 6, "6": 7, "7": 8, "8": 9, "9": 10, "0": 11,
	"Q": 16, "W": 17, "E": 18, "R": 19, "T": 20, "Y": 21, "U": 22, "I": 23, "O": 24, "P": 25,
	"A": 30, "S": 31, "D": 32, "F": 33, "G": 34, "H": 35, "J": 36, "K": 37, "L": 38,
	"Z": 44, "X": 45, "C": 46, "V": 47, "B": 48, "N": 49, "M": 50,
	"F1": 59, "F2": 60, "F3": 61, "F4": 62, "F5": 63, "F6": 64,
	"F7": 65, "F8": 66, "F9": 67, "F10": 68, "F11": 87, "F12": 88,
}

// evdevHotkey watches every readable keyboard for one combo. Each device
// tracks its own held keys.
type evdevHotkey struct {
	mods []Mod
	key  uint16

	down chan struct{}
	up   chan struct{}

	mu      sync.Mutex
	devices []*os.File
	closed  bool
}

func New(acc Accelerator) (Hotkey, error) {
	key, ok := keyCodes[acc.Key]
	if !ok {
		return nil, fmt.Errorf("unsupported key %q", acc.Key)
	}
	for _, m := range acc.Mods {
		if _, ok := modCodes[m]; !ok {
			return nil, fmt.Errorf("unsupported modifier %s", m)
		}
	}
	return &evdevHotkey{
		mods: acc.Mods,
		key:  key,
		down: make(chan struct{}, 1),
		up:   make(chan struct{}, 1),
	}, nil
}

func (h *evdevHotkey) Register() error {
	devices, found, err := openKeyboards()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		return fmt.Errorf("could not open any of %d keyboard(s) (run: sudo usermod -aG input $USER, then re-login)", found)
	}
	h.mu.Lock()
	h.devices = devices
	h.mu.Unlock()
	for _, f := range devices {
		go h.watch(f)
	}
	return nil
}

func (h *evdevHotkey) Unregister() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	// Closing the file unblocks the pending Read in watch.
	for _, f := range h.devices {
		f.Close()
	}
}

func (h *evdevHotkey) Keydown() <-chan struct{} { return h.down }
func (h *evdevHotkey) Keyup() <-chan struct{}   { return h.up }

// comboState is the held-key view of one device.
type comboState struct {
	held    map[uint16]bool
	keyHeld bool
}

func (h *evdevHotkey) modsHeld(st *comboState) bool {
	for _, m := range h.mods {
		if !anyHeld(st.held, modCodes[m]) {
			return false
		}
	}
	return true
}

func anyHeld(held map[uint16]bool, codes []uint16) bool {
	for _, c := range codes {
		if held[c] {
			return true
		}
	}
	return false
}

// feed applies one key event and reports a combo edge. Autorepeat
// (value 2) never produces one.
func (h *evdevHotkey) feed(st *comboState, code uint16, value int32) (down, up bool) {
	if code != h.key {
		switch value {
		case keyPress:
			st.held[code] = true
		case keyRelease:
			delete(st.held, code)
		}
		return false, false
	}
	switch {
	case value == keyPress && !st.keyHeld && h.modsHeld(st):
		st.keyHeld = true
		return true, false
	case value == keyRelease && st.keyHeld:
		st.keyHeld = false
		return false, true
	}
	return false, false
}

func (h *evdevHotkey) watch(f *os.File) {
	st := &comboState{held: map[uint16]bool{}}
	buf := make([]byte, inputEventSize*16)
	for {
		n, err := f.Read(buf)
		if err != nil {
			return
		}
		eachKeyEvent(buf[:n], func(code uint16, value int32) {
			down, up := h.feed(st, code, value)
			if down {
				signal(h.down)
			}
			if up {
				signal(h.up)
			}
		})
	}
}

// eachKeyEvent calls fn for every EV_KEY record in a raw read.
func eachKeyEvent(buf []byte, fn func(code uint16, value int32)) {
	for i := 0; i+inputEventSize <= len(buf); i += inputEventSize {
		rec := buf[i : i+inputEventSize]
		if binary.LittleEndian.Uint16(rec[16:]) != evKey {
			continue
		}
		fn(binary.LittleEndian.Uint16(rec[18:]), int32(binary.LittleEndian.Uint32(rec[20:])))
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// keyboardPaths lists event nodes whose key capability mask is wide
// enough to be a keyboard rather than a power button or lid switch.
func keyboardPaths() ([]string, error) {
	entries, err := os.ReadDir(devInput)
	if err != nil {
		return nil, fmt.Errorf("cannot scan input devices: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "event") {
			continue
		}
		caps, err := os.ReadFile(filepath.Join(sysInput, e.Name(), "device", "capabilities", "key"))
		if err != nil || len(strings.TrimSpace(string(caps))) <= 10 {
			continue
		}
		paths = append(paths, filepath.Join(devInput, e.Name()))
	}
	return paths, nil
}

// openKeyboards opens every keyboard it can and reports how many it found.
func openKeyboards() ([]*os.File, int, error) {
	paths, err := keyboardPaths()
	if err != nil {
		return nil, 0, err
	}
	if len(paths) == 0 {
		return nil, 0, errNoKeyboards
	}
	var files []*os.File
	for _, p := range paths {
		if f, err := os.Open(p); err == nil {
			files = append(files, f)
		}
	}
	return files, len(paths), nil
}

func Diagnose() (string, error) {
	files, found, err := openKeyboards()
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("found %d keyboard(s) but cannot open any (run: sudo usermod -aG input $USER)", found)
	}
	first := files[0].Name()
	for _, f := range files {
		f.Close()
	}
	return fmt.Sprintf("%d keyboard(s) found, %d readable, first %s", found, len(files), first), nil
}
