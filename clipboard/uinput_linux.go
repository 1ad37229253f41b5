//go:build linux

package clipboard

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

// linux/uinput.h
const (
	uiSetEvbit  = 0x40045564
	uiSetKeybit = 0x40045565
	uiDevCreate = 0x5501
)

// linux/input-event-codes.h
const (
	evSyn = 0x00
	evKey = 0x01

	keyLCtrl  = 29
	keyLShift = 42
	keyA      = 30
	keyC      = 46
	keyV      = 47
	keyLeft   = 105
)

const (
	busUSB          = 0x03
	uinputName      = "rephrase-keys"
	inputEventSize  = 24
	modifierSettle  = 5 * time.Millisecond
	deviceAnnounce  = 200 * time.Millisecond
	shiftLeftPacing = 20 * time.Millisecond
)

var uinputPaths = []string{"/dev/uinput", "/dev/input/uinput"}

type inputEvent struct {
	Time  syscall.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

type uinputUserDev struct {
	Name    [80]byte
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
	FFMax   uint32
	Absmax  [64]int32
	Absmin  [64]int32
	Absfuzz [64]int32
	Absflat [64]int32
}

// Uinput synthesizes shortcuts through a virtual keyboard. The device is
// created on first use and lives for the rest of the process.
type Uinput struct {
	mu   sync.Mutex
	once sync.Once
	dev  *os.File
	err  error
}

func ioctl(f *os.File, req, arg uintptr) error {
	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, f.Fd(), req, arg); errno != 0 {
		return errno
	}
	return nil
}

func openUinput() (*os.File, error) {
	for _, p := range uinputPaths {
		if _, err := os.Stat(p); err == nil {
			return os.OpenFile(p, os.O_WRONLY|syscall.O_NONBLOCK, os.ModeDevice)
		}
	}
	return nil, errors.New("uinput device not found, try: sudo modprobe uinput")
}

func (u *Uinput) device() (*os.File, error) {
	u.once.Do(func() {
		f, err := openUinput()
		if err != nil {
			u.err = err
			return
		}
		if err := createKeyboard(f); err != nil {
			f.Close()
			u.err = fmt.Errorf("create virtual keyboard: %w", err)
			return
		}
		u.dev = f
		time.Sleep(deviceAnnounce)
	})
	return u.dev, u.err
}

// createKeyboard registers every standard key so udev classifies the
// device as a keyboard.
func createKeyboard(f *os.File) error {
	for _, bit := range []uintptr{evKey, evSyn} {
		if err := ioctl(f, uiSetEvbit, bit); err != nil {
			return err
		}
	}
	for code := uintptr(0); code < 256; code++ {
		if err := ioctl(f, uiSetKeybit, code); err != nil {
			return err
		}
	}
	dev := uinputUserDev{Bustype: busUSB, Vendor: 0x1234, Product: 0x5678, Version: 1}
	copy(dev.Name[:], uinputName)
	if err := binary.Write(f, binary.LittleEndian, &dev); err != nil {
		return err
	}
	return ioctl(f, uiDevCreate, 0)
}

func emit(f *os.File, code uint16, value int32) error {
	for _, ev := range []inputEvent{{Type: evKey, Code: code, Value: value}, {Type: evSyn}} {
		if err := binary.Write(f, binary.LittleEndian, &ev); err != nil {
			return err
		}
	}
	return nil
}

// chord holds mod around a tap of key.
func (u *Uinput) chord(mod, key uint16) error {
	f, err := u.device()
	if err != nil {
		return err
	}
	steps := [...]struct {
		code  uint16
		value int32
	}{{mod, 1}, {key, 1}, {key, 0}, {mod, 0}}
	for i, st := range steps {
		if err := emit(f, st.code, st.value); err != nil {
			return err
		}
		if i < len(steps)-1 {
			time.Sleep(modifierSettle)
		}
	}
	return nil
}

func (u *Uinput) Copy() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.chord(keyLCtrl, keyC)
}

func (u *Uinput) Paste() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.chord(keyLCtrl, keyV)
}

func (u *Uinput) SelectAll() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.chord(keyLCtrl, keyA)
}

func (u *Uinput) ShiftLeft(n int) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	for range n {
		if err := u.chord(keyLShift, keyLeft); err != nil {
			return err
		}
		time.Sleep(shiftLeftPacing)
	}
	return nil
}

// keyCodes returns the key codes of the EV_KEY events in a raw evdev
// read.
func keyCodes(buf []byte) map[uint16]bool {
	seen := map[uint16]bool{}
	for i := 0; i+inputEventSize <= len(buf); i += inputEventSize {
		if binary.LittleEndian.Uint16(buf[i+16:]) == evKey {
			seen[binary.LittleEndian.Uint16(buf[i+18:])] = true
		}
	}
	return seen
}

func findEvdev(name string) (string, error) {
	entries, err := os.ReadDir("/sys/class/input")
	if err != nil {
		return "", fmt.Errorf("cannot scan input devices: %w", err)
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "event") {
			continue
		}
		data, err := os.ReadFile(filepath.Join("/sys/class/input", e.Name(), "device", "name"))
		if err == nil && strings.TrimSpace(string(data)) == name {
			return filepath.Join("/dev/input", e.Name()), nil
		}
	}
	return "", errors.New(name + " evdev device not found")
}

var verifier Uinput

// Verify sends Ctrl+V through the virtual keyboard and reads it back from
// the kernel input layer.
func Verify() (string, error) {
	if _, err := verifier.device(); err != nil {
		return "", fmt.Errorf("uinput init: %w", err)
	}
	path, err := findEvdev(uinputName)
	if err != nil {
		return "", err
	}
	evdev, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer evdev.Close()

	if err := verifier.Paste(); err != nil {
		return "", fmt.Errorf("paste send: %w", err)
	}

	type result struct {
		keys map[uint16]bool
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		buf := make([]byte, inputEventSize*32)
		n, err := evdev.Read(buf)
		ch <- result{keys: keyCodes(buf[:max(n, 0)]), err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return "", fmt.Errorf("reading events: %w", r.err)
		}
		if !r.keys[keyLCtrl] || !r.keys[keyV] {
			return "", fmt.Errorf("missing events (ctrl=%v, v=%v)", r.keys[keyLCtrl], r.keys[keyV])
		}
		return fmt.Sprintf("Ctrl+V keystroke verified via %s", path), nil
	case <-time.After(500 * time.Millisecond):
		return "", errors.New("timed out waiting for keystroke events")
	}
}
