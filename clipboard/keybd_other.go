//go:build !linux

package clipboard

import (
	"runtime"
	"sync"
	"time"

	"github.com/micmonay/keybd_event"
)

// Keybd synthesizes shortcuts with keybd_event: Cmd on macOS, Ctrl
// everywhere else.
type Keybd struct {
	mu   sync.Mutex
	once sync.Once
	kb   keybd_event.KeyBonding
	err  error
	cmd  bool
}

func NewKeybd() *Keybd {
	return &Keybd{cmd: runtime.GOOS == "darwin"}
}

func (k *Keybd) init() error {
	k.once.Do(func() {
		k.kb, k.err = keybd_event.NewKeyBonding()
	})
	return k.err
}

func (k *Keybd) press(key int, shortcut, shift bool) error {
	if err := k.init(); err != nil {
		return err
	}
	k.kb.Clear()
	k.kb.SetKeys(key)
	if shortcut {
		if k.cmd {
			k.kb.HasSuper(true)
		} else {
			k.kb.HasCTRL(true)
		}
	}
	k.kb.HasSHIFT(shift)
	return k.kb.Launching()
}

func (k *Keybd) Copy() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.press(keybd_event.VK_C, true, false)
}

func (k *Keybd) Paste() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.press(keybd_event.VK_V, true, false)
}

func (k *Keybd) SelectAll() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.press(keybd_event.VK_A, true, false)
}

func (k *Keybd) ShiftLeft(n int) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for i := 0; i < n; i++ {
		if err := k.press(keybd_event.VK_LEFT, false, true); err != nil {
			return err
		}
		time.Sleep(20 * time.Millisecond)
	}
	return nil
}

// Verify checks that the keyboard event binding is initialized.
func Verify() (string, error) {
	k := NewKeybd()
	if err := k.init(); err != nil {
		return "", err
	}
	if k.cmd {
		return "keyboard event binding OK (Cmd+V)", nil
	}
	return "keyboard event binding OK (Ctrl+V)", nil
}
