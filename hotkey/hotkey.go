package hotkey

import (
	"errors"
	"fmt"
	"sync"
)

// ErrReserved is returned for combos the OS hotkey API cannot register,
// such as modifier-only chords.
var ErrReserved = errors.New("combo is reserved by the OS")

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

// Handler receives press and release of a bound combo. Up may be nil.
// Hold, when set, is preferred by fallbacks that cannot see the release
// themselves; it is passed the modifier to watch.
type Handler struct {
	Down func()
	Up   func()
	Hold func(modifier string)
}

type Binder interface {
	Bind(acc Accelerator, h Handler) (unbind func(), err error)
}

// SystemBinder binds through the platform hotkey implementation.
type SystemBinder struct{}

func (SystemBinder) Bind(acc Accelerator, h Handler) (func(), error) {
	if acc.ModifierOnly() {
		return nil, fmt.Errorf("%s: %w", acc, ErrReserved)
	}
	hk, err := New(acc)
	if err != nil {
		return nil, err
	}
	if err := hk.Register(); err != nil {
		return nil, fmt.Errorf("register %s: %w", acc, err)
	}

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-hk.Keydown():
				if h.Down != nil {
					h.Down()
				}
			case <-hk.Keyup():
				if h.Up != nil {
					h.Up()
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			hk.Unregister()
		})
	}, nil
}
