package clipboard

import (
	"errors"

	cb "github.com/atotto/clipboard"
)

// ErrNothingSelected is returned when a copy produced no text.
var ErrNothingSelected = errors.New("no text found, click inside a text field first")

// Clipboard is the system text clipboard.
type Clipboard interface {
	Read() (string, error)
	Write(text string) error
}

// Keystroker synthesizes the platform copy/paste shortcuts into the
// focused window.
type Keystroker interface {
	Copy() error
	Paste() error
	SelectAll() error
	ShiftLeft(n int) error
}

// System is the OS clipboard.
type System struct{}

func (System) Read() (string, error) {
	return cb.ReadAll()
}

func (System) Write(text string) error {
	return cb.WriteAll(text)
}
