//go:build linux

package clipboard

// NewKeystroker returns the uinput backend; linux has no other.
func NewKeystroker(backend, shell string) Keystroker {
	return &Uinput{}
}
