//go:build !linux

package clipboard

// NewKeystroker picks the keystroke backend once at startup. "sendkeys"
// selects PowerShell on windows; anything else uses keybd_event.
func NewKeystroker(backend, shell string) Keystroker {
	if backend == "sendkeys" {
		return NewPowerShell(shell)
	}
	return NewKeybd()
}
