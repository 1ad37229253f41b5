package audio

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Headset profiles drop the mic to 8 or 16 kHz narrowband, which hurts
// recognition noticeably. Names are matched lowercase.
var (
	btBrands = []string{
		"airpods", "beats", "powerbeats", "bose", "jabra", "plantronics",
		"sony wh-", "sony wf-", "wh-1000", "wf-1000",
		"galaxy buds", "pixel buds", "jbl ", "sennheiser momentum",
		"tozo", "anker soundcore", "skullcandy",
	}
	btMarkers = []string{"bluetooth", " bt ", " bt)", " bt]"}
)

// IsBluetooth guesses from the device name.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	return containsAny(lower, btMarkers) || containsAny(lower, btBrands)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// DataCallback receives interleaved PCM16 from the capture thread.
type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

// DefaultCapture is the format every recorder asks the backend for.
var DefaultCapture = CaptureConfig{SampleRate: SampleRate, Channels: Channels}

type DeviceInfo struct {
	ID   string // opaque, backend specific
	Name string
}

// Context enumerates inputs and opens captures on one audio backend.
type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

// CaptureDevice delivers data to its callback between Start and Stop.
// SetCallback(nil) detaches the current callback.
type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
}

// callbackSlot lets the audio thread read the callback without locking.
type callbackSlot struct {
	p atomic.Pointer[DataCallback]
}

func (s *callbackSlot) set(cb DataCallback) {
	if cb == nil {
		s.p.Store(nil)
		return
	}
	s.p.Store(&cb)
}

func (s *callbackSlot) deliver(data []byte, frames uint32) {
	if cb := s.p.Load(); cb != nil {
		(*cb)(data, frames)
	}
}

// FindDevice resolves a configured microphone by exact name or ID, then
// by case-insensitive substring. An empty name means the system default
// and returns nil.
func FindDevice(ctx Context, name string) (*DeviceInfo, error) {
	if name == "" {
		return nil, nil
	}
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	lower := strings.ToLower(name)
	match := -1
	for i, d := range devices {
		if d.Name == name || d.ID == name {
			return &devices[i], nil
		}
		if match < 0 && strings.Contains(strings.ToLower(d.Name), lower) {
			match = i
		}
	}
	if match < 0 {
		return nil, fmt.Errorf("microphone %q not found", name)
	}
	return &devices[match], nil
}
