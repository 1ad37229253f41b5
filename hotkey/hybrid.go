package hotkey

import (
	"sync"
	"time"

	"rephrase/clock"
)

type Mode string

const (
	ModePTT    Mode = "ptt"
	ModeToggle Mode = "toggle"
)

// Hybrid gives one combo both tap-to-toggle and hold-to-talk behavior.
// Every press from idle starts; a release after longPress stops (hold),
// an earlier release leaves recording on until the next press is released.
type Hybrid struct {
	longPress time.Duration
	clk       clock.Clock
	start     func()
	stop      func()

	mu        sync.Mutex
	state     hybridState
	pressedAt time.Time
}

type hybridState int

const (
	stIdle hybridState = iota
	stPressed
	stToggleRecording
	stStopPressed
)

func NewHybrid(longPress time.Duration, clk clock.Clock, start, stop func()) *Hybrid {
	if clk == nil {
		clk = clock.Real()
	}
	return &Hybrid{longPress: longPress, clk: clk, start: start, stop: stop}
}

// Handler is the binding to register for the combo.
func (h *Hybrid) Handler() Handler {
	return Handler{Down: h.down, Up: h.up}
}

func (h *Hybrid) down() {
	h.mu.Lock()
	var fire func()
	switch h.state {
	case stIdle:
		h.state = stPressed
		h.pressedAt = h.clk.Now()
		fire = h.start
	case stToggleRecording:
		h.state = stStopPressed
	}
	h.mu.Unlock()
	if fire != nil {
		fire()
	}
}

func (h *Hybrid) up() {
	h.mu.Lock()
	var fire func()
	switch h.state {
	case stPressed:
		if h.clk.Now().Sub(h.pressedAt) >= h.longPress {
			h.state = stIdle
			fire = h.stop
		} else {
			h.state = stToggleRecording
		}
	case stStopPressed:
		h.state = stIdle
		fire = h.stop
	}
	h.mu.Unlock()
	if fire != nil {
		fire()
	}
}

// IsToggle reports whether the current recording was started by a tap.
func (h *Hybrid) IsToggle() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == stToggleRecording || h.state == stStopPressed
}

// Reset returns to idle without firing stop. The owner calls it when the
// recording ended on its own.
func (h *Hybrid) Reset() {
	h.mu.Lock()
	h.state = stIdle
	h.mu.Unlock()
}
