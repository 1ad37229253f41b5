package session

import "rephrase/pipeline"

type State int

const (
	Idle State = iota
	Listening
	Transcribing
	Done
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Transcribing:
		return "transcribing"
	case Done:
		return "done"
	case Error:
		return "error"
	}
	return "unknown"
}

// Driver decides what ends the listening phase.
type Driver int

const (
	// DriverToggle stops on a second press of the same hotkey.
	DriverToggle Driver = iota
	// DriverReleaseWatcher stops when a spawned release detector reports
	// the modifier going up.
	DriverReleaseWatcher
)

func (d Driver) String() string {
	if d == DriverReleaseWatcher {
		return "release_watcher"
	}
	return "toggle"
}

type Event interface {
	name() string
}

// Trigger starts a session. Modifier names the held key for the release
// watcher ("ctrl" or "alt").
type Trigger struct {
	Mode     pipeline.Mode
	Driver   Driver
	Modifier string
}

// Toggle starts a toggle session when idle and stops it when listening.
type Toggle struct {
	Mode pipeline.Mode
}

// Released comes from the release watcher of session Gen, either the
// released token or the watcher exiting.
type Released struct{ Gen uint64 }

// Stop ends listening whatever the driver.
type Stop struct{}

// Cancel is the user dismissing the overlay.
type Cancel struct{}

type AudioReady struct {
	Gen   uint64
	Audio []byte
	Err   error
}

type AppDetected struct {
	Gen uint64
	App App
}

type PipelineFinished struct {
	Gen    uint64
	Result pipeline.Result
}

type SafetyTimeout struct{ Gen uint64 }
type ErrorElapsed struct{ Gen uint64 }
type FadeElapsed struct{ Gen uint64 }

func (Trigger) name() string          { return "trigger" }
func (Toggle) name() string           { return "toggle" }
func (Released) name() string         { return "released" }
func (Stop) name() string             { return "stop" }
func (Cancel) name() string           { return "cancel" }
func (AudioReady) name() string       { return "audio_ready" }
func (AppDetected) name() string      { return "app_detected" }
func (PipelineFinished) name() string { return "pipeline_finished" }
func (SafetyTimeout) name() string    { return "safety_timeout" }
func (ErrorElapsed) name() string     { return "error_elapsed" }
func (FadeElapsed) name() string      { return "fade_elapsed" }
