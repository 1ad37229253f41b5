package overlay

import (
	"sync"

	"rephrase/beep"
	"rephrase/session"
)

// Status is what the overlay shows. It is derived from the session state
// and never stored on its own.
type Status int

const (
	Hidden Status = iota
	Listening
	Transcribing
	Done
	Error
)

func (s Status) String() string {
	switch s {
	case Hidden:
		return "hidden"
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

func Project(s session.State) Status {
	switch s {
	case session.Listening:
		return Listening
	case session.Transcribing:
		return Transcribing
	case session.Done:
		return Done
	case session.Error:
		return Error
	}
	return Hidden
}

// View is one frame pushed to a Surface.
type View struct {
	Status  Status
	Message string
	App     string
}

// Surface draws the overlay. Icon receives the foreground app icon as
// base64 PNG, or "" to reset to the default.
type Surface interface {
	Show(View)
	Icon(b64 string)
}

// Presenter turns session snapshots into surface updates and sound cues.
type Presenter struct {
	Surface Surface
	Player  beep.Player
	// Cues enables the start and end sounds. The error cue always plays.
	Cues bool

	mu   sync.Mutex
	last View
	icon string
}

func NewPresenter(s Surface, p beep.Player, cues bool) *Presenter {
	if p == nil {
		p = beep.Silent{}
	}
	return &Presenter{Surface: s, Player: p, Cues: cues}
}

func (p *Presenter) Present(snap session.Snapshot) {
	v := View{Status: Project(snap.State), Message: snap.Message, App: snap.App.Name}

	p.mu.Lock()
	changed := v != p.last
	entered := v.Status != p.last.Status
	p.last = v
	icon := snap.App.Icon
	newIcon := icon != p.icon
	p.icon = icon
	p.mu.Unlock()

	if newIcon {
		p.Surface.Icon(icon)
	}
	if changed {
		p.Surface.Show(v)
	}
	if !entered {
		return
	}
	switch v.Status {
	case Error:
		p.Player.Play(beep.Error)
	case Listening:
		if p.Cues {
			p.Player.Play(beep.Start)
		}
	case Transcribing:
		if p.Cues {
			p.Player.Play(beep.End)
		}
	}
}

// Dispatcher is the part of the session machine the overlay talks back to.
type Dispatcher interface {
	Dispatch(session.Event)
}

// Dismiss is the user closing the overlay.
func Dismiss(d Dispatcher) {
	d.Dispatch(session.Cancel{})
}
