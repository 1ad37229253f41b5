package overlay

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"rephrase/beep"
	"rephrase/session"
)

type surface struct {
	views []View
	icons []string
}

func (s *surface) Show(v View)     { s.views = append(s.views, v) }
func (s *surface) Icon(b64 string) { s.icons = append(s.icons, b64) }

func TestProject(t *testing.T) {
	cases := map[session.State]Status{
		session.Idle:         Hidden,
		session.Listening:    Listening,
		session.Transcribing: Transcribing,
		session.Done:         Done,
		session.Error:        Error,
	}
	for in, want := range cases {
		if got := Project(in); got != want {
			t.Errorf("Project(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestPresenterCues(t *testing.T) {
	s := &surface{}
	rec := &beep.Recorder{}
	p := NewPresenter(s, rec, true)

	p.Present(session.Snapshot{State: session.Listening})
	p.Present(session.Snapshot{State: session.Listening, App: session.App{Name: "code", Icon: "iVBOR"}})
	p.Present(session.Snapshot{State: session.Transcribing})
	p.Present(session.Snapshot{State: session.Error, Message: "No speech detected"})
	p.Present(session.Snapshot{State: session.Done})
	p.Present(session.Snapshot{State: session.Idle})

	want := []beep.Cue{beep.Start, beep.End, beep.Error}
	if got := rec.Played(); !slices.Equal(got, want) {
		t.Errorf("cues = %v, want %v", got, want)
	}
	if len(s.views) != 6 || s.views[3].Message != "No speech detected" || s.views[5].Status != Hidden {
		t.Errorf("views = %+v", s.views)
	}
	if !slices.Equal(s.icons, []string{"iVBOR", ""}) {
		t.Errorf("icons = %q", s.icons)
	}
}

func TestPresenterErrorCueWithoutCues(t *testing.T) {
	rec := &beep.Recorder{}
	p := NewPresenter(&surface{}, rec, false)
	p.Present(session.Snapshot{State: session.Listening})
	p.Present(session.Snapshot{State: session.Error})
	if got := rec.Played(); !slices.Equal(got, []beep.Cue{beep.Error}) {
		t.Errorf("cues = %v", got)
	}
}

type dispatcher struct{ events []session.Event }

func (d *dispatcher) Dispatch(e session.Event) { d.events = append(d.events, e) }

func TestDismissCancels(t *testing.T) {
	d := &dispatcher{}
	Dismiss(d)
	if len(d.events) != 1 {
		t.Fatalf("events = %v", d.events)
	}
	if _, ok := d.events[0].(session.Cancel); !ok {
		t.Errorf("event = %T", d.events[0])
	}
}

func TestLookupWindows(t *testing.T) {
	var gotName string
	l := &Lookup{GOOS: "windows", PowerShell: "pwsh", Timeout: time.Second,
		Run: func(_ context.Context, name string, _ ...string) ([]byte, error) {
			gotName = name
			return []byte("Cursor|iVBORw0KGgo=\r\n"), nil
		}}
	app, err := l.App(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if gotName != "pwsh" || app.Name != "cursor" || app.Icon != "iVBORw0KGgo=" {
		t.Errorf("ran %q, app = %+v", gotName, app)
	}
}

func TestLookupFailures(t *testing.T) {
	for _, out := range []string{"error|", "", "  \n"} {
		l := &Lookup{GOOS: "windows", Timeout: time.Second,
			Run: func(context.Context, string, ...string) ([]byte, error) { return []byte(out), nil }}
		if _, err := l.App(context.Background()); !errors.Is(err, ErrNoForeground) {
			t.Errorf("%q: err = %v", out, err)
		}
	}

	l := &Lookup{GOOS: "linux", Timeout: time.Second,
		Run: func(context.Context, string, ...string) ([]byte, error) { return nil, errors.New("not found") }}
	if _, err := l.App(context.Background()); err == nil {
		t.Error("expected runner error")
	}
}

func TestLookupDarwinNoIcon(t *testing.T) {
	l := &Lookup{GOOS: "darwin", Timeout: time.Second,
		Run: func(_ context.Context, name string, _ ...string) ([]byte, error) {
			if name != "osascript" {
				t.Errorf("name = %q", name)
			}
			return []byte("Safari\n"), nil
		}}
	app, err := l.App(context.Background())
	if err != nil || app.Name != "safari" || app.Icon != "" {
		t.Errorf("app = %+v, err = %v", app, err)
	}
}
