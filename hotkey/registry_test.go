package hotkey

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Control+Super", "Control+Super"},
		{"super+ctrl", "Control+Super"},
		{"CommandOrControl+Shift+Space", "Shift+CommandOrControl+Space"},
		{"Alt+Win", "Alt+Super"},
		{"ctrl+shift+r", "Control+Shift+R"},
		{"Control+F11", "Control+F11"},
		{"Ctrl+Ctrl+enter", "Control+Return"},
	}
	for _, tt := range tests {
		acc, err := Parse(tt.in)
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.in, err)
			continue
		}
		if got := acc.String(); got != tt.want {
			t.Errorf("Parse(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseRejects(t *testing.T) {
	for _, in := range []string{"", "Space", "Control+", "Control+A+B", "Control+F13", "Control+F01", "Control+Pause"} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) succeeded", in)
		}
	}
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		in, goos, want string
	}{
		{"Control+Super", "darwin", "Control+Meta"},
		{"Control+Super", "windows", "Control+Super"},
		{"CommandOrControl+Shift+Space", "darwin", "Shift+Meta+Space"},
		{"CommandOrControl+Shift+Space", "linux", "Control+Shift+Space"},
		{"Super+Meta+K", "darwin", "Meta+K"},
	}
	for _, tt := range tests {
		acc, err := Parse(tt.in)
		if err != nil {
			t.Fatal(err)
		}
		if got := Translate(acc, tt.goos).String(); got != tt.want {
			t.Errorf("Translate(%q, %s) = %q, want %q", tt.in, tt.goos, got, tt.want)
		}
	}
}

func TestReleaseModifier(t *testing.T) {
	for in, want := range map[string]string{
		"Control+Super": "ctrl",
		"Alt+Super":     "alt",
		"Shift+Meta+K":  "",
	} {
		acc, _ := Parse(in)
		if got := acc.ReleaseModifier(); got != want {
			t.Errorf("%s: got %q, want %q", in, got, want)
		}
	}
}

type recordingFallback struct {
	watched map[string]int
	fail    bool
}

func (f *recordingFallback) Watch(acc Accelerator, h Handler) (func(), error) {
	if f.fail {
		return nil, errors.New("no watcher")
	}
	f.watched[acc.String()]++
	key := acc.String()
	return func() { f.watched[key]-- }, nil
}

func newTestRegistry(goos string) (*Registry, *FakeBinder, *recordingFallback, map[Action]int) {
	fired := map[Action]int{}
	handlers := map[Action]Handler{}
	for _, a := range []Action{ActionVoice, ActionComposer, ActionRephrase} {
		a := a
		handlers[a] = Handler{Down: func() { fired[a]++ }}
	}
	fb := NewFakeBinder()
	fall := &recordingFallback{watched: map[string]int{}}
	return NewRegistry(fb, fall, goos, handlers), fb, fall, fired
}

func TestRegisterAllIsIdempotent(t *testing.T) {
	r, fb, fall, fired := newTestRegistry("windows")
	accels := map[Action]string{
		ActionVoice:    "Control+Super",
		ActionComposer: "Alt+Super",
		ActionRephrase: "Control+Shift+R",
	}
	for i := 0; i < 3; i++ {
		if errs := r.RegisterAll(accels); len(errs) != 0 {
			t.Fatalf("round %d: %v", i, errs)
		}
	}

	if n := fb.Handlers("Control+Shift+R"); n != 1 {
		t.Errorf("rephrase handlers = %d, want 1", n)
	}
	if fall.watched["Control+Super"] != 1 || fall.watched["Alt+Super"] != 1 {
		t.Errorf("fallback watches = %v, want one each", fall.watched)
	}

	fb.Press("Control+Shift+R")
	if fired[ActionRephrase] != 1 {
		t.Errorf("one press fired rephrase %d times", fired[ActionRephrase])
	}
}

func TestRegisterAllReplacesOldCombo(t *testing.T) {
	r, fb, _, _ := newTestRegistry("linux")
	r.RegisterAll(map[Action]string{ActionRephrase: "Control+Shift+R"})
	r.RegisterAll(map[Action]string{ActionRephrase: "Control+Shift+E"})
	if fb.Handlers("Control+Shift+R") != 0 {
		t.Error("old combo still bound")
	}
	if fb.Handlers("Control+Shift+E") != 1 {
		t.Error("new combo not bound")
	}
	acc, ok := r.Bound(ActionRephrase)
	if !ok || acc.String() != "Control+Shift+E" {
		t.Errorf("Bound = %v, %v", acc, ok)
	}
}

func TestRegisterAllTranslatesOnDarwin(t *testing.T) {
	r, fb, _, _ := newTestRegistry("darwin")
	r.RegisterAll(map[Action]string{ActionComposer: "Super+Shift+K"})
	if fb.Handlers("Shift+Meta+K") != 1 {
		t.Error("Super was not translated to Meta before binding")
	}
}

func TestRegisterAllReportsUnboundable(t *testing.T) {
	r, _, fall, _ := newTestRegistry("linux")
	fall.fail = true
	errs := r.RegisterAll(map[Action]string{
		ActionVoice:    "Control+Super",
		ActionRephrase: "nonsense+",
	})
	if !errors.Is(errs[ActionVoice], ErrReserved) {
		t.Errorf("voice err = %v, want ErrReserved", errs[ActionVoice])
	}
	if errs[ActionRephrase] == nil {
		t.Error("expected parse error for rephrase")
	}
	if _, ok := r.Bound(ActionVoice); ok {
		t.Error("voice reported bound")
	}
}

func TestUnregisterAll(t *testing.T) {
	r, fb, fall, _ := newTestRegistry("windows")
	r.RegisterAll(map[Action]string{ActionVoice: "Control+Super", ActionRephrase: "Control+Shift+R"})
	r.UnregisterAll()
	if fb.Handlers("Control+Shift+R") != 0 || fall.watched["Control+Super"] != 0 {
		t.Error("bindings survived UnregisterAll")
	}
}
