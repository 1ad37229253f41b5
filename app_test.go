package main

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"rephrase/audio"
	"rephrase/beep"
	"rephrase/clipboard"
	"rephrase/clock"
	"rephrase/config"
	"rephrase/hotkey"
	"rephrase/llm"
	"rephrase/overlay"
	"rephrase/pipeline"
	"rephrase/session"
	"rephrase/store"
	"rephrase/supervisor"
	"rephrase/transcriber"
)

type recordingSink struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (s *recordingSink) Send(msg tea.Msg) {
	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	s.mu.Unlock()
}

func (s *recordingSink) all() []tea.Msg {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tea.Msg(nil), s.msgs...)
}

func (s *recordingSink) statuses() []statusMsg {
	var out []statusMsg
	for _, m := range s.all() {
		if st, ok := m.(statusMsg); ok {
			out = append(out, st)
		}
	}
	return out
}

type fakeCapture struct {
	mu     sync.Mutex
	starts int
	stops  int
}

func (c *fakeCapture) Start() error {
	c.mu.Lock()
	c.starts++
	c.mu.Unlock()
	return nil
}

func (c *fakeCapture) Stop() ([]byte, error) {
	c.mu.Lock()
	c.stops++
	c.mu.Unlock()
	return audio.EncodeWAV(make([]byte, 16000), audio.SampleRate, audio.Channels), nil
}

type testApp struct {
	*app
	binder *hotkey.FakeBinder
	clip   *clipboard.FakeClipboard
	keys   *clipboard.FakeKeys
	clk    *clock.Fake
	sink   *recordingSink
	text   *llm.Fake
	cues   *beep.Recorder
}

func newTestApp(t *testing.T, heard string, replies ...string) *testApp {
	t.Helper()
	st, err := config.Open(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatal(err)
	}
	err = st.Update(func(s *config.Settings) {
		s.Hotkeys = config.Hotkeys{
			Voice:    "Control+Shift+V",
			Composer: "Control+Shift+C",
			Rephrase: "Control+Shift+R",
		}
		s.FileTagging = false
		s.Beeps = false
	})
	if err != nil {
		t.Fatal(err)
	}
	db, err := store.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	ta := &testApp{
		binder: hotkey.NewFakeBinder(),
		clip:   &clipboard.FakeClipboard{Text: "before"},
		keys:   &clipboard.FakeKeys{},
		clk:    clock.NewFake(),
		sink:   &recordingSink{},
		text:   &llm.Fake{Replies: replies},
		cues:   &beep.Recorder{},
	}
	inj := clipboard.NewInjector(ta.clip, ta.keys, clipboard.DefaultDelays())
	inj.Sleep = func(time.Duration) {}

	ta.app = newApp(context.Background(), deps{
		Settings:  st,
		DB:        db,
		Binder:    ta.binder,
		Capture:   &fakeCapture{},
		STT:       transcriber.NewFake(heard, nil),
		LLM:       ta.text,
		Converter: audio.Direct{},
		Injector:  inj,
		Player:    ta.cues,
		Sink:      ta.sink,
		Clock:     ta.clk,
		Go:        func(f func()) { f() },
		GOOS:      "linux",
		TmpDir:    t.TempDir(),
	})
	ta.start()
	t.Cleanup(ta.stop)
	return ta
}

func (ta *testApp) press(t *testing.T, action hotkey.Action) {
	t.Helper()
	acc, ok := ta.registry.Bound(action)
	if !ok {
		t.Fatalf("%s is not bound", action)
	}
	ta.binder.Press(acc.String())
}

func (ta *testApp) take(t *testing.T, action hotkey.Action) {
	t.Helper()
	ta.press(t, action)
	if got := ta.machine.State(); got != session.Listening {
		t.Fatalf("after first press state = %s, want listening", got)
	}
	ta.press(t, action)
	ta.clk.Advance(session.DefaultMinDuration)
	ta.clk.Advance(session.DefaultFadeDelay)
	if got := ta.machine.State(); got != session.Idle {
		t.Fatalf("after take state = %s, want idle", got)
	}
}

func TestVoiceTogglePastesCleanedText(t *testing.T) {
	ta := newTestApp(t, "hello world this is a test", "Hello world, this is a test.")
	ta.take(t, hotkey.ActionVoice)

	if got := ta.clip.Current(); got != "Hello world, this is a test." {
		t.Errorf("clipboard = %q", got)
	}
	if got := ta.keys.Log(); !reflect.DeepEqual(got, []string{"paste"}) {
		t.Errorf("strokes = %v, want [paste]", got)
	}

	var saved []store.Transcript
	for _, m := range ta.sink.all() {
		if tm, ok := m.(transcriptMsg); ok {
			saved = append(saved, tm.T)
		}
	}
	if len(saved) != 1 {
		t.Fatalf("transcripts = %d, want 1", len(saved))
	}
	if saved[0].Raw != "hello world this is a test" || saved[0].Mode != "voice" {
		t.Errorf("saved = %+v", saved[0])
	}
}

func TestVoiceNoiseShowsErrorWithoutPaste(t *testing.T) {
	ta := newTestApp(t, "Thank you.", "unused")
	ta.press(t, hotkey.ActionVoice)
	ta.press(t, hotkey.ActionVoice)
	ta.clk.Advance(session.DefaultMinDuration)

	if got := ta.machine.Snapshot(); got.State != session.Error || got.Message != pipeline.MsgNoise {
		t.Fatalf("snapshot = %+v", got)
	}
	ta.clk.Advance(session.DefaultErrorDelay + session.DefaultFadeDelay)
	if log := ta.keys.Log(); len(log) != 0 {
		t.Errorf("strokes = %v, want none", log)
	}
	if got := ta.cues.Played(); !reflect.DeepEqual(got, []beep.Cue{beep.Error}) {
		t.Errorf("cues = %v, want [error]", got)
	}
}

func TestComposerTakeThenGenerateEmail(t *testing.T) {
	ta := newTestApp(t, "remind the team about friday", "Remind the team about Friday.", "Subject: Friday\n\nHi team, a reminder about Friday.")
	ta.take(t, hotkey.ActionComposer)

	if log := ta.keys.Log(); len(log) != 0 {
		t.Fatalf("composer take pasted: %v", log)
	}
	if parts := ta.composer.Snapshot(); !reflect.DeepEqual(parts, []string{"Remind the team about Friday."}) {
		t.Fatalf("composer = %v", parts)
	}

	ta.Generate(pipeline.Email)
	if got := ta.clip.Current(); !strings.HasPrefix(got, "Subject: Friday") {
		t.Errorf("clipboard = %q", got)
	}
	if parts := ta.composer.Snapshot(); len(parts) != 0 {
		t.Errorf("composer not cleared: %v", parts)
	}
	sts := ta.sink.statuses()
	if len(sts) == 0 || sts[len(sts)-1].Text != "email pasted" {
		t.Errorf("statuses = %+v", sts)
	}
}

func TestGenerateEmptyComposerReportsMessage(t *testing.T) {
	ta := newTestApp(t, "")
	ta.Generate(pipeline.Document)

	sts := ta.sink.statuses()
	last := sts[len(sts)-1]
	if !last.Err || last.Text != pipeline.MsgNoThoughts {
		t.Errorf("status = %+v, want error %q", last, pipeline.MsgNoThoughts)
	}
	if got := ta.cues.Played(); !reflect.DeepEqual(got, []beep.Cue{beep.Error}) {
		t.Errorf("cues = %v", got)
	}
}

func TestToggleAutoFixNotifiesUI(t *testing.T) {
	ta := newTestApp(t, "")
	ta.ToggleAutoFix()

	var last featuresMsg
	for _, m := range ta.sink.all() {
		if f, ok := m.(featuresMsg); ok {
			last = f
		}
	}
	if !last.AutoFix {
		t.Error("features message does not show autofix on")
	}
	if !ta.d.Settings.Get().AutoFix {
		t.Error("setting not saved")
	}
}

func TestRebindOnHotkeyChange(t *testing.T) {
	ta := newTestApp(t, "")
	err := ta.d.Settings.Update(func(s *config.Settings) { s.Hotkeys.Voice = "Control+Shift+X" })
	if err != nil {
		t.Fatal(err)
	}
	if n := ta.binder.Handlers("Control+Shift+V"); n != 0 {
		t.Errorf("old combo still has %d handlers", n)
	}
	if n := ta.binder.Handlers("Control+Shift+X"); n != 1 {
		t.Errorf("new combo has %d handlers, want 1", n)
	}
}

func TestDismissCancelsListening(t *testing.T) {
	ta := newTestApp(t, "")
	ta.press(t, hotkey.ActionVoice)
	ta.Dismiss()
	if got := ta.machine.Snapshot(); got.State != session.Error || got.Message != "Cancelled." {
		t.Errorf("snapshot = %+v", got)
	}
}

func TestPolicyFor(t *testing.T) {
	tests := map[string]clipboard.Policy{
		"keep":    clipboard.KeepPasted,
		"restore": clipboard.RestorePrevious,
		"clear":   clipboard.ClearAfter,
		"":        clipboard.KeepPasted,
		"bogus":   clipboard.KeepPasted,
	}
	for name, want := range tests {
		if got := policyFor(name); got != want {
			t.Errorf("policyFor(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestComboToken(t *testing.T) {
	tests := []struct {
		acc  string
		want string
	}{
		{"Control+Super", supervisor.ComboCtrlWin},
		{"Win+Ctrl", supervisor.ComboCtrlWin},
		{"Alt+Super", supervisor.ComboAltWin},
		{"Shift+Super", ""},
		{"Control+Alt", ""},
		{"Control+Alt+Super", ""},
		{"Control+Super+K", ""},
	}
	for _, tt := range tests {
		acc, err := hotkey.Parse(tt.acc)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.acc, err)
		}
		if got := comboToken(acc); got != tt.want {
			t.Errorf("comboToken(%s) = %q, want %q", tt.acc, got, tt.want)
		}
	}
}

// pipeProcess is a watcher child whose stdout the test writes.
type pipeProcess struct {
	r    *io.PipeReader
	w    *io.PipeWriter
	exit chan error
	once sync.Once
}

func newPipeProcess() *pipeProcess {
	r, w := io.Pipe()
	return &pipeProcess{r: r, w: w, exit: make(chan error, 1)}
}

func (p *pipeProcess) Stdout() io.Reader { return p.r }
func (p *pipeProcess) Stderr() io.Reader { return strings.NewReader("") }
func (p *pipeProcess) Wait() error       { return <-p.exit }
func (p *pipeProcess) emit(line string)  { p.w.Write([]byte(line + "\n")) }

func (p *pipeProcess) Kill() error {
	p.once.Do(func() {
		p.exit <- errors.New("killed")
		p.w.Close()
	})
	return nil
}

type pipeSpawner struct {
	mu    sync.Mutex
	procs []*pipeProcess
	args  [][]string
}

func (s *pipeSpawner) Spawn(name string, args ...string) (supervisor.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := newPipeProcess()
	s.procs = append(s.procs, p)
	s.args = append(s.args, args)
	return p, nil
}

func (s *pipeSpawner) last() (*pipeProcess, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procs[len(s.procs)-1], s.args[len(s.args)-1]
}

func newPipeSupervisor(t *testing.T) (*supervisor.Supervisor, *pipeSpawner) {
	sp := &pipeSpawner{}
	sup := supervisor.New(supervisor.Config{GOOS: "windows", ScriptDir: "scripts", Spawner: sp, Clock: clock.NewFake()})
	t.Cleanup(sup.Shutdown)
	return sup, sp
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestComboFallbackPrefersHold(t *testing.T) {
	sup, sp := newPipeSupervisor(t)
	fb := newComboFallback(sup)

	acc, _ := hotkey.Parse("Control+Super")
	held := make(chan string, 1)
	var downs atomic.Int32
	stop, err := fb.Watch(acc, hotkey.Handler{
		Down: func() { downs.Add(1) },
		Hold: func(mod string) { held <- mod },
	})
	if err != nil {
		t.Fatal(err)
	}

	proc, args := sp.last()
	if got := args[len(args)-1]; !strings.HasSuffix(got, "comboMonitor.ps1") {
		t.Errorf("script = %q", got)
	}
	proc.emit("ctrl_win_down")
	select {
	case mod := <-held:
		if mod != "ctrl" {
			t.Errorf("modifier = %q, want ctrl", mod)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hold not called")
	}
	if downs.Load() != 0 {
		t.Error("Down called alongside Hold")
	}

	stop()
	stop()
	fb.mu.Lock()
	n := len(fb.handlers)
	fb.mu.Unlock()
	if n != 0 {
		t.Errorf("handlers after stop = %d", n)
	}
}

func TestComboFallbackRejectsOrdinaryCombos(t *testing.T) {
	sup, sp := newPipeSupervisor(t)
	fb := newComboFallback(sup)
	acc, _ := hotkey.Parse("Control+Shift+Space")
	if _, err := fb.Watch(acc, hotkey.Handler{Down: func() {}}); err == nil {
		t.Fatal("expected error")
	}
	if len(sp.procs) != 0 {
		t.Error("detector spawned for an ordinary combo")
	}
}

func TestComboFallbackUnsupportedOS(t *testing.T) {
	sup := supervisor.New(supervisor.Config{GOOS: "linux", Spawner: &pipeSpawner{}})
	fb := newComboFallback(sup)
	acc, _ := hotkey.Parse("Alt+Super")
	if _, err := fb.Watch(acc, hotkey.Handler{Down: func() {}}); !errors.Is(err, supervisor.ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if len(fb.handlers) != 0 {
		t.Error("failed watch left a handler behind")
	}
}

func TestReleaseWatcherReportsRelease(t *testing.T) {
	sup, sp := newPipeSupervisor(t)
	var released atomic.Int32
	kill, err := releaseWatchers{sup}.WatchRelease("alt", func() { released.Add(1) })
	if err != nil {
		t.Fatal(err)
	}
	proc, args := sp.last()
	if got := args[len(args)-1]; got != "alt" {
		t.Errorf("last arg = %q, want alt", got)
	}

	proc.emit("released")
	waitFor(t, "release", func() bool { return released.Load() == 1 })
	kill()
	time.Sleep(10 * time.Millisecond)
	if n := released.Load(); n != 1 {
		t.Errorf("released %d times, want 1", n)
	}
}

func TestReleaseWatcherExitCountsAsRelease(t *testing.T) {
	sup, _ := newPipeSupervisor(t)
	var released atomic.Int32
	kill, err := releaseWatchers{sup}.WatchRelease("ctrl", func() { released.Add(1) })
	if err != nil {
		t.Fatal(err)
	}
	kill()
	waitFor(t, "release on exit", func() bool { return released.Load() == 1 })
}

func TestPasteInserterUsesPolicy(t *testing.T) {
	clip := &clipboard.FakeClipboard{Text: "mine"}
	keys := &clipboard.FakeKeys{}
	inj := clipboard.NewInjector(clip, keys, clipboard.DefaultDelays())
	inj.Sleep = func(time.Duration) {}

	ins := pasteInserter{inj: inj, policy: func() clipboard.Policy { return clipboard.RestorePrevious }}
	if err := ins.Insert(context.Background(), "dictated"); err != nil {
		t.Fatal(err)
	}
	if got := clip.Current(); got != "mine" {
		t.Errorf("clipboard = %q, want restored", got)
	}
}

type fakeActions struct{ calls []string }

func (f *fakeActions) Dismiss()                       { f.calls = append(f.calls, "dismiss") }
func (f *fakeActions) Generate(kind pipeline.DocKind) { f.calls = append(f.calls, "generate "+string(kind)) }
func (f *fakeActions) ClearComposer()                 { f.calls = append(f.calls, "clear") }
func (f *fakeActions) ToggleAutoFix()                 { f.calls = append(f.calls, "autofix") }
func (f *fakeActions) ToggleSafety()                  { f.calls = append(f.calls, "safety") }

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestTUIKeys(t *testing.T) {
	act := &fakeActions{}
	var m tea.Model = tuiModel{act: act}
	for _, k := range []string{"d", "e", "g", "x", "a", "s", "z"} {
		m, _ = m.Update(runes(k))
	}
	want := []string{"dismiss", "generate email", "generate document", "clear", "autofix", "safety"}
	if !reflect.DeepEqual(act.calls, want) {
		t.Errorf("calls = %v, want %v", act.calls, want)
	}

	_, cmd := m.Update(runes("q"))
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q does not quit")
	}
}

func TestTUIOverlayMessages(t *testing.T) {
	var m tea.Model = tuiModel{act: &fakeActions{}}
	m, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m, _ = m.Update(overlayMsg{View: overlay.View{Status: overlay.Error, Message: "No speech detected"}})
	m, _ = m.Update(transcriptMsg{T: store.Transcript{Text: "Hello there.", Raw: "hello there", Mode: "voice"}})

	tm := m.(tuiModel)
	if tm.count != 1 || tm.last == nil || tm.last.Text != "Hello there." {
		t.Errorf("model = %+v", tm)
	}
	out := m.View()
	for _, want := range []string{"No speech detected", "Hello there.", "heard: hello there"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestTUISurfaceForwards(t *testing.T) {
	s := &recordingSink{}
	surf := tuiSurface{s}
	surf.Show(overlay.View{Status: overlay.Listening, App: "Notes"})
	surf.Icon("iVBORw0KGgo=")
	surf.Icon("")

	want := []tea.Msg{
		overlayMsg{View: overlay.View{Status: overlay.Listening, App: "Notes"}},
		iconMsg{Set: true},
		iconMsg{Set: false},
	}
	if got := s.all(); !reflect.DeepEqual(got, want) {
		t.Errorf("msgs = %#v", got)
	}
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  []string
	}{
		{"", 10, []string{""}},
		{"short", 10, []string{"short"}},
		{"hello world foo", 5, []string{"hello", "world", "foo"}},
		{"abcdefgh", 3, []string{"abc", "def", "gh"}},
		{"héllo wörld", 6, []string{"héllo", "wörld"}},
	}
	for _, tt := range tests {
		if got := wrapText(tt.in, tt.width); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("wrapText(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}

func TestLogPathArg(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{nil, ""},
		{[]string{"-logpath", "/tmp/logs"}, "/tmp/logs"},
		{[]string{"-tui=false", "--logpath=./"}, "./"},
		{[]string{"-logpath"}, ""},
	}
	for _, tt := range tests {
		if got := logPathArg(tt.args); got != tt.want {
			t.Errorf("logPathArg(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}
