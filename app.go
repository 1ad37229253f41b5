package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"rephrase/audio"
	"rephrase/autofix"
	"rephrase/beep"
	"rephrase/clipboard"
	"rephrase/clock"
	"rephrase/config"
	"rephrase/hotkey"
	"rephrase/llm"
	"rephrase/log"
	"rephrase/overlay"
	"rephrase/pipeline"
	"rephrase/rewrite"
	"rephrase/safety"
	"rephrase/session"
	"rephrase/store"
	"rephrase/supervisor"
	"rephrase/transcriber"
)

// sink receives UI messages. *tea.Program satisfies it.
type sink interface {
	Send(msg tea.Msg)
}

type nopSink struct{}

func (nopSink) Send(tea.Msg) {}

// deps are the collaborators run() builds from real devices. Tests pass
// fakes.
type deps struct {
	Settings   *config.Store
	DB         *store.DB
	Supervisor *supervisor.Supervisor
	Binder     hotkey.Binder
	Capture    session.Capture
	STT        transcriber.Engine
	LLM        llm.Engine
	Converter  audio.Converter
	Injector   *clipboard.Injector
	Foreground session.Foreground
	Player     beep.Player
	Sink       sink
	Gate       func() error
	Clock      clock.Clock
	Go         func(func())
	GOOS       string
	Hybrid     bool
	LongPress  time.Duration
	TmpDir     string
}

type app struct {
	d   deps
	ctx context.Context

	pipeline  *pipeline.Pipeline
	machine   *session.Machine
	registry  *hotkey.Registry
	composer  *pipeline.Composer
	rephraser *rewrite.Rephraser
	fixer     *autofix.Fixer
	monitor   *safety.Monitor
	hybrid    *hotkey.Hybrid

	rephrasing atomic.Bool
	generating atomic.Bool

	mu         sync.Mutex
	hotkeys    config.Hotkeys
	keyTracker *supervisor.Watcher
	urlMonitor *supervisor.Watcher
}

func newApp(ctx context.Context, d deps) *app {
	if d.Sink == nil {
		d.Sink = nopSink{}
	}
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Go == nil {
		d.Go = func(f func()) { go f() }
	}
	a := &app{d: d, ctx: ctx}
	s := d.Settings.Get()

	a.composer = &pipeline.Composer{
		LLM:    d.LLM,
		Paste:  a.paste,
		Change: func(parts []string) { d.Sink.Send(composerMsg{Parts: parts}) },
	}
	a.pipeline = pipeline.New(pipeline.Config{
		Converter: d.Converter,
		STT:       d.STT,
		LLM:       d.LLM,
		History:   d.DB.Transcripts(),
		Profiles:  d.DB.VoiceProfile(),
		Composer:  a.composer,
		Filter: &pipeline.Filter{
			MinAudioBytes: s.MinAudioBytes,
			ShortChars:    s.ShortChars,
			MaxNoiseWords: s.MaxNoiseWords,
			Phrases:       pipeline.DefaultPhrases,
		},
		Options:  a.pipelineOptions,
		Listener: func(t store.Transcript) { d.Sink.Send(transcriptMsg{T: t}) },
		TmpDir:   d.TmpDir,
	})

	presenter := overlay.NewPresenter(tuiSurface{d.Sink}, d.Player, s.Beeps)
	if d.Hybrid {
		a.hybrid = hotkey.NewHybrid(d.LongPress, d.Clock,
			func() { a.machine.Dispatch(session.Trigger{Mode: pipeline.ModeVoice, Driver: session.DriverToggle}) },
			func() { a.machine.Dispatch(session.Stop{}) },
		)
	}
	var watchers session.Watchers
	if d.Supervisor != nil {
		watchers = releaseWatchers{d.Supervisor}
	}
	a.machine = session.New(session.Config{
		Capture:       d.Capture,
		Pipeline:      a.pipeline,
		Presenter:     presenter,
		Watchers:      watchers,
		Inserter:      pasteInserter{inj: d.Injector, policy: a.pastePolicy},
		Foreground:    d.Foreground,
		Gate:          d.Gate,
		Clock:         d.Clock,
		Go:            d.Go,
		Context:       ctx,
		OnIdle:        a.onIdle,
		SafetyTimeout: s.SafetyTimeoutDuration(),
	})

	a.rephraser = &rewrite.Rephraser{Clip: d.Injector, LLM: d.LLM}
	a.fixer = autofix.New(autofix.Config{
		LLM:     d.LLM,
		Replace: d.Injector,
		Clock:   d.Clock,
		Go:      d.Go,
		Delay:   s.AutoFixDelayDuration(),
		Status:  func(st autofix.Status) { d.Sink.Send(autofixMsg{Status: st}) },
	})
	a.monitor = &safety.Monitor{
		LLM:    d.LLM,
		Report: func(v safety.Verdict) { d.Sink.Send(verdictMsg{V: v}) },
		Go:     d.Go,
	}

	var fb hotkey.Fallback
	if d.Supervisor != nil {
		fb = newComboFallback(d.Supervisor)
	}
	a.registry = hotkey.NewRegistry(d.Binder, fb, d.GOOS, a.handlers())
	return a
}

// start binds hotkeys and spawns the watchers the settings ask for, then
// follows every later settings change.
func (a *app) start() {
	s := a.d.Settings.Get()
	a.bindHotkeys(s)
	a.syncPeripherals(s)
	a.d.Settings.OnChange(func(s config.Settings) {
		a.bindHotkeys(s)
		a.syncPeripherals(s)
		a.d.Sink.Send(featuresMsg{AutoFix: s.AutoFix, Safety: s.SafetyMonitor})
	})
	a.d.Sink.Send(featuresMsg{AutoFix: s.AutoFix, Safety: s.SafetyMonitor})
}

func (a *app) stop() {
	a.registry.UnregisterAll()
	if a.d.Supervisor != nil {
		a.d.Supervisor.Shutdown()
	}
}

func (a *app) handlers() map[hotkey.Action]hotkey.Handler {
	hold := func(mode pipeline.Mode) func(string) {
		return func(mod string) {
			a.machine.Dispatch(session.Trigger{Mode: mode, Driver: session.DriverReleaseWatcher, Modifier: mod})
		}
	}
	toggle := func(mode pipeline.Mode) func() {
		return func() { a.machine.Dispatch(session.Toggle{Mode: mode}) }
	}

	voice := hotkey.Handler{Down: toggle(pipeline.ModeVoice), Hold: hold(pipeline.ModeVoice)}
	if a.hybrid != nil {
		voice = a.hybrid.Handler()
		voice.Hold = hold(pipeline.ModeVoice)
	}
	return map[hotkey.Action]hotkey.Handler{
		hotkey.ActionVoice:    voice,
		hotkey.ActionComposer: {Down: toggle(pipeline.ModeComposer), Hold: hold(pipeline.ModeComposer)},
		hotkey.ActionRephrase: {Down: a.rephrase},
	}
}

func (a *app) bindHotkeys(s config.Settings) {
	a.mu.Lock()
	same := a.hotkeys == s.Hotkeys
	a.hotkeys = s.Hotkeys
	a.mu.Unlock()
	if same {
		return
	}
	errs := a.registry.RegisterAll(map[hotkey.Action]string{
		hotkey.ActionVoice:    s.Hotkeys.Voice,
		hotkey.ActionComposer: s.Hotkeys.Composer,
		hotkey.ActionRephrase: s.Hotkeys.Rephrase,
	})
	for action, err := range errs {
		a.d.Sink.Send(statusMsg{Text: fmt.Sprintf("%s hotkey unavailable: %v", action, err), Err: true})
	}
	a.d.Sink.Send(hotkeysMsg{Hotkeys: a.boundActions()})
}

// boundActions lists the active bindings in display order.
func (a *app) boundActions() []string {
	var out []string
	for _, action := range []hotkey.Action{hotkey.ActionVoice, hotkey.ActionComposer, hotkey.ActionRephrase} {
		if acc, ok := a.registry.Bound(action); ok {
			out = append(out, fmt.Sprintf("%s %s", acc, action))
		}
	}
	return out
}

// syncPeripherals starts or kills the key tracker and URL monitor to
// match s. Watchers that exit on their own are forgotten so the next
// sync can respawn them.
func (a *app) syncPeripherals(s config.Settings) {
	if a.d.Supervisor == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keyTracker = a.syncWatcher(a.keyTracker, s.AutoFix, supervisor.KeyTracker, a.fixer.Handle,
		func(w *supervisor.Watcher) {
			if a.keyTracker == w {
				a.keyTracker = nil
			}
		})
	a.urlMonitor = a.syncWatcher(a.urlMonitor, s.SafetyMonitor, supervisor.URLMonitor, a.monitor.Handle,
		func(w *supervisor.Watcher) {
			if a.urlMonitor == w {
				a.urlMonitor = nil
			}
		})
}

// syncWatcher is called with a.mu held.
func (a *app) syncWatcher(cur *supervisor.Watcher, want bool, kind supervisor.Kind, h supervisor.Handler, forget func(*supervisor.Watcher)) *supervisor.Watcher {
	switch {
	case want && cur == nil:
		w, err := a.d.Supervisor.Spawn(kind, h)
		if err != nil {
			a.d.Sink.Send(statusMsg{Text: fmt.Sprintf("%s unavailable: %v", kind, err), Err: true})
			return nil
		}
		go func() {
			<-w.Done()
			a.mu.Lock()
			forget(w)
			a.mu.Unlock()
		}()
		return w
	case !want && cur != nil:
		cur.Kill()
		if kind == supervisor.KeyTracker {
			a.fixer.Reset()
		}
		return nil
	}
	return cur
}

func (a *app) onIdle() {
	if a.hybrid != nil {
		a.hybrid.Reset()
	}
}

func (a *app) pipelineOptions() pipeline.Options {
	s := a.d.Settings.Get()
	return pipeline.Options{
		Model:         s.WhisperModel,
		Language:      s.WhisperLanguage,
		FileTagging:   s.FileTagging,
		VoiceTraining: s.VoiceTraining,
	}
}

func (a *app) pastePolicy() clipboard.Policy {
	return policyFor(a.d.Settings.Get().PastePolicy)
}

func policyFor(name string) clipboard.Policy {
	switch name {
	case "restore":
		return clipboard.RestorePrevious
	case "clear":
		return clipboard.ClearAfter
	}
	return clipboard.KeepPasted
}

func (a *app) paste(ctx context.Context, text string) error {
	return a.d.Injector.PasteText(ctx, text, a.pastePolicy())
}

// rephrase runs at most one rewrite at a time.
func (a *app) rephrase() {
	if !a.rephrasing.CompareAndSwap(false, true) {
		return
	}
	a.d.Go(func() {
		defer a.rephrasing.Store(false)
		a.d.Sink.Send(statusMsg{Text: "Rephrasing selection..."})
		out, err := a.rephraser.Run(a.ctx)
		if err != nil {
			a.report(err)
			return
		}
		a.d.Sink.Send(statusMsg{Text: fmt.Sprintf("Rephrased (%d chars)", len(out))})
	})
}

// Generate turns the composer buffer into kind and pastes it.
func (a *app) Generate(kind pipeline.DocKind) {
	if !a.generating.CompareAndSwap(false, true) {
		return
	}
	a.d.Go(func() {
		defer a.generating.Store(false)
		a.d.Sink.Send(statusMsg{Text: fmt.Sprintf("Writing %s...", kind)})
		if err := a.composer.Generate(a.ctx, kind); err != nil {
			a.report(err)
			return
		}
		a.d.Sink.Send(statusMsg{Text: fmt.Sprintf("%s pasted", kind)})
	})
}

func (a *app) report(err error) {
	log.Errorf("%v", err)
	msg := message(err)
	if a.d.Player != nil {
		a.d.Player.Play(beep.Error)
	}
	a.d.Sink.Send(statusMsg{Text: msg, Err: true})
}

func (a *app) Dismiss()       { overlay.Dismiss(a.machine) }
func (a *app) ClearComposer() { a.composer.Clear() }

func (a *app) ToggleAutoFix() {
	a.update(func(s *config.Settings) { s.AutoFix = !s.AutoFix })
}

func (a *app) ToggleSafety() {
	a.update(func(s *config.Settings) { s.SafetyMonitor = !s.SafetyMonitor })
}

func (a *app) update(fn func(*config.Settings)) {
	if err := a.d.Settings.Update(fn); err != nil {
		a.report(fmt.Errorf("save settings: %w", err))
	}
}

// comboFallback watches modifier-only chords through the combo detector,
// which reports Control+Super and Alt+Super presses the OS hotkey API
// cannot register.
type comboFallback struct {
	sup *supervisor.Supervisor

	mu       sync.Mutex
	handlers map[string]comboBinding
}

type comboBinding struct {
	acc hotkey.Accelerator
	h   hotkey.Handler
}

func newComboFallback(sup *supervisor.Supervisor) *comboFallback {
	return &comboFallback{sup: sup, handlers: make(map[string]comboBinding)}
}

// comboToken maps an accelerator to the detector's token, or "".
func comboToken(acc hotkey.Accelerator) string {
	if !acc.ModifierOnly() || len(acc.Mods) != 2 || !acc.Has(hotkey.Super) {
		return ""
	}
	switch {
	case acc.Has(hotkey.Control):
		return supervisor.ComboCtrlWin
	case acc.Has(hotkey.Alt):
		return supervisor.ComboAltWin
	}
	return ""
}

func (f *comboFallback) Watch(acc hotkey.Accelerator, h hotkey.Handler) (func(), error) {
	token := comboToken(acc)
	if token == "" {
		return nil, fmt.Errorf("no watcher for %s", acc)
	}
	f.mu.Lock()
	f.handlers[token] = comboBinding{acc: acc, h: h}
	f.mu.Unlock()

	if err := f.sup.EnsureComboDetector(f.handle); err != nil {
		f.forget(token)
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(func() { f.forget(token) }) }, nil
}

func (f *comboFallback) forget(token string) {
	f.mu.Lock()
	delete(f.handlers, token)
	f.mu.Unlock()
}

func (f *comboFallback) handle(ev supervisor.Event) {
	down, ok := ev.(supervisor.ComboDown)
	if !ok {
		return
	}
	f.mu.Lock()
	b, ok := f.handlers[down.Combo]
	f.mu.Unlock()
	if !ok {
		return
	}
	switch {
	case b.h.Hold != nil:
		b.h.Hold(b.acc.ReleaseModifier())
	case b.h.Down != nil:
		b.h.Down()
	}
}

// releaseWatchers spawns one release detector per hold-to-talk session.
// Both the release token and the process exiting count as release.
type releaseWatchers struct {
	sup *supervisor.Supervisor
}

func (r releaseWatchers) WatchRelease(modifier string, released func()) (func(), error) {
	var once sync.Once
	var args []string
	if modifier != "" {
		args = append(args, modifier)
	}
	w, err := r.sup.Spawn(supervisor.ReleaseDetector, func(ev supervisor.Event) {
		switch ev.(type) {
		case supervisor.KeyReleased, supervisor.Exited:
			once.Do(released)
		}
	}, args...)
	if err != nil {
		return nil, err
	}
	return w.Kill, nil
}

type pasteInserter struct {
	inj    *clipboard.Injector
	policy func() clipboard.Policy
}

func (p pasteInserter) Insert(ctx context.Context, text string) error {
	return p.inj.PasteText(ctx, text, p.policy())
}
