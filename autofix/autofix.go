// Package autofix corrects spelling and grammar in the run of text the
// user is typing, once they pause.
package autofix

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"rephrase/clock"
	"rephrase/llm"
	"rephrase/log"
	"rephrase/supervisor"
)

const (
	DefaultDelay    = 800 * time.Millisecond
	DefaultMinChars = 10
	fixedLinger     = 2500 * time.Millisecond
)

const fixPrompt = "Fix any spelling mistakes and grammar errors in the following text. " +
	"Do not change the style, tone, or meaning — only fix errors. " +
	"Return ONLY the corrected text, nothing else."

type Status int

const (
	Off Status = iota
	Idle
	Fixing
	Fixed
)

func (s Status) String() string {
	switch s {
	case Off:
		return "off"
	case Idle:
		return "idle"
	case Fixing:
		return "fixing"
	case Fixed:
		return "fixed"
	}
	return "unknown"
}

// Replacer overwrites the last n typed characters. *clipboard.Injector
// implements it.
type Replacer interface {
	ReplaceLastTyped(ctx context.Context, n int, text string) error
}

type Config struct {
	LLM      llm.Completer
	Replace  Replacer
	Clock    clock.Clock
	Go       func(func())
	Delay    time.Duration
	MinChars int
	Status   func(Status)
}

// Fixer consumes key tracker events. At most one fix is in flight.
type Fixer struct {
	cfg Config

	mu     sync.Mutex
	buf    string
	timer  clock.Timer
	fixing bool
}

func New(cfg Config) *Fixer {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Go == nil {
		cfg.Go = func(f func()) { go f() }
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.MinChars <= 0 {
		cfg.MinChars = DefaultMinChars
	}
	return &Fixer{cfg: cfg}
}

// Buffer is the tracked run of typed text.
func (f *Fixer) Buffer() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buf
}

// Handle is a supervisor.Handler for the key tracker.
func (f *Fixer) Handle(ev supervisor.Event) {
	switch e := ev.(type) {
	case supervisor.KeyTyped:
		f.key(e)
	case supervisor.Exited:
		log.Watcher(supervisor.KeyTracker.String(), "exit", e.Err)
		f.Reset()
	}
}

func (f *Fixer) key(e supervisor.KeyTyped) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch e.Key {
	case supervisor.KeyReset:
		f.buf = ""
	case supervisor.KeyBackspace:
		if _, size := utf8.DecodeLastRuneInString(f.buf); size > 0 {
			f.buf = f.buf[:len(f.buf)-size]
		}
	case supervisor.KeySpace:
		f.buf += " "
		f.scheduleLocked()
	case supervisor.KeyChar:
		f.buf += e.Char
		if strings.ContainsAny(e.Char, ".,?!") {
			f.scheduleLocked()
		}
	}
}

func (f *Fixer) scheduleLocked() {
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	if len(strings.TrimSpace(f.buf)) < f.cfg.MinChars {
		return
	}
	f.timer = f.cfg.Clock.AfterFunc(f.cfg.Delay, f.fire)
}

// Reset drops the buffer and any pending fix.
func (f *Fixer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.buf = ""
}

func (f *Fixer) fire() {
	f.mu.Lock()
	f.timer = nil
	cur := f.buf
	if f.fixing || len(strings.TrimSpace(cur)) < f.cfg.MinChars {
		f.mu.Unlock()
		return
	}
	f.fixing = true
	f.mu.Unlock()

	f.status(Fixing)
	f.cfg.Go(func() {
		defer func() {
			f.mu.Lock()
			f.fixing = false
			f.mu.Unlock()
		}()
		f.fix(cur)
	})
}

func (f *Fixer) fix(cur string) {
	fixed, err := f.cfg.LLM.Complete(context.Background(), []llm.Message{
		llm.System(fixPrompt),
		llm.User(cur),
	}, llm.Options{Temperature: 0.2, MaxTokens: 1024})
	fixed = strings.TrimSpace(fixed)
	if err != nil {
		log.Warnf("autofix: %v", err)
	}
	if err != nil || fixed == "" || fixed == strings.TrimSpace(cur) {
		f.status(Idle)
		return
	}

	f.mu.Lock()
	if !strings.HasPrefix(f.buf, cur) {
		// The user edited what we sent; the fix no longer lines up.
		f.mu.Unlock()
		f.status(Idle)
		return
	}
	added := f.buf[len(cur):]
	n := utf8.RuneCountInString(f.buf)
	text := fixed + added
	f.buf = text
	f.mu.Unlock()

	if err := f.cfg.Replace.ReplaceLastTyped(context.Background(), n, text); err != nil {
		log.Warnf("autofix replace: %v", err)
		f.status(Idle)
		return
	}
	f.status(Fixed)
	f.cfg.Clock.AfterFunc(fixedLinger, func() { f.status(Idle) })
}

func (f *Fixer) status(s Status) {
	if f.cfg.Status != nil {
		f.cfg.Status(s)
	}
}
