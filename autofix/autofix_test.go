package autofix

import (
	"context"
	"slices"
	"testing"
	"time"

	"rephrase/clock"
	"rephrase/llm"
	"rephrase/supervisor"
)

type replace struct {
	n    []int
	text []string
}

func (r *replace) ReplaceLastTyped(_ context.Context, n int, text string) error {
	r.n = append(r.n, n)
	r.text = append(r.text, text)
	return nil
}

type rig struct {
	f        *Fixer
	clk      *clock.Fake
	llm      *llm.Fake
	rep      *replace
	statuses []Status
}

func newRig(replies ...string) *rig {
	r := &rig{clk: clock.NewFake(), llm: &llm.Fake{Replies: replies}, rep: &replace{}}
	r.f = New(Config{
		LLM:     r.llm,
		Replace: r.rep,
		Clock:   r.clk,
		Go:      func(fn func()) { fn() },
		Status:  func(s Status) { r.statuses = append(r.statuses, s) },
	})
	return r
}

func (r *rig) typeText(s string) {
	for _, ch := range s {
		if ch == ' ' {
			r.f.Handle(supervisor.KeyTyped{Key: supervisor.KeySpace, Char: " "})
			continue
		}
		r.f.Handle(supervisor.KeyTyped{Key: supervisor.KeyChar, Char: string(ch)})
	}
}

func TestFixAfterPause(t *testing.T) {
	r := newRig("I have an apple.")
	r.typeText("i has a apple.")
	r.clk.Advance(DefaultDelay - time.Millisecond)
	if len(r.llm.Calls()) != 0 {
		t.Fatal("fixed before the pause elapsed")
	}
	r.clk.Advance(time.Millisecond)

	if !slices.Equal(r.rep.text, []string{"I have an apple."}) || r.rep.n[0] != len("i has a apple.") {
		t.Fatalf("replaced %v with %q", r.rep.n, r.rep.text)
	}
	if r.f.Buffer() != "I have an apple." {
		t.Errorf("buffer = %q", r.f.Buffer())
	}
	c := r.llm.Calls()[0]
	if c.Messages[1].Content != "i has a apple." || c.Opts.Temperature != 0.2 {
		t.Errorf("call = %+v", c)
	}

	r.clk.Advance(fixedLinger)
	if want := []Status{Fixing, Fixed, Idle}; !slices.Equal(r.statuses, want) {
		t.Errorf("statuses = %v", r.statuses)
	}
}

func TestTypingDebounces(t *testing.T) {
	r := newRig("Hello world again")
	r.typeText("hello world ")
	r.clk.Advance(500 * time.Millisecond)
	r.typeText("again ")
	r.clk.Advance(500 * time.Millisecond)
	if len(r.llm.Calls()) != 0 {
		t.Fatal("debounce not reset")
	}
	r.clk.Advance(300 * time.Millisecond)
	if n := len(r.llm.Calls()); n != 1 {
		t.Errorf("calls = %d", n)
	}
}

func TestShortTextNeverScheduled(t *testing.T) {
	r := newRig()
	r.typeText("hi there ")
	if r.clk.Pending() != 0 {
		t.Errorf("pending = %d", r.clk.Pending())
	}
}

func TestKeepsTypingDuringFix(t *testing.T) {
	r := newRig()
	r.llm.Reply = func([]llm.Message, llm.Options) (string, error) {
		r.f.Handle(supervisor.KeyTyped{Key: supervisor.KeyChar, Char: "x"})
		return "Their going home.", nil
	}
	r.typeText("there going home.")
	r.clk.Advance(DefaultDelay)

	want := "Their going home.x"
	if !slices.Equal(r.rep.text, []string{want}) || r.rep.n[0] != len("there going home.x") {
		t.Errorf("replaced %v with %q", r.rep.n, r.rep.text)
	}
}

func TestEditedDuringFixSkipsReplace(t *testing.T) {
	r := newRig()
	r.llm.Reply = func([]llm.Message, llm.Options) (string, error) {
		r.f.Handle(supervisor.KeyTyped{Key: supervisor.KeyBackspace})
		return "Their going home.", nil
	}
	r.typeText("there going home.")
	r.clk.Advance(DefaultDelay)
	if len(r.rep.text) != 0 {
		t.Errorf("replaced with %q", r.rep.text)
	}
	if !slices.Equal(r.statuses, []Status{Fixing, Idle}) {
		t.Errorf("statuses = %v", r.statuses)
	}
}

func TestUnchangedTextNotReplaced(t *testing.T) {
	r := newRig("This is already fine.")
	r.typeText("This is already fine.")
	r.clk.Advance(DefaultDelay)
	if len(r.rep.text) != 0 {
		t.Errorf("replaced with %q", r.rep.text)
	}
}

func TestResetKeysClearBuffer(t *testing.T) {
	r := newRig("x")
	r.typeText("some words typed ")
	r.f.Handle(supervisor.KeyTyped{Key: supervisor.KeyReset})
	if r.f.Buffer() != "" {
		t.Errorf("buffer = %q", r.f.Buffer())
	}
	r.clk.Advance(DefaultDelay)
	if len(r.llm.Calls()) != 0 {
		t.Error("fix ran on a reset buffer")
	}

	r.typeText("héllo")
	r.f.Handle(supervisor.KeyTyped{Key: supervisor.KeyBackspace})
	r.f.Handle(supervisor.KeyTyped{Key: supervisor.KeyBackspace})
	r.f.Handle(supervisor.KeyTyped{Key: supervisor.KeyBackspace})
	r.f.Handle(supervisor.KeyTyped{Key: supervisor.KeyBackspace})
	if r.f.Buffer() != "h" {
		t.Errorf("buffer after backspace = %q", r.f.Buffer())
	}
}
