package pipeline

import (
	"context"
	"errors"
	"testing"

	"rephrase/llm"
)

func TestComposerGenerateEmptyBuffer(t *testing.T) {
	f := &llm.Fake{Replies: []string{"x"}}
	c := &Composer{LLM: f}
	err := c.Generate(context.Background(), Email)
	var pe *Error
	if !errors.As(err, &pe) || pe.Kind != InputQuality || pe.Message != MsgNoThoughts {
		t.Fatalf("err = %v", err)
	}
	if f.Pings() != 0 || len(f.Calls()) != 0 {
		t.Error("engine used for an empty buffer")
	}
}

func TestComposerGenerateUnreachable(t *testing.T) {
	c := &Composer{LLM: &llm.Fake{PingErr: llm.ErrServiceUnreachable}}
	c.Append("note one")
	err := c.Generate(context.Background(), Document)
	var pe *Error
	if !errors.As(err, &pe) || pe.Kind != Unavailable || pe.Message != MsgOllamaDown {
		t.Fatalf("err = %v", err)
	}
	if len(c.Snapshot()) != 1 {
		t.Error("buffer dropped on failure")
	}
}

func TestComposerGenerateClearsBeforePaste(t *testing.T) {
	f := &llm.Fake{Replies: []string{"Dear team, ..."}}
	var pasted string
	var changes [][]string
	c := &Composer{LLM: f, Change: func(p []string) { changes = append(changes, p) }}
	c.Paste = func(ctx context.Context, text string) error {
		if len(c.Snapshot()) != 0 {
			t.Error("buffer still populated at paste time")
		}
		pasted = text
		return nil
	}
	c.Append("budget is late")
	c.Append(" ship friday ")

	if err := c.Generate(context.Background(), Email); err != nil {
		t.Fatal(err)
	}
	if pasted != "Dear team, ..." {
		t.Errorf("pasted = %q", pasted)
	}
	call := f.Calls()[0]
	if call.Messages[0].Content != emailPrompt || call.Messages[1].Content != "budget is late  ship friday" {
		t.Errorf("call = %+v", call)
	}
	if call.Opts.Temperature != 0.5 || call.Opts.MaxTokens != 1024 {
		t.Errorf("opts = %+v", call.Opts)
	}
	if len(changes) != 3 || changes[2] != nil {
		t.Errorf("changes = %v", changes)
	}
}

func TestComposerGenerateFailureKeepsBuffer(t *testing.T) {
	f := &llm.Fake{Err: errors.New("boom")}
	pasted := false
	c := &Composer{LLM: f, Paste: func(context.Context, string) error { pasted = true; return nil }}
	c.Append("keep me")
	if err := c.Generate(context.Background(), Document); err == nil {
		t.Fatal("expected error")
	}
	if pasted || len(c.Snapshot()) != 1 {
		t.Errorf("pasted=%v buffer=%v", pasted, c.Snapshot())
	}
	if f.Calls()[0].Messages[0].Content != documentPrompt {
		t.Error("document prompt not used")
	}
}

func TestComposerClear(t *testing.T) {
	c := &Composer{}
	c.Append("a")
	c.Clear()
	if len(c.Snapshot()) != 0 {
		t.Error("not cleared")
	}
}
