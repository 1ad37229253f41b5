package pipeline

import (
	"context"
	"strings"
	"sync"

	"rephrase/llm"
	"rephrase/log"
)

type DocKind string

const (
	Email    DocKind = "email"
	Document DocKind = "document"
)

// Paster puts text into the focused application.
type Paster func(ctx context.Context, text string) error

// Composer collects composer-mode dictations until they are turned into
// one email or document.
type Composer struct {
	LLM    llm.Engine
	Paste  Paster
	Change func(parts []string)

	mu    sync.Mutex
	parts []string
}

func (c *Composer) Append(text string) {
	c.mu.Lock()
	c.parts = append(c.parts, text)
	parts := append([]string(nil), c.parts...)
	c.mu.Unlock()
	c.notify(parts)
}

func (c *Composer) Snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.parts...)
}

func (c *Composer) Clear() {
	c.mu.Lock()
	c.parts = nil
	c.mu.Unlock()
	c.notify(nil)
}

func (c *Composer) notify(parts []string) {
	if c.Change != nil {
		c.Change(parts)
	}
}

// Generate writes the buffer up as kind and pastes it. The buffer is
// cleared before the paste so focus has moved back by then; on failure
// it is kept.
func (c *Composer) Generate(ctx context.Context, kind DocKind) error {
	combined := strings.TrimSpace(strings.Join(c.Snapshot(), " "))
	if combined == "" {
		return inputError(MsgNoThoughts)
	}
	if err := c.LLM.Ping(ctx); err != nil {
		return &Error{Kind: Unavailable, Message: MsgOllamaDown, Err: err}
	}

	prompt := documentPrompt
	if kind == Email {
		prompt = emailPrompt
	}
	out, err := c.LLM.Complete(ctx, []llm.Message{
		llm.System(prompt),
		llm.User(combined),
	}, llm.Options{Temperature: 0.5, MaxTokens: 1024})
	if err != nil {
		return Classify(err)
	}

	c.Clear()
	if out == "" || c.Paste == nil {
		return nil
	}
	if err := c.Paste(ctx, out); err != nil {
		log.Errorf("composer paste: %v", err)
		return Classify(err)
	}
	return nil
}
