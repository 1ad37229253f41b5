// Package llm talks to the local text-generation engine (Ollama) or any
// other OpenAI-compatible chat endpoint.
package llm

import (
	"context"
	"errors"
)

// ErrServiceUnreachable means the engine did not answer its health probe.
var ErrServiceUnreachable = errors.New("text engine is not reachable")

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func System(content string) Message { return Message{Role: "system", Content: content} }
func User(content string) Message   { return Message{Role: "user", Content: content} }

// Options configures one completion.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Completer performs chat completions.
type Completer interface {
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)
}

// Engine is a Completer with a cheap availability probe.
type Engine interface {
	Completer
	Ping(ctx context.Context) error
}
