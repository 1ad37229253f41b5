package pipeline

import (
	"context"
	"errors"

	"rephrase/llm"
	"rephrase/transcriber"
)

// Kind is the only thing the session machine looks at when a run fails.
type Kind int

const (
	// InputQuality failures are detected locally: no audio, noise only,
	// empty selection.
	InputQuality Kind = iota
	// Unavailable means an engine, model or service is missing. The
	// message says how to fix it.
	Unavailable
	// Transient covers a single failed call. Never retried.
	Transient
)

func (k Kind) String() string {
	switch k {
	case InputQuality:
		return "input_quality"
	case Unavailable:
		return "unavailable"
	case Transient:
		return "transient"
	}
	return "unknown"
}

const (
	MsgNoAudio      = "No audio detected — please speak clearly."
	MsgNoSpeech     = "No speech detected — please try again."
	MsgNoise        = "Only background noise detected — please speak clearly."
	MsgOllamaDown   = "Ollama is not running. Start Ollama from Settings → Model, or install it first."
	MsgNoThoughts   = "No thoughts recorded yet. Hold your Composer shortcut to add some."
	MsgNothingHeard = "Nothing was heard — try speaking louder."
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

func inputError(msg string) *Error {
	return &Error{Kind: InputQuality, Message: msg}
}

// Classify maps a collaborator failure onto the error taxonomy.
func Classify(err error) *Error {
	var pe *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &pe):
		return pe
	case errors.Is(err, transcriber.ErrEngineNotInstalled), errors.Is(err, transcriber.ErrModelNotInstalled):
		return &Error{Kind: Unavailable, Message: err.Error(), Err: err}
	case errors.Is(err, llm.ErrServiceUnreachable):
		return &Error{Kind: Unavailable, Message: MsgOllamaDown, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: Transient, Message: "Timed out — please try again.", Err: err}
	}
	return &Error{Kind: Transient, Message: err.Error(), Err: err}
}
