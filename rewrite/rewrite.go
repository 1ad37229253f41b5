// Package rewrite rephrases the text selected in the focused window.
package rewrite

import (
	"context"
	"errors"
	"strings"

	"rephrase/clipboard"
	"rephrase/llm"
	"rephrase/log"
	"rephrase/pipeline"
)

const (
	MsgNoText = "No text found — click inside a text field first."
	MsgTooFew = "Select at least a few words to rephrase."
	MsgEmpty  = "Got an empty response — try again."
	MsgAPIKey = "API key issue — check Settings."
)

const minWords = 3

const rewritePrompt = "Rewrite the text to sound natural and human while preserving exact meaning. " +
	"Do NOT change facts, names, technical words, or specific terms. " +
	"If a word could be ambiguous, keep the original word. " +
	"Do not add or remove information. Return ONLY the rewritten text."

// Selection is the clipboard side of a rewrite. *clipboard.Injector
// implements it.
type Selection interface {
	CopySelection(ctx context.Context) (string, clipboard.Snapshot, error)
	SelectAllReplace(ctx context.Context, text string, snap clipboard.Snapshot) error
	Restore(snap clipboard.Snapshot) error
}

type Rephraser struct {
	Clip Selection
	LLM  llm.Completer
}

// Run copies the selection, rewrites it and pastes the result over the
// whole field. The clipboard is restored on every path.
func (r *Rephraser) Run(ctx context.Context) (string, error) {
	text, snap, err := r.Clip.CopySelection(ctx)
	if errors.Is(err, clipboard.ErrNothingSelected) {
		return "", &pipeline.Error{Kind: pipeline.InputQuality, Message: MsgNoText, Err: err}
	}
	if err != nil {
		return "", pipeline.Classify(err)
	}

	if len(strings.Fields(text)) < minWords {
		r.Clip.Restore(snap)
		return "", &pipeline.Error{Kind: pipeline.InputQuality, Message: MsgTooFew}
	}

	out, err := r.LLM.Complete(ctx, []llm.Message{
		llm.System(rewritePrompt),
		llm.User(text),
	}, llm.Options{Temperature: 0.75, MaxTokens: 1024})
	if err != nil {
		r.Clip.Restore(snap)
		return "", classify(err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		r.Clip.Restore(snap)
		return "", &pipeline.Error{Kind: pipeline.Transient, Message: MsgEmpty}
	}

	if err := r.Clip.SelectAllReplace(ctx, out, snap); err != nil {
		return "", pipeline.Classify(err)
	}
	log.Infof("rephrased %d chars into %d", len(text), len(out))
	return out, nil
}

func classify(err error) *pipeline.Error {
	msg := err.Error()
	if strings.Contains(msg, "401") || strings.Contains(msg, "invalid_api_key") {
		return &pipeline.Error{Kind: pipeline.Unavailable, Message: MsgAPIKey, Err: err}
	}
	return pipeline.Classify(err)
}
