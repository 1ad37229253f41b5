package clipboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rephrase/log"
)

// Delays are the settle times between clipboard writes and synthesized
// keystrokes. Target applications read the clipboard asynchronously.
type Delays struct {
	PreCopy           time.Duration // let the hotkey's own modifiers lift
	CopySettle        time.Duration // after copy, before reading
	SelectAllSettle   time.Duration // after select-all copy, before reading
	ClearSettle       time.Duration // after clearing, before select-all
	FocusSettle       time.Duration // after write, before paste into a refocused window
	PasteSettle       time.Duration // after write, before select-all paste
	ReplaceSettle     time.Duration // after write, before shift-left paste
	ClearAfter        time.Duration // after paste, before restoring or clearing
	RestoreSettle     time.Duration // after select-all paste, before restoring
	SelectAllCopyGap  time.Duration
	SelectAllPasteGap time.Duration
	ShiftLeftGap      time.Duration
}

func DefaultDelays() Delays {
	return Delays{
		PreCopy:           200 * time.Millisecond,
		CopySettle:        320 * time.Millisecond,
		SelectAllSettle:   400 * time.Millisecond,
		ClearSettle:       80 * time.Millisecond,
		FocusSettle:       250 * time.Millisecond,
		PasteSettle:       100 * time.Millisecond,
		ReplaceSettle:     50 * time.Millisecond,
		ClearAfter:        400 * time.Millisecond,
		RestoreSettle:     150 * time.Millisecond,
		SelectAllCopyGap:  150 * time.Millisecond,
		SelectAllPasteGap: 80 * time.Millisecond,
		ShiftLeftGap:      50 * time.Millisecond,
	}
}

// Policy says what the clipboard holds after a paste.
type Policy int

const (
	// KeepPasted leaves the pasted text on the clipboard.
	KeepPasted Policy = iota
	// RestorePrevious puts back whatever was there before.
	RestorePrevious
	// ClearAfter empties the clipboard.
	ClearAfter
)

// Snapshot is the clipboard content captured before an operation.
type Snapshot struct {
	text string
	ok   bool
}

func (s Snapshot) Text() string { return s.text }

type Injector struct {
	Clip   Clipboard
	Keys   Keystroker
	Delays Delays
	// Sleep overrides the context-aware wait. Tests record durations here.
	Sleep func(time.Duration)
}

func NewInjector(clip Clipboard, keys Keystroker, d Delays) *Injector {
	return &Injector{Clip: clip, Keys: keys, Delays: d}
}

func (in *Injector) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if in.Sleep != nil {
		in.Sleep(d)
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Snapshot captures the current clipboard. Some backends (xclip, xsel)
// fail to read an empty clipboard, so a failed read is taken as empty and
// restoring it clears whatever was written since.
func (in *Injector) Snapshot() Snapshot {
	text, err := in.Clip.Read()
	if err != nil {
		log.Warnf("clipboard snapshot, treating as empty: %v", err)
		text = ""
	}
	return Snapshot{text: text, ok: true}
}

// Restore writes a snapshot back. The zero Snapshot restores nothing.
func (in *Injector) Restore(s Snapshot) error {
	if !s.ok {
		return nil
	}
	if err := in.Clip.Write(s.text); err != nil {
		log.Warnf("clipboard restore: %v", err)
		return err
	}
	return nil
}

// fail restores snap and returns err, so a failed keystroke never leaves
// the user's clipboard clobbered.
func (in *Injector) fail(snap Snapshot, err error) error {
	in.Restore(snap)
	return err
}

// PasteText pastes text into the focused window. The previous clipboard
// is restored on any failure; on success policy decides what remains.
func (in *Injector) PasteText(ctx context.Context, text string, policy Policy) error {
	snap := in.Snapshot()
	if err := in.Clip.Write(text); err != nil {
		return in.fail(snap, fmt.Errorf("write clipboard: %w", err))
	}
	if err := in.wait(ctx, in.Delays.FocusSettle); err != nil {
		return in.fail(snap, err)
	}
	if err := in.Keys.Paste(); err != nil {
		return in.fail(snap, fmt.Errorf("paste keystroke: %w", err))
	}
	if policy == KeepPasted {
		return nil
	}
	if err := in.wait(ctx, in.Delays.ClearAfter); err != nil {
		return in.fail(snap, err)
	}
	if policy == ClearAfter {
		return in.Clip.Write("")
	}
	return in.Restore(snap)
}

// CopySelection copies the focused window's selection. When nothing was
// selected it falls back to select-all. The returned snapshot holds the
// clipboard from before the copy; the caller restores it when done.
func (in *Injector) CopySelection(ctx context.Context) (string, Snapshot, error) {
	if err := in.wait(ctx, in.Delays.PreCopy); err != nil {
		return "", Snapshot{}, err
	}
	snap := in.Snapshot()

	if err := in.Keys.Copy(); err != nil {
		return "", snap, in.fail(snap, fmt.Errorf("copy keystroke: %w", err))
	}
	if err := in.wait(ctx, in.Delays.CopySettle); err != nil {
		return "", snap, in.fail(snap, err)
	}
	text, _ := in.Clip.Read()

	if strings.TrimSpace(text) == "" || (snap.ok && text == snap.text) {
		if err := in.Clip.Write(""); err != nil {
			return "", snap, in.fail(snap, err)
		}
		if err := in.wait(ctx, in.Delays.ClearSettle); err != nil {
			return "", snap, in.fail(snap, err)
		}
		if err := in.selectAllCopy(ctx); err != nil {
			return "", snap, in.fail(snap, err)
		}
		if err := in.wait(ctx, in.Delays.SelectAllSettle); err != nil {
			return "", snap, in.fail(snap, err)
		}
		text, _ = in.Clip.Read()
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", snap, in.fail(snap, ErrNothingSelected)
	}
	return text, snap, nil
}

func (in *Injector) selectAllCopy(ctx context.Context) error {
	if err := in.Keys.SelectAll(); err != nil {
		return fmt.Errorf("select-all keystroke: %w", err)
	}
	if err := in.wait(ctx, in.Delays.SelectAllCopyGap); err != nil {
		return err
	}
	if err := in.Keys.Copy(); err != nil {
		return fmt.Errorf("copy keystroke: %w", err)
	}
	return nil
}

// SelectAllReplace replaces the whole content of the focused field with
// text, then restores snap.
func (in *Injector) SelectAllReplace(ctx context.Context, text string, snap Snapshot) error {
	if err := in.Clip.Write(text); err != nil {
		return in.fail(snap, fmt.Errorf("write clipboard: %w", err))
	}
	if err := in.wait(ctx, in.Delays.PasteSettle); err != nil {
		return in.fail(snap, err)
	}
	if err := in.Keys.SelectAll(); err != nil {
		return in.fail(snap, fmt.Errorf("select-all keystroke: %w", err))
	}
	if err := in.wait(ctx, in.Delays.SelectAllPasteGap); err != nil {
		return in.fail(snap, err)
	}
	if err := in.Keys.Paste(); err != nil {
		return in.fail(snap, fmt.Errorf("paste keystroke: %w", err))
	}
	if err := in.wait(ctx, in.Delays.RestoreSettle); err != nil {
		return in.fail(snap, err)
	}
	return in.Restore(snap)
}

// ReplaceLastTyped selects the n characters left of the caret and pastes
// text over them. The previous clipboard is restored afterwards.
func (in *Injector) ReplaceLastTyped(ctx context.Context, n int, text string) error {
	if n <= 0 {
		return fmt.Errorf("replace count %d", n)
	}
	snap := in.Snapshot()
	if err := in.Clip.Write(text); err != nil {
		return in.fail(snap, fmt.Errorf("write clipboard: %w", err))
	}
	if err := in.wait(ctx, in.Delays.ReplaceSettle); err != nil {
		return in.fail(snap, err)
	}
	if err := in.Keys.ShiftLeft(n); err != nil {
		return in.fail(snap, fmt.Errorf("shift-left keystroke: %w", err))
	}
	if err := in.wait(ctx, in.Delays.ShiftLeftGap); err != nil {
		return in.fail(snap, err)
	}
	if err := in.Keys.Paste(); err != nil {
		return in.fail(snap, fmt.Errorf("paste keystroke: %w", err))
	}
	if err := in.wait(ctx, in.Delays.ClearAfter); err != nil {
		return in.fail(snap, err)
	}
	return in.Restore(snap)
}
