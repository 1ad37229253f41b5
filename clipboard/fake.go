package clipboard

import (
	"errors"
	"sync"
)

// FakeClipboard is an in-memory Clipboard.
type FakeClipboard struct {
	mu      sync.Mutex
	Text    string
	ReadErr error
	Writes  []string
}

func (f *FakeClipboard) Read() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadErr != nil {
		return "", f.ReadErr
	}
	return f.Text, nil
}

func (f *FakeClipboard) Write(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Text = text
	f.Writes = append(f.Writes, text)
	return nil
}

func (f *FakeClipboard) Current() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Text
}

var errFakeKeystroke = errors.New("keystroke rejected")

// FakeKeys records strokes. OnCopy simulates the focused app answering a
// copy; Fail makes the named stroke return an error.
type FakeKeys struct {
	mu          sync.Mutex
	Strokes     []string
	Fail        map[string]bool
	OnCopy      func(afterSelectAll bool)
	selectedAll bool
}

func (f *FakeKeys) do(name string) error {
	f.mu.Lock()
	f.Strokes = append(f.Strokes, name)
	fail := f.Fail[name]
	f.mu.Unlock()
	if fail {
		return errFakeKeystroke
	}
	return nil
}

func (f *FakeKeys) Copy() error {
	if err := f.do("copy"); err != nil {
		return err
	}
	if f.OnCopy != nil {
		f.OnCopy(f.selectedAll)
	}
	return nil
}

func (f *FakeKeys) Paste() error { return f.do("paste") }

func (f *FakeKeys) SelectAll() error {
	f.selectedAll = true
	return f.do("select_all")
}

func (f *FakeKeys) ShiftLeft(n int) error { return f.do("shift_left") }

func (f *FakeKeys) Log() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Strokes...)
}
