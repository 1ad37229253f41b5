package hotkey

import (
	"fmt"
	"sync"
)

// FakeBinder records bindings in memory. Combos listed in Refuse fail to
// bind, the way the OS refuses reserved chords.
type FakeBinder struct {
	mu     sync.Mutex
	Refuse map[string]bool
	bound  map[string]map[int]Handler
	nextID int
}

func NewFakeBinder() *FakeBinder {
	return &FakeBinder{Refuse: map[string]bool{}, bound: map[string]map[int]Handler{}}
}

func (f *FakeBinder) Bind(acc Accelerator, h Handler) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := acc.String()
	if acc.ModifierOnly() || f.Refuse[key] {
		return nil, fmt.Errorf("%s: %w", key, ErrReserved)
	}
	if f.bound[key] == nil {
		f.bound[key] = map[int]Handler{}
	}
	f.nextID++
	id := f.nextID
	f.bound[key][id] = h
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.bound[key], id)
	}, nil
}

// Handlers returns the number of live handlers for a combo.
func (f *FakeBinder) Handlers(acc string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bound[acc])
}

// Press fires Down then Up on every live handler for acc.
func (f *FakeBinder) Press(acc string) {
	f.PressDown(acc)
	f.Release(acc)
}

func (f *FakeBinder) PressDown(acc string) {
	for _, h := range f.snapshot(acc) {
		if h.Down != nil {
			h.Down()
		}
	}
}

func (f *FakeBinder) Release(acc string) {
	for _, h := range f.snapshot(acc) {
		if h.Up != nil {
			h.Up()
		}
	}
}

func (f *FakeBinder) snapshot(acc string) []Handler {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Handler, 0, len(f.bound[acc]))
	for _, h := range f.bound[acc] {
		out = append(out, h)
	}
	return out
}
