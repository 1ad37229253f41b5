package hotkey

import (
	"fmt"
	"sort"
	"sync"

	"rephrase/log"
)

// Action names a user-bindable command.
type Action string

const (
	ActionVoice    Action = "voice"
	ActionComposer Action = "composer"
	ActionRephrase Action = "rephrase"
)

// Fallback watches combos the OS refused, typically through an external
// watcher process.
type Fallback interface {
	Watch(acc Accelerator, h Handler) (stop func(), err error)
}

type binding struct {
	acc    Accelerator
	unbind func()
}

// Registry owns every active global binding.
type Registry struct {
	binder   Binder
	fallback Fallback
	goos     string
	handlers map[Action]Handler

	mu     sync.Mutex
	active map[Action]binding
}

func NewRegistry(b Binder, fb Fallback, goos string, handlers map[Action]Handler) *Registry {
	return &Registry{
		binder:   b,
		fallback: fb,
		goos:     goos,
		handlers: handlers,
		active:   make(map[Action]binding),
	}
}

// RegisterAll drops every binding and registers accels afresh, so repeated
// calls never stack handlers. Combos the binder refuses go to the
// fallback. The returned map holds the actions that could not be bound.
func (r *Registry) RegisterAll(accels map[Action]string) map[Action]error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregisterLocked()

	errs := make(map[Action]error)
	actions := make([]Action, 0, len(accels))
	for a := range accels {
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })

	for _, action := range actions {
		spec := accels[action]
		h, ok := r.handlers[action]
		if spec == "" || !ok {
			continue
		}
		acc, err := Parse(spec)
		if err != nil {
			errs[action] = err
			log.Warnf("hotkey %s: %v", action, err)
			continue
		}
		acc = Translate(acc, r.goos)

		unbind, err := r.binder.Bind(acc, h)
		if err != nil && r.fallback != nil {
			var ferr error
			unbind, ferr = r.fallback.Watch(acc, h)
			if ferr != nil {
				err = fmt.Errorf("%w; fallback: %v", err, ferr)
			} else {
				log.Infof("hotkey %s: %s routed to watcher (%v)", action, acc, err)
				err = nil
			}
		}
		if err != nil {
			errs[action] = err
			log.Warnf("hotkey %s: %v", action, err)
			continue
		}
		r.active[action] = binding{acc: acc, unbind: unbind}
	}
	return errs
}

// UnregisterAll releases every binding.
func (r *Registry) UnregisterAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregisterLocked()
}

func (r *Registry) unregisterLocked() {
	for a, b := range r.active {
		if b.unbind != nil {
			b.unbind()
		}
		delete(r.active, a)
	}
}

// Bound returns the translated accelerator of an active binding.
func (r *Registry) Bound(a Action) (Accelerator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.active[a]
	return b.acc, ok
}
