package supervisor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"rephrase/clock"
	"rephrase/log"
)

// ErrUnsupported is returned when watchers are requested on a platform
// that has no watcher scripts.
var ErrUnsupported = errors.New("watchers are only supported on windows")

// RestartDelay is the fixed backoff before the combo detector is respawned.
const RestartDelay = 2000 * time.Millisecond

// Handler receives watcher events on the watcher's reader goroutine.
type Handler func(Event)

type Config struct {
	Shell        string // default "powershell.exe"
	ScriptDir    string
	GOOS         string // default runtime.GOOS
	RestartDelay time.Duration
	Spawner      Spawner
	Clock        clock.Clock
}

// Watcher is an owned handle on one child process.
type Watcher struct {
	kind     Kind
	proc     Process
	killOnce sync.Once
	done     chan struct{}
	err      error
}

func (w *Watcher) Kind() Kind { return w.kind }

// Done is closed once the process has exited and Exited was delivered.
func (w *Watcher) Done() <-chan struct{} { return w.done }

// Err is the process exit error. Valid after Done is closed.
func (w *Watcher) Err() error { return w.err }

// Kill terminates the process. Safe to call any number of times.
func (w *Watcher) Kill() {
	w.killOnce.Do(func() {
		if err := w.proc.Kill(); err != nil {
			log.Watcher(w.kind.String(), "kill", err)
		}
	})
}

type Supervisor struct {
	cfg Config

	mu           sync.Mutex
	owned        map[*Watcher]struct{}
	combo        *Watcher
	comboHandler Handler
	restart      clock.Timer
	closed       bool
}

func New(cfg Config) *Supervisor {
	if cfg.Shell == "" {
		cfg.Shell = "powershell.exe"
	}
	if cfg.GOOS == "" {
		cfg.GOOS = runtime.GOOS
	}
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = RestartDelay
	}
	if cfg.Spawner == nil {
		cfg.Spawner = ExecSpawner{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Supervisor{cfg: cfg, owned: make(map[*Watcher]struct{})}
}

// Spawn starts a watcher of the given kind. Every parsed stdout line is
// passed to h, followed by a single Exited event.
func (s *Supervisor) Spawn(kind Kind, h Handler, args ...string) (*Watcher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawnLocked(kind, h, args)
}

func (s *Supervisor) spawnLocked(kind Kind, h Handler, args []string) (*Watcher, error) {
	if s.closed {
		return nil, errors.New("supervisor is shut down")
	}
	if s.cfg.GOOS != "windows" {
		log.Watcher(kind.String(), "unsupported", ErrUnsupported)
		return nil, ErrUnsupported
	}

	script := filepath.Join(s.cfg.ScriptDir, kind.Script())
	argv := append([]string{
		"-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass", "-File", script,
	}, args...)
	proc, err := s.cfg.Spawner.Spawn(s.cfg.Shell, argv...)
	if err != nil {
		log.Watcher(kind.String(), "spawn", err)
		return nil, fmt.Errorf("spawn %s: %w", kind, err)
	}

	w := &Watcher{kind: kind, proc: proc, done: make(chan struct{})}
	s.owned[w] = struct{}{}
	log.Watcher(kind.String(), "start", nil)
	go s.read(w, h)
	return w, nil
}

func (s *Supervisor) read(w *Watcher, h Handler) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		drainStderr(w.kind, w.proc.Stderr())
	}()

	if out := w.proc.Stdout(); out != nil {
		scanner := bufio.NewScanner(out)
		for scanner.Scan() {
			if ev, ok := ParseLine(w.kind, scanner.Text()); ok && h != nil {
				h(ev)
			}
		}
	}
	wg.Wait()

	w.err = w.proc.Wait()
	log.Watcher(w.kind.String(), "exit", w.err)
	s.exited(w)
	if h != nil {
		h(Exited{Err: w.err})
	}
	close(w.done)
}

func drainStderr(kind Kind, r io.Reader) {
	if r == nil {
		return
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		log.Warnf("%s stderr: %s", kind, scanner.Text())
	}
}

func (s *Supervisor) exited(w *Watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.owned, w)
	if s.combo != w {
		return
	}
	s.combo = nil
	if s.closed || s.restart != nil {
		return
	}
	s.restart = s.cfg.Clock.AfterFunc(s.cfg.RestartDelay, s.restartCombo)
	log.Watcher(ComboDetector.String(), "restart_scheduled", nil)
}

func (s *Supervisor) restartCombo() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restart = nil
	if s.closed || s.combo != nil {
		return
	}
	// A failed respawn leaves the combo hotkeys inert; it is only logged.
	s.startComboLocked()
}

// EnsureComboDetector starts the single combo detector if it is neither
// running nor waiting to restart. Events go to h, which is also used for
// every later restart.
func (s *Supervisor) EnsureComboDetector(h Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comboHandler = h
	if s.combo != nil || s.restart != nil {
		return nil
	}
	return s.startComboLocked()
}

func (s *Supervisor) startComboLocked() error {
	w, err := s.spawnLocked(ComboDetector, s.comboHandler, nil)
	if err != nil {
		return err
	}
	s.combo = w
	return nil
}

// Shutdown cancels a pending restart and kills every owned watcher.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	s.closed = true
	if s.restart != nil {
		s.restart.Stop()
		s.restart = nil
	}
	ws := make([]*Watcher, 0, len(s.owned))
	for w := range s.owned {
		ws = append(ws, w)
	}
	s.combo = nil
	s.mu.Unlock()

	for _, w := range ws {
		w.Kill()
	}
}
