package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"rephrase/clock"
	"rephrase/log"
	"rephrase/pipeline"
)

const (
	DefaultSafetyTimeout = 25 * time.Second
	DefaultErrorDelay    = 600 * time.Millisecond
	DefaultFadeDelay     = 320 * time.Millisecond
	// Takes shorter than this are extended before capture stops.
	DefaultMinDuration = 700 * time.Millisecond
)

const (
	msgTimeout      = "Timed out — please try again."
	msgCancelled    = "Cancelled."
	msgMicFailed    = "Microphone unavailable."
	msgRecordFailed = "Recording failed."
	msgGeneric      = "Something went wrong."
)

// Capture is the audio collaborator. Stop blocks until the take is
// finalised.
type Capture interface {
	Start() error
	Stop() ([]byte, error)
}

type Pipeline interface {
	Run(ctx context.Context, req pipeline.Request) pipeline.Result
}

// Presenter receives every state change.
type Presenter interface {
	Present(Snapshot)
}

// Watchers spawns the release detector for hold-to-talk sessions. The
// returned kill must be safe to call after the watcher has exited.
type Watchers interface {
	WatchRelease(modifier string, released func()) (kill func(), err error)
}

type Inserter interface {
	Insert(ctx context.Context, text string) error
}

// App is the foreground application at trigger time.
type App struct {
	Name string
	Icon string // base64 PNG, may be empty
}

type Foreground interface {
	App(ctx context.Context) (App, error)
}

type Config struct {
	Capture    Capture
	Pipeline   Pipeline
	Presenter  Presenter
	Watchers   Watchers
	Inserter   Inserter
	Foreground Foreground
	// Gate is consulted before listening. A non-nil error short-circuits
	// to the error state.
	Gate func() error

	Clock   clock.Clock
	Go      func(func())
	Context context.Context
	// OnIdle runs after every return to idle.
	OnIdle func()

	SafetyTimeout time.Duration
	ErrorDelay    time.Duration
	FadeDelay     time.Duration
	MinDuration   time.Duration
}

// Snapshot is the externally visible session value.
type Snapshot struct {
	State   State
	Gen     uint64
	Mode    pipeline.Mode
	Message string
	App     App
}

type active struct {
	mode      pipeline.Mode
	driver    Driver
	startedAt time.Time
	kill      func()
	safety    clock.Timer
	app       App
	message   string
	insert    string
}

// Machine owns the single recording slot. Events are queued and handled
// one at a time; effects that dispatch re-entrantly are queued behind the
// current event.
type Machine struct {
	cfg Config

	mu       sync.Mutex
	queue    []Event
	draining bool

	// Touched only by the draining goroutine.
	state State
	gen   uint64
	cur   *active

	view atomic.Pointer[Snapshot]
}

func New(cfg Config) *Machine {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Go == nil {
		cfg.Go = func(f func()) { go f() }
	}
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	if cfg.SafetyTimeout <= 0 {
		cfg.SafetyTimeout = DefaultSafetyTimeout
	}
	if cfg.ErrorDelay <= 0 {
		cfg.ErrorDelay = DefaultErrorDelay
	}
	if cfg.FadeDelay <= 0 {
		cfg.FadeDelay = DefaultFadeDelay
	}
	if cfg.MinDuration < 0 {
		cfg.MinDuration = 0
	} else if cfg.MinDuration == 0 {
		cfg.MinDuration = DefaultMinDuration
	}
	m := &Machine{cfg: cfg}
	m.view.Store(&Snapshot{})
	return m
}

func (m *Machine) Snapshot() Snapshot { return *m.view.Load() }

func (m *Machine) State() State { return m.view.Load().State }

// Dispatch queues ev. If no other caller is draining, the queue is drained
// on the calling goroutine before Dispatch returns.
func (m *Machine) Dispatch(ev Event) {
	m.mu.Lock()
	m.queue = append(m.queue, ev)
	if m.draining {
		m.mu.Unlock()
		return
	}
	m.draining = true
	for len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		m.handle(next)
		m.mu.Lock()
	}
	m.draining = false
	m.mu.Unlock()
}

func (m *Machine) handle(ev Event) {
	switch e := ev.(type) {
	case Trigger:
		m.start(e.Mode, e.Driver, e.Modifier, ev)
	case Toggle:
		switch m.state {
		case Idle:
			m.start(e.Mode, DriverToggle, "", ev)
		case Listening:
			m.stop(ev)
		default:
			m.ignore(ev)
		}
	case Released:
		if !m.current(e.Gen, Listening) {
			m.ignore(ev)
			return
		}
		m.stop(ev)
	case Stop:
		if m.state != Listening {
			m.ignore(ev)
			return
		}
		m.stop(ev)
	case Cancel:
		if m.state != Listening && m.state != Transcribing {
			m.ignore(ev)
			return
		}
		if m.state == Listening {
			m.killWatcher()
			m.stopCapture(0)
		}
		m.fail(msgCancelled, ev)
	case AppDetected:
		if e.Gen != m.gen || m.state == Idle {
			return
		}
		m.cur.app = e.App
		m.publish()
	case AudioReady:
		if !m.current(e.Gen, Transcribing) {
			m.stale(ev, e.Gen)
			return
		}
		if e.Err != nil {
			log.Errorf("capture stop failed: %v", e.Err)
			m.fail(msgRecordFailed, ev)
			return
		}
		m.runPipeline(e.Audio)
	case PipelineFinished:
		if !m.current(e.Gen, Transcribing) {
			m.stale(ev, e.Gen)
			return
		}
		m.finish(e.Result, ev)
	case SafetyTimeout:
		if !m.current(e.Gen, Transcribing) {
			return
		}
		log.SafetyTimeout(e.Gen, m.state.String(), m.cfg.SafetyTimeout)
		m.fail(msgTimeout, ev)
	case ErrorElapsed:
		if !m.current(e.Gen, Error) {
			return
		}
		m.enterIdle(ev)
	case FadeElapsed:
		if !m.current(e.Gen, Done) {
			return
		}
		m.enterIdle(ev)
	}
}

func (m *Machine) current(gen uint64, s State) bool {
	return gen == m.gen && m.state == s
}

func (m *Machine) ignore(ev Event) {
	log.Infof("session %d: %s ignored in %s", m.gen, ev.name(), m.state)
}

func (m *Machine) stale(ev Event, gen uint64) {
	log.Warnf("session %d: discarding %s from session %d", m.gen, ev.name(), gen)
}

func (m *Machine) transition(to State, ev Event) {
	from := m.state
	m.state = to
	log.Transition(m.gen, from.String(), to.String(), ev.name())
	m.publish()
}

func (m *Machine) publish() {
	snap := &Snapshot{State: m.state, Gen: m.gen}
	if m.cur != nil {
		snap.Mode = m.cur.mode
		snap.Message = m.cur.message
		snap.App = m.cur.app
	}
	m.view.Store(snap)
	if m.cfg.Presenter != nil {
		m.cfg.Presenter.Present(*snap)
	}
}

func (m *Machine) start(mode pipeline.Mode, driver Driver, modifier string, ev Event) {
	if m.state != Idle {
		m.ignore(ev)
		return
	}
	if mode == "" {
		mode = pipeline.ModeVoice
	}
	m.gen++
	m.cur = &active{mode: mode, driver: driver}

	if m.cfg.Gate != nil {
		if err := m.cfg.Gate(); err != nil {
			m.fail(err.Error(), ev)
			return
		}
	}

	m.cur.startedAt = m.cfg.Clock.Now()
	m.transition(Listening, ev)

	if err := m.cfg.Capture.Start(); err != nil {
		log.Errorf("capture start failed: %v", err)
		m.fail(msgMicFailed, ev)
		return
	}

	if driver == DriverReleaseWatcher {
		m.watchRelease(modifier)
	}

	if fg := m.cfg.Foreground; fg != nil {
		gen := m.gen
		ctx := m.cfg.Context
		m.cfg.Go(func() {
			app, err := fg.App(ctx)
			if err != nil {
				log.Warnf("foreground app lookup: %v", err)
				return
			}
			m.Dispatch(AppDetected{Gen: gen, App: app})
		})
	}
}

func (m *Machine) watchRelease(modifier string) {
	if m.cfg.Watchers == nil {
		log.Warn("release watcher requested but none configured")
		return
	}
	gen := m.gen
	kill, err := m.cfg.Watchers.WatchRelease(modifier, func() {
		m.Dispatch(Released{Gen: gen})
	})
	if err != nil {
		log.Warnf("release watcher: %v", err)
		return
	}
	m.cur.kill = kill
}

func (m *Machine) killWatcher() {
	if m.cur == nil || m.cur.kill == nil {
		return
	}
	kill := m.cur.kill
	m.cur.kill = nil
	kill()
}

func (m *Machine) stop(ev Event) {
	m.killWatcher()
	m.transition(Transcribing, ev)

	gen := m.gen
	m.cur.safety = m.cfg.Clock.AfterFunc(m.cfg.SafetyTimeout, func() {
		m.Dispatch(SafetyTimeout{Gen: gen})
	})

	wait := m.cfg.MinDuration - m.cfg.Clock.Now().Sub(m.cur.startedAt)
	m.stopCapture(wait)
}

// stopCapture stops the recorder after wait and reports the take as an
// AudioReady for the current generation.
func (m *Machine) stopCapture(wait time.Duration) {
	gen := m.gen
	capture := m.cfg.Capture
	run := func() {
		m.cfg.Go(func() {
			data, err := capture.Stop()
			m.Dispatch(AudioReady{Gen: gen, Audio: data, Err: err})
		})
	}
	if wait > 0 {
		m.cfg.Clock.AfterFunc(wait, run)
		return
	}
	run()
}

func (m *Machine) runPipeline(data []byte) {
	gen := m.gen
	req := pipeline.Request{Audio: data, Mode: m.cur.mode, AppName: m.cur.app.Name}
	ctx := m.cfg.Context
	p := m.cfg.Pipeline
	m.cfg.Go(func() {
		res := p.Run(ctx, req)
		m.Dispatch(PipelineFinished{Gen: gen, Result: res})
	})
}

func (m *Machine) finish(res pipeline.Result, ev Event) {
	if !res.OK {
		m.fail(failureMessage(res.Err), ev)
		return
	}
	if res.Text == "" {
		m.fail(pipeline.MsgNoSpeech, ev)
		return
	}
	m.clearSafety()
	if res.Insert && m.cur.mode == pipeline.ModeVoice {
		m.cur.insert = res.Text
	}
	m.enterDone(ev)
}

// failureMessage picks what the overlay shows for a failed run. Input
// problems are expected and only noted; the other kinds mean a
// collaborator is down or misbehaving.
func failureMessage(e *pipeline.Error) string {
	if e == nil {
		log.Error("pipeline failed without an error")
		return msgGeneric
	}
	switch e.Kind {
	case pipeline.InputQuality:
		log.Infof("input rejected: %s", e.Message)
	case pipeline.Unavailable:
		log.Errorf("engine unavailable: %s (%v)", e.Message, e.Err)
	default:
		log.Warnf("pipeline failed: %s: %s (%v)", e.Kind, e.Message, e.Err)
	}
	if e.Message == "" {
		return msgGeneric
	}
	return e.Message
}

func (m *Machine) clearSafety() {
	if m.cur != nil && m.cur.safety != nil {
		m.cur.safety.Stop()
		m.cur.safety = nil
	}
}

func (m *Machine) fail(msg string, ev Event) {
	m.clearSafety()
	m.killWatcher()
	m.cur.message = msg
	m.cur.insert = ""
	m.transition(Error, ev)
	gen := m.gen
	m.cfg.Clock.AfterFunc(m.cfg.ErrorDelay, func() {
		m.Dispatch(ErrorElapsed{Gen: gen})
	})
}

func (m *Machine) enterDone(ev Event) {
	m.clearSafety()
	m.transition(Done, ev)
	gen := m.gen
	m.cfg.Clock.AfterFunc(m.cfg.FadeDelay, func() {
		m.Dispatch(FadeElapsed{Gen: gen})
	})
}

func (m *Machine) enterIdle(ev Event) {
	text := m.cur.insert
	m.cur = nil
	m.transition(Idle, ev)

	if text != "" && m.cfg.Inserter != nil {
		ins := m.cfg.Inserter
		ctx := m.cfg.Context
		m.cfg.Go(func() {
			if err := ins.Insert(ctx, text); err != nil {
				log.Errorf("insert failed: %v", err)
			}
		})
	}
	if m.cfg.OnIdle != nil {
		m.cfg.OnIdle()
	}
}
