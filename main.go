package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"rephrase/audio"
	"rephrase/beep"
	"rephrase/clipboard"
	"rephrase/config"
	"rephrase/doctor"
	"rephrase/hotkey"
	"rephrase/llm"
	"rephrase/log"
	"rephrase/overlay"
	"rephrase/pipeline"
	"rephrase/shutdown"
	"rephrase/store"
	"rephrase/supervisor"
	"rephrase/transcriber"
)

var version = "dev"

const (
	defaultLongPress = 350 * time.Millisecond
	powershell       = "powershell.exe"
)

// logPathArg finds -logpath before flag parsing so the crash log lands
// next to the diagnostics log.
func logPathArg(args []string) string {
	for i, a := range args {
		a = strings.TrimLeft(a, "-")
		if v, ok := strings.CutPrefix(a, "logpath="); ok {
			return v
		}
		if a == "logpath" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// initCrashLog routes fatal runtime errors to crash_log.txt. It runs
// before any cgo audio or hotkey code.
func initCrashLog() {
	dir, err := log.ResolveDir(logPathArg(os.Args[1:]))
	if err != nil {
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(filepath.Join(dir, "crash_log.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	fmt.Fprintf(f, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(f, debug.CrashOptions{})
}

// programSink forwards to the TUI once it exists.
type programSink struct {
	mu sync.Mutex
	p  *tea.Program
}

func (s *programSink) set(p *tea.Program) {
	s.mu.Lock()
	s.p = p
	s.mu.Unlock()
}

func (s *programSink) Send(msg tea.Msg) {
	s.mu.Lock()
	p := s.p
	s.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func deviceLineText(dev *audio.DeviceInfo) string {
	name := "system default"
	suffix := ""
	if dev != nil {
		name = dev.Name
		if audio.IsBluetooth(dev.Name) {
			suffix = " (BT!)"
		}
	}
	return "mic: " + name + suffix
}

func modeLineText(s config.Settings, engine string) string {
	model := s.WhisperModel
	if engine != "whisper" {
		model = "remote"
	}
	lang := s.WhisperLanguage
	return fmt.Sprintf("[%s %s (%s) | %s]", engine, model, lang, s.OllamaModel)
}

func fatalf(format string, args ...any) {
	log.Errorf(format, args...)
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func run() {
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	configFlag := flag.String("config", "", "settings file (default: per-user config dir)")
	envFlag := flag.String("env", ".env", "dotenv file with API keys; a missing file is ignored")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")
	setupFlag := flag.Bool("setup", false, "Select microphone device and save it")
	deviceFlag := flag.String("device", "", "Use and save the named microphone device")
	engineFlag := flag.String("engine", "", "Speech engine to use and save: whisper, groq or openai")
	langFlag := flag.String("lang", "", "Language code to use and save (e.g. en, es). auto = detect")
	downloadFlag := flag.String("download", "", "Download a whisper model (e.g. base.en) and exit")
	wavFlag := flag.String("wav", "", "Run the dictation pipeline on a WAV file, print the result and exit")
	trainFlag := flag.Bool("train", false, "Record the training phrases and build a voice profile")
	scriptsFlag := flag.String("scripts", "", "Directory holding the watcher scripts (default: next to the executable)")
	hybridFlag := flag.Bool("hybrid", false, "Enable hybrid tap+hold recording mode")
	longPressFlag := flag.Duration("longpress", defaultLongPress, "Long-press threshold for PTT vs tap (e.g., 350ms)")
	tuiFlag := flag.Bool("tui", true, "Run with terminal UI")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("rephrase %s\n", version)
		os.Exit(0)
	}

	if err := godotenv.Load(*envFlag); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: %s: %v\n", *envFlag, err)
	}

	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	cfgDir, err := config.Dir()
	if err != nil {
		fatalf("config dir: %v", err)
	}
	cfgPath := *configFlag
	if cfgPath == "" {
		if cfgPath, err = config.Path(); err != nil {
			fatalf("config path: %v", err)
		}
	}
	st, err := config.Open(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}
	if *engineFlag != "" || *langFlag != "" || *deviceFlag != "" {
		err := st.Update(func(s *config.Settings) {
			if *engineFlag != "" {
				s.Engine = *engineFlag
			}
			if *langFlag != "" {
				s.WhisperLanguage = *langFlag
			}
			if *deviceFlag != "" {
				s.MicDevice = *deviceFlag
			}
		})
		if err != nil {
			fatalf("save settings: %v", err)
		}
	}

	whisper := transcriber.NewWhisper(filepath.Join(cfgDir, "whisper"), filepath.Join(cfgDir, "models"))
	if *downloadFlag != "" {
		runDownload(whisper, *downloadFlag)
		return
	}

	s := st.Get()
	stt, err := transcriber.New(s.Engine, whisper)
	if err != nil {
		fatalf("%v", err)
	}
	text := llm.NewOllama(s.OllamaURL, s.OllamaModel)
	log.SessionStart(stt.Name(), s.WhisperModel, version)

	actx, err := audio.NewContext()
	if err != nil {
		fatalf("initializing audio: %v", err)
	}
	defer actx.Close()

	if *setupFlag {
		dev, err := audio.SelectDevice(actx)
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed: %v\nFalling back to default device\n", err)
		} else if err := st.Update(func(s *config.Settings) { s.MicDevice = dev.Name }); err != nil {
			fatalf("save settings: %v", err)
		}
		s = st.Get()
	}

	keys := clipboard.NewKeystroker(s.KeystrokeEngine, powershell)
	inj := clipboard.NewInjector(clipboard.System{}, keys, clipboard.DefaultDelays())
	conv := audio.FFmpeg{Path: "ffmpeg", TmpDir: os.TempDir()}

	if *doctorFlag {
		os.Exit(doctor.Run(doctor.Config{
			Settings:  s,
			Whisper:   whisper,
			STT:       stt,
			LLM:       text,
			Audio:     actx,
			Converter: conv,
			Injector:  inj,
			Binder:    hotkey.SystemBinder{},
			GOOS:      runtime.GOOS,
		}))
	}

	dev, err := audio.FindDevice(actx, s.MicDevice)
	if err != nil {
		log.Warnf("%v, using system default", err)
		dev = nil
	}
	capture, err := actx.NewCapture(dev, audio.DefaultCapture)
	if err != nil {
		fatalf("initializing capture device: %v", err)
	}
	defer capture.Close()
	rec := audio.NewRecorder(capture)

	db, err := store.Open(filepath.Join(cfgDir, "data"))
	if err != nil {
		fatalf("%v", err)
	}
	defer db.Close()

	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	if w, ok := stt.(interface {
		Warm(context.Context) time.Duration
	}); ok {
		go func() {
			if d := w.Warm(ctx); d > 0 {
				log.Infof("%s connection warmed (tls %s)", stt.Name(), d)
			}
		}()
	}

	if *trainFlag {
		t := &pipeline.Trainer{
			Converter: conv,
			STT:       stt,
			LLM:       text,
			Profiles:  db.VoiceProfile(),
			Model:     s.WhisperModel,
		}
		if err := runTraining(ctx, os.Stdout, bufio.NewReader(os.Stdin), rec, t); err != nil {
			fatalf("training: %v", err)
		}
		return
	}

	scripts := *scriptsFlag
	if scripts == "" {
		exe, _ := os.Executable()
		scripts = filepath.Join(filepath.Dir(exe), "scripts")
	}

	ui := &programSink{}
	var transcripts atomic.Int64
	a := newApp(ctx, deps{
		Settings:   st,
		DB:         db,
		Supervisor: supervisor.New(supervisor.Config{Shell: powershell, ScriptDir: scripts}),
		Binder:     hotkey.SystemBinder{},
		Capture:    rec,
		STT:        stt,
		LLM:        text,
		Converter:  conv,
		Injector:   inj,
		Foreground: overlay.NewLookup(powershell),
		Player:     beep.System(),
		Sink:       countingSink{ui, &transcripts},
		Gate:       micGate(actx),
		GOOS:       runtime.GOOS,
		Hybrid:     *hybridFlag,
		LongPress:  *longPressFlag,
	})

	if *wavFlag != "" {
		os.Exit(runWAV(ctx, a, *wavFlag))
	}

	rec.OnLevel(func(rms float64) { ui.Send(AudioLevelMsg{Level: rms}) })

	if *tuiFlag {
		p := NewTUIProgram(a)
		ui.set(p)
		go func() {
			if _, err := p.Run(); err != nil {
				log.Errorf("TUI error: %v", err)
			}
			stop()
		}()
		defer p.Quit()
	}

	a.start()
	ui.Send(ModeLineMsg{Text: modeLineText(s, stt.Name())})
	ui.Send(DeviceLineMsg{Text: deviceLineText(dev)})
	if !*tuiFlag {
		fmt.Printf("rephrase %s listening (%s). Ctrl+C to quit.\n", version, strings.Join(a.boundActions(), ", "))
	}

	<-ctx.Done()
	a.stop()
	log.SessionEnd(int(transcripts.Load()))
}

// countingSink counts saved transcripts on their way to the UI.
type countingSink struct {
	sink
	n *atomic.Int64
}

func (c countingSink) Send(msg tea.Msg) {
	if _, ok := msg.(transcriptMsg); ok {
		c.n.Add(1)
	}
	c.sink.Send(msg)
}

// micGate refuses to start a session when no input device is present.
func micGate(actx audio.Context) func() error {
	return func() error {
		devs, err := actx.Devices()
		if err != nil {
			log.Warnf("device enumeration failed: %v", err)
			return nil
		}
		if len(devs) == 0 {
			return errors.New("No microphone found — connect one and try again.")
		}
		return nil
	}
}

func runDownload(w *transcriber.Whisper, name string) {
	fmt.Printf("Downloading whisper model %s...\n", name)
	last := -1
	err := w.DownloadModel(context.Background(), nil, "", name, func(pct int) {
		if pct/10 != last/10 {
			fmt.Printf("  %d%%\n", pct)
		}
		last = pct
	})
	if err != nil {
		fatalf("download %s: %v", name, err)
	}
	fmt.Printf("Model %s installed in %s\n", name, w.ModelDir)
}

// runWAV runs one voice-mode take from a file and prints the cleaned text.
func runWAV(ctx context.Context, a *app, path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	res := a.pipeline.Run(ctx, pipeline.Request{Audio: data, Mode: pipeline.ModeVoice})
	if !res.OK {
		msg := "Something went wrong."
		if res.Err != nil {
			msg = res.Err.Message
			log.Errorf("wav pipeline: %v", res.Err)
		}
		fmt.Fprintln(os.Stderr, msg)
		return 1
	}
	if res.Raw != res.Text {
		fmt.Fprintf(os.Stderr, "heard: %s\n", res.Raw)
	}
	fmt.Println(res.Text)
	return 0
}
