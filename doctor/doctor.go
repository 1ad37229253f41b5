// Package doctor runs interactive diagnostics for every collaborator a
// dictation session depends on.
package doctor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"rephrase/audio"
	"rephrase/clipboard"
	"rephrase/config"
	"rephrase/hotkey"
	"rephrase/shutdown"
	"rephrase/transcriber"
)

// Install is the local speech engine as the doctor sees it.
// *transcriber.Whisper implements it.
type Install interface {
	Binary() (string, bool)
	HasModel(name string) bool
}

// TextEngine is the cleanup engine. *llm.Client implements it.
type TextEngine interface {
	Ping(ctx context.Context) error
	HasModel(ctx context.Context, name string) (bool, error)
}

type Config struct {
	Settings  config.Settings
	Whisper   Install
	STT       transcriber.Engine
	LLM       TextEngine
	Audio     audio.Context
	Converter audio.Converter
	Injector  *clipboard.Injector
	Binder    hotkey.Binder
	GOOS      string
	// Diagnose reports on the hotkey backend. Nil means hotkey.Diagnose.
	Diagnose func() (string, error)
}

// Run executes the checks in order and returns an exit code (0 all pass,
// 1 any fail). Interactive checks are skipped once one has failed.
func Run(cfg Config) int {
	restore := saveTerminal()
	defer restore()
	onInterrupt(restore)

	out := os.Stdout
	in := bufio.NewReader(os.Stdin)
	fmt.Fprintln(out, "rephrase doctor - interactive system diagnostics")
	fmt.Fprintln(out, "================================================")

	ctx := context.Background()
	allPass := checkEngines(ctx, out, cfg.Settings, cfg.Whisper, cfg.LLM)
	if !checkHotkey(out, cfg, 10*time.Second) {
		allPass = false
	}
	restore()
	if allPass && !checkMicAndTranscription(ctx, out, in, cfg) {
		allPass = false
	}
	if allPass && !checkClipboard(ctx, out, in, cfg.Injector) {
		allPass = false
	}

	fmt.Fprintln(out)
	if allPass {
		fmt.Fprintln(out, "All checks passed!")
		return 0
	}
	fmt.Fprintln(out, "Some checks failed. See details above.")
	return 1
}

// saveTerminal captures the terminal state so global hotkey hooks that
// leave it in raw mode can be undone.
func saveTerminal() func() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() {}
	}
	state, err := term.GetState(fd)
	if err != nil {
		return func() {}
	}
	return func() { term.Restore(fd, state) }
}

func onInterrupt(restore func()) {
	sig := make(chan os.Signal, 1)
	shutdown.Notify(sig)
	go func() {
		<-sig
		restore()
		fmt.Fprintln(os.Stderr, "\nInterrupted")
		os.Exit(1)
	}()
}

// checkEngines verifies the speech engine install and the text engine
// without any user interaction.
func checkEngines(ctx context.Context, w io.Writer, s config.Settings, wh Install, text TextEngine) bool {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "[1/4] Speech and text engines")
	ok := true

	switch s.Engine {
	case "", "whisper":
		if wh == nil {
			fmt.Fprintln(w, "  FAIL: whisper engine not configured")
			ok = false
			break
		}
		if bin, found := wh.Binary(); found {
			fmt.Fprintf(w, "  PASS: whisper binary %s\n", filepath.Base(bin))
		} else {
			fmt.Fprintln(w, "  FAIL: whisper.cpp binary not installed")
			ok = false
		}
		if wh.HasModel(s.WhisperModel) {
			fmt.Fprintf(w, "  PASS: model %s installed\n", s.WhisperModel)
		} else {
			fmt.Fprintf(w, "  FAIL: model %s not downloaded (run with -download %s)\n", s.WhisperModel, s.WhisperModel)
			ok = false
		}
	case "groq", "openai":
		env := strings.ToUpper(s.Engine) + "_API_KEY"
		if os.Getenv(env) == "" {
			fmt.Fprintf(w, "  FAIL: %s is not set\n", env)
			ok = false
		} else {
			fmt.Fprintf(w, "  PASS: %s set\n", env)
		}
	default:
		fmt.Fprintf(w, "  FAIL: unknown speech engine %q\n", s.Engine)
		ok = false
	}

	if text == nil {
		fmt.Fprintln(w, "  FAIL: text engine not configured")
		return false
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := text.Ping(pctx); err != nil {
		fmt.Fprintf(w, "  FAIL: Ollama unreachable at %s: %v\n", s.OllamaURL, err)
		fmt.Fprintln(w, "  Fix with: ollama serve")
		return false
	}
	fmt.Fprintf(w, "  PASS: Ollama reachable at %s\n", s.OllamaURL)
	has, err := text.HasModel(pctx, s.OllamaModel)
	switch {
	case err != nil:
		fmt.Fprintf(w, "  FAIL: could not list models: %v\n", err)
		ok = false
	case !has:
		fmt.Fprintf(w, "  FAIL: model %s not pulled\n", s.OllamaModel)
		fmt.Fprintf(w, "  Fix with: ollama pull %s\n", s.OllamaModel)
		ok = false
	default:
		fmt.Fprintf(w, "  PASS: model %s available\n", s.OllamaModel)
	}
	return ok
}

// checkHotkey binds the voice combo through the system binder and waits
// for one press. Combos the OS refuses are reported as watcher-routed.
func checkHotkey(w io.Writer, cfg Config, timeout time.Duration) bool {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "[2/4] Hotkey detection")

	diagnose := cfg.Diagnose
	if diagnose == nil {
		diagnose = hotkey.Diagnose
	}
	msg, err := diagnose()
	if err != nil {
		fmt.Fprintf(w, "  FAIL: %v\n", err)
		return false
	}
	fmt.Fprintf(w, "  %s\n", msg)

	acc, err := hotkey.Parse(cfg.Settings.Hotkeys.Voice)
	if err != nil {
		fmt.Fprintf(w, "  FAIL: voice hotkey %q: %v\n", cfg.Settings.Hotkeys.Voice, err)
		return false
	}
	acc = hotkey.Translate(acc, cfg.GOOS)

	pressed := make(chan struct{}, 1)
	unbind, err := cfg.Binder.Bind(acc, hotkey.Handler{Down: func() {
		select {
		case pressed <- struct{}{}:
		default:
		}
	}})
	if err != nil {
		if acc.ModifierOnly() && cfg.GOOS == "windows" {
			fmt.Fprintf(w, "  PASS: %s is watched by the combo detector (%v)\n", acc, err)
			return true
		}
		fmt.Fprintf(w, "  FAIL: could not register %s: %v\n", acc, err)
		return false
	}
	defer unbind()

	fmt.Fprintf(w, "Press %s...\n", acc)
	select {
	case <-pressed:
		fmt.Fprintln(w, "  PASS: hotkey detected")
		return true
	case <-time.After(timeout):
		fmt.Fprintln(w, "  FAIL: timeout waiting for hotkey")
		return false
	}
}

func checkMicAndTranscription(ctx context.Context, w io.Writer, in *bufio.Reader, cfg Config) bool {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "[3/4] Microphone and transcription")

	dev, err := audio.FindDevice(cfg.Audio, cfg.Settings.MicDevice)
	if err != nil {
		fmt.Fprintf(w, "  FAIL: %v\n", err)
		return false
	}
	name := "system default"
	if dev != nil {
		name = dev.Name
	}
	fmt.Fprintf(w, "Using device: %s\n", name)
	if dev != nil && audio.IsBluetooth(dev.Name) {
		fmt.Fprintln(w, "  Warning: Bluetooth headsets capture narrowband audio")
	}

	capture, err := cfg.Audio.NewCapture(dev, audio.DefaultCapture)
	if err != nil {
		fmt.Fprintf(w, "  FAIL: cannot open capture device: %v\n", err)
		return false
	}
	defer capture.Close()
	rec := audio.NewRecorder(capture)

	var mu sync.Mutex
	var peak float64
	rec.OnLevel(func(rms float64) {
		mu.Lock()
		peak = max(peak, rms)
		mu.Unlock()
	})

	fmt.Fprint(w, "Press Enter and speak for 3 seconds...")
	in.ReadString('\n')

	data, err := record(w, rec, 3*time.Second)
	if err != nil {
		fmt.Fprintf(w, "  FAIL: recording error: %v\n", err)
		return false
	}
	mu.Lock()
	level := peak
	mu.Unlock()
	fmt.Fprintf(w, "  Recorded %.1f KB (peak level %.3f), transcribing...\n", float64(len(data))/1024, level)

	text, err := transcribe(ctx, cfg, data)
	if err != nil {
		fmt.Fprintf(w, "  FAIL: transcription error: %v\n", err)
		return false
	}
	if text == "" {
		text = "(no speech detected)"
	}
	fmt.Fprintf(w, "\n  Transcribed text: %s\n\n", text)
	if !confirm(w, in, "Is this correct?") {
		fmt.Fprintln(w, "  FAIL: transcription not confirmed")
		return false
	}
	fmt.Fprintln(w, "  PASS: transcription verified by user")
	return true
}

func record(w io.Writer, rec *audio.Recorder, d time.Duration) ([]byte, error) {
	if err := rec.Start(); err != nil {
		return nil, err
	}
	fmt.Fprint(w, "  Recording")
	ticker := time.NewTicker(500 * time.Millisecond)
	deadline := time.After(d)
loop:
	for {
		select {
		case <-ticker.C:
			fmt.Fprint(w, ".")
		case <-deadline:
			break loop
		}
	}
	ticker.Stop()
	fmt.Fprintln(w, " done")
	return rec.Stop()
}

func transcribe(ctx context.Context, cfg Config, data []byte) (string, error) {
	wav := filepath.Join(os.TempDir(), fmt.Sprintf("rephrase-doctor-%d.wav", time.Now().UnixNano()))
	defer os.Remove(wav)
	if err := cfg.Converter.ToWAV(ctx, data, wav); err != nil {
		return "", err
	}
	res, err := cfg.STT.Transcribe(ctx, transcriber.Request{
		WAVPath:  wav,
		Model:    cfg.Settings.WhisperModel,
		Language: cfg.Settings.WhisperLanguage,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Text), nil
}

const (
	pasteProbe    = "rephrase-doctor-test"
	preserveProbe = "rephrase-preserve-check"
)

func checkClipboard(ctx context.Context, w io.Writer, in *bufio.Reader, inj *clipboard.Injector) bool {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "[4/4] Clipboard and paste")

	msg, err := clipboard.Verify()
	if err != nil {
		fmt.Fprintf(w, "  FAIL: %v\n", err)
		fmt.Fprintln(w, "  Fix with: sudo chmod 660 /dev/uinput && sudo chgrp input /dev/uinput")
		return false
	}
	fmt.Fprintf(w, "  %s\n", msg)

	fmt.Fprintln(w, "Focus on a text editor window...")
	for i := 5; i > 0; i-- {
		fmt.Fprintf(w, "  %d...\n", i)
		time.Sleep(time.Second)
	}
	if !checkPreserve(ctx, w, inj) {
		return false
	}
	if !confirm(w, in, fmt.Sprintf("Did the text %q appear?", pasteProbe)) {
		fmt.Fprintln(w, "  FAIL: clipboard/paste not confirmed")
		return false
	}
	fmt.Fprintln(w, "  PASS: clipboard and paste verified by user")
	return true
}

// checkPreserve pastes the probe with the restore policy and verifies the
// clipboard holds what it held before.
func checkPreserve(ctx context.Context, w io.Writer, inj *clipboard.Injector) bool {
	if err := inj.Clip.Write(preserveProbe); err != nil {
		fmt.Fprintf(w, "  FAIL: could not set sentinel: %v\n", err)
		return false
	}
	if err := inj.PasteText(ctx, pasteProbe, clipboard.RestorePrevious); err != nil {
		fmt.Fprintf(w, "  FAIL: paste failed: %v\n", err)
		return false
	}
	got, err := inj.Clip.Read()
	if err != nil {
		fmt.Fprintf(w, "  FAIL: could not read clipboard after restore: %v\n", err)
		return false
	}
	if got != preserveProbe {
		fmt.Fprintf(w, "  FAIL: clipboard not preserved (got %q, want %q)\n", got, preserveProbe)
		return false
	}
	fmt.Fprintln(w, "  PASS: clipboard preservation verified")
	return true
}

func confirm(w io.Writer, in *bufio.Reader, q string) bool {
	fmt.Fprintf(w, "%s [y/n]: ", q)
	answer, _ := in.ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes"
}
