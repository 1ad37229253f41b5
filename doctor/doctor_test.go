package doctor

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"rephrase/clipboard"
	"rephrase/config"
	"rephrase/hotkey"
)

type fakeInstall struct {
	bin    string
	models map[string]bool
}

func (f fakeInstall) Binary() (string, bool)    { return f.bin, f.bin != "" }
func (f fakeInstall) HasModel(name string) bool { return f.models[name] }

type fakeText struct {
	pingErr error
	models  map[string]bool
	listErr error
}

func (f fakeText) Ping(context.Context) error { return f.pingErr }

func (f fakeText) HasModel(_ context.Context, name string) (bool, error) {
	return f.models[name], f.listErr
}

func settings() config.Settings {
	s := config.Default()
	s.Engine = "whisper"
	s.WhisperModel = "base.en"
	s.OllamaModel = "llama3.2"
	return s
}

func TestCheckEnginesPass(t *testing.T) {
	var out bytes.Buffer
	ok := checkEngines(context.Background(), &out, settings(),
		fakeInstall{bin: "/opt/whisper/whisper-cli", models: map[string]bool{"base.en": true}},
		fakeText{models: map[string]bool{"llama3.2": true}})
	if !ok {
		t.Fatalf("expected pass:\n%s", out.String())
	}
	if strings.Contains(out.String(), "FAIL") {
		t.Errorf("unexpected failure line:\n%s", out.String())
	}
}

func TestCheckEnginesFailures(t *testing.T) {
	tests := []struct {
		name string
		wh   fakeInstall
		text fakeText
		want string
	}{
		{"no binary", fakeInstall{models: map[string]bool{"base.en": true}}, fakeText{models: map[string]bool{"llama3.2": true}}, "binary not installed"},
		{"no model", fakeInstall{bin: "whisper"}, fakeText{models: map[string]bool{"llama3.2": true}}, "-download base.en"},
		{"ollama down", fakeInstall{bin: "whisper", models: map[string]bool{"base.en": true}}, fakeText{pingErr: errors.New("connection refused")}, "ollama serve"},
		{"model not pulled", fakeInstall{bin: "whisper", models: map[string]bool{"base.en": true}}, fakeText{}, "ollama pull llama3.2"},
		{"list error", fakeInstall{bin: "whisper", models: map[string]bool{"base.en": true}}, fakeText{listErr: errors.New("500")}, "could not list models"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if checkEngines(context.Background(), &out, settings(), tt.wh, tt.text) {
				t.Fatalf("expected failure:\n%s", out.String())
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, out.String())
			}
		})
	}
}

func TestCheckEnginesRemoteKey(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	s := settings()
	s.Engine = "groq"
	var out bytes.Buffer
	text := fakeText{models: map[string]bool{"llama3.2": true}}
	if checkEngines(context.Background(), &out, s, nil, text) {
		t.Fatal("missing key should fail")
	}
	if !strings.Contains(out.String(), "GROQ_API_KEY is not set") {
		t.Errorf("output:\n%s", out.String())
	}

	t.Setenv("GROQ_API_KEY", "gsk_test")
	out.Reset()
	if !checkEngines(context.Background(), &out, s, nil, text) {
		t.Errorf("expected pass with key:\n%s", out.String())
	}
}

// pressingBinder presses every combo right after binding it.
type pressingBinder struct{ *hotkey.FakeBinder }

func (b pressingBinder) Bind(acc hotkey.Accelerator, h hotkey.Handler) (func(), error) {
	unbind, err := b.FakeBinder.Bind(acc, h)
	if err == nil {
		go h.Down()
	}
	return unbind, err
}

func diagnoseOK() (string, error) { return "keyboard ok", nil }

func TestCheckHotkeyDetectsPress(t *testing.T) {
	s := settings()
	s.Hotkeys.Voice = "Control+Shift+Space"
	cfg := Config{Settings: s, Binder: pressingBinder{hotkey.NewFakeBinder()}, GOOS: "linux", Diagnose: diagnoseOK}
	var out bytes.Buffer
	if !checkHotkey(&out, cfg, time.Second) {
		t.Fatalf("expected pass:\n%s", out.String())
	}
}

func TestCheckHotkeyTimeout(t *testing.T) {
	s := settings()
	s.Hotkeys.Voice = "Control+Shift+Space"
	cfg := Config{Settings: s, Binder: hotkey.NewFakeBinder(), GOOS: "linux", Diagnose: diagnoseOK}
	var out bytes.Buffer
	if checkHotkey(&out, cfg, 10*time.Millisecond) {
		t.Fatal("expected timeout")
	}
	if !strings.Contains(out.String(), "timeout") {
		t.Errorf("output:\n%s", out.String())
	}
}

func TestCheckHotkeyModifierOnly(t *testing.T) {
	s := settings()
	s.Hotkeys.Voice = "Control+Super"
	var out bytes.Buffer

	cfg := Config{Settings: s, Binder: hotkey.NewFakeBinder(), GOOS: "windows", Diagnose: diagnoseOK}
	if !checkHotkey(&out, cfg, time.Millisecond) {
		t.Errorf("windows routes modifier-only combos to the watcher:\n%s", out.String())
	}

	cfg.GOOS = "linux"
	if checkHotkey(&out, cfg, time.Millisecond) {
		t.Error("modifier-only combo has no watcher off windows")
	}
}

func TestCheckHotkeyDiagnoseFailure(t *testing.T) {
	cfg := Config{Settings: settings(), Binder: hotkey.NewFakeBinder(), Diagnose: func() (string, error) {
		return "", errors.New("no keyboard devices found")
	}}
	var out bytes.Buffer
	if checkHotkey(&out, cfg, time.Millisecond) {
		t.Fatal("expected failure")
	}
}

func TestCheckPreserve(t *testing.T) {
	clip := &clipboard.FakeClipboard{Text: "user data"}
	keys := &clipboard.FakeKeys{}
	inj := clipboard.NewInjector(clip, keys, clipboard.DefaultDelays())
	inj.Sleep = func(time.Duration) {}

	var out bytes.Buffer
	if !checkPreserve(context.Background(), &out, inj) {
		t.Fatalf("expected pass:\n%s", out.String())
	}
	if got := clip.Current(); got != preserveProbe {
		t.Errorf("clipboard = %q, want %q", got, preserveProbe)
	}
	if log := keys.Log(); len(log) != 1 || log[0] != "paste" {
		t.Errorf("strokes = %v, want [paste]", log)
	}
}

func TestCheckPreservePasteFailure(t *testing.T) {
	clip := &clipboard.FakeClipboard{}
	keys := &clipboard.FakeKeys{Fail: map[string]bool{"paste": true}}
	inj := clipboard.NewInjector(clip, keys, clipboard.DefaultDelays())
	inj.Sleep = func(time.Duration) {}

	var out bytes.Buffer
	if checkPreserve(context.Background(), &out, inj) {
		t.Fatal("expected failure")
	}
	if !strings.Contains(out.String(), "paste failed") {
		t.Errorf("output:\n%s", out.String())
	}
}
