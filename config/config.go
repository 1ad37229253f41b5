// Package config holds the persisted user settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

const (
	appName        = "rephrase"
	configFileName = "settings.json"
)

type Hotkeys struct {
	Voice    string `json:"voice"`
	Composer string `json:"composer"`
	Rephrase string `json:"rephrase"`
}

// Settings is the on-disk settings document. Durations are stored in
// milliseconds.
type Settings struct {
	Hotkeys Hotkeys `json:"hotkeys"`

	Engine          string `json:"engine"`
	WhisperModel    string `json:"whisper_model"`
	WhisperLanguage string `json:"whisper_language"`
	MicDevice       string `json:"mic_device,omitempty"`

	OllamaURL   string `json:"ollama_url"`
	OllamaModel string `json:"ollama_model"`

	FileTagging   bool `json:"file_tagging"`
	VoiceTraining bool `json:"voice_training"`
	AutoFix       bool `json:"auto_fix"`
	AutoFixDelay  int  `json:"auto_fix_delay_ms"`
	SafetyMonitor bool `json:"safety_monitor"`
	Beeps         bool `json:"beeps"`

	// Clipboard handling after a dictated paste: keep, restore or clear.
	PastePolicy     string `json:"paste_policy"`
	KeystrokeEngine string `json:"keystroke_engine,omitempty"`

	SafetyTimeout int `json:"safety_timeout_ms"`
	MinAudioBytes int `json:"min_audio_bytes"`
	ShortChars    int `json:"short_chars"`
	MaxNoiseWords int `json:"max_noise_words"`
}

// Default returns the settings used when no file exists. Hotkeys differ
// on macOS where Super is taken by the system.
func Default() Settings {
	return defaultFor(runtime.GOOS)
}

func defaultFor(goos string) Settings {
	s := Settings{
		Hotkeys: Hotkeys{
			Voice:    "Control+Super",
			Composer: "Alt+Super",
			Rephrase: "CommandOrControl+Shift+Space",
		},
		Engine:          "whisper",
		WhisperModel:    "base.en",
		WhisperLanguage: "auto",
		OllamaURL:       "http://localhost:11434",
		OllamaModel:     "llama3.2",
		FileTagging:     true,
		AutoFixDelay:    800,
		Beeps:           true,
		PastePolicy:     "keep",
		SafetyTimeout:   25000,
		MinAudioBytes:   5000,
		ShortChars:      15,
		MaxNoiseWords:   2,
	}
	if goos == "darwin" {
		s.Hotkeys.Voice = "Meta+Shift+Space"
		s.Hotkeys.Composer = "Meta+Alt"
	}
	return s
}

func (s Settings) SafetyTimeoutDuration() time.Duration {
	return time.Duration(s.SafetyTimeout) * time.Millisecond
}

func (s Settings) AutoFixDelayDuration() time.Duration {
	return time.Duration(s.AutoFixDelay) * time.Millisecond
}

// fill replaces zero values left by an older or partial file.
func (s *Settings) fill(d Settings) {
	if s.Hotkeys.Voice == "" {
		s.Hotkeys.Voice = d.Hotkeys.Voice
	}
	if s.Hotkeys.Composer == "" {
		s.Hotkeys.Composer = d.Hotkeys.Composer
	}
	if s.Hotkeys.Rephrase == "" {
		s.Hotkeys.Rephrase = d.Hotkeys.Rephrase
	}
	setDefault(&s.Engine, d.Engine)
	setDefault(&s.WhisperModel, d.WhisperModel)
	setDefault(&s.WhisperLanguage, d.WhisperLanguage)
	setDefault(&s.OllamaURL, d.OllamaURL)
	setDefault(&s.OllamaModel, d.OllamaModel)
	setDefault(&s.PastePolicy, d.PastePolicy)
	setPositive(&s.AutoFixDelay, d.AutoFixDelay)
	setPositive(&s.SafetyTimeout, d.SafetyTimeout)
	setPositive(&s.MinAudioBytes, d.MinAudioBytes)
	setPositive(&s.ShortChars, d.ShortChars)
	setPositive(&s.MaxNoiseWords, d.MaxNoiseWords)
}

func setDefault(v *string, d string) {
	if *v == "" {
		*v = d
	}
}

func setPositive(v *int, d int) {
	if *v <= 0 {
		*v = d
	}
}

// Dir is the per-user config directory, also home to the database and
// whisper install.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appName), nil
}

func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// Load reads settings from path, returning defaults if it doesn't exist.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Settings{}, fmt.Errorf("read config: %w", err)
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("unmarshal config: %w", err)
	}
	s.fill(Default())
	s.adaptHotkeys(runtime.GOOS)
	return s, nil
}

// adaptHotkeys swaps the Windows defaults for the macOS ones; Super
// combos are reserved there.
func (s *Settings) adaptHotkeys(goos string) {
	if goos != "darwin" {
		return
	}
	d := defaultFor(goos)
	if s.Hotkeys.Voice == "Control+Super" {
		s.Hotkeys.Voice = d.Hotkeys.Voice
	}
	if s.Hotkeys.Composer == "Alt+Super" {
		s.Hotkeys.Composer = d.Hotkeys.Composer
	}
}

// Save persists the settings to path.
func Save(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Store guards the live settings and writes every update through.
type Store struct {
	path string

	mu       sync.Mutex
	s        Settings
	watchers []func(Settings)
}

func Open(path string) (*Store, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, s: s}, nil
}

func (st *Store) Get() Settings {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s
}

// Update applies fn to a copy, saves it and then notifies watchers. A
// failed save leaves the live settings untouched.
func (st *Store) Update(fn func(*Settings)) error {
	st.mu.Lock()
	next := st.s
	fn(&next)
	next.fill(Default())
	if st.path != "" {
		if err := Save(st.path, next); err != nil {
			st.mu.Unlock()
			return err
		}
	}
	st.s = next
	watchers := append([]func(Settings){}, st.watchers...)
	st.mu.Unlock()

	for _, w := range watchers {
		w(next)
	}
	return nil
}

// OnChange registers fn to run after every successful Update.
func (st *Store) OnChange(fn func(Settings)) {
	st.mu.Lock()
	st.watchers = append(st.watchers, fn)
	st.mu.Unlock()
}
