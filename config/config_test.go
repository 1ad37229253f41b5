package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingReturnsDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatal(err)
	}
	if s != Default() {
		t.Errorf("got %+v", s)
	}
	if s.SafetyTimeoutDuration() != 25*time.Second {
		t.Errorf("safety timeout = %v", s.SafetyTimeoutDuration())
	}
}

func TestDarwinHotkeys(t *testing.T) {
	d := defaultFor("darwin")
	if d.Hotkeys.Voice != "Meta+Shift+Space" || d.Hotkeys.Composer != "Meta+Alt" {
		t.Errorf("darwin hotkeys = %+v", d.Hotkeys)
	}
	s := defaultFor("windows")
	s.adaptHotkeys("darwin")
	if s.Hotkeys.Voice != "Meta+Shift+Space" || s.Hotkeys.Composer != "Meta+Alt" {
		t.Errorf("adapted = %+v", s.Hotkeys)
	}
	if w := defaultFor("windows"); w.Hotkeys.Voice != "Control+Super" {
		t.Errorf("windows voice = %q", w.Hotkeys.Voice)
	}
}

func TestPartialFileFilled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	os.WriteFile(path, []byte(`{"engine":"groq","hotkeys":{"voice":"Alt+Space"},"short_chars":0}`), 0o644)

	s, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Engine != "groq" || s.Hotkeys.Voice != "Alt+Space" {
		t.Errorf("file values lost: %+v", s)
	}
	if s.Hotkeys.Rephrase != Default().Hotkeys.Rephrase || s.ShortChars != 15 || s.OllamaModel != "llama3.2" {
		t.Errorf("defaults not filled: %+v", s)
	}
}

func TestLoadBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	os.WriteFile(path, []byte(`{`), 0o644)
	if _, err := Load(path); err == nil {
		t.Error("expected error")
	}
}

func TestStoreUpdatePersistsAndNotifies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "settings.json")
	st, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	var seen []Settings
	st.OnChange(func(s Settings) { seen = append(seen, s) })

	if err := st.Update(func(s *Settings) {
		s.AutoFix = true
		s.Hotkeys.Voice = "Control+Shift+V"
	}); err != nil {
		t.Fatal(err)
	}
	if !st.Get().AutoFix || len(seen) != 1 || seen[0].Hotkeys.Voice != "Control+Shift+V" {
		t.Errorf("get = %+v, seen = %d", st.Get(), len(seen))
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reloaded.AutoFix || reloaded.Hotkeys.Voice != "Control+Shift+V" {
		t.Errorf("reloaded = %+v", reloaded)
	}
}

func TestStoreUpdateSaveFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	os.WriteFile(blocker, nil, 0o644)

	// Parent is a regular file so MkdirAll fails.
	st := &Store{path: filepath.Join(blocker, "settings.json"), s: Default()}
	if err := st.Update(func(s *Settings) { s.Engine = "groq" }); err == nil {
		t.Fatal("expected save error")
	}
	if st.Get().Engine != "whisper" {
		t.Errorf("engine = %q after failed save", st.Get().Engine)
	}
}
