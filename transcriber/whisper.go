package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const (
	DefaultModel   = "base.en"
	WhisperTimeout = 120 * time.Second

	// Smaller files at the top level are leftovers from a partial extract.
	minBinarySize = 50000
)

// Models lists the ggml model names offered for download.
var Models = []string{"tiny.en", "base.en", "small.en", "medium.en", "tiny", "base", "small", "large-v3-turbo", "large-v3"}

// Runner executes name in dir and returns its output streams.
type Runner func(ctx context.Context, dir, name string, args ...string) (stdout, stderr []byte, err error)

func execRunner(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Whisper drives a local whisper.cpp command line build.
type Whisper struct {
	BinDir   string
	ModelDir string
	GOOS     string
	Timeout  time.Duration
	Run      Runner
}

func NewWhisper(binDir, modelDir string) *Whisper {
	return &Whisper{
		BinDir:   binDir,
		ModelDir: modelDir,
		GOOS:     runtime.GOOS,
		Timeout:  WhisperTimeout,
		Run:      execRunner,
	}
}

func (w *Whisper) Name() string { return "whisper" }

func (w *Whisper) binNames() []string {
	if w.GOOS == "windows" {
		return []string{"whisper-cli.exe", "main.exe"}
	}
	return []string{"whisper-cli", "main"}
}

// Binary locates the CLI: whisper-cli before main, the install dir before
// its Release/ subdirectory.
func (w *Whisper) Binary() (string, bool) {
	names := w.binNames()
	for _, name := range names {
		p := filepath.Join(w.BinDir, name)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() && fi.Size() > minBinarySize {
			return p, true
		}
	}
	for _, name := range names {
		p := filepath.Join(w.BinDir, "Release", name)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, true
		}
	}
	return filepath.Join(w.BinDir, names[0]), false
}

func (w *Whisper) ModelPath(name string) string {
	return filepath.Join(w.ModelDir, "ggml-"+name+".bin")
}

func (w *Whisper) HasModel(name string) bool {
	_, err := os.Stat(w.ModelPath(name))
	return err == nil
}

// DownloadedModels reports which of Models are present on disk.
func (w *Whisper) DownloadedModels() map[string]bool {
	out := make(map[string]bool, len(Models))
	for _, m := range Models {
		out[m] = w.HasModel(m)
	}
	return out
}

func (w *Whisper) DeleteModel(name string) error {
	err := os.Remove(w.ModelPath(name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (w *Whisper) Transcribe(ctx context.Context, req Request) (Result, error) {
	bin, ok := w.Binary()
	if !ok {
		return Result{}, &setupError{msg: "Whisper binary not installed — go to Settings → Model.", err: ErrEngineNotInstalled}
	}
	model := req.Model
	if model == "" {
		model = DefaultModel
	}
	if !w.HasModel(model) {
		return Result{}, &setupError{msg: fmt.Sprintf("Model %q not downloaded — go to Settings → Model.", model), err: ErrModelNotInstalled}
	}
	lang := req.Language
	if lang == "" {
		lang = "auto"
	}

	timeout := w.Timeout
	if timeout <= 0 {
		timeout = WhisperTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	stdout, stderr, err := w.Run(ctx, filepath.Dir(bin), bin,
		"-m", w.ModelPath(model), "-f", req.WAVPath, "--no-timestamps", "-l", lang)
	if err != nil {
		return Result{}, &EngineError{Engine: "Whisper", Detail: strings.TrimSpace(string(stderr)), Err: err}
	}

	text := ""
	side := req.WAVPath + ".txt"
	if data, err := os.ReadFile(side); err == nil {
		text = strings.TrimSpace(string(data))
		os.Remove(side)
	}
	if text == "" {
		text = strings.TrimSpace(string(stdout))
	}
	return Result{Text: text, Elapsed: time.Since(start)}, nil
}

// setupError shows the remediation text and matches the sentinel.
type setupError struct {
	msg string
	err error
}

func (e *setupError) Error() string { return e.msg }
func (e *setupError) Unwrap() error { return e.err }
