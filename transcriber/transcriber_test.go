package transcriber

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rephrase/audio"
)

func TestNetworkMetricsSum(t *testing.T) {
	m := &NetworkMetrics{
		ConnWait:   10 * time.Millisecond,
		DNS:        20 * time.Millisecond,
		TCP:        30 * time.Millisecond,
		TLS:        40 * time.Millisecond,
		ReqHeaders: 5 * time.Millisecond,
		ReqBody:    15 * time.Millisecond,
		TTFB:       50 * time.Millisecond,
		Download:   25 * time.Millisecond,
	}
	got := m.Sum()
	want := 195 * time.Millisecond
	if got != want {
		t.Errorf("Sum() = %v, want %v", got, want)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	h := http.Header{}
	h.Set("X-Rate-Limit", "100")

	if got := firstNonEmpty(h, "X-Missing", "X-Rate-Limit"); got != "100" {
		t.Errorf("got %q, want %q", got, "100")
	}
	if got := firstNonEmpty(h, "X-A", "X-B"); got != "?" {
		t.Errorf("got %q, want %q", got, "?")
	}
}

type whisperEnv struct {
	w   *Whisper
	wav string
}

func newWhisperEnv(t *testing.T, run Runner) whisperEnv {
	t.Helper()
	root := t.TempDir()
	w := NewWhisper(filepath.Join(root, "whisper"), filepath.Join(root, "models"))
	w.GOOS = "linux"
	w.Run = run
	os.MkdirAll(w.BinDir, 0o755)
	os.MkdirAll(w.ModelDir, 0o755)
	wav := filepath.Join(root, "take.wav")
	os.WriteFile(wav, audio.EncodeWAV(make([]byte, 64), audio.SampleRate, audio.Channels), 0o600)
	return whisperEnv{w: w, wav: wav}
}

func writeBinary(t *testing.T, path string, size int) {
	t.Helper()
	os.MkdirAll(filepath.Dir(path), 0o755)
	if err := os.WriteFile(path, make([]byte, size), 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestWhisperMissingBinary(t *testing.T) {
	env := newWhisperEnv(t, nil)
	_, err := env.w.Transcribe(context.Background(), Request{WAVPath: env.wav})
	if !errors.Is(err, ErrEngineNotInstalled) {
		t.Fatalf("err = %v", err)
	}
	if err.Error() != "Whisper binary not installed — go to Settings → Model." {
		t.Errorf("message = %q", err.Error())
	}
}

func TestWhisperMissingModel(t *testing.T) {
	env := newWhisperEnv(t, nil)
	writeBinary(t, filepath.Join(env.w.BinDir, "whisper-cli"), minBinarySize+1)
	_, err := env.w.Transcribe(context.Background(), Request{WAVPath: env.wav, Model: "small.en"})
	if !errors.Is(err, ErrModelNotInstalled) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(err.Error(), `Model "small.en" not downloaded`) {
		t.Errorf("message = %q", err.Error())
	}
}

func TestWhisperBinarySearch(t *testing.T) {
	env := newWhisperEnv(t, nil)
	w := env.w

	// A stub below the size floor at the top level is ignored.
	writeBinary(t, filepath.Join(w.BinDir, "whisper-cli"), 10)
	writeBinary(t, filepath.Join(w.BinDir, "Release", "main"), 10)
	if p, ok := w.Binary(); !ok || p != filepath.Join(w.BinDir, "Release", "main") {
		t.Errorf("Binary() = %q, %v", p, ok)
	}

	writeBinary(t, filepath.Join(w.BinDir, "main"), minBinarySize+1)
	if p, _ := w.Binary(); p != filepath.Join(w.BinDir, "main") {
		t.Errorf("Binary() = %q", p)
	}

	writeBinary(t, filepath.Join(w.BinDir, "whisper-cli"), minBinarySize+1)
	if p, _ := w.Binary(); p != filepath.Join(w.BinDir, "whisper-cli") {
		t.Errorf("Binary() = %q", p)
	}

	w.GOOS = "windows"
	if p, ok := w.Binary(); ok || !strings.HasSuffix(p, "whisper-cli.exe") {
		t.Errorf("windows Binary() = %q, %v", p, ok)
	}
}

func TestWhisperPrefersSideFile(t *testing.T) {
	var gotDir string
	var gotArgs []string
	env := newWhisperEnv(t, nil)
	env.w.Run = func(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
		gotDir, gotArgs = dir, args
		os.WriteFile(env.wav+".txt", []byte("  from side file \n"), 0o600)
		return []byte("from stdout"), nil, nil
	}
	writeBinary(t, filepath.Join(env.w.BinDir, "whisper-cli"), minBinarySize+1)
	os.WriteFile(env.w.ModelPath("base.en"), []byte("m"), 0o600)

	res, err := env.w.Transcribe(context.Background(), Request{WAVPath: env.wav})
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "from side file" {
		t.Errorf("text = %q", res.Text)
	}
	if _, err := os.Stat(env.wav + ".txt"); !os.IsNotExist(err) {
		t.Error("side file not removed")
	}
	if gotDir != env.w.BinDir {
		t.Errorf("dir = %q", gotDir)
	}
	want := []string{"-m", env.w.ModelPath("base.en"), "-f", env.wav, "--no-timestamps", "-l", "auto"}
	if strings.Join(gotArgs, " ") != strings.Join(want, " ") {
		t.Errorf("args = %v", gotArgs)
	}
}

func TestWhisperStdoutAndFailure(t *testing.T) {
	env := newWhisperEnv(t, func(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
		return []byte("  hello there \n"), nil, nil
	})
	writeBinary(t, filepath.Join(env.w.BinDir, "whisper-cli"), minBinarySize+1)
	os.WriteFile(env.w.ModelPath("tiny"), []byte("m"), 0o600)

	res, err := env.w.Transcribe(context.Background(), Request{WAVPath: env.wav, Model: "tiny", Language: "de"})
	if err != nil || res.Text != "hello there" {
		t.Fatalf("res = %+v, err = %v", res, err)
	}

	env.w.Run = func(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
		return nil, []byte("error: failed to read WAV\n"), errors.New("exit status 1")
	}
	_, err = env.w.Transcribe(context.Background(), Request{WAVPath: env.wav, Model: "tiny"})
	var ee *EngineError
	if !errors.As(err, &ee) {
		t.Fatalf("err = %v", err)
	}
	if err.Error() != "Whisper failed: error: failed to read WAV" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestDownloadModel(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 4096)
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.URL.Path != "/ggml-tiny.en.bin" {
			http.NotFound(w, r)
			return
		}
		w.Write(payload)
	}))
	defer srv.Close()

	env := newWhisperEnv(t, nil)
	var pcts []int
	err := env.w.DownloadModel(context.Background(), srv.Client(), srv.URL+"/", "tiny.en", func(p int) { pcts = append(pcts, p) })
	if err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(env.w.ModelPath("tiny.en"))
	if !bytes.Equal(got, payload) {
		t.Error("model contents differ")
	}
	if len(pcts) == 0 || pcts[len(pcts)-1] != 100 {
		t.Errorf("progress = %v", pcts)
	}
	if !env.w.DownloadedModels()["tiny.en"] {
		t.Error("tiny.en not reported as downloaded")
	}

	// Present already: no request.
	if err := env.w.DownloadModel(context.Background(), srv.Client(), srv.URL+"/", "tiny.en", nil); err != nil || hits != 1 {
		t.Errorf("second download err=%v hits=%d", err, hits)
	}

	if err := env.w.DownloadModel(context.Background(), srv.Client(), srv.URL+"/", "nope", nil); err == nil {
		t.Error("expected HTTP error")
	}
	if env.w.HasModel("nope") {
		t.Error("failed download left a model behind")
	}

	if err := env.w.DeleteModel("tiny.en"); err != nil || env.w.HasModel("tiny.en") {
		t.Errorf("delete err = %v", err)
	}
	if err := env.w.DeleteModel("tiny.en"); err != nil {
		t.Errorf("delete missing = %v", err)
	}
}

func TestRemoteUploadsFlac(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("auth = %q", r.Header.Get("Authorization"))
		}
		_, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		mr := multipart.NewReader(r.Body, params["boundary"])
		fields := map[string]string{}
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Errorf("multipart: %v", err)
				return
			}
			data, _ := io.ReadAll(p)
			if p.FormName() == "file" {
				if p.FileName() != "audio.flac" || !bytes.HasPrefix(data, []byte("fLaC")) {
					t.Errorf("file part %q starts %q", p.FileName(), data[:min(4, len(data))])
				}
				continue
			}
			fields[p.FormName()] = string(data)
		}
		if fields["model"] != "whisper-large-v3-turbo" || fields["response_format"] != "verbose_json" || fields["language"] != "en" {
			t.Errorf("fields = %v", fields)
		}
		w.Header().Set("x-ratelimit-remaining-requests", "9")
		w.Header().Set("x-ratelimit-limit-requests", "10")
		w.Write([]byte(`{"text":" hi ","duration":1.5,"segments":[{"no_speech_prob":0.1},{"no_speech_prob":0.4}]}`))
	}))
	defer srv.Close()

	pcm := make([]byte, 3200)
	for i := 0; i < len(pcm)/2; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(i%200-100)))
	}
	wav := filepath.Join(t.TempDir(), "a.wav")
	os.WriteFile(wav, audio.EncodeWAV(pcm, audio.SampleRate, audio.Channels), 0o600)

	g := NewGroq("k")
	g.URL = srv.URL
	res, err := g.Transcribe(context.Background(), Request{WAVPath: wav, Language: "en"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != " hi " || res.NoSpeechProb != 0.4 || res.RateLimit != "9/10" || res.Duration != 1.5 {
		t.Errorf("res = %+v", res)
	}
	if res.Metrics == nil {
		t.Error("no metrics")
	}
}

func TestRemoteErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	wav := filepath.Join(t.TempDir(), "a.wav")
	os.WriteFile(wav, audio.EncodeWAV(make([]byte, 320), audio.SampleRate, audio.Channels), 0o600)

	o := NewOpenAI("k")
	o.URL = srv.URL
	_, err := o.Transcribe(context.Background(), Request{WAVPath: wav})
	var ee *EngineError
	if !errors.As(err, &ee) || !strings.Contains(err.Error(), "429") {
		t.Errorf("err = %v", err)
	}

	if _, err := NewGroq("").Transcribe(context.Background(), Request{WAVPath: wav}); !errors.Is(err, ErrEngineNotInstalled) {
		t.Errorf("missing key err = %v", err)
	}
}

func TestNew(t *testing.T) {
	w := NewWhisper(t.TempDir(), t.TempDir())
	for name, want := range map[string]string{"": "whisper", "whisper": "whisper", "groq": "groq", "openai": "openai"} {
		e, err := New(name, w)
		if err != nil || e.Name() != want {
			t.Errorf("New(%q) = %v, %v", name, e, err)
		}
	}
	if _, err := New("deepgram", w); err == nil {
		t.Error("expected unknown engine error")
	}
}
