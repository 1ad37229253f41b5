// Package pipeline turns a recorded take into text: quality gates,
// speech-to-text, learned corrections, LLM cleanup and file tagging.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"rephrase/audio"
	"rephrase/llm"
	"rephrase/log"
	"rephrase/store"
	"rephrase/transcriber"
)

type Mode string

const (
	ModeVoice    Mode = "voice"
	ModeComposer Mode = "composer"
)

type Request struct {
	Audio   []byte
	Mode    Mode
	AppName string
}

// Result is what one run produced. Err is set exactly when OK is false.
type Result struct {
	OK     bool
	Insert bool
	Text   string
	Raw    string
	Err    *Error
}

func failed(err *Error) Result { return Result{Err: err} }

// Options are read from the live settings at the start of every run.
type Options struct {
	Model         string
	Language      string
	FileTagging   bool
	VoiceTraining bool
}

type History interface {
	Append(t store.Transcript) (store.Transcript, error)
}

type Profiles interface {
	Get() (*store.Profile, error)
}

// Listener is told about every saved transcript.
type Listener func(t store.Transcript)

type Config struct {
	Converter audio.Converter
	STT       transcriber.Engine
	LLM       llm.Engine
	History   History
	Profiles  Profiles
	Composer  *Composer
	Filter    *Filter
	Options   func() Options
	Listener  Listener
	TmpDir    string
}

type Pipeline struct {
	cfg Config

	// Set after the text engine answers its first probe.
	available atomic.Bool
}

func New(cfg Config) *Pipeline {
	if cfg.Filter == nil {
		cfg.Filter = DefaultFilter()
	}
	if cfg.Options == nil {
		cfg.Options = func() Options { return Options{} }
	}
	if cfg.TmpDir == "" {
		cfg.TmpDir = os.TempDir()
	}
	return &Pipeline{cfg: cfg}
}

func step(name string, start time.Time, err error) {
	log.PipelineStep(name, time.Since(start), err)
}

// Run executes the whole pipeline for one take. Every failure is
// returned as a classified *Error inside the Result.
func (p *Pipeline) Run(ctx context.Context, req Request) Result {
	opts := p.cfg.Options()

	if p.cfg.Filter.TooShort(req.Audio) {
		log.Warnf("audio too short: %d bytes", len(req.Audio))
		return failed(inputError(MsgNoAudio))
	}

	t := time.Now()
	wavPath := filepath.Join(p.cfg.TmpDir, "rephrase-voice-"+uuid.NewString()+".wav")
	defer os.Remove(wavPath)
	err := p.cfg.Converter.ToWAV(ctx, req.Audio, wavPath)
	step("convert", t, err)
	if err != nil {
		return failed(&Error{Kind: Transient, Message: "Audio conversion failed.", Err: err})
	}

	t = time.Now()
	res, err := p.cfg.STT.Transcribe(ctx, transcriber.Request{WAVPath: wavPath, Model: opts.Model, Language: opts.Language})
	step("transcribe", t, err)
	if err != nil {
		return failed(Classify(err))
	}
	if m := res.Metrics; m != nil {
		log.Infof("stt network: dns=%v tls=%v ttfb=%v total=%v (phases %v) reused=%v",
			m.DNS, m.TLS, m.TTFB, m.Total, m.Sum(), m.ConnReused)
	}
	raw := strings.TrimSpace(res.Text)
	if utf8.RuneCountInString(raw) < 2 {
		return failed(inputError(MsgNoSpeech))
	}
	if p.cfg.Filter.IsNoise(raw) {
		log.Infof("noise filtered: %q", raw)
		return failed(inputError(MsgNoise))
	}

	corrected, hint := raw, ""
	if opts.VoiceTraining && p.cfg.Profiles != nil {
		if prof, err := p.cfg.Profiles.Get(); err != nil {
			log.Warnf("voice profile: %v", err)
		} else if prof != nil {
			corrected = ApplyCorrections(raw, prof.Corrections)
			hint = prof.SpeechHint
		}
	}

	if err := p.ensureAvailable(ctx); err != nil {
		return failed(err)
	}

	t = time.Now()
	final, err := p.cfg.LLM.Complete(ctx, []llm.Message{
		llm.System(cleanupSystemPrompt(hint)),
		llm.User("<transcript>" + corrected + "</transcript>"),
	}, llm.Options{Temperature: 0.1, MaxTokens: 512})
	step("cleanup", t, err)
	if err != nil || final == "" {
		final = corrected
	}

	if opts.FileTagging {
		final = p.tagFiles(ctx, final, req.AppName)
	}

	if err := ctx.Err(); err != nil {
		return failed(Classify(err))
	}

	p.save(store.Transcript{Text: final, Raw: raw, Mode: string(req.Mode), App: req.AppName})
	log.TranscriptionText(final)

	if req.Mode == ModeComposer {
		if p.cfg.Composer != nil {
			p.cfg.Composer.Append(final)
		}
		return Result{OK: true, Text: final, Raw: raw}
	}
	return Result{OK: true, Insert: true, Text: final, Raw: raw}
}

// ensureAvailable probes the text engine until it has answered once.
func (p *Pipeline) ensureAvailable(ctx context.Context) *Error {
	if p.available.Load() {
		return nil
	}
	if err := p.cfg.LLM.Ping(ctx); err != nil {
		log.Warnf("text engine probe: %v", err)
		return Classify(err)
	}
	p.available.Store(true)
	return nil
}

func (p *Pipeline) tagFiles(ctx context.Context, text, app string) string {
	prompt := fileTagPrompt
	if strings.Contains(strings.ToLower(app), "cursor") {
		prompt = fileTagCursorPrompt
	}
	t := time.Now()
	tagged, err := p.cfg.LLM.Complete(ctx, []llm.Message{
		llm.System(prompt),
		llm.User("<text>" + text + "</text>"),
	}, llm.Options{Temperature: 0, MaxTokens: 512})
	step("file_tag", t, err)
	if err != nil || tagged == "" {
		return text
	}
	return tagged
}

func (p *Pipeline) save(t store.Transcript) {
	if p.cfg.History == nil {
		return
	}
	saved, err := p.cfg.History.Append(t)
	if err != nil {
		log.Errorf("save transcript: %v", err)
		return
	}
	if p.cfg.Listener != nil {
		p.cfg.Listener(saved)
	}
}
