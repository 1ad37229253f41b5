package transcriber

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"
)

var (
	ErrEngineNotInstalled = errors.New("speech engine not installed")
	ErrModelNotInstalled  = errors.New("speech model not installed")
)

type NetworkMetrics struct {
	DNS         time.Duration
	ConnWait    time.Duration
	TCP         time.Duration
	TLS         time.Duration
	ReqHeaders  time.Duration
	ReqBody     time.Duration
	TTFB        time.Duration
	Download    time.Duration
	Total       time.Duration
	ConnReused  bool
	TLSProtocol string
}

func (m *NetworkMetrics) Sum() time.Duration {
	return m.ConnWait + m.DNS + m.TCP + m.TLS + m.ReqHeaders + m.ReqBody + m.TTFB + m.Download
}

func firstNonEmpty(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return "?"
}

// Request names a 16 kHz mono WAV on disk. Model is engine specific
// (a ggml model name for whisper, ignored by remote engines). An empty
// Language means auto-detect.
type Request struct {
	WAVPath  string
	Model    string
	Language string
}

type Result struct {
	Text         string
	Metrics      *NetworkMetrics
	RateLimit    string
	NoSpeechProb float64
	Duration     float64
	Elapsed      time.Duration
}

type Engine interface {
	Name() string
	Transcribe(ctx context.Context, req Request) (Result, error)
}

// EngineError carries whatever the engine reported on failure.
type EngineError struct {
	Engine string
	Detail string
	Err    error
}

func (e *EngineError) Error() string {
	detail := e.Detail
	if detail == "" && e.Err != nil {
		detail = e.Err.Error()
	}
	if detail == "" {
		detail = "unknown error"
	}
	return e.Engine + " failed: " + detail
}

func (e *EngineError) Unwrap() error { return e.Err }

// New picks the engine named in settings. Remote engines read their key
// from the environment.
func New(name string, whisper *Whisper) (Engine, error) {
	switch name {
	case "", "whisper":
		return whisper, nil
	case "groq":
		return NewGroq(os.Getenv("GROQ_API_KEY")), nil
	case "openai":
		return NewOpenAI(os.Getenv("OPENAI_API_KEY")), nil
	}
	return nil, fmt.Errorf("unknown speech engine %q (want whisper, groq or openai)", name)
}
