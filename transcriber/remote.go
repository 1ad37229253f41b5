package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"rephrase/audio"
	"rephrase/encoder"
	"rephrase/log"
)

const (
	GroqURL   = "https://api.groq.com/openai/v1/audio/transcriptions"
	OpenAIURL = "https://api.openai.com/v1/audio/transcriptions"
)

// Remote uploads the take as FLAC to an OpenAI-compatible
// /audio/transcriptions endpoint.
type Remote struct {
	name   string
	URL    string
	apiKey string
	model  string
	format string
	client *TracedClient
}

func NewGroq(apiKey string) *Remote {
	return &Remote{
		name:   "groq",
		URL:    GroqURL,
		apiKey: apiKey,
		model:  "whisper-large-v3-turbo",
		format: "verbose_json",
		client: NewTracedClient(),
	}
}

func NewOpenAI(apiKey string) *Remote {
	return &Remote{
		name:   "openai",
		URL:    OpenAIURL,
		apiKey: apiKey,
		model:  "gpt-4o-transcribe",
		format: "json",
		client: NewTracedClient(),
	}
}

func (r *Remote) Name() string { return r.name }

// Warm pre-opens the connection; call it in a goroutine at startup.
func (r *Remote) Warm(ctx context.Context) time.Duration { return r.client.Warm(ctx, r.URL) }

type verboseResponse struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Segments []struct {
		NoSpeechProb float64 `json:"no_speech_prob"`
	} `json:"segments"`
}

func (r *Remote) Transcribe(ctx context.Context, req Request) (Result, error) {
	if r.apiKey == "" {
		return Result{}, &setupError{msg: fmt.Sprintf("%s API key not set", r.name), err: ErrEngineNotInstalled}
	}
	wav, err := os.ReadFile(req.WAVPath)
	if err != nil {
		return Result{}, err
	}
	format, pcm, err := audio.DecodeWAV(wav)
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", req.WAVPath, err)
	}
	if format.BitsPerSample != 16 {
		return Result{}, fmt.Errorf("read %s: %d-bit audio unsupported", req.WAVPath, format.BitsPerSample)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "audio.flac")
	if err != nil {
		return Result{}, err
	}
	if _, err := encoder.FLAC(part, pcm, encoder.Format{SampleRate: format.SampleRate, Channels: format.Channels}); err != nil {
		return Result{}, fmt.Errorf("flac encode: %w", err)
	}
	writer.WriteField("model", r.model)
	writer.WriteField("response_format", r.format)
	if req.Language != "" && req.Language != "auto" {
		writer.WriteField("language", req.Language)
	}
	writer.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, &body)
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := r.client.Do(httpReq)
	if err != nil {
		return Result{}, &EngineError{Engine: r.name, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, &EngineError{Engine: r.name, Detail: fmt.Sprintf("API error %d: %s", resp.StatusCode, resp.Body)}
	}

	var parsed verboseResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return Result{}, fmt.Errorf("%s response parse error: %w", r.name, err)
	}
	var noSpeech float64
	for _, seg := range parsed.Segments {
		noSpeech = max(noSpeech, seg.NoSpeechProb)
	}

	remaining := firstNonEmpty(resp.Header, "x-ratelimit-remaining-requests")
	limit := firstNonEmpty(resp.Header, "x-ratelimit-limit-requests")
	log.Upload(r.name, resp.StatusCode, resp.Metrics.Total, resp.Metrics.TTFB, resp.Metrics.ConnReused, remaining+"/"+limit)

	return Result{
		Text:         parsed.Text,
		Metrics:      resp.Metrics,
		RateLimit:    remaining + "/" + limit,
		NoSpeechProb: noSpeech,
		Duration:     parsed.Duration,
		Elapsed:      time.Since(start),
	}, nil
}
