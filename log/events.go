package log

import (
	"time"

	"github.com/rs/zerolog"
)

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// outcome is info on success and warn with the error attached otherwise.
func outcome(err error) *zerolog.Event {
	if err != nil {
		return at(zerolog.WarnLevel).Err(err)
	}
	return at(zerolog.InfoLevel)
}

// Transition records one state machine step.
func Transition(gen uint64, from, to, event string) {
	at(zerolog.InfoLevel).
		Uint64("gen", gen).
		Str("from", from).
		Str("to", to).
		Str("event", event).
		Msg("session_transition")
}

// SafetyTimeout is logged at warn: a firing means a collaborator hung.
func SafetyTimeout(gen uint64, state string, after time.Duration) {
	at(zerolog.WarnLevel).
		Uint64("gen", gen).
		Str("state", state).
		Dur("after", after).
		Msg("safety_timeout")
}

func Watcher(kind, event string, err error) {
	outcome(err).Str("kind", kind).Msg("watcher_" + event)
}

func PipelineStep(step string, d time.Duration, err error) {
	outcome(err).Str("step", step).Float64("ms", ms(d)).Msg("pipeline_step")
}

// Upload records one remote transcription request.
func Upload(engine string, status int, total, ttfb time.Duration, reused bool, rateLimit string) {
	at(zerolog.InfoLevel).
		Str("engine", engine).
		Int("status", status).
		Float64("total_ms", ms(total)).
		Float64("ttfb_ms", ms(ttfb)).
		Bool("reused", reused).
		Str("rate_limit", rateLimit).
		Msg("upload")
}

func SessionStart(engine, model, version string) {
	at(zerolog.InfoLevel).
		Str("engine", engine).
		Str("model", model).
		Str("version", version).
		Msg("session_start")
}

func SessionEnd(count int) {
	at(zerolog.InfoLevel).Int("count", count).Msg("session_end")
}
