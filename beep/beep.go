package beep

import (
	"math"
	"sync"
)

// Cue names one of the short sounds played around a session.
type Cue int

const (
	Start Cue = iota
	End
	Error
)

func (c Cue) String() string {
	switch c {
	case Start:
		return "start"
	case End:
		return "end"
	case Error:
		return "error"
	}
	return "unknown"
}

// Player plays a cue without blocking the caller.
type Player interface {
	Play(c Cue)
}

const (
	sampleRate = 44100

	// Start beep: high pitch, short
	startFreq   = 1200
	startVolume = 0.5
	startDecay  = 60

	// End beep: medium pitch, slightly longer
	endFreq   = 900
	endVolume = 0.5
	endDecay  = 40

	// Error beep: low pitch double-beep
	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30
)

// tick renders an exponentially decaying sine, interleaved across channels.
func tick(channels int, freq, duration, volume, decay float64) []int16 {
	n := int(float64(sampleRate) * duration)
	samples := make([]int16, n*channels)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sampleRate)
		envelope := math.Exp(-t * decay)
		s := int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
		for c := 0; c < channels; c++ {
			samples[i*channels+c] = s
		}
	}
	return samples
}

func doubleBeep(channels int, freq, beepDur, gapDur, volume, decay float64) []int16 {
	b := tick(channels, freq, beepDur, volume, decay)
	gap := make([]int16, int(float64(sampleRate)*gapDur)*channels)
	out := make([]int16, 0, len(b)*2+len(gap))
	out = append(out, b...)
	out = append(out, gap...)
	out = append(out, b...)
	return out
}

// cues renders all three sounds. tail pads start/end: pulse needs a longer
// buffer fill than miniaudio before anything is heard.
func cues(channels int, tail float64) map[Cue][]int16 {
	return map[Cue][]int16{
		Start: tick(channels, startFreq, max(0.03, tail), startVolume, startDecay),
		End:   tick(channels, endFreq, max(0.05, tail), endVolume, endDecay),
		Error: doubleBeep(channels, errorFreq, 0.08, 0.05, errorVolume, errorDecay),
	}
}

// Silent drops every cue.
type Silent struct{}

func (Silent) Play(Cue) {}

// Recorder remembers the cues it was asked to play.
type Recorder struct {
	mu     sync.Mutex
	played []Cue
}

func (r *Recorder) Play(c Cue) {
	r.mu.Lock()
	r.played = append(r.played, c)
	r.mu.Unlock()
}

func (r *Recorder) Played() []Cue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Cue(nil), r.played...)
}
