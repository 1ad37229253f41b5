package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"sync"
)

var ErrNotRecording = errors.New("not recording")

// Recorder accumulates one take from a capture device and hands it back
// as a canonical WAV stream.
type Recorder struct {
	dev CaptureDevice

	mu        sync.Mutex
	buf       bytes.Buffer
	recording bool
	level     func(rms float64)
}

func NewRecorder(dev CaptureDevice) *Recorder {
	r := &Recorder{dev: dev}
	dev.SetCallback(r.onData)
	return r
}

// OnLevel registers a callback that receives each chunk's RMS in [0,1].
func (r *Recorder) OnLevel(fn func(rms float64)) {
	r.mu.Lock()
	r.level = fn
	r.mu.Unlock()
}

func (r *Recorder) onData(data []byte, _ uint32) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return
	}
	r.buf.Write(data)
	level := r.level
	r.mu.Unlock()
	if level != nil {
		level(RMS(data))
	}
}

func (r *Recorder) Start() error {
	r.mu.Lock()
	r.buf.Reset()
	r.recording = true
	r.mu.Unlock()
	if err := r.dev.Start(); err != nil {
		r.mu.Lock()
		r.recording = false
		r.mu.Unlock()
		return err
	}
	return nil
}

// Stop ends the take and returns it as WAV bytes.
func (r *Recorder) Stop() ([]byte, error) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return nil, ErrNotRecording
	}
	r.mu.Unlock()

	r.dev.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = false
	if r.buf.Len() == 0 {
		return nil, nil
	}
	return EncodeWAV(r.buf.Bytes(), SampleRate, Channels), nil
}

// RMS of a PCM16 chunk, normalized to [0,1].
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for _, s := range Samples(pcm) {
		f := float64(s) / 32768
		sum += f * f
	}
	return math.Sqrt(sum / float64(n))
}

// Amplify scales PCM16 samples by gain, clipping at the int16 range, and
// returns them as little-endian bytes.
func Amplify(samples []int16, gain int32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := min(max(int32(s)*gain, math.MinInt16), math.MaxInt16)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}
