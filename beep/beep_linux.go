//go:build linux

package beep

import (
	"sync"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"

	"rephrase/log"
)

const (
	pulseChannels = 2
	pulseTail     = 0.2
	pulseLatency  = 0.1
)

// pulsePlayer plays cues one after another on a single goroutine. A cue
// that arrives while the queue is full is dropped.
type pulsePlayer struct {
	once    sync.Once
	samples map[Cue][]int16
	queue   chan Cue
}

// System returns the pulseaudio player.
func System() Player { return &pulsePlayer{} }

func (p *pulsePlayer) Play(c Cue) {
	p.once.Do(func() {
		p.samples = cues(pulseChannels, pulseTail)
		p.queue = make(chan Cue, 4)
		go p.loop()
	})
	select {
	case p.queue <- c:
	default:
	}
}

func (p *pulsePlayer) loop() {
	var client *pulse.Client
	for c := range p.queue {
		if client == nil {
			var err error
			if client, err = pulse.NewClient(); err != nil {
				log.Warnf("pulse playback error: %v", err)
				client = nil
				continue
			}
		}
		if err := play(client, p.samples[c]); err != nil {
			log.Warnf("pulse playback of %s cue: %v", c, err)
			// The connection may be gone; reconnect on the next cue.
			client.Close()
			client = nil
		}
	}
}

// sampleReader feeds a fixed buffer to a playback stream.
type sampleReader struct {
	samples []int16
	pos     int
}

func (r *sampleReader) read(buf []int16) (int, error) {
	if r.pos >= len(r.samples) {
		return 0, pulse.EndOfData
	}
	n := copy(buf, r.samples[r.pos:])
	r.pos += n
	return n, nil
}

func play(client *pulse.Client, samples []int16) error {
	if len(samples) == 0 {
		return nil
	}
	r := &sampleReader{samples: samples}
	stream, err := client.NewPlayback(pulse.Int16Reader(r.read),
		pulse.PlaybackStereo,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(pulseLatency),
		pulse.PlaybackRawOption(func(cs *proto.CreatePlaybackStream) {
			cs.ChannelVolumes = proto.ChannelVolumes{uint32(proto.VolumeNorm), uint32(proto.VolumeNorm)}
		}),
	)
	if err != nil {
		return err
	}
	defer stream.Close()
	stream.Start()
	stream.Drain()
	stream.Stop()
	return nil
}
