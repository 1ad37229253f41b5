//go:build !linux

package beep

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"rephrase/log"
)

// malgoPlayer keeps one playback device open and swaps the buffer it
// reads from.
type malgoPlayer struct {
	once    sync.Once
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	samples map[Cue][]byte

	mu  sync.Mutex
	buf atomic.Pointer[[]byte]
	pos atomic.Uint32
}

func System() Player { return &malgoPlayer{} }

func (p *malgoPlayer) init() {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Warnf("beep init: %v", err)
		return
	}
	p.ctx = ctx
	p.samples = make(map[Cue][]byte)
	for c, s := range cues(1, 0) {
		p.samples[c] = toBytes(s)
	}
	if err := p.initDevice(); err != nil {
		log.Warnf("beep device: %v", err)
		ctx.Uninit()
		p.ctx = nil
	}
}

func (p *malgoPlayer) initDevice() error {
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.SampleRate = sampleRate

	dev, err := malgo.InitDevice(p.ctx.Context, config, malgo.DeviceCallbacks{Data: p.fill})
	if err != nil {
		return err
	}
	p.device = dev
	return nil
}

func (p *malgoPlayer) fill(out, _ []byte, frameCount uint32) {
	clear(out)
	samples := p.buf.Load()
	if samples == nil {
		return
	}
	pos := p.pos.Load()
	total := uint32(len(*samples))
	if pos >= total {
		p.buf.Store(nil)
		return
	}
	n := min(frameCount*2, total-pos)
	copy(out[:n], (*samples)[pos:pos+n])
	p.pos.Store(pos + n)
}

func (p *malgoPlayer) Play(c Cue) {
	p.once.Do(p.init)
	if p.ctx == nil {
		return
	}
	samples := p.samples[c]
	if len(samples) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device == nil {
		return
	}
	p.device.Stop()
	p.pos.Store(0)
	p.buf.Store(&samples)

	if err := p.device.Start(); err != nil {
		// Recreate after sleep/wake invalidated the device.
		p.device.Uninit()
		p.device = nil
		if err := p.initDevice(); err != nil {
			p.buf.Store(nil)
			return
		}
		if err := p.device.Start(); err != nil {
			p.buf.Store(nil)
		}
	}
}

func toBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
