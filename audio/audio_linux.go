//go:build linux

package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"

	"rephrase/log"
)

// Pulse sources are quiet at unity volume; the stream is opened at 3x
// and samples are boosted again in software.
const (
	pulseSourceVolume = 3
	pulseGain         = 8
	pulseLatency      = 0.05
)

var errAlreadyRecording = errors.New("capture already running")

type pulseContext struct {
	client *pulse.Client
}

func NewContext() (Context, error) {
	c, err := pulse.NewClient()
	if err != nil {
		return nil, fmt.Errorf("pulse: %w", err)
	}
	return &pulseContext{client: c}, nil
}

func (p *pulseContext) Devices() ([]DeviceInfo, error) {
	sources, err := p.client.ListSources()
	if err != nil {
		return nil, fmt.Errorf("pulse list sources: %w", err)
	}
	devices := make([]DeviceInfo, 0, len(sources))
	for _, s := range sources {
		devices = append(devices, DeviceInfo{ID: s.ID(), Name: s.Name()})
	}
	return devices, nil
}

func (p *pulseContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	if config.Channels > 1 {
		return nil, fmt.Errorf("pulse capture: %d channels unsupported", config.Channels)
	}
	return &pulseCapture{client: p.client, device: device, config: config}, nil
}

func (p *pulseContext) Close() {
	p.client.Close()
}

// pulseCapture opens a fresh record stream for every take.
type pulseCapture struct {
	client   *pulse.Client
	device   *DeviceInfo
	config   CaptureConfig
	callback callbackSlot

	mu  sync.Mutex
	cur *pulseTake
}

type pulseTake struct {
	stop chan struct{}
	done chan struct{}
}

func (c *pulseCapture) write(buf []int16) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	c.callback.deliver(Amplify(buf, pulseGain), uint32(len(buf)))
	return len(buf), nil
}

func (c *pulseCapture) options() []pulse.RecordOption {
	opts := []pulse.RecordOption{
		pulse.RecordMono,
		pulse.RecordSampleRate(int(c.config.SampleRate)),
		pulse.RecordLatency(pulseLatency),
		pulse.RecordRawOption(func(r *proto.CreateRecordStream) {
			r.ChannelVolumes = proto.ChannelVolumes{uint32(proto.VolumeNorm) * pulseSourceVolume}
		}),
	}
	if c.device == nil {
		return opts
	}
	source, err := c.client.SourceByID(c.device.ID)
	if err != nil || source == nil {
		log.Warnf("pulse source %q unavailable, recording from default: %v", c.device.Name, err)
		return opts
	}
	return append(opts, pulse.RecordSource(source))
}

func (c *pulseCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != nil {
		return errAlreadyRecording
	}

	stream, err := c.client.NewRecord(pulse.Int16Writer(c.write), c.options()...)
	if err != nil {
		return fmt.Errorf("pulse record: %w", err)
	}

	t := &pulseTake{stop: make(chan struct{}), done: make(chan struct{})}
	c.cur = t
	go func() {
		defer close(t.done)
		stream.Start()
		<-t.stop
		stream.Stop()
		stream.Close()
	}()
	return nil
}

// Stop blocks until the stream is closed so no callback fires after it
// returns.
func (c *pulseCapture) Stop() {
	c.mu.Lock()
	t := c.cur
	c.cur = nil
	c.mu.Unlock()
	if t == nil {
		return
	}
	close(t.stop)
	<-t.done
}

func (c *pulseCapture) Close() {
	c.Stop()
}

func (c *pulseCapture) SetCallback(cb DataCallback) { c.callback.set(cb) }
