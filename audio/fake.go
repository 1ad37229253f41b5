package audio

import "sync"

const fakeFrameSize = 1024

// FakeContext replays a fixed PCM16 buffer into every capture it opens.
type FakeContext struct {
	PCM      []byte
	Devs     []DeviceInfo
	StartErr error
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) { return f.Devs, nil }
func (f *FakeContext) Close()                         {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	return &FakeCapture{pcm: f.PCM, startErr: f.StartErr}, nil
}

// FakeCapture delivers its whole buffer synchronously from Start in
// fixed-size chunks.
type FakeCapture struct {
	pcm      []byte
	startErr error

	mu      sync.Mutex
	cb      DataCallback
	starts  int
	stops   int
	running bool
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) Start() error {
	f.mu.Lock()
	f.starts++
	if f.startErr != nil {
		f.mu.Unlock()
		return f.startErr
	}
	f.running = true
	cb := f.cb
	f.mu.Unlock()

	if cb == nil {
		return nil
	}
	chunk := fakeFrameSize * 2
	for pos := 0; pos < len(f.pcm); pos += chunk {
		end := min(pos+chunk, len(f.pcm))
		buf := make([]byte, end-pos)
		copy(buf, f.pcm[pos:end])
		cb(buf, uint32(len(buf)/2))
	}
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	f.running = false
	f.stops++
	f.mu.Unlock()
}

func (f *FakeCapture) Close() {}

// Counts returns how often Start and Stop were called.
func (f *FakeCapture) Counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}
