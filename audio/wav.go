package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const WAVHeaderSize = 44

// Canonical pipeline format.
const (
	SampleRate = 16000
	Channels   = 1
)

// EncodeWAV wraps little-endian PCM16 bytes in a canonical 44-byte header.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	var buf bytes.Buffer
	buf.Grow(WAVHeaderSize + len(pcm))
	byteRate := sampleRate * channels * 2
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// Format describes a decoded WAV stream.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	AudioFormat   int
}

// Canonical reports whether f is 16 kHz mono PCM16.
func (f Format) Canonical() bool {
	return f.AudioFormat == 1 && f.SampleRate == SampleRate && f.Channels == Channels && f.BitsPerSample == 16
}

var errNotWAV = errors.New("not a RIFF/WAVE stream")

// DecodeWAV walks the RIFF chunks and returns the format and the raw
// data chunk.
func DecodeWAV(data []byte) (Format, []byte, error) {
	var f Format
	if len(data) < 12 || string(data[:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return f, nil, errNotWAV
	}
	pos := 12
	haveFmt := false
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4:]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			// Streams written before the length was known carry a bogus
			// data size; take the rest.
			if id == "data" && haveFmt {
				return f, data[body:], nil
			}
			return f, nil, fmt.Errorf("chunk %q overruns stream", id)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return f, nil, fmt.Errorf("short fmt chunk")
			}
			f.AudioFormat = int(binary.LittleEndian.Uint16(data[body:]))
			f.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			f.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			f.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14:]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return f, nil, fmt.Errorf("data chunk before fmt")
			}
			return f, data[body : body+size], nil
		}
		pos = body + size + size%2
	}
	return f, nil, fmt.Errorf("no data chunk")
}

// Samples converts little-endian PCM16 bytes to samples.
func Samples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}
