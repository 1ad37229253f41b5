package encoder

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

// BlockSize is the number of samples per channel in each FLAC frame.
const BlockSize = 4096

const bitsPerSample = 16

// Format describes interleaved little-endian PCM16 input.
type Format struct {
	SampleRate int
	Channels   int
}

// FLAC writes pcm to w as a complete FLAC stream and returns the number
// of samples per channel encoded. Mono and stereo are supported.
func FLAC(w io.Writer, pcm []byte, f Format) (int, error) {
	var assignment frame.Channels
	switch f.Channels {
	case 1:
		assignment = frame.ChannelsMono
	case 2:
		assignment = frame.ChannelsLR
	default:
		return 0, fmt.Errorf("flac: %d channels unsupported", f.Channels)
	}
	if f.SampleRate <= 0 {
		return 0, fmt.Errorf("flac: invalid sample rate %d", f.SampleRate)
	}

	frameBytes := 2 * f.Channels
	total := len(pcm) / frameBytes
	enc, err := flac.NewEncoder(w, &meta.StreamInfo{
		BlockSizeMin:  BlockSize,
		BlockSizeMax:  BlockSize,
		SampleRate:    uint32(f.SampleRate),
		NChannels:     uint8(f.Channels),
		BitsPerSample: bitsPerSample,
		NSamples:      uint64(total),
	})
	if err != nil {
		return 0, fmt.Errorf("creating flac encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)

	for start := 0; start < total; start += BlockSize {
		n := min(BlockSize, total-start)
		block := pcm[start*frameBytes : (start+n)*frameBytes]
		if err := enc.WriteFrame(blockFrame(block, n, f, assignment)); err != nil {
			return start, fmt.Errorf("writing flac frame: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return total, fmt.Errorf("closing flac stream: %w", err)
	}
	return total, nil
}

// blockFrame deinterleaves n samples per channel into one frame.
func blockFrame(block []byte, n int, f Format, assignment frame.Channels) *frame.Frame {
	subframes := make([]*frame.Subframe, f.Channels)
	for ch := range subframes {
		samples := make([]int32, n)
		for i := range samples {
			off := (i*f.Channels + ch) * 2
			samples[i] = int32(int16(binary.LittleEndian.Uint16(block[off:])))
		}
		subframes[ch] = &frame.Subframe{
			SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
			Samples:   samples,
			NSamples:  n,
		}
	}
	return &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(n),
			SampleRate:    uint32(f.SampleRate),
			Channels:      assignment,
			BitsPerSample: bitsPerSample,
		},
		Subframes: subframes,
	}
}
