package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

// Converter turns captured audio of any container into a 16 kHz mono
// PCM16 WAV file at dst.
type Converter interface {
	ToWAV(ctx context.Context, in []byte, dst string) error
}

// FFmpeg converts through an ffmpeg binary. Input that is already
// canonical WAV is written directly without spawning anything.
type FFmpeg struct {
	Path   string
	TmpDir string
}

func (f FFmpeg) ToWAV(ctx context.Context, in []byte, dst string) error {
	if format, _, err := DecodeWAV(in); err == nil && format.Canonical() {
		return os.WriteFile(dst, in, 0o600)
	}

	bin := f.Path
	if bin == "" {
		bin = "ffmpeg"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}

	src := filepath.Join(f.tmpDir(), "rephrase-"+uuid.NewString()+".audio")
	if err := os.WriteFile(src, in, 0o600); err != nil {
		return err
	}
	defer os.Remove(src)

	args := []string{"-y", "-i", src,
		"-ar", strconv.Itoa(SampleRate),
		"-ac", strconv.Itoa(Channels),
		"-c:a", "pcm_s16le", dst}
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg failed: %v\n%s", err, stderr.String())
	}
	return nil
}

func (f FFmpeg) tmpDir() string {
	if f.TmpDir != "" {
		return f.TmpDir
	}
	return os.TempDir()
}

// Direct accepts only input that is already canonical WAV or raw PCM16 at
// the canonical rate, and never shells out.
type Direct struct{}

func (Direct) ToWAV(_ context.Context, in []byte, dst string) error {
	format, pcm, err := DecodeWAV(in)
	switch {
	case err == errNotWAV:
		pcm = in
	case err != nil:
		return err
	case !format.Canonical():
		return fmt.Errorf("unsupported wav format %d Hz/%d ch/%d bit", format.SampleRate, format.Channels, format.BitsPerSample)
	}
	return os.WriteFile(dst, EncodeWAV(pcm, SampleRate, Channels), 0o600)
}
