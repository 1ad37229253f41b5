package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	diagnosticsFile = "diagnostics_log.txt"
	transcriptsFile = "transcribe_log.txt"
	stampLayout     = "2006-01-02 15:04:05"
)

var (
	dir string

	mu          sync.Mutex
	diagOut     *os.File
	transcripts *os.File
	pid         int

	// current is nil until Init and after Close; every helper is a no-op
	// then.
	current atomic.Pointer[zerolog.Logger]
)

// at returns an event at level l, or nil when logging is off. zerolog
// events are nil-safe so callers chain without checking.
func at(l zerolog.Level) *zerolog.Event {
	lg := current.Load()
	if lg == nil {
		return nil
	}
	return lg.WithLevel(l)
}

func SetDir(d string) { dir = d }

func Dir() string { return dir }

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func openAppend(name string) (*os.File, error) {
	return os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

// Init opens the diagnostics and transcript logs under Dir.
func Init() error {
	mu.Lock()
	defer mu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}
	d, err := openAppend(diagnosticsFile)
	if err != nil {
		return err
	}
	tr, err := openAppend(transcriptsFile)
	if err != nil {
		d.Close()
		return err
	}
	diagOut, transcripts, pid = d, tr, os.Getpid()

	lg := zerolog.New(zerolog.ConsoleWriter{
		Out:        d,
		TimeFormat: stampLayout,
		NoColor:    true,
	}).With().Timestamp().Int("pid", pid).Logger()
	current.Store(&lg)
	return nil
}

func Close() {
	current.Store(nil)
	mu.Lock()
	defer mu.Unlock()
	for _, f := range []**os.File{&diagOut, &transcripts} {
		if *f != nil {
			(*f).Close()
			*f = nil
		}
	}
}

func Info(msg string)  { at(zerolog.InfoLevel).Msg(msg) }
func Warn(msg string)  { at(zerolog.WarnLevel).Msg(msg) }
func Error(msg string) { at(zerolog.ErrorLevel).Msg(msg) }

func Infof(format string, args ...any)  { at(zerolog.InfoLevel).Msgf(format, args...) }
func Warnf(format string, args ...any)  { at(zerolog.WarnLevel).Msgf(format, args...) }
func Errorf(format string, args ...any) { at(zerolog.ErrorLevel).Msgf(format, args...) }

// TranscriptionText appends one line to the transcript log:
// timestamp, [pid], text, tab separated.
func TranscriptionText(text string) {
	if current.Load() == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if transcripts == nil {
		return
	}
	fmt.Fprintf(transcripts, "%s\t[%d]\t%s\n", time.Now().Format(stampLayout), pid, text)
}
