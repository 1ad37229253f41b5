package log

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// BadgerLogger routes badger's internal logging into the diagnostics log.
// Info and debug chatter is dropped.
type BadgerLogger struct{}

func Badger() BadgerLogger { return BadgerLogger{} }

func (BadgerLogger) Errorf(format string, args ...any) {
	at(zerolog.ErrorLevel).Str("src", "badger").Msg(trim(format, args))
}

func (BadgerLogger) Warningf(format string, args ...any) {
	at(zerolog.WarnLevel).Str("src", "badger").Msg(trim(format, args))
}

func (BadgerLogger) Infof(string, ...any)  {}
func (BadgerLogger) Debugf(string, ...any) {}

func trim(format string, args []any) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
