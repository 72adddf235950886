package logger

import (
	"io"

	"github.com/rs/zerolog"
)

// ZerologLogger implements Logger using rs/zerolog.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger creates a ZerologLogger from the settings given to
// Configure. All logs include the provided component field.
func NewZerologLogger(component string) Logger {
	w, lvl, f := settings()
	return &ZerologLogger{log: newZerolog(w, lvl, f, component)}
}

// NewWithWriter logs JSON lines to w at the given level.
func NewWithWriter(w io.Writer, lvl zerolog.Level, component string) *ZerologLogger {
	return &ZerologLogger{log: newZerolog(w, lvl, "json", component)}
}

func (l *ZerologLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Debugw(msg string, fields map[string]any) {
	ev := l.log.Debug()
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *ZerologLogger) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *ZerologLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}
