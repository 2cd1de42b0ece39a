// Package logging provides a level-filtered logging gate over zerolog,
// matching the broker's "Logging + verbosity gate" component: a
// structured callback surface rather than the teacher's bare
// log.Printf calls, so multiple broker instances in the same process
// (as in tests) don't share global log state.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Level mirrors zerolog's levels under names the broker's components
// reference directly (DEBUG/INFO/WARN/ERROR/FATAL, per §7's taxonomy).
type Level = zerolog.Level

const (
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
	LevelFatal = zerolog.FatalLevel
)

// Logger is a thin, injectable wrapper so broker/server/session
// components never reach for the global log package.
type Logger struct {
	zl zerolog.Logger
}

// New builds a Logger writing to w at or above level.
func New(w io.Writer, level Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	zl := zerolog.New(w).With().Timestamp().Logger().Level(level)
	return &Logger{zl: zl}
}

// Nop returns a Logger that discards everything, for tests that don't
// care about log output.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func (l *Logger) With(field, value string) *Logger {
	return &Logger{zl: l.zl.With().Str(field, value).Logger()}
}

// ParseLevel maps a config string to a Level, defaulting to Info for
// anything unrecognized.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l *Logger) Debug(msg string, kv ...any) { l.log(l.zl.Debug(), msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)   { l.log(l.zl.Info(), msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)   { l.log(l.zl.Warn(), msg, kv...) }
func (l *Logger) Error(msg string, kv ...any)  { l.log(l.zl.Error(), msg, kv...) }
func (l *Logger) Fatal(msg string, kv ...any)  { l.log(l.zl.Fatal(), msg, kv...) }

func (l *Logger) log(ev *zerolog.Event, msg string, kv ...any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		ev = ev.Interface(key, kv[i+1])
	}
	ev.Msg(msg)
}
