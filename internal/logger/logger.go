// Package logger provides the default structured logger used by the
// consensus package. It wraps github.com/rs/zerolog behind the same small
// leveled-logging facade the surrounding ecosystem uses, in the style of
// cuemby-warren/pkg/log: a thin component-tagged wrapper rather than a
// bespoke logging implementation.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger supports logging messages at the debug, info, warn, error, and
// fatal level, each with a formatted variant. Implementations must be
// concurrent safe.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
}

// zerologLogger adapts a zerolog.Logger to the Logger interface. Unlike a
// standalone server's logger, Fatal here never calls os.Exit: the
// coordinator is an embedded library, and a caller-visible invariant
// violation must still surface as an error the caller can act on.
type zerologLogger struct {
	log zerolog.Logger
}

// New creates a Logger that writes leveled, timestamped records to w. A
// nil w defaults to os.Stderr, matching the teacher's NewLogger default.
func New(component string, w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}
	base := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Str("component", component).
		Logger()
	return &zerologLogger{log: base}
}

func (l *zerologLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l *zerologLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug().Msg(fmt.Sprintf(format, args...))
}
func (l *zerologLogger) Info(args ...interface{}) { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l *zerologLogger) Infof(format string, args ...interface{}) {
	l.log.Info().Msg(fmt.Sprintf(format, args...))
}
func (l *zerologLogger) Warn(args ...interface{}) { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l *zerologLogger) Warnf(format string, args ...interface{}) {
	l.log.Warn().Msg(fmt.Sprintf(format, args...))
}
func (l *zerologLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l *zerologLogger) Errorf(format string, args ...interface{}) {
	l.log.Error().Msg(fmt.Sprintf(format, args...))
}
func (l *zerologLogger) Fatal(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l *zerologLogger) Fatalf(format string, args ...interface{}) {
	l.log.Error().Msg(fmt.Sprintf(format, args...))
}
