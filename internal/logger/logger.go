// Package logger provides the leveled, structured logger used across pflaunch.
//
// A single process-wide logger writes to stderr so that it never competes
// with the proxied PTY stream on stdout; the parent and the child each get
// their own instance (loggers are not fork-safe to share across clone).
package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is a thin leveled wrapper around logrus, kept small enough that
// callers never need to import logrus themselves.
type Logger struct {
	entry *logrus.Entry
}

// New returns a Logger writing to stderr. Debug-level messages are only
// emitted when debug is true.
func New(debug bool) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if debug {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}

	return &Logger{entry: logrus.NewEntry(l)}
}

// With returns a Logger with an additional structured field attached to
// every subsequent message, mirroring the child/parent split during a
// session (e.g. logger.With("side", "child")).
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

func (l *Logger) Debug(msg string, args ...any) { l.entry.Debugf(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.entry.Infof(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.entry.Warnf(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.entry.Errorf(msg, args...) }
