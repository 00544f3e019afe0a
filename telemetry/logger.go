// Package telemetry wraps logrus-based logging and prometheus-based
// metrics used throughout the node (ambient stack, SPEC_FULL.md §1).
package telemetry

import (
	"github.com/sirupsen/logrus"
)

// Logger is the shape every component logs through, matching the teacher's
// definition.Logger interface (Infof/Warnf/Errorf/Debugf) but backed by
// logrus rather than the standard library's log.Logger, and carrying
// structured fields instead of ad-hoc formatted strings.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	WithField(key string, value interface{}) Logger
}

type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogger builds a Logger for node, with debug logging toggled by debug.
func NewLogger(node string, debug bool) Logger {
	l := logrus.New()
	if debug {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return &logrusLogger{entry: l.WithField("node", node)}
}

func (l *logrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *logrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
func (l *logrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }

func (l *logrusLogger) WithField(key string, value interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithField(key, value)}
}
