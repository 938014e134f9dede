// Package logging provides the logging interface used throughout lsmkv.
// Log format: "YYYY/MM/DD HH:MM:SS LEVEL [component] message", matching the
// teacher's component-namespace convention ([wal], [flush], [recovery]).
package logging

import (
	"fmt"
	"log"
	"os"
)

// Logger is the interface every component logs through. Callers that want
// slog/zap-style structured logging can wrap their own logger behind this
// interface; the engine never assumes a concrete implementation.
type Logger interface {
	Errorf(format string, args ...any)
	Warnf(format string, args ...any)
	Infof(format string, args ...any)
	Debugf(format string, args ...any)
}

// StdLogger is the default Logger, backed by the standard library's log
// package and writing to the given component namespace.
type StdLogger struct {
	component string
	logger    *log.Logger
}

// New creates a StdLogger that prefixes every line with [component].
func New(component string) *StdLogger {
	return &StdLogger{
		component: component,
		logger:    log.New(os.Stderr, "", log.LstdFlags),
	}
}

func (l *StdLogger) logf(level, format string, args ...any) {
	l.logger.Printf("%s [%s] %s", level, l.component, fmt.Sprintf(format, args...))
}

// Errorf implements Logger.
func (l *StdLogger) Errorf(format string, args ...any) { l.logf("ERROR", format, args...) }

// Warnf implements Logger.
func (l *StdLogger) Warnf(format string, args ...any) { l.logf("WARN", format, args...) }

// Infof implements Logger.
func (l *StdLogger) Infof(format string, args ...any) { l.logf("INFO", format, args...) }

// Debugf implements Logger.
func (l *StdLogger) Debugf(format string, args ...any) { l.logf("DEBUG", format, args...) }
