// Package logger provides component-scoped structured logging for the
// integration runtime. It wraps logrus with a process-wide level that can
// be adjusted at runtime through the control API.
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// LoggingConfig controls the behaviour of a root logger.
type LoggingConfig struct {
	// Level is the minimum severity emitted: trace, debug, info, warn, error.
	Level string
	// Format selects "json" or "text" output.
	Format string
	// Output selects "stdout" or "stderr".
	Output string
}

var (
	root     = logrus.New()
	rootOnce sync.Once

	verbosityMu sync.RWMutex
	verbosity   = 0
)

// MaxVerbosity bounds the runtime-adjustable verbosity scale.
const MaxVerbosity = 50

func initRoot(cfg LoggingConfig) {
	if strings.EqualFold(cfg.Format, "json") {
		root.SetFormatter(&logrus.JSONFormatter{})
	} else {
		root.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if strings.EqualFold(cfg.Output, "stderr") {
		root.SetOutput(os.Stderr)
	} else {
		root.SetOutput(os.Stdout)
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	root.SetLevel(level)
}

// Logger is a component-scoped logger. The zero value is not usable;
// construct with New or NewDefault.
type Logger struct {
	*logrus.Entry
}

// New configures the process root logger and returns a logger scoped to
// the given component.
func New(cfg LoggingConfig, component string) *Logger {
	rootOnce.Do(func() { initRoot(cfg) })
	return &Logger{Entry: root.WithField("component", component)}
}

// NewDefault returns a component logger against the root logger with its
// current settings. Used by packages that are handed no logger.
func NewDefault(component string) *Logger {
	return &Logger{Entry: root.WithField("component", component)}
}

// Component returns a derived logger for a sub-component.
func (l *Logger) Component(name string) *Logger {
	return &Logger{Entry: l.Entry.WithField("component", name)}
}

// Verbosity reports the current numeric verbosity (0..50).
func Verbosity() int {
	verbosityMu.RLock()
	defer verbosityMu.RUnlock()
	return verbosity
}

// VerbosityOptions lists the suggested verbosity presets, quietest
// first. Any value in [0, MaxVerbosity] is accepted by SetVerbosity.
func VerbosityOptions() []int {
	return []int{0, 10, 20, 50}
}

// SetVerbosity maps a numeric verbosity onto the root logger level.
// Higher values log more: 0 keeps the runtime at info, 10 and up turn
// on debug output, 40 and up add trace output from every component.
// Values outside [0, MaxVerbosity] are rejected.
func SetVerbosity(level int) error {
	if level < 0 || level > MaxVerbosity {
		return fmt.Errorf("verbosity %d out of range [0, %d]", level, MaxVerbosity)
	}

	verbosityMu.Lock()
	verbosity = level
	verbosityMu.Unlock()

	switch {
	case level >= 40:
		root.SetLevel(logrus.TraceLevel)
	case level >= 10:
		root.SetLevel(logrus.DebugLevel)
	default:
		root.SetLevel(logrus.InfoLevel)
	}
	return nil
}

// DebugEnabled reports whether the runtime itself is in a debug
// posture, which starts at verbosity 20. The web access log uses this
// to decide whether to emit polled health routes.
func DebugEnabled() bool {
	return Verbosity() >= 20
}
