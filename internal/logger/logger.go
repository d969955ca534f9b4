// Package logger is a thin process-wide wrapper around charmbracelet/log.
package logger

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// Options configures the global logger.
type Options struct {
	Debug  bool
	Output io.Writer
}

var current atomic.Pointer[log.Logger]

func init() {
	current.Store(newLogger(Options{}))
}

func newLogger(opts Options) *log.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := log.InfoLevel
	if opts.Debug {
		level = log.DebugLevel
	}
	return log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		Level:           level,
	})
}

// Init replaces the global logger.
func Init(opts Options) {
	current.Store(newLogger(opts))
}

// Get returns the global logger, e.g. to derive a prefixed child with WithPrefix.
func Get() *log.Logger {
	return current.Load()
}

// Debug writes a message at DEBUG level.
func Debug(msg string, keyvals ...any) { current.Load().Debug(msg, keyvals...) }

// Info writes a message at INFO level.
func Info(msg string, keyvals ...any) { current.Load().Info(msg, keyvals...) }

// Warn writes a message at WARN level.
func Warn(msg string, keyvals ...any) { current.Load().Warn(msg, keyvals...) }

// Error writes a message at ERROR level.
func Error(msg string, keyvals ...any) { current.Load().Error(msg, keyvals...) }
