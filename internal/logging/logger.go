// Package logging provides structured logging for the sync core.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu     sync.Mutex
	global *logrus.Logger
)

// Init configures the global logger. Calling it again reconfigures the
// existing logger in place, so early log calls made before configuration is
// loaded still end up honoring the configured output and level.
func Init(out io.Writer, level string) {
	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		global = newLogger(out, level)
		return
	}
	global.SetOutput(out)
	global.SetLevel(parseLevel(level))
}

// Get returns the global logger, initializing it with defaults if needed.
func Get() *logrus.Logger {
	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		global = newLogger(os.Stdout, "info")
	}
	return global
}

func newLogger(out io.Writer, level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(parseLevel(level))
	return l
}

func parseLevel(level string) logrus.Level {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return parsed
}

// Debug logs a debug message with optional structured context.
func Debug(message string, context ...map[string]interface{}) {
	Get().WithFields(mergeFields(context...)).Debug(message)
}

// Info logs an info message with optional structured context.
func Info(message string, context ...map[string]interface{}) {
	Get().WithFields(mergeFields(context...)).Info(message)
}

// Warn logs a warning message with optional structured context.
func Warn(message string, context ...map[string]interface{}) {
	Get().WithFields(mergeFields(context...)).Warn(message)
}

// Error logs an error message with optional structured context.
func Error(message string, err error, context ...map[string]interface{}) {
	fields := mergeFields(context...)
	if err != nil {
		fields["error"] = err.Error()
	}
	Get().WithFields(fields).Error(message)
}

// mergeFields flattens variadic context maps into a single logrus.Fields.
func mergeFields(context ...map[string]interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for _, c := range context {
		for k, v := range c {
			fields[k] = v
		}
	}
	return fields
}
