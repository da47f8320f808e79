// internal/logger/logger.go
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// base is shared by every service logger so level and format are set once at startup
var base = newBase(os.Stdout)

func newBase(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return l
}

// Configure sets the level and formatter for all loggers.
// production and staging log JSON, everything else logs text.
func Configure(level, environment string) {
	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		base.Warnf("invalid log level %q, defaulting to info", level)
		parsed = logrus.InfoLevel
	}
	base.SetLevel(parsed)

	switch strings.ToLower(environment) {
	case "production", "staging":
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	default:
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
}

// Logger wraps logrus with service context
type Logger struct {
	service string
	entry   *logrus.Entry
}

// New creates a new logger instance for a service
func New(service string) *Logger {
	return &Logger{
		service: service,
		entry:   base.WithField("service", service),
	}
}

// NewWithWriter creates a logger that writes to w instead of the shared output
func NewWithWriter(service string, w io.Writer) *Logger {
	l := newBase(w)
	l.SetLevel(logrus.DebugLevel)
	return &Logger{
		service: service,
		entry:   l.WithField("service", service),
	}
}

// Discard returns a logger that drops everything
func Discard() *Logger {
	return NewWithWriter("discard", io.Discard)
}

// Service returns the service name attached to every entry
func (l *Logger) Service() string {
	return l.service
}

// Info logs an info message
func (l *Logger) Info(message string, keyvals ...interface{}) {
	l.entry.WithFields(fields(keyvals...)).Info(message)
}

// Error logs an error message
func (l *Logger) Error(message string, keyvals ...interface{}) {
	l.entry.WithFields(fields(keyvals...)).Error(message)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, keyvals ...interface{}) {
	l.entry.WithFields(fields(keyvals...)).Warn(message)
}

// Debug logs a debug message
func (l *Logger) Debug(message string, keyvals ...interface{}) {
	l.entry.WithFields(fields(keyvals...)).Debug(message)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(message string, keyvals ...interface{}) {
	l.entry.WithFields(fields(keyvals...)).Fatal(message)
}

// fields turns alternating key/value pairs into logrus fields.
// A trailing key without a value is dropped.
func fields(keyvals ...interface{}) logrus.Fields {
	f := make(logrus.Fields, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		value := keyvals[i+1]
		if err, ok := value.(error); ok {
			value = err.Error()
		}
		f[key] = value
	}
	return f
}
