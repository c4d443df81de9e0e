// Package logger wraps logrus with the level/format knobs the rest of the
// module expects from Settings. Output always goes to stdout.
package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger embeds *logrus.Logger so callers can use the familiar logrus API
// while still going through a single constructor.
type Logger struct {
	*logrus.Logger
}

// Config controls level and format for a Logger.
type Config struct {
	Level  string
	Format string
}

// New builds a Logger from Config, falling back to sane defaults for any
// field the caller left empty or unparsable.
func New(cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	l.SetOutput(os.Stdout)
	return &Logger{Logger: l}
}

// NewDefault returns an info-level, text-formatted logger. name is accepted
// for call-site readability only; it is not attached to log entries.
func NewDefault(name string) *Logger {
	l := New(Config{Level: "info", Format: "text"})
	return &Logger{Logger: l.Logger}
}

// WithField returns a log entry carrying one extra field.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Logger.WithField(key, value)
}

// WithFields returns a log entry carrying several extra fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.Logger.WithFields(fields)
}
