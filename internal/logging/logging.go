// Package logging configures the process logger.
//
// Packages take a logrus.FieldLogger so tests can inject a silent logger; when
// none is given they fall back to Default().
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls New. Zero values mean: text output, info level, stderr only.
type Options struct {
	Level  string // debug | info | warn | error
	Format string // text | json
	// File, when set, receives a copy of every line and is rotated by size.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// New builds a logger from opts.
func New(opts Options) *logrus.Logger {
	l := logrus.New()
	l.SetLevel(parseLevel(opts.Level))
	if strings.EqualFold(opts.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	var out io.Writer = os.Stderr
	if opts.File != "" {
		size := opts.MaxSizeMB
		if size <= 0 {
			size = 20
		}
		backups := opts.MaxBackups
		if backups <= 0 {
			backups = 3
		}
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    size,
			MaxBackups: backups,
			Compress:   true,
		})
	}
	l.SetOutput(out)
	return l
}

// Default returns the logrus standard logger.
func Default() logrus.FieldLogger {
	return logrus.StandardLogger()
}

// Or returns l, or Default() when l is nil.
func Or(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return Default()
	}
	return l
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func parseLevel(s string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(s))
	if err != nil || s == "" {
		return logrus.InfoLevel
	}
	return lvl
}
