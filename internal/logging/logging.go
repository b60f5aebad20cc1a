// Package logging builds the process logger.
//
// Output goes to stderr by default so that the MCP stdio transport keeps
// stdout to itself. A log file, when configured, is rotated by lumberjack.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the logger.
type Options struct {
	Level      string // trace, debug, info, warn, error
	Format     string // json or text
	File       string // empty for stderr
	MaxSizeMB  int
	MaxBackups int
}

// New creates a logger from opts. The returned closer releases the log
// file, if any.
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()

	level := logrus.InfoLevel
	if opts.Level != "" {
		lvl, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = lvl
	}
	logger.SetLevel(level)

	switch strings.ToLower(opts.Format) {
	case "", "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "ts",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	default:
		return nil, nil, fmt.Errorf("invalid log format %q (want json or text)", opts.Format)
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    max(opts.MaxSizeMB, 1),
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		}
		logger.SetOutput(lj)
		closer = lj
	} else {
		logger.SetOutput(os.Stderr)
	}

	return logger, closer, nil
}

// WithRequestID adds a request id to the logger.
func WithRequestID(log logrus.FieldLogger, requestID string) logrus.FieldLogger {
	if requestID == "" {
		return log
	}
	return log.WithField("request_id", requestID)
}

// Nop returns a logger that discards everything.
func Nop() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// OrNop returns log, or a discarding logger when log is nil.
func OrNop(log logrus.FieldLogger) logrus.FieldLogger {
	if log == nil {
		return Nop()
	}
	return log
}

// Writer returns a writer whose lines are logged at warn level. It
// discards output when log cannot provide one.
func Writer(log logrus.FieldLogger) io.Writer {
	if w, ok := log.(interface {
		WriterLevel(logrus.Level) *io.PipeWriter
	}); ok {
		return w.WriterLevel(logrus.WarnLevel)
	}
	return io.Discard
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
