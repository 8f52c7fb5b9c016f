// Package logging provides the leveled logger used by the command line.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Level orders log severities
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config value to a Level. Empty means info.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger writes [LEVEL]-prefixed lines to a file or stderr
type Logger struct {
	logger *log.Logger
	level  Level
	file   *os.File
}

// NewLogger creates a logger appending to logFile, or writing to stderr when
// logFile is empty.
func NewLogger(logFile, logLevel string) (*Logger, error) {
	level, err := ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}

	var file *os.File
	var out io.Writer = os.Stderr
	if logFile != "" {
		file, err = os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = file
	}

	return &Logger{
		logger: log.New(out, "", log.LstdFlags),
		level:  level,
		file:   file,
	}, nil
}

// New wraps an arbitrary writer
func New(w io.Writer, level Level) *Logger {
	return &Logger{logger: log.New(w, "", log.LstdFlags), level: level}
}

// Discard returns a logger that drops everything
func Discard() *Logger {
	return New(io.Discard, LevelError+1)
}

func (l *Logger) printf(level Level, tag, format string, args ...interface{}) {
	if l == nil || level < l.level {
		return
	}
	l.logger.Printf("["+tag+"] "+format, args...)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.printf(LevelDebug, "DEBUG", format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.printf(LevelInfo, "INFO", format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.printf(LevelWarn, "WARN", format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.printf(LevelError, "ERROR", format, args...)
}

// Close closes the log file, if any
func (l *Logger) Close() error {
	if l != nil && l.file != nil {
		return l.file.Close()
	}
	return nil
}
