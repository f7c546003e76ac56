// Package logging builds the shared log output for gitmarks components.
//
// Components keep taking a *log.Logger. This package decides where those
// loggers write (stderr, stdout or a size-rotated file) and drops lines
// below the configured level. Plain Printf lines are info; Debugf, Warnf
// and Errorf tag the line with its level.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level orders log lines by severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the lowercase level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel accepts debug, info, warn (or warning) and error in any case.
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

// Options configures Setup.
type Options struct {
	Level string

	// Output is "stderr", "stdout" or a file path.
	Output string

	// Rotation limits, used only for file output.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Logging owns the output writer shared by component loggers.
type Logging struct {
	level  Level
	out    io.Writer
	closer io.Closer
}

// Setup opens the configured output.
func Setup(opts Options) (*Logging, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	l := &Logging{level: level}
	switch opts.Output {
	case "", "stderr":
		l.out = os.Stderr
	case "stdout":
		l.out = os.Stdout
	default:
		if err := os.MkdirAll(filepath.Dir(opts.Output), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   opts.Output,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
		l.out = rotator
		l.closer = rotator
	}
	return l, nil
}

// Level returns the threshold.
func (l *Logging) Level() Level {
	return l.level
}

// Writer returns the filtered output.
func (l *Logging) Writer() io.Writer {
	return &filter{level: l.level, out: l.out}
}

// New returns a logger for a component, prefixed "[component] ".
func (l *Logging) New(component string) *log.Logger {
	return log.New(l.Writer(), "["+component+"] ", log.LstdFlags)
}

// Close releases a log file. Standard streams are left open.
func (l *Logging) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// filter drops lines below level. A *log.Logger issues exactly one Write
// per line, which is what makes per-call classification sound.
type filter struct {
	level Level

	mu  sync.Mutex
	out io.Writer
}

func (f *filter) Write(p []byte) (int, error) {
	if Classify(p) < f.level {
		return len(p), nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.out.Write(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Level tags written after the logger prefix. Classify looks at nothing else.
const (
	tagDebug = "DEBUG "
	tagWarn  = "WARN "
	tagError = "ERROR "
)

// Debugf logs a line that is only written at level debug.
func Debugf(l *log.Logger, format string, args ...any) {
	_ = l.Output(2, tagDebug+fmt.Sprintf(format, args...))
}

// Warnf logs a warning.
func Warnf(l *log.Logger, format string, args ...any) {
	_ = l.Output(2, tagWarn+fmt.Sprintf(format, args...))
}

// Errorf logs an error.
func Errorf(l *log.Logger, format string, args ...any) {
	_ = l.Output(2, tagError+fmt.Sprintf(format, args...))
}

// Classify returns the level tagged on a formatted log line. Untagged lines
// are info.
func Classify(line []byte) Level {
	msg := stripPrefix(line)
	switch {
	case bytes.HasPrefix(msg, []byte(tagDebug)):
		return LevelDebug
	case bytes.HasPrefix(msg, []byte(tagWarn)):
		return LevelWarn
	case bytes.HasPrefix(msg, []byte(tagError)):
		return LevelError
	default:
		return LevelInfo
	}
}

// stripPrefix removes a "[component] " tag and the LstdFlags timestamp.
func stripPrefix(line []byte) []byte {
	if len(line) > 0 && line[0] == '[' {
		if i := bytes.IndexByte(line, ']'); i >= 0 {
			line = bytes.TrimLeft(line[i+1:], " ")
		}
	}
	// "2006/01/02 15:04:05 "
	if len(line) >= 20 && line[4] == '/' && line[7] == '/' && line[13] == ':' {
		line = line[20:]
	}
	return line
}
