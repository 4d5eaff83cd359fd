package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mrz1836/vali/internal/fileutil"
)

// LogLevel selects how chatty the file log is.
type LogLevel int

const (
	LogLevelOff LogLevel = iota
	LogLevelError
	LogLevelDebug
)

const logTimeFormat = "2006-01-02 15:04:05.000"

//nolint:gochecknoglobals // level name tables
var (
	levelNames = [...]string{LogLevelOff: "off", LogLevelError: "error", LogLevelDebug: "debug"}

	levelValues = map[string]LogLevel{
		"off":   LogLevelOff,
		"none":  LogLevelOff,
		"error": LogLevelError,
		"debug": LogLevelDebug,
	}
)

// ParseLogLevel maps a config string onto a level. Unknown strings fall
// back to error rather than failing.
func ParseLogLevel(s string) LogLevel {
	if level, ok := levelValues[strings.ToLower(strings.TrimSpace(s))]; ok {
		return level
	}
	return LogLevelError
}

func (l LogLevel) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return "error"
	}
	return levelNames[l]
}

// Logger appends timestamped lines to a file. Portal responses and
// browser chatter go to the file, never to the terminal.
//
// The level can be flipped at runtime without blocking writers.
type Logger struct {
	level    atomic.Int32
	mu       sync.Mutex
	file     *os.File
	filePath string
}

// NewLogger opens the log file for appending. When level is off or the
// path is empty, the returned logger discards everything and holds no
// file handle.
func NewLogger(level LogLevel, filePath string) (*Logger, error) {
	logger := &Logger{filePath: filePath}
	logger.level.Store(int32(level))

	if filePath == "" || level == LogLevelOff {
		return logger, nil
	}

	path, err := expandHomePath(filePath)
	if err != nil {
		return nil, err
	}
	if err := fileutil.EnsureDir(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}

	// #nosec G304 -- path comes from the user's own config file
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	logger.file, logger.filePath = f, path
	return logger, nil
}

// expandHomePath resolves a leading ~/ against the user's home directory.
func expandHomePath(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[2:]), nil
}

// Close releases the log file handle, if one is open.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// SetLevel flips the level at runtime. In-flight writes keep the level
// they started with.
func (l *Logger) SetLevel(level LogLevel) {
	l.level.Store(int32(level))
}

// Level reports the level writes are currently filtered against.
func (l *Logger) Level() LogLevel {
	return LogLevel(l.level.Load())
}

// FilePath returns the resolved log file path, empty when logging is off.
func (l *Logger) FilePath() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return ""
	}
	return l.filePath
}

// Debug writes a line that only shows at debug level.
func (l *Logger) Debug(format string, args ...any) {
	l.log(LogLevelDebug, format, args...)
}

// Error writes a line that shows at error level and up.
func (l *Logger) Error(format string, args ...any) {
	l.log(LogLevelError, format, args...)
}

// Writer adapts the logger into an io.Writer at the given level, for
// handing to libraries that want one.
func (l *Logger) Writer(level LogLevel) io.Writer {
	return &levelWriter{logger: l, level: level}
}

func (l *Logger) log(level LogLevel, format string, args ...any) {
	current := l.Level()
	if current == LogLevelOff || level > current {
		return
	}
	stamp := time.Now().Format(logTimeFormat)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	_, _ = fmt.Fprintf(l.file, "%s [%s] %s\n",
		stamp, strings.ToUpper(level.String()), fmt.Sprintf(format, args...))
}

type levelWriter struct {
	logger *Logger
	level  LogLevel
}

func (w *levelWriter) Write(p []byte) (int, error) {
	w.logger.log(w.level, "%s", bytes.TrimSpace(p))
	return len(p), nil
}

// NullLogger returns a logger that drops everything.
func NullLogger() *Logger {
	return &Logger{} // zero level is off
}
