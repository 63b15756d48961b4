// Package logger is the process-wide zerolog logger for devcell.
//
// Console output is human readable on stderr. When file logging is enabled
// every entry is also written as JSON to a rotating file in the logs
// directory, and that file keeps receiving entries while a progress display
// owns the terminal.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFileName is the name of the rotating log file inside the logs directory.
const LogFileName = "devcell.log"

const (
	defaultMaxSizeMB  = 50
	defaultMaxAgeDays = 7
	defaultMaxBackups = 3
)

// Log is the global logger instance.
var Log = zerolog.Nop()

var (
	mu       sync.RWMutex
	file     *lumberjack.Logger
	fileLog  zerolog.Logger
	quiet    bool
	instance string
)

// LoggingConfig holds configuration for file-based logging.
// Zero values select the defaults; a nil FileEnabled means enabled.
type LoggingConfig struct {
	FileEnabled *bool
	MaxSizeMB   int
	MaxAgeDays  int
	MaxBackups  int
}

func (c *LoggingConfig) fileEnabled() bool {
	return c != nil && (c.FileEnabled == nil || *c.FileEnabled)
}

func (c *LoggingConfig) rotation(path string) *lumberjack.Logger {
	orDefault := func(v, def int) int {
		if v <= 0 {
			return def
		}
		return v
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    orDefault(c.MaxSizeMB, defaultMaxSizeMB),
		MaxAge:     orDefault(c.MaxAgeDays, defaultMaxAgeDays),
		MaxBackups: orDefault(c.MaxBackups, defaultMaxBackups),
		LocalTime:  true,
	}
}

func newLogger(w io.Writer, debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func console() io.Writer {
	return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
}

// Init initializes console-only logging on stderr.
func Init(debug bool) {
	Log = newLogger(console(), debug)
}

// InitWithFile adds a rotating JSON log file in logsDir to the console
// logger. An empty logsDir or a config that disables file logging behaves
// like Init.
func InitWithFile(debug bool, logsDir string, cfg *LoggingConfig) error {
	if logsDir == "" || !cfg.fileEnabled() {
		Init(debug)
		return nil
	}
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	w := cfg.rotation(filepath.Join(logsDir, LogFileName))

	mu.Lock()
	file = w
	fileLog = newLogger(w, debug)
	mu.Unlock()

	Log = newLogger(io.MultiWriter(console(), w), debug)
	return nil
}

// CloseFileWriter flushes and closes the log file, if one is open.
func CloseFileWriter() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}

// FilePath returns the path of the open log file, or "".
func FilePath() string {
	mu.RLock()
	defer mu.RUnlock()
	if file == nil {
		return ""
	}
	return file.Filename
}

// SetInstance tags every later entry with the instance profile name.
// An empty name removes the tag.
func SetInstance(name string) {
	mu.Lock()
	instance = name
	mu.Unlock()
}

// SetInteractiveMode routes info, warn and error entries to the log file
// only. Debug entries still reach the console.
func SetInteractiveMode(enabled bool) {
	mu.Lock()
	quiet = enabled
	mu.Unlock()
}

func event(level zerolog.Level) *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()

	var e *zerolog.Event
	switch {
	case !quiet || level == zerolog.DebugLevel || Log.GetLevel() == zerolog.DebugLevel:
		e = Log.WithLevel(level)
	case file != nil:
		e = fileLog.WithLevel(level)
	default:
		return nil
	}
	if instance != "" {
		e = e.Str("instance", instance)
	}
	return e
}

// Debug starts a debug entry.
func Debug() *zerolog.Event { return event(zerolog.DebugLevel) }

// Info starts an info entry.
func Info() *zerolog.Event { return event(zerolog.InfoLevel) }

// Warn starts a warning entry.
func Warn() *zerolog.Event { return event(zerolog.WarnLevel) }

// Error starts an error entry.
func Error() *zerolog.Event { return event(zerolog.ErrorLevel) }

// WithField returns a child logger carrying key.
func WithField(key string, value any) zerolog.Logger {
	l := Log.With().Interface(key, value)
	mu.RLock()
	if instance != "" {
		l = l.Str("instance", instance)
	}
	mu.RUnlock()
	return l.Logger()
}
