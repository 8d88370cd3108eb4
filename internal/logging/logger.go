// Package logging holds the process-wide charmbracelet logger. All helpers
// are no-ops until Init or SetOutput is called, so library code and tests can
// log unconditionally.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	mu sync.RWMutex

	// logger is the global logger instance
	logger *log.Logger

	// logFile is the file handle for the log file
	logFile *os.File
)

// Init opens dir/smartscanner-YYYY-MM-DD.log and logs to it at level
// ("debug", "info", "warn", "error"; empty means debug).
func Init(dir, level string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	name := fmt.Sprintf("smartscanner-%s.log", time.Now().Format("2006-01-02"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	if err := SetOutput(f, level); err != nil {
		f.Close()
		return err
	}

	mu.Lock()
	logFile = f
	mu.Unlock()

	Info("smartscanner started", "pid", os.Getpid())
	return nil
}

// SetOutput routes logs to w without a backing file.
func SetOutput(w io.Writer, level string) error {
	lvl := log.DebugLevel
	if level != "" {
		parsed, err := log.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}

	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           lvl,
	})

	mu.Lock()
	logger = l
	mu.Unlock()
	return nil
}

// Close closes the log file
func Close() {
	Info("smartscanner shutting down")

	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	logger = nil
}

func current() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Info logs an info message
func Info(msg string, keyvals ...interface{}) {
	if l := current(); l != nil {
		l.Info(msg, keyvals...)
	}
}

// Debug logs a debug message
func Debug(msg string, keyvals ...interface{}) {
	if l := current(); l != nil {
		l.Debug(msg, keyvals...)
	}
}

// Warn logs a warning message
func Warn(msg string, keyvals ...interface{}) {
	if l := current(); l != nil {
		l.Warn(msg, keyvals...)
	}
}

// Error logs an error message
func Error(msg string, keyvals ...interface{}) {
	if l := current(); l != nil {
		l.Error(msg, keyvals...)
	}
}
