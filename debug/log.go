package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	logger  = newLogger()
	file    *os.File
	mu      sync.Mutex
	enabled bool
)

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
		DisableColors:   true,
	})
	return l
}

// Logger exposes the underlying logger, mainly for attaching hooks.
func Logger() *logrus.Logger {
	return logger
}

// DefaultPath is ~/.config/midiseq/debug.log
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "midiseq", "debug.log")
}

// Enable starts writing log lines to path (DefaultPath when empty). Until
// Enable is called everything is discarded, which keeps the terminal clean
// while the TUI owns it.
func Enable(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if enabled {
		return nil
	}
	if path == "" {
		path = DefaultPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	file = f
	enabled = true
	logger.SetOutput(f)
	logger.WithField("cat", "debug").Info("=== Debug logging started ===")
	return nil
}

// EnableWriter sends log lines to w instead of a file.
func EnableWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger.SetOutput(w)
	enabled = true
}

// Disable stops debug logging
func Disable() {
	mu.Lock()
	defer mu.Unlock()

	logger.SetOutput(io.Discard)
	if file != nil {
		file.Close()
		file = nil
	}
	enabled = false
}

// SetLevel accepts debug, info, warn or error.
func SetLevel(level string) error {
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", level)
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logger.SetLevel(lvl)
	return nil
}

// Log writes an info line tagged with category.
func Log(category, format string, args ...any) {
	logger.WithField("cat", category).Infof(format, args...)
}

// Warn writes a warning tagged with category. Used for recoverable
// failures such as a dropped note.
func Warn(category, format string, args ...any) {
	logger.WithField("cat", category).Warnf(format, args...)
}

// Verbose writes a debug-level line; use for per-tick traffic.
func Verbose(category, format string, args ...any) {
	if !logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	logger.WithField("cat", category).Debugf(format, args...)
}

var counters = make(map[string]int)

// LogEvery logs only every N calls (use for high-frequency events).
// n below 1 logs every call.
func LogEvery(n int, category, format string, args ...any) {
	if n < 1 {
		n = 1
	}
	mu.Lock()
	key := category + format
	counters[key]++
	count := counters[key]
	mu.Unlock()

	if count%n == 0 {
		Log(category, format+" (every %d, count=%d)", append(args, n, count)...)
	}
}
