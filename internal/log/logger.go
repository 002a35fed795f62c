package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits of the log file.
const (
	maxLogSizeMB  = 10
	maxLogBackups = 5
	maxLogAgeDays = 14
	logDirPerm    = 0o750
	formatJSON    = "json"
)

// Options configures NewLogger.
type Options struct {
	// Writer receives the logs. Defaults to os.Stderr.
	Writer io.Writer

	// Verbose logs at Debug level instead of Warn.
	Verbose bool

	// Format is "text" (default) or "json".
	Format string

	// File, when set, also writes the logs to a rotated file.
	File string
}

// NewLogger builds the application logger. The returned closer releases the
// log file and must be called before exit.
func NewLogger(opts Options) (*slog.Logger, io.Closer, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), logDirPerm); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		rotated := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxLogSizeMB,
			MaxBackups: maxLogBackups,
			MaxAge:     maxLogAgeDays,
			Compress:   true,
		}
		w = io.MultiWriter(w, rotated)
		closer = rotated
	}

	return NewSecureLogger(w, opts.Format, opts.Verbose), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
