package cliconfig

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFileName is the diagnostics log inside the log directory.
const LogFileName = "wavemeter.log"

// DefaultLogDir returns ~/.wavemeter/logs, or "" if the home directory is unknown.
func DefaultLogDir() string {
	if h := HomeDir(); h != "" {
		return filepath.Join(h, "logs")
	}
	return ""
}

// NewLogger returns a logger writing human-readable lines to console and,
// when logDir is not empty, JSON lines to a rotated file in logDir.
// The returned closer releases the file; it is never nil.
func NewLogger(console io.Writer, logDir, level string) (zerolog.Logger, io.Closer, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	writers := []io.Writer{zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}}
	var closer io.Closer = nopCloser{}

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return zerolog.Nop(), closer, err
		}
		file := &lumberjack.Logger{
			Filename:   filepath.Join(logDir, LogFileName),
			MaxSize:    10, // megabytes
			MaxBackups: 4,
			MaxAge:     180, // days
			Compress:   true,
		}
		writers = append(writers, file)
		closer = file
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(lvl).
		With().Timestamp().Logger()
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
