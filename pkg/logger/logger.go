// Package logger provides opinionated logging capabilities for hotmesscoach
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxLogSizeMB  = 10
	maxLogBackups = 3
	maxLogAgeDays = 14
)

// NewLogger returns a colored console logger writing to stdout.
func NewLogger(debug bool) *zap.Logger {
	return newLogger(zapcore.AddSync(os.Stdout), debug, zapcore.CapitalColorLevelEncoder)
}

// NewWriterLogger returns an uncolored console logger writing to w.
func NewWriterLogger(w io.Writer, debug bool) *zap.Logger {
	return newLogger(zapcore.AddSync(w), debug, zapcore.CapitalLevelEncoder)
}

// NewFileLogger appends to a size-rotated file at path. An empty path
// discards all output, which keeps full-screen terminal programs free of log
// noise. The returned close function flushes and closes the file.
func NewFileLogger(path string, debug bool) (*zap.Logger, func() error, error) {
	if path == "" {
		return zap.NewNop(), func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("could not create log directory for %s: %w", path, err)
	}

	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxLogSizeMB,
		MaxBackups: maxLogBackups,
		MaxAge:     maxLogAgeDays,
	}

	l := newLogger(zapcore.AddSync(w), debug, zapcore.CapitalLevelEncoder)
	return l, func() error {
		_ = l.Sync()
		return w.Close()
	}, nil
}

func newLogger(ws zapcore.WriteSyncer, debug bool, levelEncoder zapcore.LevelEncoder) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = levelEncoder

	// Set log level
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		ws,
		level,
	)

	return zap.New(core, zap.AddCaller())
}
