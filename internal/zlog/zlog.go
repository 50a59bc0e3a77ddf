// Package zlog is the process-wide structured logger. The terminal UI owns
// stdout, so records go to a size-rotated JSON file.
package zlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger atomic.Pointer[zap.Logger]

func init() {
	logger.Store(zap.NewNop())
}

// Options configures Init.
type Options struct {
	// Path is the log file. Empty disables file output.
	Path string

	// Level is one of debug, info, warn, error.
	Level string

	// MaxSizeMB is the rotation threshold. Zero means 10.
	MaxSizeMB int

	// MaxBackups is the number of rotated files kept. Zero means 3.
	MaxBackups int
}

// Init installs a file-backed logger and returns a func that flushes and
// closes it.
func Init(opts Options) (func() error, error) {
	if opts.Path == "" {
		logger.Store(zap.NewNop())
		return func() error { return nil }, nil
	}

	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", opts.Level, err)
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	if opts.MaxSizeMB == 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxBackups == 0 {
		opts.MaxBackups = 3
	}
	rotator := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotator), level)

	l := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	logger.Store(l)

	return func() error {
		_ = l.Sync()
		return rotator.Close()
	}, nil
}

// SetLogger replaces the process logger, e.g. with zaptest in tests.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l)
}

// L returns the current logger.
func L() *zap.Logger {
	return logger.Load()
}

func Debug(msg string, fields ...zap.Field) { logger.Load().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { logger.Load().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { logger.Load().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { logger.Load().Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { logger.Load().Fatal(msg, fields...) }
