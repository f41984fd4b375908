package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"candlesync/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New creates a zap.Logger that writes to stdout and, when OutputFile is set,
// to a rotated JSON file.
func New(opts config.LogConfig) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(opts.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encoding := "json"
	if opts.Environment == "dev" || opts.Format == "console" {
		encoding = "console"
	}
	encoderCfg := encoderConfig(encoding)

	stdout := zapcore.NewJSONEncoder(encoderCfg)
	if encoding == "console" {
		stdout = zapcore.NewConsoleEncoder(encoderCfg)
	}
	cores := []zapcore.Core{
		zapcore.NewCore(stdout, zapcore.Lock(os.Stdout), lvl),
	}

	// Optional file output with rotation via lumberjack
	if opts.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(opts.OutputFile), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(newRotator(opts.OutputFile)),
			lvl,
		))
	}

	core := zapcore.NewTee(cores...)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func newRotator(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10,   // max file size (MB) before rotation
		MaxBackups: 5,    // max number of old log files to keep
		MaxAge:     7,    // max age (days) to retain a log file
		Compress:   true, // compress rotated files
	}
}

// encoderConfig returns a zapcore.EncoderConfig based on log format.
func encoderConfig(format string) zapcore.EncoderConfig {
	if format == "console" {
		return zap.NewDevelopmentEncoderConfig()
	}
	return zap.NewProductionEncoderConfig()
}
