// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package logging builds the process logger: zap's production JSON logger
// on stderr, optionally teed into a size-rotated log file.
package logging

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// Verbose lowers the level to debug.
	Verbose bool

	// File, when set, also receives every entry. It is rotated at
	// MaxSizeMB and keeps MaxBackups old files.
	File       string
	MaxSizeMB  int
	MaxBackups int

	// Stderr overrides the console sink. Tests use it to capture output.
	Stderr zapcore.WriteSyncer
}

// New builds a logger. The returned closer flushes the logger and closes
// the rotated file; call it once on exit.
func New(opts Options) (*zap.Logger, func() error, error) {
	config := zap.NewProductionConfig()
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if opts.Verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	var buildOpts []zap.Option
	if opts.Stderr != nil {
		console := zapcore.NewCore(zapcore.NewJSONEncoder(config.EncoderConfig), opts.Stderr, config.Level)
		buildOpts = append(buildOpts, zap.WrapCore(func(zapcore.Core) zapcore.Core { return console }))
	}

	var file io.Closer
	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 15), // megabytes
			MaxBackups: orDefault(opts.MaxBackups, 3),
			MaxAge:     28, // days
			Compress:   true,
		}
		file = lj
		fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(config.EncoderConfig), zapcore.AddSync(lj), config.Level)
		buildOpts = append(buildOpts, zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore)
		}))
	}

	logger, err := config.Build(buildOpts...)
	if err != nil {
		if file != nil {
			_ = file.Close()
		}
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	closer := func() error {
		_ = logger.Sync()
		if file != nil {
			return file.Close()
		}
		return nil
	}
	return logger, closer, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
