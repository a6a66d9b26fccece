package observability

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DebugLogName is the per-run log file written inside each run directory.
const DebugLogName = "scraper_debug.log"

// LoggerOptions configures the console and per-run file sinks.
type LoggerOptions struct {
	Level      string
	Format     string // console or json
	Console    zapcore.WriteSyncer
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

// DefaultLoggerOptions logs info and above to stdout in console format.
func DefaultLoggerOptions() LoggerOptions {
	return LoggerOptions{
		Level:      "info",
		Format:     "console",
		MaxSizeMB:  10,
		MaxBackups: 1,
	}
}

// NewLogger builds the process logger used by the CLI and the batch driver.
func NewLogger(opts LoggerOptions) *zap.Logger {
	return zap.New(consoleCore(opts), zap.AddStacktrace(zap.ErrorLevel)).Named("fee_agent")
}

// NewRunLogger builds a logger for one run that tees the console sink with a JSON debug log
// at <runDir>/scraper_debug.log. The file captures every level. Call the returned close
// function once the run is finished.
func NewRunLogger(opts LoggerOptions, runDir, runID string) (*zap.Logger, func() error, error) {
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, nil, err
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(runDir, DebugLogName),
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   opts.Compress,
	}
	fileCore := zapcore.NewCore(encoder("json"), zapcore.AddSync(file), zap.DebugLevel)

	logger := zap.New(zapcore.NewTee(consoleCore(opts), fileCore), zap.AddStacktrace(zap.ErrorLevel)).
		Named("run").
		With(zap.String("run_id", runID))

	closeFn := func() error {
		_ = logger.Sync()
		return file.Close()
	}
	return logger, closeFn, nil
}

func consoleCore(opts LoggerOptions) zapcore.Core {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}
	out := opts.Console
	if out == nil {
		out = zapcore.Lock(os.Stdout)
	}
	return zapcore.NewCore(encoder(opts.Format), out, level)
}

func encoder(format string) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder

	if format == "console" {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(cfg)
	}
	return zapcore.NewJSONEncoder(cfg)
}
