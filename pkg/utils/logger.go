package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerConfig holds logger configuration.
//
// Logs never go to stdout unless asked for: the CLI prints its results there.
type LoggerConfig struct {
	Level      string // debug, info, warn, error; empty means info
	OutputPath string // stderr (default), stdout, or a file that receives a JSON copy of every entry
	Format     string // console or json, for the terminal stream

	// Writer replaces the terminal stream, mainly for tests
	Writer io.Writer
}

// NewLogger builds a zap logger. With a file OutputPath, entries are written both to the
// terminal stream and, as JSON lines, to the file.
func NewLogger(cfg LoggerConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q", cfg.Level)
		}
	}

	var terminal zapcore.WriteSyncer
	var file *os.File
	switch {
	case cfg.Writer != nil:
		terminal = zapcore.AddSync(cfg.Writer)
	case cfg.OutputPath == "stdout":
		terminal = zapcore.Lock(os.Stdout)
	default:
		terminal = zapcore.Lock(os.Stderr)
	}
	if p := cfg.OutputPath; p != "" && p != "stderr" && p != "stdout" {
		var err error
		if file, err = openLogFile(p); err != nil {
			return nil, err
		}
	}

	cores := []zapcore.Core{zapcore.NewCore(terminalEncoder(cfg.Format, cfg.Writer == nil), terminal, level)}
	if file != nil {
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(jsonEncoderConfig()), zapcore.AddSync(file), level))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func terminalEncoder(format string, color bool) zapcore.Encoder {
	if format == "json" {
		return zapcore.NewJSONEncoder(jsonEncoderConfig())
	}
	ec := zap.NewDevelopmentEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	if color {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(ec)
}

func jsonEncoderConfig() zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	return ec
}

func openLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}
