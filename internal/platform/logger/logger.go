package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap with the project's naming helpers.
type Logger struct {
	*zap.Logger
	config *LoggerConfig
}

// NewLogger builds a logger from environment configuration.
func NewLogger() *Logger {
	return New(DefaultConfig())
}

// New builds a logger from an explicit configuration. Invalid output
// locations fall back to stdout.
func New(cfg *LoggerConfig) *Logger {
	var zapConfig zap.Config
	if cfg.Level == "debug" {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zapConfig.Level = zap.NewAtomicLevelAt(cfg.ToZapLevel())

	zapConfig.OutputPaths = []string{"stdout"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}
	if cfg.OutputFile != "" && cfg.OutputFile != "stdout" && cfg.OutputFile != "stderr" {
		logDir := filepath.Dir(cfg.OutputFile)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "logger: cannot create %s, using stdout: %v\n", logDir, err)
		} else {
			zapConfig.OutputPaths = []string{cfg.OutputFile, "stdout"}
			zapConfig.ErrorOutputPaths = []string{cfg.OutputFile, "stderr"}
		}
	} else if cfg.OutputFile == "stderr" {
		zapConfig.OutputPaths = []string{"stderr"}
	}

	if cfg.IsConsole() {
		zapConfig.Encoding = "console"
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapConfig.Encoding = "json"
	}

	l, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: falling back to production defaults: %v\n", err)
		l, _ = zap.NewProduction()
	}
	return &Logger{Logger: l, config: cfg}
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop(), config: &LoggerConfig{Level: "info", Format: "json"}}
}

// Named adds a new path segment to the logger's name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name), config: l.config}
}

// With adds structured context to the logger.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...), config: l.config}
}
