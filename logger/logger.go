package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hannes/yaak-ner/config"
)

type LogLevel string

func (ll LogLevel) String() string {
	return string(ll)
}

const (
	DebugLevel LogLevel = "DEBUG"
	InfoLevel  LogLevel = "INFO"
	WarnLevel  LogLevel = "WARN"
	ErrorLevel LogLevel = "ERROR"
	FatalLevel LogLevel = "FATAL"
)

// _instance starts as a no-op logger so packages can log before Init runs
// (tests, early startup).
var _instance = &logger{level: InfoLevel, logger: zap.NewNop().Sugar()}

// Init builds the process logger from configuration. It must be called once
// from main before the server starts.
func Init(cfg config.LoggingConfig) error {
	lvl := InfoLevel
	if cfg.Level != "" {
		lvl = LogLevel(strings.ToUpper(cfg.Level))
	}

	var zapLevel zap.AtomicLevel
	switch lvl {
	case DebugLevel:
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case InfoLevel:
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	case WarnLevel:
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case ErrorLevel:
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	case FatalLevel:
		zapLevel = zap.NewAtomicLevelAt(zap.FatalLevel)
	default:
		return fmt.Errorf("bad log level: %s", cfg.Level)
	}

	format := cfg.Format
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "console" {
		return fmt.Errorf("bad log format: %s", cfg.Format)
	}

	zapConfig := zap.Config{
		Level:            zapLevel,
		Development:      false,
		Encoding:         format,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stdout"},
		DisableCaller:    false,
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:     "msg",
			LevelKey:       "level",
			TimeKey:        "ts",
			CallerKey:      "caller",
			StacktraceKey:  "stack",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
	}

	log, err := zapConfig.Build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	_instance = &logger{
		level:  lvl,
		logger: log.Sugar(),
	}
	return nil
}

// SetZapLogger replaces the process logger. Used by tests to capture output.
func SetZapLogger(l *zap.Logger) {
	_instance = &logger{level: DebugLevel, logger: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func GetLogLevel() LogLevel {
	return _instance.level
}

// Sync flushes buffered log entries
func Sync() {
	_ = _instance.logger.Sync()
}

type logger struct {
	level  LogLevel
	logger *zap.SugaredLogger
}

func Debug(msg string, keysAndValues ...any) {
	_instance.logger.Debugw(msg, keysAndValues...)
}

func Info(msg string, keysAndValues ...any) {
	_instance.logger.Infow(msg, keysAndValues...)
}

func Warn(msg string, keysAndValues ...any) {
	_instance.logger.Warnw(msg, keysAndValues...)
}

func Error(msg string, keysAndValues ...any) {
	_instance.logger.Errorw(msg, keysAndValues...)
}

func Fatal(msg string, keysAndValues ...any) {
	_instance.logger.Fatalw(msg, keysAndValues...)
}
