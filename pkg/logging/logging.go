// Package logging builds the zap loggers used across nornicogm.
//
// Console output goes to stderr. When a file is configured, a JSON core that
// writes through a rotating lumberjack file is tee'd next to it.
//
// Example:
//
//	log, err := logging.New(logging.Config{Level: "debug", File: "logs/ogm.log"})
//	if err != nil {
//		return err
//	}
//	defer log.Sync()
package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes the logger.
type Config struct {
	// Name is attached to every entry as the logger name.
	Name string
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// Format of the console core: "console" or "json". Empty means console.
	Format string
	// File enables the rotating JSON file sink.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	// Development adds stack traces from warn up and panics on DPanic.
	Development bool
}

// ParseLevel parses a level name. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	var level zapcore.Level
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// New builds a logger from cfg.
func New(cfg Config) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	atomic := zap.NewAtomicLevelAt(level)

	var console zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "", "console":
		encCfg := encoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		console = zapcore.NewConsoleEncoder(encCfg)
	case "json":
		console = zapcore.NewJSONEncoder(encoderConfig())
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	core := zapcore.NewCore(console, zapcore.Lock(os.Stderr), atomic)
	if cfg.File != "" {
		core = zapcore.NewTee(core, fileCore(cfg, atomic))
	}

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.WarnLevel))
	}

	log := zap.New(core, opts...)
	if cfg.Name != "" {
		log = log.Named(cfg.Name)
	}
	return log, nil
}

func fileCore(cfg Config, level zapcore.LevelEnabler) zapcore.Core {
	writer := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    max(1, cfg.MaxSizeMB),
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(writer), level)
}

// Badger adapts log to badger's logger interface. Badger is chatty at info,
// so its messages are demoted one level.
func Badger(log *zap.Logger) badger.Logger {
	if log == nil {
		return nil
	}
	return badgerLogger{log.Named("badger").WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

type badgerLogger struct {
	s *zap.SugaredLogger
}

func (b badgerLogger) Errorf(format string, args ...any) {
	b.s.Errorf(strings.TrimRight(format, "\n"), args...)
}

func (b badgerLogger) Warningf(format string, args ...any) {
	b.s.Warnf(strings.TrimRight(format, "\n"), args...)
}

func (b badgerLogger) Infof(format string, args ...any) {
	b.s.Debugf(strings.TrimRight(format, "\n"), args...)
}

func (b badgerLogger) Debugf(format string, args ...any) {
	b.s.Debugf(strings.TrimRight(format, "\n"), args...)
}
