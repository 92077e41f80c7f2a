package logger

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ZapConfig holds configuration for the production zap logger.
type ZapConfig struct {
	Level      LogLevel
	FilePath   string // rotating log file; empty disables the file sink
	MaxSizeMB  int    // per-file size before rotation
	MaxBackups int
	MaxAgeDays int
	Console    bool // also mirror to stderr
}

// ZapLogger implements the ports.Logger interface on a zap SugaredLogger,
// writing to a size-rotated file and optionally mirroring to the console.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger creates the production logger. Callers should defer Sync.
func NewZapLogger(cfg ZapConfig) *ZapLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	level := zapLevel(cfg.Level)

	var cores []zapcore.Core
	if cfg.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    defaultInt(cfg.MaxSizeMB, 50),
			MaxBackups: defaultInt(cfg.MaxBackups, 5),
			MaxAge:     defaultInt(cfg.MaxAgeDays, 28),
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encCfg),
			zapcore.AddSync(rotator),
			level,
		))
	}
	if cfg.Console || len(cores) == 0 {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.Lock(os.Stderr),
			level,
		))
	}

	core := zapcore.NewTee(cores...)
	return &ZapLogger{sugar: zap.New(core).Sugar()}
}

func zapLevel(l LogLevel) zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func defaultInt(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// Sync flushes buffered log entries.
func (l *ZapLogger) Sync() error { return l.sugar.Sync() }

func kvPairs(fields []map[string]interface{}) []interface{} {
	if len(fields) == 0 || fields[0] == nil {
		return nil
	}
	kv := make([]interface{}, 0, len(fields[0])*2)
	for k, v := range fields[0] {
		kv = append(kv, k, v)
	}
	return kv
}

// Debug logs a message at Debug level.
func (l *ZapLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.sugar.Debugw(msg, kvPairs(fields)...)
}

// Info logs a message at Info level.
func (l *ZapLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.sugar.Infow(msg, kvPairs(fields)...)
}

// Warn logs a message at Warning level.
func (l *ZapLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.sugar.Warnw(msg, kvPairs(fields)...)
}

// Error logs an error message at Error level.
func (l *ZapLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	kv := kvPairs(fields)
	if err != nil {
		kv = append(kv, "error", err)
	}
	l.sugar.Errorw(msg, kv...)
}
