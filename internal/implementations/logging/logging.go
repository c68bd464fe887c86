package logging

import (
	"context"
	"os"
	"path/filepath"
	"repeatme/internal/core/domain/logging"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger builds a JSON logger. In test mode it logs human readable
// lines at debug level instead.
func NewZapLogger(isTestMode bool) *ZapLogger {
	config := zap.NewProductionConfig()
	if isTestMode {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder

	logger, err := config.Build(
		zap.AddCallerSkip(1),
		zap.Fields(zap.String("process", filepath.Base(os.Args[0]))),
	)
	if err != nil {
		panic("Could not create Zap logger.")
	}
	return &ZapLogger{logger: logger}
}

func NewZapLoggerFrom(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{logger: logger.WithOptions(zap.AddCallerSkip(1))}
}

func (l *ZapLogger) Sync() {
	l.logger.Sync()
}

func (l *ZapLogger) Debug(ctx context.Context, msg string, entries ...logging.LogEntry) {
	l.logger.Debug(msg, fields(entries)...)
}

func (l *ZapLogger) Info(ctx context.Context, msg string, entries ...logging.LogEntry) {
	l.logger.Info(msg, fields(entries)...)
}

func (l *ZapLogger) Warning(ctx context.Context, msg string, entries ...logging.LogEntry) {
	l.logger.Warn(msg, fields(entries)...)
}

func (l *ZapLogger) Error(ctx context.Context, msg string, entries ...logging.LogEntry) {
	l.logger.Error(msg, fields(entries)...)
}

func fields(entries []logging.LogEntry) []zap.Field {
	result := make([]zap.Field, 0, len(entries))
	for _, entry := range entries {
		if err, ok := entry.Value.(error); ok {
			result = append(result, zap.NamedError(entry.Key, err))
			continue
		}
		result = append(result, zap.Any(entry.Key, entry.Value))
	}
	return result
}
