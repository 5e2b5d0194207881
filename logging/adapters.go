package logging

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogrusAdapter adapts logrus to the pool's Logger interface.
type LogrusAdapter struct {
	logger *logrus.Logger
	level  LogLevel
	fields logrus.Fields
}

// NewLogrusAdapter creates a new logrus adapter.
func NewLogrusAdapter(logger *logrus.Logger) *LogrusAdapter {
	if logger == nil {
		logger = logrus.New()
	}

	adapter := &LogrusAdapter{logger: logger, level: INFO, fields: logrus.Fields{}}
	switch logger.GetLevel() {
	case logrus.DebugLevel:
		adapter.level = DEBUG
	case logrus.InfoLevel:
		adapter.level = INFO
	case logrus.WarnLevel:
		adapter.level = WARN
	case logrus.ErrorLevel:
		adapter.level = ERROR
	case logrus.FatalLevel:
		adapter.level = FATAL
	}
	return adapter
}

func (l *LogrusAdapter) Debug(ctx context.Context, msg string, fields ...Field) {
	l.logWithFields(logrus.DebugLevel, msg, nil, fields...)
}

func (l *LogrusAdapter) Info(ctx context.Context, msg string, fields ...Field) {
	l.logWithFields(logrus.InfoLevel, msg, nil, fields...)
}

func (l *LogrusAdapter) Warn(ctx context.Context, msg string, fields ...Field) {
	l.logWithFields(logrus.WarnLevel, msg, nil, fields...)
}

func (l *LogrusAdapter) Error(ctx context.Context, msg string, err error, fields ...Field) {
	l.logWithFields(logrus.ErrorLevel, msg, err, fields...)
}

func (l *LogrusAdapter) LogPool(ctx context.Context, event PoolEvent, fields ...Field) {
	allFields := append([]Field{String("event", string(event))}, fields...)
	switch event {
	case PoolCriticalDrain, PoolReducerError:
		l.Error(ctx, "pool event", nil, allFields...)
	case PoolBorrowTimeout, PoolValidationFailed, PoolHookError:
		l.Warn(ctx, "pool event", allFields...)
	default:
		l.Debug(ctx, "pool event", allFields...)
	}
}

func (l *LogrusAdapter) SetLevel(level LogLevel) {
	l.level = level
	switch level {
	case DEBUG:
		l.logger.SetLevel(logrus.DebugLevel)
	case INFO:
		l.logger.SetLevel(logrus.InfoLevel)
	case WARN:
		l.logger.SetLevel(logrus.WarnLevel)
	case ERROR:
		l.logger.SetLevel(logrus.ErrorLevel)
	case FATAL:
		l.logger.SetLevel(logrus.FatalLevel)
	}
}

func (l *LogrusAdapter) GetLevel() LogLevel      { return l.level }
func (l *LogrusAdapter) IsEnabled(level LogLevel) bool { return level >= l.level }

func (l *LogrusAdapter) WithFields(fields ...Field) Logger {
	merged := logrus.Fields{}
	for k, v := range l.fields {
		merged[k] = v
	}
	for _, field := range fields {
		merged[field.Key] = field.Value
	}
	return &LogrusAdapter{logger: l.logger, level: l.level, fields: merged}
}

func (l *LogrusAdapter) logWithFields(level logrus.Level, msg string, err error, fields ...Field) {
	if !l.logger.IsLevelEnabled(level) {
		return
	}

	merged := logrus.Fields{}
	for k, v := range l.fields {
		merged[k] = v
	}
	for _, field := range fields {
		merged[field.Key] = field.Value
	}
	if err != nil {
		merged["error"] = err.Error()
	}

	l.logger.WithFields(merged).Log(level, msg)
}

// ZapAdapter adapts zap to the pool's Logger interface.
type ZapAdapter struct {
	logger *zap.Logger
	level  LogLevel
}

// NewZapAdapter creates a new zap adapter.
func NewZapAdapter(logger *zap.Logger) *ZapAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}

	adapter := &ZapAdapter{logger: logger, level: INFO}
	switch {
	case logger.Core().Enabled(zapcore.DebugLevel):
		adapter.level = DEBUG
	case logger.Core().Enabled(zapcore.InfoLevel):
		adapter.level = INFO
	case logger.Core().Enabled(zapcore.WarnLevel):
		adapter.level = WARN
	case logger.Core().Enabled(zapcore.ErrorLevel):
		adapter.level = ERROR
	default:
		adapter.level = FATAL
	}
	return adapter
}

func (z *ZapAdapter) Debug(ctx context.Context, msg string, fields ...Field) {
	z.logWithFields(zapcore.DebugLevel, msg, nil, fields...)
}

func (z *ZapAdapter) Info(ctx context.Context, msg string, fields ...Field) {
	z.logWithFields(zapcore.InfoLevel, msg, nil, fields...)
}

func (z *ZapAdapter) Warn(ctx context.Context, msg string, fields ...Field) {
	z.logWithFields(zapcore.WarnLevel, msg, nil, fields...)
}

func (z *ZapAdapter) Error(ctx context.Context, msg string, err error, fields ...Field) {
	z.logWithFields(zapcore.ErrorLevel, msg, err, fields...)
}

func (z *ZapAdapter) LogPool(ctx context.Context, event PoolEvent, fields ...Field) {
	allFields := append([]Field{String("event", string(event))}, fields...)
	switch event {
	case PoolCriticalDrain, PoolReducerError:
		z.Error(ctx, "pool event", nil, allFields...)
	case PoolBorrowTimeout, PoolValidationFailed, PoolHookError:
		z.Warn(ctx, "pool event", allFields...)
	default:
		z.Debug(ctx, "pool event", allFields...)
	}
}

func (z *ZapAdapter) SetLevel(level LogLevel) { z.level = level }
func (z *ZapAdapter) GetLevel() LogLevel       { return z.level }
func (z *ZapAdapter) IsEnabled(level LogLevel) bool { return level >= z.level }

func (z *ZapAdapter) WithFields(fields ...Field) Logger {
	return &ZapAdapter{logger: z.logger.With(toZapFields(fields)...), level: z.level}
}

func (z *ZapAdapter) logWithFields(level zapcore.Level, msg string, err error, fields ...Field) {
	if !z.logger.Core().Enabled(level) {
		return
	}

	zfields := toZapFields(fields)
	if err != nil {
		zfields = append(zfields, zap.Error(err))
	}

	if ce := z.logger.Check(level, msg); ce != nil {
		ce.Write(zfields...)
	}
}

func toZapFields(fields []Field) []zap.Field {
	zfields := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		zfields = append(zfields, zap.Any(f.Key, f.Value))
	}
	return zfields
}
