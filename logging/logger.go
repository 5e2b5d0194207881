// Package logging provides the structured logger the pool engine uses for
// reducer trims, critical-SQLSTATE drains, borrow timeouts, and swallowed
// lifecycle-hook errors.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel represents logging verbosity levels.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

func (l LogLevel) String() string {
	if name, exists := levelNames[l]; exists {
		return name
	}
	return "UNKNOWN"
}

// Logger is the contract the pool engine logs through.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, err error, fields ...Field)

	// LogPool logs a pool lifecycle event (created, restored, destroyed,
	// validation failure, critical drain, reducer trim, borrow timeout).
	LogPool(ctx context.Context, event PoolEvent, fields ...Field)

	SetLevel(level LogLevel)
	GetLevel() LogLevel
	IsEnabled(level LogLevel) bool

	WithFields(fields ...Field) Logger
}

// Field is a structured logging key/value pair.
type Field struct {
	Key   string
	Value interface{}
}

func String(key, value string) Field                 { return Field{Key: key, Value: value} }
func Int(key string, value int) Field                 { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field             { return Field{Key: key, Value: value} }
func Float64(key string, value float64) Field         { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field               { return Field{Key: key, Value: value} }
func Duration(key string, value time.Duration) Field  { return Field{Key: key, Value: value} }
func Time(key string, value time.Time) Field          { return Field{Key: key, Value: value} }
func ErrField(err error) Field                        { return Field{Key: "error", Value: err} }
func Any(key string, value interface{}) Field         { return Field{Key: key, Value: value} }

// PoolEvent names a pool lifecycle occurrence worth logging.
type PoolEvent string

const (
	PoolCreated            PoolEvent = "created"
	PoolValidationFailed   PoolEvent = "validation_failed"
	PoolRestored           PoolEvent = "restored"
	PoolDestroyed          PoolEvent = "destroyed"
	PoolBorrowTimeout      PoolEvent = "borrow_timeout"
	PoolCriticalDrain      PoolEvent = "critical_drain"
	PoolReducerTrim        PoolEvent = "reducer_trim"
	PoolReducerError       PoolEvent = "reducer_error"
	PoolHookError          PoolEvent = "hook_error"
)

// LoggerConfig configures a StandardLogger.
type LoggerConfig struct {
	Level        LogLevel
	Format       string // "text" or "json"
	Output       io.Writer
	SamplingRate float64 // 0.0 to 1.0
}

// DefaultLoggerConfig returns sensible defaults.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:        INFO,
		Format:       "text",
		Output:       os.Stdout,
		SamplingRate: 1.0,
	}
}

// StandardLogger is the default Logger implementation; a light plain-text or
// JSON writer that application code can swap for ZapAdapter or
// LogrusAdapter.
type StandardLogger struct {
	config  *LoggerConfig
	output  io.Writer
	mu      sync.RWMutex
	fields  []Field
	sampler *LogSampler
}

// NewStandardLogger creates a new standard logger.
func NewStandardLogger(config *LoggerConfig) *StandardLogger {
	if config == nil {
		config = DefaultLoggerConfig()
	}
	if config.Output == nil {
		config.Output = os.Stdout
	}

	return &StandardLogger{
		config:  config,
		output:  config.Output,
		sampler: NewLogSampler(config.SamplingRate),
	}
}

func (l *StandardLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, DEBUG, msg, nil, fields...)
}

func (l *StandardLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, INFO, msg, nil, fields...)
}

func (l *StandardLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, WARN, msg, nil, fields...)
}

func (l *StandardLogger) Error(ctx context.Context, msg string, err error, fields ...Field) {
	l.log(ctx, ERROR, msg, err, fields...)
}

// LogPool logs a pool lifecycle event at a level derived from its kind.
func (l *StandardLogger) LogPool(ctx context.Context, event PoolEvent, fields ...Field) {
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

func (l *StandardLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Level = level
}

func (l *StandardLogger) GetLevel() LogLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config.Level
}

func (l *StandardLogger) IsEnabled(level LogLevel) bool {
	return level >= l.GetLevel()
}

func (l *StandardLogger) WithFields(fields ...Field) Logger {
	return &StandardLogger{
		config:  l.config,
		output:  l.output,
		sampler: l.sampler,
		fields:  append(append([]Field{}, l.fields...), fields...),
	}
}

func (l *StandardLogger) log(ctx context.Context, level LogLevel, msg string, err error, fields ...Field) {
	if !l.IsEnabled(level) {
		return
	}
	if !l.sampler.ShouldLog() {
		return
	}

	allFields := append(append([]Field{}, l.fields...), fields...)
	if err != nil {
		allFields = append(allFields, Field{Key: "error", Value: err.Error()})
	}

	entry := &LogEntry{Timestamp: time.Now(), Level: level, Message: msg, Fields: allFields}
	formatted := l.formatEntry(entry)

	l.mu.Lock()
	fmt.Fprint(l.output, formatted)
	l.mu.Unlock()
}

// LogEntry represents a single log entry.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	Fields    []Field   `json:"fields"`
}

func (l *StandardLogger) formatEntry(entry *LogEntry) string {
	if strings.ToLower(l.config.Format) == "json" {
		return l.formatJSON(entry)
	}
	return l.formatText(entry)
}

func (l *StandardLogger) formatText(entry *LogEntry) string {
	var b strings.Builder
	b.WriteString(entry.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"))
	b.WriteString(" [")
	b.WriteString(entry.Level.String())
	b.WriteString("] ")
	b.WriteString(entry.Message)

	if len(entry.Fields) > 0 {
		b.WriteString(" |")
		for _, field := range entry.Fields {
			b.WriteString(" ")
			b.WriteString(field.Key)
			b.WriteString("=")
			b.WriteString(formatValue(field.Value))
		}
	}
	b.WriteString("\n")
	return b.String()
}

func (l *StandardLogger) formatJSON(entry *LogEntry) string {
	data := map[string]interface{}{
		"timestamp": entry.Timestamp.Format(time.RFC3339Nano),
		"level":     entry.Level.String(),
		"message":   entry.Message,
	}
	for _, field := range entry.Fields {
		data[field.Key] = field.Value
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return l.formatText(entry)
	}
	return string(jsonBytes) + "\n"
}

func formatValue(value interface{}) string {
	if value == nil {
		return "<nil>"
	}
	switch v := value.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case time.Duration:
		return v.String()
	case time.Time:
		return v.Format(time.RFC3339)
	case error:
		return fmt.Sprintf("%q", v.Error())
	default:
		return fmt.Sprintf("%v", v)
	}
}

// LogSampler reduces logging overhead for very hot paths.
type LogSampler struct {
	rate    float64
	counter int64
	mu      sync.Mutex
}

// NewLogSampler creates a new log sampler; rate is clamped to [0, 1].
func NewLogSampler(rate float64) *LogSampler {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	return &LogSampler{rate: rate}
}

func (ls *LogSampler) ShouldLog() bool {
	if ls.rate >= 1.0 {
		return true
	}
	if ls.rate <= 0.0 {
		return false
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	ls.counter++
	if float64(ls.counter)*ls.rate >= 1.0 {
		ls.counter = 0
		return true
	}
	return false
}

// NoOpLogger discards everything; useful for tests and for disabling logging.
type NoOpLogger struct{}

func NewNoOpLogger() *NoOpLogger { return &NoOpLogger{} }

func (n *NoOpLogger) Debug(ctx context.Context, msg string, fields ...Field)             {}
func (n *NoOpLogger) Info(ctx context.Context, msg string, fields ...Field)              {}
func (n *NoOpLogger) Warn(ctx context.Context, msg string, fields ...Field)              {}
func (n *NoOpLogger) Error(ctx context.Context, msg string, err error, fields ...Field)  {}
func (n *NoOpLogger) LogPool(ctx context.Context, event PoolEvent, fields ...Field)      {}
func (n *NoOpLogger) SetLevel(level LogLevel)                                            {}
func (n *NoOpLogger) GetLevel() LogLevel                                                 { return FATAL }
func (n *NoOpLogger) IsEnabled(level LogLevel) bool                                      { return false }
func (n *NoOpLogger) WithFields(fields ...Field) Logger                                  { return n }
