package audit

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger records audit events to an append-only log.
type Logger interface {
	Log(ctx context.Context, event *Event) error
	Sync() error
	Close() error
}

// Config represents audit logger configuration
type Config struct {
	// Path is the audit log file
	Path string

	// MaxSize is the maximum size in megabytes before rotation
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files
	MaxAge int

	// Compress determines if rotated files should be compressed
	Compress bool
}

// DefaultConfig returns default audit logger configuration
func DefaultConfig() *Config {
	return &Config{
		Path:       "logs/audit.log",
		MaxSize:    100, // megabytes
		MaxBackups: 10,
		MaxAge:     30, // days
		Compress:   true,
	}
}

// EncoderConfig is shared by every JSON log file Sentinel writes.
func EncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

type auditLogger struct {
	mu      sync.Mutex
	logger  *zap.Logger
	rotator *lumberjack.Logger
	closed  bool
}

// NewLogger creates an audit logger writing one JSON line per event.
func NewLogger(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Path == "" {
		return nil, fmt.Errorf("audit log path is required")
	}

	rotator := &lumberjack.Logger{
		Filename:   config.Path,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	// Audit logs are always INFO level, append-only
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(EncoderConfig()),
		zapcore.AddSync(rotator),
		zapcore.InfoLevel,
	)

	return &auditLogger{
		logger:  zap.New(core),
		rotator: rotator,
	}, nil
}

// Log writes the event immediately.
func (l *auditLogger) Log(_ context.Context, event *Event) error {
	if event == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("audit logger closed")
	}

	fields := []zap.Field{
		zap.String("correlation_id", event.CorrelationID),
		zap.String("event_type", string(event.EventType)),
		zap.String("result", string(event.Result)),
	}
	if event.User != "" {
		fields = append(fields, zap.String("user", event.User))
	}
	if event.SourceIP != "" {
		fields = append(fields, zap.String("source_ip", event.SourceIP))
	}
	if event.Resource != "" {
		fields = append(fields, zap.String("resource", event.Resource), zap.String("resource_type", event.ResourceType))
	}
	if event.Action != "" {
		fields = append(fields, zap.String("action", event.Action))
	}
	if len(event.Metadata) > 0 {
		fields = append(fields, zap.Any("metadata", event.Metadata))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	if event.DurationMs > 0 {
		fields = append(fields, zap.Int64("duration_ms", event.DurationMs))
	}

	msg := event.Description
	if msg == "" {
		msg = string(event.EventType)
	}
	l.logger.Info(msg, fields...)
	return nil
}

func (l *auditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.logger.Sync()
}

func (l *auditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	_ = l.logger.Sync()
	return l.rotator.Close()
}

// Nop returns a Logger that discards every event.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Log(context.Context, *Event) error { return nil }
func (nopLogger) Sync() error                       { return nil }
func (nopLogger) Close() error                      { return nil }
