// Package logger builds Sentinel's zap loggers: the application logger (stderr plus an
// error log holding warn-and-above) and the security event log.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/shatzii/sentinel/internal/audit"
)

type contextKey string

const RequestIDKey contextKey = "request_id"

// Config controls log files and rotation.
type Config struct {
	Level        string
	Format       string // json or console, for stderr only
	SecurityPath string
	ErrorPath    string
	MaxSize      int
	MaxBackups   int
	MaxAge       int
	Compress     bool
	Stderr       io.Writer
}

// Loggers bundles the loggers the service writes to.
type Loggers struct {
	App      *zap.Logger
	Security *zap.Logger
	Level    zap.AtomicLevel

	closers []io.Closer
}

// New opens the rotating log files and returns the loggers.
func New(cfg Config) (*Loggers, error) {
	lvl, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}
	atomic := zap.NewAtomicLevelAt(lvl)

	var stderr io.Writer = os.Stderr
	if cfg.Stderr != nil {
		stderr = cfg.Stderr
	}

	encCfg := audit.EncoderConfig()
	var consoleEnc zapcore.Encoder
	if cfg.Format == "console" {
		consoleCfg := encCfg
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEnc = zapcore.NewConsoleEncoder(consoleCfg)
	} else {
		consoleEnc = zapcore.NewJSONEncoder(encCfg)
	}

	l := &Loggers{Level: atomic}
	cores := []zapcore.Core{zapcore.NewCore(consoleEnc, zapcore.AddSync(stderr), atomic)}

	if cfg.ErrorPath != "" {
		errRotator := l.rotator(cfg, cfg.ErrorPath)
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encCfg),
			zapcore.AddSync(errRotator),
			zapcore.WarnLevel,
		))
	}
	l.App = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	if cfg.SecurityPath != "" {
		secRotator := l.rotator(cfg, cfg.SecurityPath)
		l.Security = zap.New(zapcore.NewCore(
			zapcore.NewJSONEncoder(encCfg),
			zapcore.AddSync(secRotator),
			zapcore.InfoLevel,
		))
	} else {
		l.Security = zap.NewNop()
	}
	return l, nil
}

func (l *Loggers) rotator(cfg Config, path string) *lumberjack.Logger {
	r := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	l.closers = append(l.closers, r)
	return r
}

// SetLevel changes the application log level at runtime.
func (l *Loggers) SetLevel(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}
	l.Level.SetLevel(lvl)
	return nil
}

// Close flushes and closes every log file.
func (l *Loggers) Close() error {
	_ = l.App.Sync()
	_ = l.Security.Sync()
	var firstErr error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Nop returns loggers that discard everything.
func Nop() *Loggers {
	return &Loggers{App: zap.NewNop(), Security: zap.NewNop(), Level: zap.NewAtomicLevel()}
}

// FromContext returns the request ID from context, or empty string.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRequestID stores the request ID in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}
