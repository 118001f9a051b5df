package logger

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger defines the interface for logging throughout the application.
// Different implementations can be used for different contexts (console, silent, etc.)
type Logger interface {
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
}

// levelFirstEncoder writes [LEVEL] before the timestamp so console output
// lines up when scanning by severity.
func levelFirstEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + level.CapitalString() + "]")
	enc.AppendString(time.Now().Format("2006-01-02T15:04:05"))
}

var consoleEncoder = zapcore.EncoderConfig{
	TimeKey:       "",
	LevelKey:      "level",
	MessageKey:    "msg",
	CallerKey:     "caller",
	StacktraceKey: "stacktrace",
	EncodeLevel:   levelFirstEncoder,
	EncodeCaller:  zapcore.ShortCallerEncoder,
}

// ZapLogger writes human-readable logs through zap's console encoder.
// Used for the HTTP server and the MCP server (which logs to stderr).
type ZapLogger struct {
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

// NewZapLogger creates a console logger at the given level ("debug", "info",
// "warn", "error"). Unknown levels fall back to info.
func NewZapLogger(level string) *ZapLogger {
	return newZapLogger(level, zapcore.AddSync(os.Stdout))
}

// NewStderrLogger is like NewZapLogger but writes to stderr, keeping stdout
// free for protocols that own it (MCP stdio).
func NewStderrLogger(level string) *ZapLogger {
	return newZapLogger(level, zapcore.AddSync(os.Stderr))
}

func newZapLogger(level string, sink zapcore.WriteSyncer) *ZapLogger {
	atomicLevel := zap.NewAtomicLevelAt(zap.InfoLevel)
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err == nil {
		atomicLevel.SetLevel(lvl)
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoder), sink, atomicLevel)
	opts := []zap.Option{
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zap.ErrorLevel),
	}
	return &ZapLogger{
		sugar: zap.New(core, opts...).Sugar(),
		level: atomicLevel,
	}
}

func (z *ZapLogger) Info(msg string, args ...interface{}) {
	z.sugar.Infof(msg, args...)
}

func (z *ZapLogger) Warn(msg string, args ...interface{}) {
	z.sugar.Warnf(msg, args...)
}

func (z *ZapLogger) Error(msg string, args ...interface{}) {
	z.sugar.Errorf(msg, args...)
}

func (z *ZapLogger) Debug(msg string, args ...interface{}) {
	z.sugar.Debugf(msg, args...)
}

// Sync flushes buffered log entries. Call before process exit.
func (z *ZapLogger) Sync() error {
	return z.sugar.Sync()
}

// SilentLogger discards all log messages.
// Used in tests and when running the TUI to keep log output off the display.
type SilentLogger struct{}

func NewSilentLogger() *SilentLogger {
	return &SilentLogger{}
}

func (s *SilentLogger) Info(msg string, args ...interface{})  {}
func (s *SilentLogger) Warn(msg string, args ...interface{})  {}
func (s *SilentLogger) Error(msg string, args ...interface{}) {}
func (s *SilentLogger) Debug(msg string, args ...interface{}) {}
