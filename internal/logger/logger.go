package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is a logging threshold. LevelNone silences a logger.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelNone
)

var levels = []struct {
	name  string
	alias string
	zap   zapcore.Level
}{
	LevelDebug: {"DEBUG", "", zapcore.DebugLevel},
	LevelInfo:  {"INFO", "", zapcore.InfoLevel},
	LevelWarn:  {"WARN", "WARNING", zapcore.WarnLevel},
	LevelError: {"ERROR", "", zapcore.ErrorLevel},
	// Above every level that is ever emitted.
	LevelNone: {"NONE", "", zapcore.FatalLevel},
}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levels) {
		return "UNKNOWN"
	}
	return levels[l].name
}

// ParseLevel maps a case-insensitive level name to its Level; unknown names
// fall back to LevelInfo.
func ParseLevel(s string) Level {
	s = strings.ToUpper(strings.TrimSpace(s))
	for l, def := range levels {
		if s == def.name || (def.alias != "" && s == def.alias) {
			return Level(l)
		}
	}
	return LevelInfo
}

func (l Level) zapLevel() zapcore.Level {
	if l < 0 || int(l) >= len(levels) {
		return zapcore.FatalLevel
	}
	return levels[l].zap
}

// sink is shared between a logger and all loggers derived from it with WithPrefix.
type sink struct {
	mu     sync.RWMutex
	level  Level
	atomic zap.AtomicLevel
	base   *zap.Logger
	file   *os.File
}

// Logger provides leveled logging capabilities
type Logger struct {
	sink     *sink
	sugar    *zap.SugaredLogger
	prefix   string
	disabled bool
}

var (
	globalLogger *Logger
	globalMu     sync.Mutex
	once         sync.Once
)

// Init initializes the global logger
func Init(level Level, logPath string) error {
	var err error
	once.Do(func() {
		var l *Logger
		l, err = New(level, logPath, "")
		if err == nil {
			globalMu.Lock()
			globalLogger = l
			globalMu.Unlock()
		}
	})
	return err
}

// New creates a new Logger instance. An empty logPath logs to stderr.
func New(level Level, logPath string, prefix string) (*Logger, error) {
	if level == LevelNone {
		return newDisabled(prefix), nil
	}

	var (
		file   *os.File
		writer zapcore.WriteSyncer
	)
	if logPath == "" {
		writer = zapcore.Lock(os.Stderr)
	} else {
		logDir := filepath.Dir(logPath)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		writer = zapcore.AddSync(f)
	}

	atomic := zap.NewAtomicLevelAt(level.zapLevel())
	encoderCfg := zapcore.EncoderConfig{
		TimeKey:          "ts",
		LevelKey:         "level",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000"),
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), writer, atomic)
	base := zap.New(core)

	s := &sink{level: level, atomic: atomic, base: base, file: file}
	return &Logger{sink: s, sugar: base.Sugar(), prefix: prefix}, nil
}

func newDisabled(prefix string) *Logger {
	nop := zap.NewNop()
	return &Logger{
		sink:     &sink{level: LevelNone, atomic: zap.NewAtomicLevelAt(zapcore.FatalLevel), base: nop},
		sugar:    nop.Sugar(),
		prefix:   prefix,
		disabled: true,
	}
}

// Global returns the global logger instance
func Global() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		// Not initialized: discard everything
		globalLogger = newDisabled("")
	}
	return globalLogger
}

// WithPrefix creates a new logger with an additional prefix
func (l *Logger) WithPrefix(prefix string) *Logger {
	newPrefix := prefix
	if l.prefix != "" {
		newPrefix = l.prefix + ":" + prefix
	}

	return &Logger{
		sink:     l.sink,
		sugar:    l.sugar,
		prefix:   newPrefix,
		disabled: l.disabled,
	}
}

// SetLevel sets the logging level. It applies to every logger sharing this one's output.
func (l *Logger) SetLevel(level Level) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.level = level
	l.sink.atomic.SetLevel(level.zapLevel())
}

// GetLevel returns the current logging level
func (l *Logger) GetLevel() Level {
	l.sink.mu.RLock()
	defer l.sink.mu.RUnlock()
	return l.sink.level
}

// log is the internal logging function
func (l *Logger) log(level Level, format string, args ...interface{}) {
	if l.disabled || level < l.GetLevel() {
		return
	}

	msg := fmt.Sprintf(format, args...)
	if l.prefix != "" {
		msg = "[" + l.prefix + "] " + msg
	}

	switch level {
	case LevelDebug:
		l.sugar.Debug(msg)
	case LevelInfo:
		l.sugar.Info(msg)
	case LevelWarn:
		l.sugar.Warn(msg)
	default:
		l.sugar.Error(msg)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(LevelError, format, args...)
}

// Close flushes the logger and closes its underlying file
func (l *Logger) Close() error {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	_ = l.sink.base.Sync()
	if l.sink.file != nil {
		err := l.sink.file.Close()
		l.sink.file = nil
		return err
	}
	return nil
}

// Global logging functions for convenience

// Debug logs a debug message using the global logger
func Debug(format string, args ...interface{}) {
	Global().Debug(format, args...)
}

// Info logs an informational message using the global logger
func Info(format string, args ...interface{}) {
	Global().Info(format, args...)
}

// Warn logs a warning message using the global logger
func Warn(format string, args ...interface{}) {
	Global().Warn(format, args...)
}

// Error logs an error message using the global logger
func Error(format string, args ...interface{}) {
	Global().Error(format, args...)
}
