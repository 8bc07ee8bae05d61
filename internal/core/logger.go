package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel представляет уровень логирования
type LogLevel int

const (
	LogLevelSilent LogLevel = iota
	LogLevelError
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// LogOutput определяет куда выводить логи
type LogOutput int

const (
	LogOutputNone LogOutput = iota
	LogOutputConsole
	LogOutputFile
	LogOutputBoth
)

// ParseLogLevel переводит строку из конфигурации в LogLevel
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "silent":
		return LogLevelSilent
	case "error":
		return LogLevelError
	case "warn", "warning":
		return LogLevelWarn
	case "debug":
		return LogLevelDebug
	default:
		return LogLevelInfo
	}
}

// ParseLogOutput переводит строку из конфигурации в LogOutput
func ParseLogOutput(s string) LogOutput {
	switch strings.ToLower(s) {
	case "none":
		return LogOutputNone
	case "file":
		return LogOutputFile
	case "both":
		return LogOutputBoth
	default:
		return LogOutputConsole
	}
}

// Logger управляет логированием поверх zap
type Logger struct {
	mu     sync.RWMutex
	level  zap.AtomicLevel
	silent bool
	sugar  *zap.SugaredLogger
	file   *os.File
}

// NewLogger создает новый логгер
func NewLogger(level LogLevel, output LogOutput, logDir string) (*Logger, error) {
	l := &Logger{level: zap.NewAtomicLevel()}
	l.SetLevel(level)

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05")
	encoder := zapcore.NewConsoleEncoder(encCfg)

	var cores []zapcore.Core
	if output == LogOutputConsole || output == LogOutputBoth {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), l.level))
	}

	// Если нужен вывод в файл, создаем его
	if output == LogOutputFile || output == LogOutputBoth {
		if logDir == "" {
			logDir = "logs"
		}
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("не удалось создать директорию логов: %w", err)
		}

		logFile := filepath.Join(logDir, "secretchat.log")
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("не удалось открыть файл логов: %w", err)
		}
		l.file = file
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(file), l.level))
	}

	l.sugar = zap.New(zapcore.NewTee(cores...)).Sugar()
	return l, nil
}

// newLoggerWithCore используется в тестах для подмены вывода
func newLoggerWithCore(level LogLevel, core zapcore.Core) *Logger {
	l := &Logger{level: zap.NewAtomicLevel()}
	l.SetLevel(level)
	l.sugar = zap.New(core).Sugar()
	return l
}

// SetLevel устанавливает уровень логирования
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.silent = level == LogLevelSilent
	switch level {
	case LogLevelError:
		l.level.SetLevel(zapcore.ErrorLevel)
	case LogLevelWarn:
		l.level.SetLevel(zapcore.WarnLevel)
	case LogLevelDebug:
		l.level.SetLevel(zapcore.DebugLevel)
	default:
		l.level.SetLevel(zapcore.InfoLevel)
	}
}

func (l *Logger) enabled(lvl zapcore.Level) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return !l.silent && l.level.Enabled(lvl)
}

// Debug логирует отладочное сообщение
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.enabled(zapcore.DebugLevel) {
		l.sugar.Debugf(format, args...)
	}
}

// Info логирует информационное сообщение
func (l *Logger) Info(format string, args ...interface{}) {
	if l.enabled(zapcore.InfoLevel) {
		l.sugar.Infof(format, args...)
	}
}

// Warn логирует предупреждение
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.enabled(zapcore.WarnLevel) {
		l.sugar.Warnf(format, args...)
	}
}

// Error логирует ошибку
func (l *Logger) Error(format string, args ...interface{}) {
	if l.enabled(zapcore.ErrorLevel) {
		l.sugar.Errorf(format, args...)
	}
}

// Close сбрасывает буферы и закрывает файл логов
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_ = l.sugar.Sync()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Глобальный логгер по умолчанию
var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// InitGlobalLogger инициализирует глобальный логгер
func InitGlobalLogger(level LogLevel, output LogOutput, logDir string) error {
	l, err := NewLogger(level, output, logDir)
	if err != nil {
		return err
	}
	SetGlobalLogger(l)
	return nil
}

// SetGlobalLogger заменяет глобальный логгер
func SetGlobalLogger(l *Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// GetGlobalLogger возвращает глобальный логгер
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	// Создаем логгер по умолчанию если не инициализирован
	l, _ = NewLogger(LogLevelInfo, LogOutputConsole, "")
	SetGlobalLogger(l)
	return l
}

func current() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// Глобальные функции для удобства
func Debug(format string, args ...interface{}) {
	if l := current(); l != nil {
		l.Debug(format, args...)
	}
}

func Info(format string, args ...interface{}) {
	if l := current(); l != nil {
		l.Info(format, args...)
	}
}

func Warn(format string, args ...interface{}) {
	if l := current(); l != nil {
		l.Warn(format, args...)
	}
}

func Error(format string, args ...interface{}) {
	if l := current(); l != nil {
		l.Error(format, args...)
	}
}
