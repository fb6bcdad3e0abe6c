// High level log wrapper, so it can output different log based on level.
//
// There are five levels in total: FATAL, ERROR, WARNING, INFO, DEBUG.
// The default log output level is INFO, you can change it by:
// - call log.SetLevel() or log.SetLevelByString()
// - set environment variable `LOG_LEVEL`
//
// Output goes to stderr unless SetRotateFile redirects it to a size-rotated file.

package log

import (
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogLevel = zapcore.Level

const (
	LOG_LEVEL_DEBUG = zapcore.DebugLevel
	LOG_LEVEL_INFO  = zapcore.InfoLevel
	LOG_LEVEL_WARN  = zapcore.WarnLevel
	LOG_LEVEL_ERROR = zapcore.ErrorLevel
	LOG_LEVEL_FATAL = zapcore.FatalLevel
)

var _log = New(os.Stderr)

// Logger is a leveled logger. The zero value is not usable, use New.
type Logger struct {
	mu    sync.Mutex
	level zap.AtomicLevel
	sugar *zap.SugaredLogger
}

func New(w io.Writer) *Logger {
	l := &Logger{level: zap.NewAtomicLevelAt(levelFromEnv())}
	l.setWriter(w)
	return l
}

func levelFromEnv() LogLevel {
	if l := os.Getenv("LOG_LEVEL"); len(l) != 0 {
		return StringToLogLevel(l)
	}
	return LOG_LEVEL_INFO
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func (l *Logger) setWriter(w io.Writer) {
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.AddSync(w), l.level)
	// Both the methods and the package functions are one frame above zap.
	sugar := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()

	l.mu.Lock()
	l.sugar = sugar
	l.mu.Unlock()
}

func (l *Logger) s() *zap.SugaredLogger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sugar
}

func (l *Logger) SetOutput(w io.Writer) {
	l.setWriter(w)
}

func (l *Logger) SetLevel(level LogLevel) {
	l.level.SetLevel(level)
}

func (l *Logger) SetLevelByString(level string) {
	l.level.SetLevel(StringToLogLevel(level))
}

func (l *Logger) Level() LogLevel {
	return l.level.Level()
}

func (l *Logger) Sync() error {
	return l.s().Sync()
}

func (l *Logger) Debug(v ...interface{}) {
	l.s().Debug(v...)
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	l.s().Debugf(format, v...)
}

func (l *Logger) Info(v ...interface{}) {
	l.s().Info(v...)
}

func (l *Logger) Infof(format string, v ...interface{}) {
	l.s().Infof(format, v...)
}

func (l *Logger) Warning(v ...interface{}) {
	l.s().Warn(v...)
}

func (l *Logger) Warningf(format string, v ...interface{}) {
	l.s().Warnf(format, v...)
}

func (l *Logger) Error(v ...interface{}) {
	l.s().Error(v...)
}

func (l *Logger) Errorf(format string, v ...interface{}) {
	l.s().Errorf(format, v...)
}

func (l *Logger) Fatal(v ...interface{}) {
	l.s().Fatal(v...)
}

func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.s().Fatalf(format, v...)
}

func (l *Logger) Panic(v ...interface{}) {
	l.s().Panic(v...)
}

func (l *Logger) Panicf(format string, v ...interface{}) {
	l.s().Panicf(format, v...)
}

// StringToLogLevel maps a textual level onto a LogLevel. Unknown names mean debug, i.e. log everything.
func StringToLogLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "fatal":
		return LOG_LEVEL_FATAL
	case "error":
		return LOG_LEVEL_ERROR
	case "warn", "warning":
		return LOG_LEVEL_WARN
	case "info":
		return LOG_LEVEL_INFO
	case "debug":
		return LOG_LEVEL_DEBUG
	}
	return LOG_LEVEL_DEBUG
}

// SetRotateFile sends all further output to filename, rotated by lumberjack once it reaches maxSizeMB.
func SetRotateFile(filename string, maxSizeMB, maxBackups, maxAgeDays int) {
	_log.SetOutput(&lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		LocalTime:  true,
	})
}

func GlobalLogger() *Logger {
	return _log
}

func SetOutput(w io.Writer) {
	_log.SetOutput(w)
}

func SetLevel(level LogLevel) {
	_log.SetLevel(level)
}

func GetLogLevel() LogLevel {
	return _log.Level()
}

func SetLevelByString(level string) {
	_log.SetLevelByString(level)
}

func Sync() error {
	return _log.Sync()
}

func Debug(v ...interface{}) {
	_log.s().Debug(v...)
}

func Debugf(format string, v ...interface{}) {
	_log.s().Debugf(format, v...)
}

func Info(v ...interface{}) {
	_log.s().Info(v...)
}

func Infof(format string, v ...interface{}) {
	_log.s().Infof(format, v...)
}

func Warn(v ...interface{}) {
	_log.s().Warn(v...)
}

func Warnf(format string, v ...interface{}) {
	_log.s().Warnf(format, v...)
}

func Warning(v ...interface{}) {
	_log.s().Warn(v...)
}

func Warningf(format string, v ...interface{}) {
	_log.s().Warnf(format, v...)
}

func Error(v ...interface{}) {
	_log.s().Error(v...)
}

func Errorf(format string, v ...interface{}) {
	_log.s().Errorf(format, v...)
}

func Fatal(v ...interface{}) {
	_log.s().Fatal(v...)
}

func Fatalf(format string, v ...interface{}) {
	_log.s().Fatalf(format, v...)
}

func Panic(v ...interface{}) {
	_log.s().Panic(v...)
}

func Panicf(format string, v ...interface{}) {
	_log.s().Panicf(format, v...)
}
