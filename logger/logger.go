// Package logger defines the leveled logging sink used across henka
// and a zap-backed default implementation.
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger receives formatted messages at four levels.
//
// *zap.SugaredLogger and *logrus.Logger satisfy it as they are.
type Logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

// New builds a console logger writing debug and info messages to stdout
// and warnings and errors to stderr. Messages below level are discarded.
func New(level zapcore.Level) Logger {
	encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())

	low := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= level && l < zapcore.WarnLevel
	})
	high := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= level && l >= zapcore.WarnLevel
	})

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), low),
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), high),
	)

	return zap.New(core).Sugar()
}

// NewConsole builds a console logger writing every message at or above level
// to w.
func NewConsole(level zapcore.Level, w io.Writer) Logger {
	encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(w)), level)

	return zap.New(core).Sugar()
}

// Default is New at debug level.
func Default() Logger {
	return New(zapcore.DebugLevel)
}

// FromZap adapts an existing zap logger.
func FromZap(l *zap.Logger) Logger {
	return l.Sugar()
}

// Nop discards everything.
func Nop() Logger {
	return zap.NewNop().Sugar()
}
