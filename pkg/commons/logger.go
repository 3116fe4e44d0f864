// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package commons

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the application-wide logging interface. All components take it by
// injection; call-scoped log lines always carry the call sid as a field.
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	Benchmark(name string, elapsed time.Duration)
	Sync() error
}

type applicationLogger struct {
	*zap.SugaredLogger
}

// Benchmark records a timing measurement for the named operation.
func (l *applicationLogger) Benchmark(name string, elapsed time.Duration) {
	l.Debugw("benchmark", "name", name, "elapsed_ms", elapsed.Milliseconds())
}

// NewApplicationLogger creates a console logger at debug level. Used by
// entrypoints before config is available, and by tests.
func NewApplicationLogger() (Logger, error) {
	return newLogger(zapcore.DebugLevel, ""), nil
}

// NewApplicationLoggerWithConfig creates a logger at the given level that also
// writes rotated log files under logDir (one receptionist.log, rotated by size).
func NewApplicationLoggerWithConfig(level string, logDir string) (Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	return newLogger(lvl, logDir), nil
}

func newLogger(lvl zapcore.Level, logDir string) Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderCfg),
			zapcore.AddSync(os.Stdout),
			lvl,
		),
	}

	if logDir != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   filepath.Join(logDir, "receptionist.log"),
			MaxSize:    100, // megabytes
			MaxBackups: 14,
			MaxAge:     30, // days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			zapcore.AddSync(fileWriter),
			lvl,
		))
	}

	zl := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return &applicationLogger{zl.Sugar()}
}
