// Package logger is the process-wide structured log. Records are dropped
// until Init or InitWriter runs, so library code may log unconditionally.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kobzarvs/qex/internal/config"
)

var (
	L       *zap.Logger
	S       *zap.SugaredLogger
	logFile *os.File
)

// Init opens the log file named by Path, dropping the previous run's log,
// and points the global logger at it.
func Init(debug bool) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	logFile = f
	InitWriter(f, debug)
	Info("logger initialized", "path", path, "debug", debug, "pid", os.Getpid())
	return nil
}

// InitWriter points the global logger at w.
func InitWriter(w io.Writer, debug bool) {
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.StringDurationEncoder

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), level)
	// Callers reach the sugared logger through a helper and write.
	L = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2), zap.AddStacktrace(zapcore.ErrorLevel))
	S = L.Sugar()
}

// Close flushes the log and closes the file opened by Init.
func Close() {
	if L != nil {
		_ = L.Sync()
	}
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// Path returns $QEX_LOG_FILE, or qex.log in the config directory.
func Path() (string, error) {
	if v := os.Getenv("QEX_LOG_FILE"); v != "" {
		return v, nil
	}
	dir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "qex.log"), nil
}

func write(lvl zapcore.Level, msg string, keysAndValues []interface{}) {
	if S != nil {
		S.Logw(lvl, msg, keysAndValues...)
	}
}

func Debug(msg string, keysAndValues ...interface{}) {
	write(zapcore.DebugLevel, msg, keysAndValues)
}

func Info(msg string, keysAndValues ...interface{}) {
	write(zapcore.InfoLevel, msg, keysAndValues)
}

func Warn(msg string, keysAndValues ...interface{}) {
	write(zapcore.WarnLevel, msg, keysAndValues)
}

func Error(msg string, keysAndValues ...interface{}) {
	write(zapcore.ErrorLevel, msg, keysAndValues)
}
