// Package logging is UCP's process-wide logger: a small slog wrapper that
// every subsystem calls through instead of fmt.Println or an ad-hoc
// log.Logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/go-logr/logr"
)

// EnvReader abstracts environment lookups so Initialize's behavior is
// testable without mutating the process environment.
type EnvReader interface {
	Getenv(key string) string
}

// OSReader reads from the real process environment.
type OSReader struct{}

// Getenv implements EnvReader.
func (OSReader) Getenv(key string) string {
	return os.Getenv(key)
}

var singleton atomic.Pointer[slog.Logger]

func init() {
	singleton.Store(newLogger(os.Stderr, slog.LevelInfo, true))
}

func newLogger(w io.Writer, level slog.Level, unstructured bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if unstructured {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Initialize sets up the singleton logger from the real process
// environment: UCP_DEBUG toggles debug-level logging, UNSTRUCTURED_LOGS
// toggles text vs JSON output (text by default).
func Initialize() {
	InitializeWithEnv(OSReader{})
}

// InitializeWithEnv is Initialize with an injectable environment reader,
// for tests.
func InitializeWithEnv(env EnvReader) {
	level := slog.LevelInfo
	if env.Getenv("UCP_DEBUG") == "true" {
		level = slog.LevelDebug
	}
	singleton.Store(newLogger(os.Stderr, level, unstructuredLogsWithEnv(env)))
}

func unstructuredLogsWithEnv(env EnvReader) bool {
	v := env.Getenv("UNSTRUCTURED_LOGS")
	switch v {
	case "":
		return true
	case "true":
		return true
	case "false":
		return false
	default:
		return true
	}
}

// Get returns the current singleton logger.
func Get() *slog.Logger {
	return singleton.Load()
}

// NewLogr returns a logr.Logger adapter over the current singleton, for
// components (health checker, discovery manager) that expect logr.
func NewLogr() logr.Logger {
	return logr.FromSlogHandler(Get().Handler())
}

func Debug(msg string)                          { Get().Debug(msg) }
func Debugf(format string, args ...any)          { Get().Debug(fmt.Sprintf(format, args...)) }
func Debugw(msg string, kv ...any)               { Get().Debug(msg, kv...) }
func Info(msg string)                            { Get().Info(msg) }
func Infof(format string, args ...any)            { Get().Info(fmt.Sprintf(format, args...)) }
func Infow(msg string, kv ...any)                 { Get().Info(msg, kv...) }
func Warn(msg string)                             { Get().Warn(msg) }
func Warnf(format string, args ...any)             { Get().Warn(fmt.Sprintf(format, args...)) }
func Warnw(msg string, kv ...any)                  { Get().Warn(msg, kv...) }
func Error(msg string)                            { Get().Error(msg) }
func Errorf(format string, args ...any)            { Get().Error(fmt.Sprintf(format, args...)) }
func Errorw(msg string, kv ...any)                 { Get().Error(msg, kv...) }

// DPanic logs at error level then panics; intended for conditions that
// should never occur outside development.
func DPanic(msg string)                 { Get().Error(msg); panic(msg) }
func DPanicf(format string, args ...any) { m := fmt.Sprintf(format, args...); Get().Error(m); panic(m) }
func DPanicw(msg string, kv ...any)      { Get().Error(msg, kv...); panic(msg) }

// Panic logs at error level then panics unconditionally.
func Panic(msg string)                 { Get().Error(msg); panic(msg) }
func Panicf(format string, args ...any) { m := fmt.Sprintf(format, args...); Get().Error(m); panic(m) }
func Panicw(msg string, kv ...any)      { Get().Error(msg, kv...); panic(msg) }
