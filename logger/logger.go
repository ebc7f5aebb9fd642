// Package logger provides the shared zap logger for FileHaven.
//
// The CLI initializes the logger once at startup; long-running components
// (worker pool, scheduler) receive a *zap.SugaredLogger in their
// constructors so tests can pass zap.NewNop().Sugar() instead.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Logger is the global logger instance.
	Logger *zap.SugaredLogger
	// JSONOutput tracks whether structured JSON output is enabled.
	JSONOutput bool
)

func init() {
	// Safe no-op logger at package load time so early callers never hit
	// a nil pointer before Initialize() runs.
	Logger = zap.NewNop().Sugar()
}

// Verbosity level constants for CLI flag counts (-v, -vv, ...).
const (
	VerbosityUser  = 0 // no flags: warnings and errors only
	VerbosityInfo  = 1 // -v: + progress and lifecycle messages
	VerbosityDebug = 2 // -vv: + queries, timing, scheduler ticks
)

// VerbosityToLevel maps verbosity flag counts to zap log levels.
func VerbosityToLevel(verbosity int) zapcore.Level {
	switch verbosity {
	case VerbosityUser:
		return zapcore.WarnLevel
	case VerbosityInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// Initialize sets up the global logger.
//
// jsonOutput selects machine-readable production output; otherwise a
// human-readable console encoder is used. verbosity follows the CLI -v
// flag count.
func Initialize(jsonOutput bool, verbosity int) error {
	JSONOutput = jsonOutput
	level := VerbosityToLevel(verbosity)

	var zapLogger *zap.Logger
	if jsonOutput {
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(level)
		built, err := config.Build()
		if err != nil {
			return err
		}
		zapLogger = built
	} else {
		encoderCfg := zap.NewDevelopmentEncoderConfig()
		encoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapLogger = zap.New(
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(encoderCfg),
				zapcore.AddSync(os.Stdout),
				level,
			),
		)
	}

	Logger = zapLogger.Sugar()
	return nil
}

// Named returns a child of the global logger with the given name.
func Named(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync() {
	_ = Logger.Sync()
}
