// Package logger provides the shared structured logger for st2110go,
// grounded the way the pack's runc-go logging package splits
// configuration from construction: a Config value describes the handler,
// NewLogger builds it.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Config describes how to build the shared logger.
type Config struct {
	Level  slog.Level
	Format string // "text" (default) or "json"
	Output io.Writer
	// LogFile, if set, is opened for append and tee'd alongside Output.
	LogFile string
}

// NewLogger builds a handler from cfg. Output defaults to os.Stdout; time
// values are shortened to HH:MM:SS, matching the CLI's historical log
// format.
func NewLogger(cfg Config) (*slog.Logger, error) {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, err
		}
		out = io.MultiWriter(out, f)
	}

	opts := &slog.HandlerOptions{
		Level: cfg.Level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String("time", a.Value.Time().Format("15:04:05"))
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler), nil
}

// Log is the shared logger. Init replaces it once at process start; until
// then it falls back to a stderr handler so packages used from tests never
// see a nil logger.
var Log = slog.New(slog.NewTextHandler(os.Stderr, nil))

// Init parses level and rebuilds the shared logger via NewLogger.
func Init(level string, logFile string) error {
	l, err := NewLogger(Config{Level: ParseLevel(level), LogFile: logFile})
	if err != nil {
		return err
	}
	Log = l
	slog.SetDefault(Log)
	return nil
}

// ParseLevel maps a CLI-facing level name to its slog.Level, defaulting to
// debug for an unrecognized name.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// Component scopes a logger to one subsystem so its lines carry a
// "component" attribute without every call site repeating it.
func Component(name string) *slog.Logger {
	return Log.With("component", name)
}
