// Package logger is the engine's structured logging facade over zerolog.
//
// Services receive a *Logger scoped with Component and narrow it further per
// user or per scheduled job, so every line about one trainee or one cron run
// carries the same keys.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Field keys shared by every component.
const (
	ComponentKey = "component"
	UserKey      = "user_id"
	JobKey       = "job"
)

// Logger is a zerolog.Logger plus the scoping helpers the engine uses.
type Logger struct {
	zl zerolog.Logger
}

// New builds a logger writing to output ("stdout", "stderr", "discard" or a file path)
// in format "json" or "console". Unknown levels fall back to info.
func New(level, format, output string) (*Logger, error) {
	zerolog.SetGlobalLevel(parseLevel(level))

	w, err := openOutput(output)
	if err != nil {
		return nil, err
	}
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}

	return &Logger{zl: zerolog.New(w).With().Timestamp().Caller().Logger()}, nil
}

// Wrap adopts an existing zerolog.Logger, e.g. one writing to a test buffer.
func Wrap(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl}
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func openOutput(output string) (io.Writer, error) {
	switch output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "discard":
		return io.Discard, nil
	}

	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("failed to open log output %q: %w", output, err)
	}
	return f, nil
}

func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zl.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }

// Fatal exits the process once the event is sent.
func (l *Logger) Fatal() *zerolog.Event { return l.zl.Fatal() }

// Component tags every line with the owning service, e.g. "session" or "scheduler".
func (l *Logger) Component(name string) *Logger {
	return &Logger{zl: l.zl.With().Str(ComponentKey, name).Logger()}
}

// ForUser scopes lines to one trainee.
func (l *Logger) ForUser(userID uint) *Logger {
	return &Logger{zl: l.zl.With().Uint(UserKey, userID).Logger()}
}

// ForJob scopes lines to one scheduled job run.
func (l *Logger) ForJob(name string) *Logger {
	return &Logger{zl: l.zl.With().Str(JobKey, name).Logger()}
}

// GetLogger exposes the zerolog.Logger for adapters such as the gorm logger.
func (l *Logger) GetLogger() zerolog.Logger {
	return l.zl
}

var global = Nop()

// Init replaces the process-wide logger returned by Get.
func Init(level, format, output string) error {
	l, err := New(level, format, output)
	if err != nil {
		return err
	}
	global = l
	return nil
}

// Get returns the process-wide logger. Before Init it discards output.
func Get() *Logger {
	return global
}
