// Package logging configures the process-wide structured logger and the two
// custom levels used for run milestones.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// Custom levels between Info and Warn. VERSION carries release and tool
// version findings, SUCCESS marks completed milestones.
const (
	LevelVersion = slog.Level(1)
	LevelSuccess = slog.Level(2)
)

// Setup installs the default logger. Terminals get human-readable text,
// anything else gets JSON for log shipping.
func Setup(w io.Writer, level slog.Level) {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: renameCustomLevels,
	}

	var handler slog.Handler
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func renameCustomLevels(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	switch level {
	case LevelVersion:
		a.Value = slog.StringValue("VERSION")
	case LevelSuccess:
		a.Value = slog.StringValue("SUCCESS")
	}
	return a
}

// Version logs version findings at the VERSION level.
func Version(msg string, args ...any) {
	slog.Default().Log(context.Background(), LevelVersion, msg, args...)
}

// Success logs a completed milestone at the SUCCESS level.
func Success(msg string, args ...any) {
	slog.Default().Log(context.Background(), LevelSuccess, msg, args...)
}
