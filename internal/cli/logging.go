package cli

import (
	"log/slog"
	"os"
)

// installLogger configures the default slog logger exactly as the
// teacher's run.go does: a text handler on stderr at the level implied by
// --verbose.
func installLogger(level slog.Level) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
