package lightfield

import (
	"log/slog"

	"github.com/gogpu/lightfield/compute"
)

// SetLogger configures the logger for lightfield and all its sub-packages.
// By default, lightfield produces no log output. Call SetLogger to enable
// logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by lightfield:
//   - [slog.LevelDebug]: per-dispatch diagnostics (passes, kernel indices, scales)
//   - [slog.LevelInfo]: lifecycle events (device opened, transport built)
//   - [slog.LevelWarn]: non-fatal issues (backend fallback, degenerate angles)
//
// Example:
//
//	// Enable debug-level logging for full diagnostics:
//	lightfield.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	compute.SetLogger(l)
}

// Logger returns the current logger used by lightfield.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return compute.Logger()
}
