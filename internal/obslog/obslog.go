// Package obslog wires the structured-logging facade used throughout
// taskrt. Every package that logs (task panic reporting, runtime's
// automaxprocs messages) accepts a *logiface.Logger[*stumpy.Event] — task
// via the WithLogger option, runtime via Options.Logger — and falls back to
// a no-op logger, matching the
// teacher's pattern of optional, injected collaborators rather than a
// global logger.
package obslog

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Event is the concrete event type used by every logger in this module.
type Event = stumpy.Event

// Logger is the type every taskrt component logs through.
type Logger = logiface.Logger[*Event]

// Noop returns a logger that discards everything, the default when no
// logger is supplied to a constructor.
func Noop() *Logger {
	return New(io.Discard)
}

// New builds a logger writing newline-delimited JSON to w via the in-pack
// stumpy encoder, at logiface.LevelInformational.
func New(w io.Writer) *Logger {
	return logiface.New[*Event](
		logiface.WithLevel[*Event](logiface.LevelInformational),
		stumpy.WithStumpy(stumpy.WithWriter(w)),
	)
}

// Default returns a logger writing to os.Stderr, used by package-level
// examples and diagnostics that have no injected logger available.
func Default() *Logger {
	return New(os.Stderr)
}
