package status

import "runtime/debug"

// captureStack is a seam over runtime/debug.Stack so tests can substitute a
// deterministic stand-in for the "stacktrace service" collaborator (§6).
var captureStack = debug.Stack
