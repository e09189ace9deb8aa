// Package safe wraps long-running goroutines with panic recovery, so a
// single bad message or file can't take down a whole coordinator or
// worker process. Adapted from the teacher's pkg/utils.SafeRun /
// RecoverPanic, stripped of its interactive BSOD terminal rendering (no
// such surface exists in a headless process) and rewritten to log via
// log/slog and hand the recovered value back to the caller instead of
// calling os.Exit.
package safe

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Run calls fn and recovers any panic, logging it via log instead of
// crashing the process. It reports whether fn panicked and, if so, the
// recovered value formatted as an error so callers can fold it into
// their own error-handling path (e.g. converting it into a
// PermanentDownstream failure for the in-flight message).
func Run(log *slog.Logger, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			log.Error("recovered panic", "panic", r, "stack", stack)
			err = fmt.Errorf("recovered panic: %v", r)
		}
	}()
	return fn()
}

// RunGoroutine is Run's fire-and-forget form for goroutines that don't
// return an error to anyone (the caller decides what "stay down" means
// by wrapping fn itself); it never lets a panic escape the goroutine.
func RunGoroutine(log *slog.Logger, fn func()) {
	_ = Run(log, func() error {
		fn()
		return nil
	})
}
