// internal/recovery/recovery.go
package recovery

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/charmbracelet/log"
)

// ErrTaskPanic wraps a panic recovered inside a task.
var ErrTaskPanic = errors.New("task panicked")

var fatal = log.NewWithOptions(os.Stderr, log.Options{Prefix: "recovery"})

// HandlePanic should be deferred at the top of main(). It logs the panic
// with its stack and exits with code 1.
func HandlePanic() {
	if r := recover(); r != nil {
		report(r)
		os.Exit(1)
	}
}

// HandlePanicFunc logs the panic, runs cleanup and exits with code 1.
func HandlePanicFunc(cleanup func()) {
	if r := recover(); r != nil {
		report(r)
		if cleanup != nil {
			cleanup()
		}
		os.Exit(1)
	}
}

// Task wraps a task body so a panic surfaces as an ErrTaskPanic error from
// the task instead of killing the process. Use it with errgroup so the
// other tasks are cancelled.
func Task(name string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				fatal.Error("task panicked", "task", name, "panic", r, "stack", string(debug.Stack()))
				err = fmt.Errorf("%s: %w: %v", name, ErrTaskPanic, r)
			}
		}()
		return fn()
	}
}

func report(r any) {
	fatal.Error(fmt.Sprintf("FATAL: %v", r))
	_, _ = fmt.Fprintf(os.Stderr, "\nStack trace:\n%s\n", debug.Stack())
}
