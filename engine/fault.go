package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero/sys"
)

// Trap is a guest call that did not return normally.
type Trap struct {
	Err    error
	Export string
	Name   string
}

const stackMarker = "\nwasm stack trace:\n"

// Error omits the guest stack trace; see FaultStack.
func (t *Trap) Error() string {
	msg, _, _ := strings.Cut(t.Err.Error(), stackMarker)
	return fmt.Sprintf("%s: %s", t.Export, msg)
}

// FaultStack returns the guest stack trace reported by the runtime.
func (t *Trap) FaultStack() string {
	_, stack, _ := strings.Cut(t.Err.Error(), stackMarker)
	return stack
}

func (t *Trap) Unwrap() error { return t.Err }

// FaultName names the trap category in fault reports.
func (t *Trap) FaultName() string { return t.Name }

// StatusError is a run export that returned a nonzero status.
type StatusError struct {
	Export string
	Code   int32
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d, proof not verified", e.Export, e.Code)
}

// FaultName names the fault category in fault reports.
func (e *StatusError) FaultName() string { return "VerificationError" }

// newTrap classifies an error returned by a guest call.
func newTrap(export string, err error) *Trap {
	t := &Trap{Export: export, Err: err, Name: "RuntimeError"}
	var exit *sys.ExitError
	if errors.As(err, &exit) {
		switch exit.ExitCode() {
		case sys.ExitCodeContextCanceled:
			t.Name = "Interrupted"
			t.Err = context.Canceled
		case sys.ExitCodeDeadlineExceeded:
			t.Name = "Timeout"
			t.Err = context.DeadlineExceeded
		default:
			t.Name = "Exit"
		}
	}
	return t
}
