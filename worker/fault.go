package worker

import (
	"fmt"
	"runtime/debug"

	"github.com/wippyai/wasm-offload/errors"
)

// Fault is an abnormal termination raised by the module, reduced to the
// text that can cross the context boundary.
type Fault struct {
	Name    string
	Message string
	Stack   string
}

// Error renders "name - message\nStack: stack", omitting absent parts.
func (f *Fault) Error() string {
	msg := f.Message
	if f.Name != "" {
		msg = f.Name + " - " + msg
	}
	if f.Stack != "" {
		msg += "\nStack: " + f.Stack
	}
	return msg
}

// Named is implemented by module errors that carry a fault name.
type Named interface {
	FaultName() string
}

// Stacked is implemented by module errors that carry a stack trace.
type Stacked interface {
	FaultStack() string
}

func faultFromError(err error) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}

	fault := &Fault{Message: errors.Message(err)}
	var named Named
	if errors.As(err, &named) {
		fault.Name = named.FaultName()
	}
	var stacked Stacked
	if errors.As(err, &stacked) {
		fault.Stack = stacked.FaultStack()
	}
	return fault
}

func faultFromPanic(v any, stack []byte) *Fault {
	fault := &Fault{Name: "panic", Stack: string(stack)}
	switch x := v.(type) {
	case error:
		fault.Message = x.Error()
	case string:
		fault.Message = x
	default:
		fault.Message = fmt.Sprint(x)
	}
	return fault
}

// capture runs fn and converts both returned errors and panics into a Fault.
func capture(fn func() error) (fault *Fault) {
	defer func() {
		if r := recover(); r != nil {
			fault = faultFromPanic(r, debug.Stack())
		}
	}()
	if err := fn(); err != nil {
		return faultFromError(err)
	}
	return nil
}
