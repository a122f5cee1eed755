package protocol

// Kind names a message on the wire.
type Kind string

const (
	KindInit        Kind = "INIT"
	KindRun         Kind = "RUN"
	KindInitialized Kind = "INITIALIZED"
	KindInitFailed  Kind = "INIT_FAILED"
	KindResult      Kind = "RESULT"
	KindRunFailed   Kind = "RUN_FAILED"
)

// Command is a host to context message.
type Command interface {
	Kind() Kind
	command()
}

// Event is a context to host message.
type Event interface {
	Kind() Kind
	event()
}

// Init asks the context to initialize its module.
type Init struct{}

// Run asks the context to run its module. ID correlates the terminal event.
type Run struct {
	ID string
}

// Initialized reports a successful initialization.
type Initialized struct{}

// InitFailed reports a failed initialization.
type InitFailed struct {
	Reason string
}

// Result carries the module's output for a Run.
type Result struct {
	ID      string
	Payload string
}

// RunFailed carries the fault text for a Run.
type RunFailed struct {
	ID     string
	Reason string
}

func (Init) Kind() Kind        { return KindInit }
func (Run) Kind() Kind         { return KindRun }
func (Initialized) Kind() Kind { return KindInitialized }
func (InitFailed) Kind() Kind  { return KindInitFailed }
func (Result) Kind() Kind      { return KindResult }
func (RunFailed) Kind() Kind   { return KindRunFailed }

func (Init) command() {}
func (Run) command()  {}

func (Initialized) event() {}
func (InitFailed) event()  {}
func (Result) event()      {}
func (RunFailed) event()   {}

// IsTerminal reports whether e settles a Run.
func IsTerminal(e Event) bool {
	switch e.(type) {
	case Result, RunFailed:
		return true
	default:
		return false
	}
}

// RequestID returns the correlation id carried by e, if any.
func RequestID(e Event) string {
	switch v := e.(type) {
	case Result:
		return v.ID
	case RunFailed:
		return v.ID
	default:
		return ""
	}
}
