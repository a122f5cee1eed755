package host

// Status is the caller-visible condition of the offloaded module.
type Status int

const (
	StatusInitializing Status = iota
	StatusReady
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// State is the controller's view of the module, derived only from the last
// observed event. Message is set for StatusError.
type State struct {
	Message string
	Status  Status
}

func (s State) String() string {
	if s.Status == StatusError {
		return "error(" + s.Message + ")"
	}
	return s.Status.String()
}

// RunPolicy decides whether TriggerRun is accepted before the module is ready.
type RunPolicy int

const (
	// RunPolicyPermissive accepts a run in any state; the context initializes
	// the module first when needed.
	RunPolicyPermissive RunPolicy = iota
	// RunPolicyStrict rejects a run unless the last observed state is ready.
	RunPolicyStrict
)

func (p RunPolicy) String() string {
	if p == RunPolicyStrict {
		return "strict"
	}
	return "permissive"
}

// ParseRunPolicy maps "strict" and "permissive" to a policy.
func ParseRunPolicy(s string) (RunPolicy, bool) {
	switch s {
	case "strict":
		return RunPolicyStrict, true
	case "permissive", "":
		return RunPolicyPermissive, true
	default:
		return RunPolicyPermissive, false
	}
}
