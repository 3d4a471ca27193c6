package schema

// WidgetID identifies a presentation surface session.
type WidgetID string

// WidgetPolicy controls how many presentation sessions may coexist.
type WidgetPolicy string

const (
	// PolicyMulti allows any number of concurrent widget sessions.
	PolicyMulti WidgetPolicy = "multi"
	// PolicySingle keeps at most one session; opening a new one closes the previous.
	PolicySingle WidgetPolicy = "single"
)

// ParseWidgetPolicy validates a policy name.
func ParseWidgetPolicy(value string) (WidgetPolicy, error) {
	switch WidgetPolicy(value) {
	case PolicyMulti, PolicySingle:
		return WidgetPolicy(value), nil
	case "":
		return PolicyMulti, nil
	default:
		return "", ErrInvalidPolicy
	}
}

// ProcessPhase is the lifecycle phase of the worker process.
type ProcessPhase string

const (
	// PhaseNotStarted means no process has been spawned yet.
	PhaseNotStarted ProcessPhase = "not_started"
	// PhaseStarting means the spawn is in progress.
	PhaseStarting ProcessPhase = "starting"
	// PhaseRunning means the worker is alive and accepting commands.
	PhaseRunning ProcessPhase = "running"
	// PhaseExited means the worker terminated.
	PhaseExited ProcessPhase = "exited"
	// PhaseFailed means the worker could not be spawned.
	PhaseFailed ProcessPhase = "failed"
)

// ProcessState describes the worker process as seen by the supervisor.
type ProcessState struct {
	Phase    ProcessPhase `json:"phase"`
	PID      int          `json:"pid,omitempty"`
	ExitCode int          `json:"exit_code,omitempty"`
	Signal   string       `json:"signal,omitempty"`
	Cause    string       `json:"cause,omitempty"`
}

// Live reports whether a process is (or is about to be) running.
func (s ProcessState) Live() bool {
	return s.Phase == PhaseStarting || s.Phase == PhaseRunning
}
