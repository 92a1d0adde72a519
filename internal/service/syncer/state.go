package syncer

// State is a step of the sync state machine.
type State int

// Sync states in the order a successful cycle visits them.
const (
	StateIdle State = iota
	StateCheckingCache
	StateCheckingUpstream
	StateUpToDate
	StateFetching
	StateVerifying
	StateDeploying
	StateDone
	StateDiscarding
	StateFailed
)

//nolint:gochecknoglobals // Lookup table for String.
var stateNames = map[State]string{
	StateIdle:             "IDLE",
	StateCheckingCache:    "CHECKING_CACHE",
	StateCheckingUpstream: "CHECKING_UPSTREAM",
	StateUpToDate:         "UP_TO_DATE",
	StateFetching:         "FETCHING",
	StateVerifying:        "VERIFYING",
	StateDeploying:        "DEPLOYING",
	StateDone:             "DONE",
	StateDiscarding:       "DISCARDING",
	StateFailed:           "FAILED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}

	return "UNKNOWN"
}

// Terminal reports whether the machine stops in this state.
func (s State) Terminal() bool {
	return s == StateUpToDate || s == StateDone || s == StateFailed
}

// Succeeded reports whether the state is a successful end of a cycle.
func (s State) Succeeded() bool {
	return s == StateUpToDate || s == StateDone
}
