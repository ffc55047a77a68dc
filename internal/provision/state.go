package provision

// State is a stage of a provisioning flow.
type State int

// Flow states, in pipeline order. Failed is terminal and reachable from
// every other state.
const (
	StateIdle State = iota
	StateListingAliases
	StateAwaitingAliasSelection
	StateComputingFingerprint
	StateFetchingSecretList
	StateFetchingSecretValue
	StateVerifyingFingerprint
	StateUnwrapping
	StateDecrypting
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateIdle:                   "idle",
	StateListingAliases:         "listing_aliases",
	StateAwaitingAliasSelection: "awaiting_alias_selection",
	StateComputingFingerprint:   "computing_fingerprint",
	StateFetchingSecretList:     "fetching_secret_list",
	StateFetchingSecretValue:    "fetching_secret_value",
	StateVerifyingFingerprint:   "verifying_fingerprint",
	StateUnwrapping:             "unwrapping",
	StateDecrypting:             "decrypting",
	StateDone:                   "done",
	StateFailed:                 "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Transition is reported to observers on every state change. SecretID is
// set for the per-secret stages that run once per descriptor.
type Transition struct {
	FlowID   string
	SecretID string
	From     State
	To       State
	Err      error
}

// flowState is the explicit per-flow value threaded through the pipeline
// stages. Stages return an updated copy.
type flowState struct {
	id          string
	state       State
	alias       string
	fingerprint string
	keySize     int
}
