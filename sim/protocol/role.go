package protocol

// State is a step of a node's scheduling cycle.
type State string

const (
	StateAwaitArrival State = "AWAIT_ARRIVAL"

	// leaf cycle
	StateRegister State = "REGISTER"
	StateMeasure  State = "MEASURE"
	StateVacate   State = "VACATE"

	// switch cycle
	StateRegisterAll   State = "REGISTER_ALL"
	StateExpire        State = "EXPIRE"
	StateEvict         State = "EVICT"
	StateDrainReserved State = "DRAIN_RESERVED"
	StateMatchLoop     State = "MATCH_LOOP"
	StateSignal        State = "SIGNAL"
)

// Role is the scheduling behaviour of one node. Both roles share the
// primitives of Node and supply their own cycle.
type Role interface {
	// Name returns the protocol's name.
	Name() string
	// Node returns the node the role runs on.
	Node() *Node
	// State returns the step the current cycle is in.
	State() State
	// Start subscribes the role to arrivals at its node.
	Start()
	// Reset returns the role to AWAIT_ARRIVAL with empty memories and counters.
	Reset()
	// Err returns the first error that aborted a cycle, or nil.
	Err() error
}

var (
	_ Role = (*LeafProtocol)(nil)
	_ Role = (*SwitchProtocol)(nil)
)
