package phymuti

// Memory region permission flags, combinable with bitwise OR.
type Flags uint8

const (
	FlagRead Flags = 1 << iota
	FlagWrite
	FlagExec

	FlagRW  = FlagRead | FlagWrite
	FlagRX  = FlagRead | FlagExec
	FlagRWX = FlagRead | FlagWrite | FlagExec
)

// AccessKind distinguishes the three ways a region can be touched, both
// in an AccessContext broadcast and in a SCRIPT action's argv.
type AccessKind uint8

const (
	AccessRead AccessKind = iota
	AccessWrite
	AccessExec
)

func (k AccessKind) String() string {
	switch k {
	case AccessRead:
		return "READ"
	case AccessWrite:
		return "WRITE"
	case AccessExec:
		return "EXEC"
	default:
		return "UNKNOWN"
	}
}

// WatchpointKind selects which accesses a watchpoint reacts to.
type WatchpointKind uint8

const (
	WatchRead WatchpointKind = iota + 1
	WatchWrite
	WatchAccess
	WatchValueWrite
)

func (k WatchpointKind) String() string {
	switch k {
	case WatchRead:
		return "READ"
	case WatchWrite:
		return "WRITE"
	case WatchAccess:
		return "ACCESS"
	case WatchValueWrite:
		return "VALUE_WRITE"
	default:
		return "UNKNOWN"
	}
}

// ActionType selects how an action's payload is executed.
type ActionType uint8

const (
	ActionCallback ActionType = iota + 1
	ActionScript
	ActionCommand
)

func (t ActionType) String() string {
	switch t {
	case ActionCallback:
		return "CALLBACK"
	case ActionScript:
		return "SCRIPT"
	case ActionCommand:
		return "COMMAND"
	default:
		return "UNKNOWN"
	}
}

// InstanceState is a device instance's lifecycle stage.
type InstanceState uint8

const (
	StateCreating InstanceState = iota
	StateLive
	StateDestroying
	StateGone
)

func (s InstanceState) String() string {
	switch s {
	case StateCreating:
		return "creating"
	case StateLive:
		return "live"
	case StateDestroying:
		return "destroying"
	case StateGone:
		return "gone"
	default:
		return "unknown"
	}
}

const (
	// MaxWatchpointSize is the widest single watchpoint width (matches
	// the widest typed access, a doubleword).
	MaxWatchpointSize = 8

	// actionListInitialCapacity is the starting capacity of a
	// watchpoint's action-id list; append grows it from there, doubling
	// at these sizes. actionListGrowthFactor records that factor; no
	// code reads it.
	actionListInitialCapacity = 4
	actionListGrowthFactor    = 2

	// invalidID is the reserved zero id shared by watchpoints, actions,
	// and rules to mean "no such object".
	invalidID uint64 = 0
)
