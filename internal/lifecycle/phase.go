package lifecycle

// Phase represents the current phase of the connection state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseAwaitingScan
	PhaseOpen
	PhaseClosed
)

// String returns a string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseAwaitingScan:
		return "awaiting_scan"
	case PhaseOpen:
		return "open"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}
