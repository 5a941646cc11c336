package tracker

// State is the localization state reported by the core.
type State int

const (
	// StateInitial is a fresh session, or one reset after failing for a long time.
	StateInitial State = iota
	// StateNotRecognized means localization has not succeeded since the session started.
	StateNotRecognized
	// StateVLPass means localization succeeded at least once.
	StateVLPass
	// StateVLFail means localization kept failing after having passed.
	StateVLFail
	// StateVLOutOfService means the device is outside every serviced area.
	StateVLOutOfService
	// StateVLReceived means a response arrived and is being evaluated.
	StateVLReceived
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "INITIAL"
	case StateNotRecognized:
		return "NOT_RECOGNIZED"
	case StateVLPass:
		return "VL_PASS"
	case StateVLFail:
		return "VL_FAIL"
	case StateVLOutOfService:
		return "VL_OUT_OF_SERVICE"
	case StateVLReceived:
		return "VL_RECEIVED"
	default:
		return "UNKNOWN"
	}
}
