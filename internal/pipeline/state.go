package pipeline

// State is the position of a single run in the pipeline state machine.
type State int

const (
	StateStarted State = iota + 1
	StateValidated
	StatePreviewReady
	StateWaveformReady
	StateEncrypted
	StateCompleted
	StateFailed
)

var stateNames = map[State]string{
	StateStarted:       "started",
	StateValidated:     "validated",
	StatePreviewReady:  "preview_ready",
	StateWaveformReady: "waveform_ready",
	StateEncrypted:     "encrypted",
	StateCompleted:     "completed",
	StateFailed:        "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsTerminal reports whether the run has finished.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// canAdvance reports whether a run in state from may move to next.
// Runs move strictly forward one step at a time, or fail from any
// non-terminal state. The zero State is a run that has not started.
func canAdvance(from, next State) bool {
	if from.IsTerminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	return next == from+1 && next <= StateCompleted
}
